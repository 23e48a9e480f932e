// Package archive persists seating-chart snapshots to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads seating charts. A nil *Service is a valid no-op.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to object storage and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// SeatingRow is one line of an archived seating chart.
type SeatingRow struct {
	RollNumber string
	Name       string
	Venue      string
}

// PutSeatingChart writes a timestamped CSV snapshot of a seating plan.
// Object names are keyed by test so successive allocations for the same
// test keep their history.
func (s *Service) PutSeatingChart(ctx context.Context, testID string, rows []SeatingRow) error {
	if s == nil {
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"roll_number", "name", "venue"})
	for _, row := range rows {
		_ = w.Write([]string{row.RollNumber, row.Name, row.Venue})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode seating chart: %w", err)
	}

	name := fmt.Sprintf("seating/%s/%s.csv", testID, time.Now().UTC().Format("20060102T150405Z"))
	_, err := s.client.PutObject(ctx, s.bucket, name, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("put seating chart: %w", err)
	}
	return nil
}
