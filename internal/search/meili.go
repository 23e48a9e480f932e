package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxApplicants = "proctor_applicants"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the applicant index.
// An unreachable server is tolerated: the health loop recovers it later and
// callers fall back to Postgres meanwhile.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxApplicants,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxApplicants, err)
	}

	index := m.client.Index(idxApplicants)
	filterable := []interface{}{"testId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxApplicants, err)
	}
	searchable := []string{"name", "rollNumber"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxApplicants, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the applicant index, filtered to the query's test.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit: limit,
	}
	if q.TestID != "" {
		sr.Filter = []string{fmt.Sprintf("testId = %q", q.TestID)}
	}

	resp, err := m.client.Index(idxApplicants).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ApplicantID: decodeString(hit, "id"),
		TestID:      decodeString(hit, "testId"),
		Name:        decodeString(hit, "name"),
		RollNumber:  decodeString(hit, "rollNumber"),
		Venue:       decodeString(hit, "venue"),
		Attended:    decodeBool(hit, "attended"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func decodeBool(hit meili.Hit, key string) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

// IndexApplicant adds or updates one applicant in the search index.
func (m *Meili) IndexApplicant(record ApplicantRecord) error {
	_, err := m.client.Index(idxApplicants).AddDocuments([]ApplicantRecord{record}, nil)
	return err
}

// IndexApplicants bulk-indexes applicants.
func (m *Meili) IndexApplicants(records []ApplicantRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxApplicants).AddDocuments(records, nil)
	return err
}

// DeleteApplicant removes an applicant from the search index.
func (m *Meili) DeleteApplicant(id string) error {
	_, err := m.client.Index(idxApplicants).DeleteDocument(id, nil)
	return err
}
