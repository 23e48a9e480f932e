// Package live publishes attendance change events for dashboards.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const channel = "proctor:attendance"

// Event is the payload published on each successful attendance mark. It
// carries only the test ID: subscribers hold whatever roster detail they
// need and no PII travels over the feed.
type Event struct {
	TestID string `json:"testId"`
}

// Feed publishes attendance events over Redis pub/sub
type Feed struct {
	client *redis.Client
}

// NewFeed creates a feed from a Redis URL
func NewFeed(redisURL string) (*Feed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewFeedWithClient(client), nil
}

// NewFeedWithClient creates a feed from an existing Redis client
func NewFeedWithClient(client *redis.Client) *Feed {
	return &Feed{client: client}
}

// Publish emits an attendance event for the given test
func (f *Feed) Publish(ctx context.Context, testID string) error {
	payload, err := json.Marshal(Event{TestID: testID})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := f.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish attendance event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of attendance events. The returned cancel
// func closes the subscription.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, func() error) {
	sub := f.client.Subscribe(ctx, channel)
	events := make(chan Event)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, sub.Close
}

// Close closes the Redis connection
func (f *Feed) Close() error {
	return f.client.Close()
}
