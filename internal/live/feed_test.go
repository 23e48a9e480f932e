package live

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPublishSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	feed := NewFeedWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	defer feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, closeSub := feed.Subscribe(ctx)
	defer closeSub()

	// Subscription setup races the publish; give it a moment.
	time.Sleep(50 * time.Millisecond)

	if err := feed.Publish(ctx, "test_1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-events:
		if evt.TestID != "test_1" {
			t.Fatalf("event test ID = %q, want test_1", evt.TestID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for attendance event")
	}
}
