//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), url, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return c
}

func TestIntegration_QueueGroupDeliversOnce(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	// Two replicas in one queue group split the stream between them.
	replicas := []*Client{connect(t, natsURL), connect(t, natsURL)}
	publisher := connect(t, natsURL)
	defer publisher.Close()

	var delivered atomic.Int64
	received := make(chan ActivityEvent, 16)
	for _, r := range replicas {
		err := r.QueueSubscribe("soulscore.test.activity", "soulscore-test", func(subject string, data []byte) {
			var evt ActivityEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				t.Errorf("bad payload: %v", err)
				return
			}
			delivered.Add(1)
			received <- evt
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
	}

	// Give subscriptions time to propagate
	time.Sleep(100 * time.Millisecond)

	const sent = 10
	for i := 0; i < sent; i++ {
		if err := publisher.Publish("soulscore.test.activity", ActivityEvent{
			IdentityID:     "8d3c1f4e-2f59-4c43-9a53-0f0b6ab5a111",
			CategoryScores: map[string]float64{"community_engagement": 0.5},
			OccurredAt:     int64(i + 1),
		}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	for i := 0; i < sent; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d messages", i, sent)
		}
	}

	// Close waits for the drain, so no late duplicate can arrive afterwards.
	for _, r := range replicas {
		r.Close()
	}
	if got := delivered.Load(); got != sent {
		t.Errorf("expected each message once (%d), got %d deliveries", sent, got)
	}
}
