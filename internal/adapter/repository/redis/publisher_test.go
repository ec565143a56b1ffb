package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/iho/pspledger/internal/domain"
)

func TestPublisherPublishesJSON(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultEventChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := domain.NewOverrideWrittenEvent("ev-1", &domain.AuditEntry{
		ID:        "a-1",
		Kind:      domain.KindDevir,
		Date:      domain.Date{Year: 2024, Month: time.March, Day: 2},
		PSP:       "PAPARA",
		UpdatedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		UpdatedBy: "alice",
	})
	if err := NewPublisher(client, "").Publish(ctx, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got map[string]any
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if got["event_type"] != domain.EventTypeOverrideWritten || got["aggregate_id"] != "2024-03-02/PAPARA/devir" {
			t.Fatalf("unexpected message %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
}
