package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/pspledger/internal/domain"
)

// DefaultEventChannel is the pub/sub channel override events go to.
const DefaultEventChannel = "pspledger:events"

// Publisher publishes outbox events on a Redis pub/sub channel.
type Publisher struct {
	client  redis.Cmdable
	channel string
}

// NewPublisher creates a new Publisher.
func NewPublisher(client redis.Cmdable, channel string) *Publisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &Publisher{client: client, channel: channel}
}

type eventMessage struct {
	ID            string         `json:"id"`
	EventType     string         `json:"event_type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     string         `json:"created_at"`
}

// Publish sends event as JSON.
func (p *Publisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg, err := json.Marshal(eventMessage{
		ID:            event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
