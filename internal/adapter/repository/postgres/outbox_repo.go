package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const insertOutboxEvent = `
	INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getUnpublishedEvents = `
	SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published_at, published
	FROM outbox_events
	WHERE NOT published
	ORDER BY created_at, id
	LIMIT $1`

const markEventPublished = `UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`

const deletePublishedEvents = `DELETE FROM outbox_events WHERE published AND published_at < $1`

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	db, err := conn(r.db, tx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = db.Exec(ctx, insertOutboxEvent,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
		event.Published,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, getUnpublishedEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("get unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			e           domain.OutboxEvent
			payload     []byte
			publishedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &payload, &e.CreatedAt, &publishedAt, &e.Published); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("outbox event %s payload: %w", e.ID, err)
			}
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			e.PublishedAt = &t
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if _, err := r.db.Exec(ctx, markEventPublished, id, publishedAt); err != nil {
		return fmt.Errorf("mark event %s published: %w", id, err)
	}
	return nil
}

// DeletePublished deletes published events older than before.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	if _, err := r.db.Exec(ctx, deletePublishedEvents, before); err != nil {
		return fmt.Errorf("delete published events: %w", err)
	}
	return nil
}
