package domain

import "time"

// Event types
const (
	EventTypeOverrideWritten = "override.written"
)

// Aggregate types
const (
	AggregateTypeOverride = "override"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewOverrideWrittenEvent builds the outbox event for an audit entry.
func NewOverrideWrittenEvent(eventID string, e *AuditEntry) *OutboxEvent {
	return &OutboxEvent{
		ID:            eventID,
		AggregateID:   OverrideKey{Date: e.Date, PSP: e.PSP, Kind: e.Kind}.String(),
		AggregateType: AggregateTypeOverride,
		EventType:     EventTypeOverrideWritten,
		Payload: map[string]any{
			"audit_id":        e.ID,
			"date":            e.Date.String(),
			"psp":             e.PSP,
			"kind":            string(e.Kind),
			"amount":          e.Amount.String(),
			"previous_amount": e.PreviousAmount.String(),
			"updated_by":      e.UpdatedBy,
			"event_at":        e.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: e.UpdatedAt,
	}
}
