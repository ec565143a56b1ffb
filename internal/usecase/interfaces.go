package usecase

import (
	"context"
	"time"

	"github.com/iho/pspledger/internal/domain"
)

// TransactionRepository reads ingested PSP transactions.
type TransactionRepository interface {
	// ListByRange returns transactions with start <= date <= end. An empty psp
	// matches every PSP.
	ListByRange(ctx context.Context, start, end domain.Date, psp string) ([]domain.Transaction, error)
}

// PSPRepository lists the PSP directory, inactive entries included.
type PSPRepository interface {
	List(ctx context.Context) ([]*domain.PSP, error)
}

// OverrideRepository stores the current value of each override cell.
type OverrideRepository interface {
	Get(ctx context.Context, key domain.OverrideKey) (*domain.Override, error)
	GetForUpdate(ctx context.Context, tx Transaction, key domain.OverrideKey) (*domain.Override, error)
	// Upsert writes the override and sets CreatedAt to the stored creation time.
	Upsert(ctx context.Context, tx Transaction, override *domain.Override) error
	ListByRange(ctx context.Context, start, end domain.Date) ([]*domain.Override, error)
}

// AuditRepository appends to and pages through the override audit log.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, entry *domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter, limit, offset int) ([]*domain.AuditEntry, error)
	Count(ctx context.Context, filter domain.AuditFilter) (int64, error)
	// ListAfter returns up to limit entries strictly after the cursor, newest
	// first. A nil cursor starts at the newest entry.
	ListAfter(ctx context.Context, filter domain.AuditFilter, after *domain.AuditCursor, limit int) ([]*domain.AuditEntry, error)
}

// OutboxRepository stores override events until the relay delivers them.
// Create shares the override transaction, so an event exists iff its write
// committed.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager opens the transaction an override write runs in.
// Rollback after Commit must be a no-op.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs op while it fails with lock contention.
type Retrier interface {
	Retry(ctx context.Context, op func() error) error
}

// IDGenerator mints audit and event ids. Ids must sort by creation time.
type IDGenerator interface {
	Generate() string
}

// Cache holds encoded override snapshots. Get returns nil, nil on a miss.
// Every key carries a generation that Invalidate bumps. A reader takes the
// generation before loading from the database and stores with
// SetIfGeneration, which refuses once a write has invalidated the key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Generation(ctx context.Context, key string) (int64, error)
	SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, gen int64) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// IdempotencyStore backs the Idempotency-Key header on write endpoints.
type IdempotencyStore interface {
	// CheckAndSet claims key, or reports the value already stored under it.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update replaces the claim with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a pending claim; stored responses survive it.
	Release(ctx context.Context, key string) error
}

// SecurityTokenStore keeps the single valid write token of each session.
type SecurityTokenStore interface {
	// Issue rotates the session's token; the previous one stops validating.
	Issue(ctx context.Context, sessionID string) (string, error)
	Validate(ctx context.Context, sessionID, token string) (bool, error)
}
