package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

// SQLSTATE codes an override write may hit when two sessions edit the
// same cell at once.
const (
	pgErrDeadlock             = "40P01"
	pgErrSerializationFailure = "40001"
	pgErrLockNotAvailable     = "55P03" // lock_timeout on SELECT ... FOR UPDATE
)

// RetrierConfig bounds the backoff of a Retrier. Zero fields take defaults.
type RetrierConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Metrics         *metrics.Metrics
}

// Retrier implements usecase.Retrier. It re-runs a whole override
// transaction when the database reports lock contention; any other error
// is returned at once so a failed write is never applied twice.
type Retrier struct {
	cfg    RetrierConfig
	logger zerolog.Logger
}

// NewRetrier creates a Retrier.
func NewRetrier(logger zerolog.Logger, cfg RetrierConfig) *Retrier {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = 10 * time.Second
	}
	return &Retrier{cfg: cfg, logger: logger.With().Str("component", "retrier").Logger()}
}

// Retry runs op until it succeeds, fails permanently or the budget runs out.
func (r *Retrier) Retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		reason := contentionReason(err)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.DBRetries.WithLabelValues(reason).Inc()
		}
		r.logger.Warn().Err(err).Str("reason", reason).Dur("wait", wait).Msg("override transaction contended, retrying")
	}

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && contentionReason(err) == "" {
			return backoff.Permanent(err)
		}
		return err
	}, policy, notify)
}

// contentionReason names the kind of lock contention behind err, or ""
// when err is not worth retrying.
func contentionReason(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch pgErr.Code {
	case pgErrDeadlock:
		return "deadlock"
	case pgErrSerializationFailure:
		return "serialization"
	case pgErrLockNotAvailable:
		return "lock_timeout"
	default:
		return ""
	}
}
