package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

func fastRetrier(maxRetries int, m *metrics.Metrics) *Retrier {
	return NewRetrier(zerolog.Nop(), RetrierConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Metrics:         m,
	})
}

func TestRetrierRetriesLockTimeout(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	r := fastRetrier(2, m)

	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return fmt.Errorf("lock override: %w", &pgconn.PgError{Code: pgErrLockNotAvailable})
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if got := testutil.ToFloat64(m.DBRetries.WithLabelValues("lock_timeout")); got != 1 {
		t.Fatalf("expected one lock_timeout retry recorded, got %v", got)
	}
}

func TestRetrierGivesUpAfterMaxRetries(t *testing.T) {
	r := fastRetrier(2, nil)

	attempts := 0
	err := r.Retry(context.Background(), func() error {
		attempts++
		return &pgconn.PgError{Code: pgErrDeadlock}
	})

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgErrDeadlock {
		t.Fatalf("expected deadlock error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrierDoesNotRepeatOtherErrors(t *testing.T) {
	r := fastRetrier(3, nil)

	for _, failure := range []error{
		errors.New("connection reset"),
		&pgconn.PgError{Code: "23514"}, // check_violation
	} {
		attempts := 0
		err := r.Retry(context.Background(), func() error {
			attempts++
			return failure
		})
		if !errors.Is(err, failure) {
			t.Fatalf("expected %v, got %v", failure, err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt for %v, got %d", failure, attempts)
		}
	}
}

func TestRetrierStopsOnCancelledContext(t *testing.T) {
	r := fastRetrier(5, nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Retry(ctx, func() error {
		attempts++
		cancel()
		return &pgconn.PgError{Code: pgErrSerializationFailure}
	})
	if err == nil {
		t.Fatalf("expected an error after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", attempts)
	}
}

func TestContentionReason(t *testing.T) {
	tests := map[string]string{
		pgErrDeadlock:             "deadlock",
		pgErrSerializationFailure: "serialization",
		pgErrLockNotAvailable:     "lock_timeout",
		"23505":                   "",
	}
	for code, want := range tests {
		if got := contentionReason(&pgconn.PgError{Code: code}); got != want {
			t.Fatalf("code %s: expected %q, got %q", code, want, got)
		}
	}
	if contentionReason(errors.New("other")) != "" {
		t.Fatalf("expected generic error to be non-retryable")
	}
}
