package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
	"github.com/iho/pspledger/internal/usecase"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 5 * time.Second
)

// Sink delivers one outbox event to the outside world.
type Sink interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Config for Relay.
type Config struct {
	Outbox    usecase.OutboxRepository
	Sink      Sink
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	BatchSize int
	Interval  time.Duration
	Retention time.Duration // published rows older than this are pruned; 0 keeps them
}

// Relay drains the override outbox into a Sink.
//
// Events of one override cell leave in the order they were written. When a
// delivery fails, later events of the same cell wait for the next poll
// instead of overtaking it; other cells carry on.
type Relay struct {
	outbox    usecase.OutboxRepository
	sink      Sink
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRelay(cfg Config) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Relay{
		outbox:    cfg.Outbox,
		sink:      cfg.Sink,
		logger:    cfg.Logger.With().Str("worker", "outbox_relay").Logger(),
		metrics:   cfg.Metrics,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Run polls until ctx is done and returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Int("batch_size", r.batchSize).Dur("interval", r.interval).Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.poll(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) poll(ctx context.Context) {
	delivered, err := r.drain(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("read outbox")
	} else if delivered > 0 {
		r.logger.Debug().Int("delivered", delivered).Msg("outbox drained")
	}

	if r.retention <= 0 {
		return
	}
	if err := r.outbox.DeletePublished(ctx, r.now().Add(-r.retention)); err != nil {
		r.logger.Error().Err(err).Msg("prune outbox")
	}
}

// drain delivers one batch and reports how many events left the outbox.
func (r *Relay) drain(ctx context.Context) (int, error) {
	events, err := r.outbox.GetUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	blocked := make(map[string]bool)
	delivered := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return delivered, nil
		}
		if blocked[ev.AggregateID] {
			r.count(ev, "deferred")
			continue
		}

		if err := r.sink.Publish(ctx, ev); err != nil {
			blocked[ev.AggregateID] = true
			r.count(ev, "error")
			r.logger.Warn().Err(err).
				Str("event_id", ev.ID).
				Str("cell", ev.AggregateID).
				Msg("deliver event")
			continue
		}
		r.count(ev, "success")
		delivered++

		if err := r.outbox.MarkPublished(ctx, ev.ID, r.now()); err != nil {
			// redelivered next poll; consumers dedupe on event id
			blocked[ev.AggregateID] = true
			r.logger.Error().Err(err).Str("event_id", ev.ID).Msg("mark event published")
		}
	}
	return delivered, nil
}

func (r *Relay) count(ev *domain.OutboxEvent, status string) {
	if r.metrics != nil {
		r.metrics.EventsPublished.WithLabelValues(ev.EventType, status).Inc()
	}
}

// LogSink writes events to the log. It serves deployments without a broker.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, ev *domain.OutboxEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("event_id", ev.ID).
		Str("event_type", ev.EventType).
		Str("cell", ev.AggregateID).
		RawJSON("payload", payload).
		Msg("override event")
	return nil
}
