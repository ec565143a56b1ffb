package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
)

// AuditUseCase queries and exports the override audit log.
type AuditUseCase struct {
	auditRepo AuditRepository
	batchSize int
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewAuditUseCase(auditRepo AuditRepository, batchSize int, logger zerolog.Logger, metrics *metrics.Metrics) *AuditUseCase {
	if batchSize <= 0 {
		batchSize = DefaultExportBatchSize
	}
	return &AuditUseCase{
		auditRepo: auditRepo,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// QueryAuditInput is a filtered page request.
type QueryAuditInput struct {
	Filter   domain.AuditFilter
	Page     int
	PageSize int
}

// Query returns one page ordered newest first.
func (uc *AuditUseCase) Query(ctx context.Context, input QueryAuditInput) (*domain.AuditPage, error) {
	if err := input.Filter.Validate(); err != nil {
		return nil, err
	}

	page, pageSize := domain.ValidatePagination(input.Page, input.PageSize)

	total, err := uc.auditRepo.Count(ctx, input.Filter)
	if err != nil {
		return nil, err
	}

	entries, err := uc.auditRepo.List(ctx, input.Filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return domain.NewAuditPage(entries, total, page, pageSize), nil
}

// Export streams every matching entry to w in batches and returns the number
// of entries written. w is flushed after each batch when it supports it.
func (uc *AuditUseCase) Export(ctx context.Context, filter domain.AuditFilter, format ExportFormat, w io.Writer) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	enc, err := newAuditEncoder(format, w)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	if err := enc.Begin(); err != nil {
		return 0, err
	}

	written := 0
	var cursor *domain.AuditCursor
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		batch, err := uc.auditRepo.ListAfter(ctx, filter, cursor, uc.batchSize)
		if err != nil {
			return written, fmt.Errorf("export batch after %d entries: %w", written, err)
		}

		for _, e := range batch {
			if err := enc.Encode(e); err != nil {
				return written, err
			}
			written++
		}

		if err := enc.Flush(); err != nil {
			return written, err
		}
		if f, ok := w.(interface{ Flush() }); ok {
			f.Flush()
		}

		if len(batch) < uc.batchSize {
			break
		}
		cursor = domain.CursorOf(batch[len(batch)-1])
	}

	if uc.metrics != nil {
		uc.metrics.AuditExportRows.WithLabelValues(string(format)).Add(float64(written))
	}

	uc.logger.Info().
		Str("format", string(format)).
		Int("rows", written).
		Dur("took", time.Since(start)).
		Msg("audit export finished")

	return written, nil
}
