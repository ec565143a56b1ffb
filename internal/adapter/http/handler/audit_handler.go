package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// AuditService queries and exports the audit log.
type AuditService interface {
	Query(ctx context.Context, input usecase.QueryAuditInput) (*domain.AuditPage, error)
	Export(ctx context.Context, filter domain.AuditFilter, format usecase.ExportFormat, w io.Writer) (int, error)
}

// AuditHandler serves the override audit log.
type AuditHandler struct {
	audit AuditService
	now   func() time.Time
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit, now: time.Now}
}

// List handles GET /api/v1/audit?start=&end=&psp=&kind=&page=&page_size=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	page, err := h.audit.Query(r.Context(), usecase.QueryAuditInput{
		Filter:   filter,
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", domain.DefaultPageSize),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditPageFromDomain(page))
}

// Export handles GET /api/v1/audit/export?format=csv|jsonl. Rows stream in
// batches; an error after the first byte can only be logged.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	format, err := usecase.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	// The server's write timeout covers the whole response. An export runs
	// until the keyset walk ends or the client goes away.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to clear write deadline")
	}

	filename := fmt.Sprintf("override-audit-%s.%s", h.now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := h.audit.Export(r.Context(), filter, format, &flushWriter{w: w})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("rows", n).Msg("audit export aborted")
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("rows", n).Str("format", string(format)).Msg("audit exported")
}

func parseAuditFilter(r *http.Request) (domain.AuditFilter, error) {
	var (
		f   domain.AuditFilter
		err error
	)
	if f.StartDate, err = parseDateQuery(r, "start"); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDateQuery(r, "end"); err != nil {
		return f, err
	}
	f.PSP = r.URL.Query().Get("psp")
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if f.Kind, err = domain.ParseOverrideKind(kind); err != nil {
			return f, err
		}
	}
	return f, nil
}

// flushWriter pushes every export batch to the client.
type flushWriter struct {
	w http.ResponseWriter
}

func (f *flushWriter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *flushWriter) Flush() {
	_ = http.NewResponseController(f.w).Flush()
}
