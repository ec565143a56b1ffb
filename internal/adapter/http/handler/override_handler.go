package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// OverrideService defines the override operations the handler needs.
type OverrideService interface {
	GetOverride(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (string, decimal.Decimal, error)
	SaveOverride(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error)
	Snapshot(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error)
}

// OverrideHandler handles override HTTP requests.
type OverrideHandler struct {
	overrides OverrideService
}

// NewOverrideHandler creates a new OverrideHandler.
func NewOverrideHandler(overrides OverrideService) *OverrideHandler {
	return &OverrideHandler{overrides: overrides}
}

// Get handles GET /api/v1/overrides/{date}/{psp}/{kind}. A missing record
// reads as zero.
func (h *OverrideHandler) Get(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, r, domain.NewValidationError("date", err))
		return
	}
	kind, err := domain.ParseOverrideKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	psp, amount, err := h.overrides.GetOverride(r.Context(), date, chi.URLParam(r, "psp"), kind)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OverrideResponse{Date: date, PSP: psp, Kind: kind, Amount: amount})
}

// List handles GET /api/v1/overrides?start=&end=.
func (h *OverrideHandler) List(w http.ResponseWriter, r *http.Request) {
	start, err := requireDateQuery(r, "start")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	end, err := requireDateQuery(r, "end")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := domain.ValidateDateRange(start, end); err != nil {
		writeDomainError(w, r, err)
		return
	}

	snapshot, err := h.overrides.Snapshot(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OverridesFromSnapshot(snapshot))
}

// Save handles PUT /api/v1/overrides and returns the audit entry.
func (h *OverrideHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveOverrideRequest
	if err := dto.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	input, err := req.ToUseCaseInput(actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	entry, err := h.overrides.SaveOverride(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditEntryFromDomain(entry))
}
