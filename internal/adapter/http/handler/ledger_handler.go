package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// LedgerService builds monthly ledgers.
type LedgerService interface {
	MonthlyLedger(ctx context.Context, input usecase.MonthlyLedgerInput) (*domain.MonthlyLedger, error)
}

// LedgerHandler serves the completed monthly ledger.
type LedgerHandler struct {
	ledger LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Month handles GET /api/v1/ledger/{year}/{month}?psp=.
func (h *LedgerHandler) Month(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeDomainError(w, r, domain.NewValidationError("year", domain.ErrInvalidDate))
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, r, domain.NewValidationError("month", domain.ErrInvalidDate))
		return
	}

	ledger, err := h.ledger.MonthlyLedger(r.Context(), usecase.MonthlyLedgerInput{
		Year:  year,
		Month: month,
		PSP:   r.URL.Query().Get("psp"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MonthlyLedgerFromDomain(ledger))
}
