package handler

import (
	"context"
	"net/http"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

// PSPService lists the PSP directory.
type PSPService interface {
	ListPSPs(ctx context.Context) ([]*domain.PSP, error)
}

// TransactionService reads ingested transactions.
type TransactionService interface {
	FetchTransactions(ctx context.Context, input usecase.FetchTransactionsInput) ([]domain.Transaction, error)
}

// PSPHandler serves the PSP directory and raw transactions.
type PSPHandler struct {
	psps PSPService
	txs  TransactionService
}

// NewPSPHandler creates a new PSPHandler.
func NewPSPHandler(psps PSPService, txs TransactionService) *PSPHandler {
	return &PSPHandler{psps: psps, txs: txs}
}

// List handles GET /api/v1/psps.
func (h *PSPHandler) List(w http.ResponseWriter, r *http.Request) {
	psps, err := h.psps.ListPSPs(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PSPsFromDomain(psps))
}

// Transactions handles GET /api/v1/transactions?start=&end=&psp=.
func (h *PSPHandler) Transactions(w http.ResponseWriter, r *http.Request) {
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

	txs, err := h.txs.FetchTransactions(r.Context(), usecase.FetchTransactionsInput{
		Start: start,
		End:   end,
		PSP:   r.URL.Query().Get("psp"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(txs))
}
