package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/usecase"
)

// BulkAllocator runs a bulk allocation.
type BulkAllocator interface {
	Allocate(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error)
}

// AllocationHandler handles bulk allocation requests.
type AllocationHandler struct {
	allocator BulkAllocator
}

// NewAllocationHandler creates a new AllocationHandler.
func NewAllocationHandler(allocator BulkAllocator) *AllocationHandler {
	return &AllocationHandler{allocator: allocator}
}

// Bulk handles POST /api/v1/allocations/bulk. A run where some PSPs failed
// answers 207 with every outcome.
func (h *AllocationHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkAllocationRequest
	if err := dto.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	input, err := req.ToUseCaseInput(actorOf(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.allocator.Allocate(r.Context(), input)
	var partial *usecase.PartialBulkFailure
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.BulkAllocationFromResult(result))
	case errors.As(err, &partial) && result != nil:
		writeJSON(w, http.StatusMultiStatus, dto.BulkAllocationFromResult(result))
	default:
		writeDomainError(w, r, err)
	}
}
