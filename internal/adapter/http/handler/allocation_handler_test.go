package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

type allocatorStub func(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error)

func (f allocatorStub) Allocate(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error) {
	return f(ctx, input)
}

func TestAllocationHandler_Bulk_PartialFailure(t *testing.T) {
	date := domain.NewDate(2024, 3, 5)
	h := NewAllocationHandler(allocatorStub(func(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error) {
		if !input.Amounts["ININAL"].Equal(decimal.RequireFromString("20.5")) || input.Actor != "alice" {
			t.Fatalf("unexpected input %+v", input)
		}
		result := &usecase.BulkAllocationResult{
			Date: date,
			Outcomes: []usecase.AllocationOutcome{
				{PSP: "ININAL", Amount: decimal.RequireFromString("20.5"), Entry: &domain.AuditEntry{ID: "e1", PSP: "ININAL"}},
				{PSP: "PAPARA", Amount: decimal.NewFromInt(10), Err: errors.New("timeout")},
			},
		}
		return result, result.Err()
	}))

	body := []byte(`{"date":"2024-03-05","amounts":{"ININAL":"20.5","PAPARA":10}}`)
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/allocations/bulk", bytes.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	h.Bulk(rec, req)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.BulkAllocationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Outcomes) != 2 || len(resp.Failed) != 1 || resp.Failed[0] != "PAPARA" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !resp.Outcomes[0].OK || resp.Outcomes[1].Error != "timeout" {
		t.Fatalf("unexpected outcomes %+v", resp.Outcomes)
	}
}

func TestAllocationHandler_Bulk_InvalidAmountRejectsRun(t *testing.T) {
	h := NewAllocationHandler(allocatorStub(func(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error) {
		t.Fatalf("no write may be dispatched")
		return nil, nil
	}))

	body := []byte(`{"date":"2024-03-05","amounts":{"PAPARA":"ten"}}`)
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/allocations/bulk", bytes.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	h.Bulk(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAllocationHandler_Bulk_Success(t *testing.T) {
	h := NewAllocationHandler(allocatorStub(func(ctx context.Context, input usecase.BulkAllocationInput) (*usecase.BulkAllocationResult, error) {
		return &usecase.BulkAllocationResult{Date: input.Date, Outcomes: []usecase.AllocationOutcome{{PSP: "PAPARA"}}}, nil
	}))

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/allocations/bulk",
		bytes.NewBufferString(`{"date":"2024-03-05","amounts":{}}`)), "alice")
	rec := httptest.NewRecorder()
	h.Bulk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp dto.BulkAllocationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Reconciled || len(resp.Failed) != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}
