package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/usecase"
)

type overrideServiceStub struct {
	getFn      func(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (string, decimal.Decimal, error)
	saveFn     func(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error)
	snapshotFn func(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error)
}

func (s *overrideServiceStub) GetOverride(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (string, decimal.Decimal, error) {
	return s.getFn(ctx, date, psp, kind)
}

func (s *overrideServiceStub) SaveOverride(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error) {
	return s.saveFn(ctx, input)
}

func (s *overrideServiceStub) Snapshot(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error) {
	return s.snapshotFn(ctx, start, end)
}

func withPrincipal(req *http.Request, actor string) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{
		UserID: actor, Role: domain.RoleOperator, SessionID: "s1",
	}))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestOverrideHandler_Save_Success(t *testing.T) {
	var captured usecase.SaveOverrideInput
	h := NewOverrideHandler(&overrideServiceStub{
		saveFn: func(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error) {
			captured = input
			return &domain.AuditEntry{
				ID: "01HX", Kind: input.Kind, Date: input.Date, PSP: "PAPARA",
				Amount: decimal.RequireFromString("1500.50"), PreviousAmount: decimal.Zero, UpdatedBy: input.Actor,
			}, nil
		},
	})

	body := []byte(`{"date":"2024-03-05","psp":" papara ","kind":"Allocation","amount":1500.50}`)
	req := withPrincipal(httptest.NewRequest(http.MethodPut, "/overrides", bytes.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	h.Save(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Actor != "alice" || captured.PSP != "papara" || captured.Kind != domain.KindAllocation {
		t.Fatalf("unexpected input %+v", captured)
	}
	if n, ok := captured.Amount.(json.Number); !ok || n.String() != "1500.50" {
		t.Fatalf("expected amount to stay a json.Number, got %#v", captured.Amount)
	}

	var resp dto.AuditEntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "01HX" || resp.Date.String() != "2024-03-05" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOverrideHandler_Save_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest},
		{"bad date", `{"date":"05/03/2024","psp":"PAPARA","kind":"devir","amount":"1"}`, nil, http.StatusBadRequest},
		{"bad kind", `{"date":"2024-03-05","psp":"PAPARA","kind":"bonus","amount":"1"}`, nil, http.StatusBadRequest},
		{"invalid amount", `{"date":"2024-03-05","psp":"PAPARA","kind":"devir","amount":"abc"}`,
			domain.NewValidationError("amount", domain.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{"unknown psp", `{"date":"2024-03-05","psp":"NOPE","kind":"devir","amount":"1"}`,
			domain.NewValidationError("psp", domain.ErrUnknownPSP), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOverrideHandler(&overrideServiceStub{
				saveFn: func(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error) {
					if tt.err == nil {
						t.Fatalf("service should not be called")
					}
					return nil, tt.err
				},
			})
			req := withPrincipal(httptest.NewRequest(http.MethodPut, "/overrides", bytes.NewBufferString(tt.body)), "alice")
			rec := httptest.NewRecorder()

			h.Save(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOverrideHandler_Get(t *testing.T) {
	h := NewOverrideHandler(&overrideServiceStub{
		getFn: func(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (string, decimal.Decimal, error) {
			if psp != "papara" || kind != domain.KindKasaTop || date.String() != "2024-03-05" {
				t.Fatalf("unexpected lookup %s %s %s", date, psp, kind)
			}
			return "PAPARA", decimal.Zero, nil
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/overrides/2024-03-05/papara/kasa_top", nil),
		map[string]string{"date": "2024-03-05", "psp": "papara", "kind": "kasa_top"})
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp dto.OverrideResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Amount.IsZero() {
		t.Fatalf("expected zero for missing override, got %s", resp.Amount)
	}
	if resp.PSP != "PAPARA" {
		t.Fatalf("expected the directory spelling PAPARA, got %q", resp.PSP)
	}
}

func TestOverrideHandler_List(t *testing.T) {
	d := domain.NewDate(2024, 3, 5)
	h := NewOverrideHandler(&overrideServiceStub{
		snapshotFn: func(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error) {
			return domain.NewOverrideSnapshot([]*domain.Override{
				{Date: d, PSP: "ININAL", Kind: domain.KindDevir, Amount: decimal.NewFromInt(3)},
				{Date: d, PSP: "PAPARA", Kind: domain.KindAllocation, Amount: decimal.NewFromInt(7)},
			}), nil
		},
	})

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/overrides?start=2024-03-01&end=2024-03-31", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp []dto.OverrideResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(resp))
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/overrides?start=2024-03-31&end=2024-03-01", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected inverted range to be rejected, got %d", rec.Code)
	}
}
