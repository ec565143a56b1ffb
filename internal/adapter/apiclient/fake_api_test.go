package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/handler"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
)

// fakeAPI is a small in-memory stand-in for the ledger server.
type fakeAPI struct {
	mu sync.Mutex

	psps []string
	// expireWrites answers this many writes with an expired token first
	expireWrites int
	// reject answers writes for these PSPs with 422
	reject map[string]bool
	// failLedger answers ledger reads with 500
	failLedger bool

	tokenSeq    int
	token       string
	refreshes   int
	writes      int
	keys        []string
	tokensSeen  []string
	ledgerReads int
	stored      map[string]decimal.Decimal
	applied     map[string]bool
}

func newFakeAPI(psps ...string) *fakeAPI {
	return &fakeAPI{
		psps:    psps,
		reject:  map[string]bool{},
		stored:  map[string]decimal.Decimal{},
		applied: map[string]bool{},
	}
}

func (f *fakeAPI) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/session/security-token", f.issueToken)
	mux.HandleFunc("PUT /api/v1/overrides", f.saveOverride)
	mux.HandleFunc("GET /api/v1/psps", f.listPSPs)
	mux.HandleFunc("GET /api/v1/ledger/{year}/{month}", f.monthlyLedger)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeAPI) client(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:    srv.URL,
		Actor:      "alice",
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) issueToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSeq++
	f.refreshes++
	f.token = "tok-" + strconv.Itoa(f.tokenSeq)
	writeJSON(w, http.StatusOK, dto.SecurityTokenResponse{Token: f.token})
}

func (f *fakeAPI) saveOverride(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveOverrideRequest
	if err := dto.DecodeJSON(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: handler.CodeBadRequest, Message: err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Header.Get(middleware.IdempotencyKeyHeader)
	f.writes++
	f.keys = append(f.keys, key)
	f.tokensSeen = append(f.tokensSeen, r.Header.Get(middleware.SecurityTokenHeader))

	if f.expireWrites > 0 {
		f.expireWrites--
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{
			Error:   middleware.CodeSecurityTokenExpired,
			Message: "security token expired",
		})
		return
	}
	if f.reject[req.PSP] {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:   handler.CodeInvalidAmount,
			Message: "amount rejected",
			Field:   "amount",
		})
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: handler.CodeInvalidAmount, Message: err.Error(), Field: "amount"})
		return
	}
	date, _ := domain.ParseDate(req.Date)
	cell := fmt.Sprintf("%s|%s|%s", req.Date, req.PSP, req.Kind)
	prev := f.stored[cell]
	if !f.applied[key] {
		f.applied[key] = true
		f.stored[cell] = amount
	}

	now := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	writeJSON(w, http.StatusOK, dto.AuditEntryFromDomain(&domain.AuditEntry{
		ID:             "entry-" + strconv.Itoa(len(f.applied)),
		Kind:           domain.OverrideKind(req.Kind),
		Date:           date,
		PSP:            req.PSP,
		Amount:         amount,
		PreviousAmount: prev,
		CreatedAt:      now,
		UpdatedAt:      now,
		UpdatedBy:      r.Header.Get(middleware.ActorHeader),
	}))
}

func (f *fakeAPI) listPSPs(w http.ResponseWriter, r *http.Request) {
	out := make([]dto.PSPResponse, len(f.psps))
	for i, p := range f.psps {
		out[i] = dto.PSPResponse{Name: p, Currency: "TRY", Active: true}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeAPI) monthlyLedger(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgerReads++
	if f.failLedger {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: handler.CodeInternal, Message: "internal server error"})
		return
	}

	year, _ := strconv.Atoi(r.PathValue("year"))
	month, _ := strconv.Atoi(r.PathValue("month"))
	out := dto.MonthlyLedgerResponse{Year: year, Month: month}
	for _, psp := range f.psps {
		p := dto.PSPLedgerResponse{PSP: psp}
		for day := 1; day <= domain.DaysInMonth(year, month); day++ {
			date := domain.NewDate(year, time.Month(month), day)
			amount, ok := f.stored[fmt.Sprintf("%s|%s|%s", date, psp, domain.KindAllocation)]
			p.Days = append(p.Days, dto.LedgerDayResponse{
				Date:       date,
				Weekday:    date.Weekday().String(),
				Allocation: dto.OverrideValueResponse{Amount: amount, Set: ok},
			})
		}
		out.PSPs = append(out.PSPs, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeAPI) setStored(date domain.Date, psp string, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[fmt.Sprintf("%s|%s|%s", date, psp, domain.KindAllocation)] = decimal.RequireFromString(amount)
}

func (f *fakeAPI) setFailLedger(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLedger = fail
}

func (f *fakeAPI) seen() (applied int, tokens []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied), append([]string(nil), f.tokensSeen...)
}

func (f *fakeAPI) stats() (writes, refreshes, ledgerReads int, keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes, f.refreshes, f.ledgerReads, append([]string(nil), f.keys...)
}
