package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/auth"
	"github.com/iho/pspledger/internal/infrastructure/config"
)

func testApp() *app {
	return &app{
		cfg: &config.ClientConfig{
			SyncMaxAttempts: 3,
			SyncRetryDelay:  time.Millisecond,
			SyncTimeout:     5 * time.Second,
			BulkConcurrency: 2,
			ViewTTL:         time.Minute,
		},
		logger: zerolog.Nop(),
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(testApp(), &out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ledgerFor(date domain.Date, psp string, allocation decimal.Decimal) dto.MonthlyLedgerResponse {
	return dto.MonthlyLedgerResponse{
		Year:  date.Year,
		Month: int(date.Month),
		PSPs: []dto.PSPLedgerResponse{{
			PSP:            psp,
			CommissionRate: "2.50%",
			Days: []dto.LedgerDayResponse{{
				Date:       date,
				Weekday:    date.Weekday().String(),
				Allocation: dto.OverrideValueResponse{Amount: allocation, Set: true},
			}},
		}},
	}
}

func TestParseAllocations(t *testing.T) {
	amounts, err := parseAllocations([]string{"PAPARA=1500.25", " ININAL = 0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amounts["PAPARA"].Equal(decimal.RequireFromString("1500.25")) {
		t.Fatalf("unexpected PAPARA amount %s", amounts["PAPARA"])
	}
	if !amounts["ININAL"].IsZero() {
		t.Fatalf("expected zero for ININAL, got %s", amounts["ININAL"])
	}

	for _, bad := range [][]string{{"PAPARA"}, {"=10"}, {"PAPARA=abc"}, {"PAPARA=1", "PAPARA=2"}} {
		if _, err := parseAllocations(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestParseYearMonth(t *testing.T) {
	y, m, err := parseYearMonth("2024", "4")
	if err != nil || y != 2024 || m != 4 {
		t.Fatalf("unexpected result %d %d %v", y, m, err)
	}
	if _, _, err := parseYearMonth("2024", "13"); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if _, _, err := parseYearMonth("year", "1"); err == nil {
		t.Fatalf("expected error for bad year")
	}
}

func TestSessionMint(t *testing.T) {
	out, err := execute(t, "session", "mint", "--user", "alice", "--role", "viewer", "--secret", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := auth.NewJWTManager("s3cret", time.Hour).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.UserID != "alice" || claims.Role != domain.RoleViewer {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := execute(t, "session", "mint", "--user", "alice", "--secret", ""); err == nil {
		t.Fatalf("expected error without a secret")
	}
}

func TestLedgerMonth(t *testing.T) {
	date := domain.NewDate(2024, time.April, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ledger/2024/4" {
			http.NotFound(w, r)
			return
		}
		respond(w, ledgerFor(date, "PAPARA", decimal.NewFromInt(75)))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "ledger", "month", "2024", "4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"PAPARA", "2024-04-02", "Tue", "75", "ALL PSPs"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestOverrideSetReconciles(t *testing.T) {
	date := domain.NewDate(2024, time.April, 2)
	var ledgerReads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/session/security-token", func(w http.ResponseWriter, r *http.Request) {
		respond(w, dto.SecurityTokenResponse{Token: "tok"})
	})
	mux.HandleFunc("PUT /api/v1/overrides", func(w http.ResponseWriter, r *http.Request) {
		var req dto.SaveOverrideRequest
		if err := dto.DecodeJSON(r.Body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		now := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
		respond(w, dto.AuditEntryResponse{
			ID: "1", Kind: domain.KindAllocation, Date: date, PSP: req.PSP,
			Amount: decimal.NewFromInt(250), PreviousAmount: decimal.Zero,
			CreatedAt: now, UpdatedAt: now, UpdatedBy: r.Header.Get("X-Actor"),
		})
	})
	mux.HandleFunc("GET /api/v1/ledger/2024/4", func(w http.ResponseWriter, r *http.Request) {
		ledgerReads.Add(1)
		respond(w, ledgerFor(date, "PAPARA", decimal.NewFromInt(250)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "--actor", "alice", "override", "set", "2024-04-02", "PAPARA", "allocation", "250")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "saved 2024-04-02 PAPARA allocation: 0 -> 250") {
		t.Fatalf("missing save line:\n%s", out)
	}
	if !strings.Contains(out, "ledger value: 250") {
		t.Fatalf("missing reconciled value:\n%s", out)
	}
	if n := ledgerReads.Load(); n != 1 {
		t.Fatalf("expected one ledger refetch, got %d", n)
	}
}

func TestOverrideSetRejectsBadKind(t *testing.T) {
	if _, err := execute(t, "--url", "http://127.0.0.1:1", "override", "set", "2024-04-02", "PAPARA", "bogus", "1"); err == nil {
		t.Fatalf("expected error for an invalid kind")
	}
}
