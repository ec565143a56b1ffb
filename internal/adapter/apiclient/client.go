package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
	"github.com/iho/pspledger/internal/usecase"
)

// Defaults of the write retry budget.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 300 * time.Millisecond
	DefaultTimeout     = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// SessionToken is the bearer JWT. Leave empty against a server with
	// authentication disabled; Actor and SessionID are sent instead.
	SessionToken string
	Actor        string
	SessionID    string

	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration

	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the ledger HTTP API. Writes go through a bounded retry
// state machine that refreshes the security token between attempts.
type Client struct {
	baseURL      string
	http         *http.Client
	stream       *http.Client
	sessionToken string
	actor        string
	sessionID    string
	maxAttempts  int
	retryDelay   time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	newKey       func() string

	tokenMu sync.Mutex
	token   string
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid api url %q", cfg.BaseURL)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	// Streamed bodies are bounded by ctx only.
	stream := *httpClient
	stream.Timeout = 0
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	return &Client{
		baseURL:      base + "/api/v1",
		http:         httpClient,
		stream:       &stream,
		sessionToken: cfg.SessionToken,
		actor:        cfg.Actor,
		sessionID:    cfg.SessionID,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		logger:       cfg.Logger.With().Str("component", "apiclient").Logger(),
		metrics:      cfg.Metrics,
		newKey:       uuid.NewString,
	}, nil
}

// SaveOverride writes one override. One idempotency key covers every
// attempt of the write.
func (c *Client) SaveOverride(ctx context.Context, input usecase.SaveOverrideInput) (*domain.AuditEntry, error) {
	req := dto.SaveOverrideRequest{
		Date:             input.Date.String(),
		PSP:              input.PSP,
		Kind:             string(input.Kind),
		Amount:           input.Amount,
		ConfirmationCode: input.ConfirmationCode,
	}

	var resp dto.AuditEntryResponse
	w := &syncWrite{
		method: http.MethodPut,
		path:   "/overrides",
		body:   req,
		out:    &resp,
		fields: func(e *zerolog.Event) *zerolog.Event {
			return e.Str("psp", input.PSP).Str("kind", string(input.Kind)).Str("date", input.Date.String())
		},
	}
	if err := c.run(ctx, w); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// GetOverride reads one stored override; a missing record reads as zero.
func (c *Client) GetOverride(ctx context.Context, date domain.Date, psp string, kind domain.OverrideKind) (decimal.Decimal, error) {
	var resp dto.OverrideResponse
	path := fmt.Sprintf("/overrides/%s/%s/%s", date, url.PathEscape(psp), kind)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Amount, nil
}

// Snapshot returns the overrides with start <= date <= end.
func (c *Client) Snapshot(ctx context.Context, start, end domain.Date) (domain.OverrideSnapshot, error) {
	var resp []dto.OverrideResponse
	q := url.Values{"start": {start.String()}, "end": {end.String()}}
	if err := c.get(ctx, "/overrides", q, &resp); err != nil {
		return nil, err
	}
	overrides := make([]*domain.Override, len(resp))
	for i, o := range resp {
		overrides[i] = o.ToDomain()
	}
	return domain.NewOverrideSnapshot(overrides), nil
}

// ListPSPs returns the PSP directory.
func (c *Client) ListPSPs(ctx context.Context) ([]dto.PSPResponse, error) {
	var resp []dto.PSPResponse
	if err := c.get(ctx, "/psps", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// KnownPSPs returns the names of active PSPs.
func (c *Client) KnownPSPs(ctx context.Context) ([]string, error) {
	psps, err := c.ListPSPs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(psps))
	for _, p := range psps {
		if p.Active {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// FetchTransactions reads ingested transactions of a date range.
func (c *Client) FetchTransactions(ctx context.Context, start, end domain.Date, psp string) ([]domain.Transaction, error) {
	var resp []dto.TransactionResponse
	q := url.Values{"start": {start.String()}, "end": {end.String()}}
	if psp != "" {
		q.Set("psp", psp)
	}
	if err := c.get(ctx, "/transactions", q, &resp); err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, len(resp))
	for i, t := range resp {
		txs[i] = t.ToDomain()
	}
	return txs, nil
}

// MonthlyLedger fetches the completed ledger of a month.
func (c *Client) MonthlyLedger(ctx context.Context, year, month int, psp string) (*dto.MonthlyLedgerResponse, error) {
	var resp dto.MonthlyLedgerResponse
	var q url.Values
	if psp != "" {
		q = url.Values{"psp": {psp}}
	}
	if err := c.get(ctx, fmt.Sprintf("/ledger/%d/%d", year, month), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryAudit fetches one page of the audit log.
func (c *Client) QueryAudit(ctx context.Context, filter domain.AuditFilter, page, pageSize int) (*domain.AuditPage, error) {
	q := auditQuery(filter)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}

	var resp dto.AuditPageResponse
	if err := c.get(ctx, "/audit", q, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// ExportAudit streams the export into w and returns the bytes copied. The
// client timeout does not apply; cancel ctx to stop a long export.
func (c *Client) ExportAudit(ctx context.Context, filter domain.AuditFilter, format usecase.ExportFormat, w io.Writer) (int64, error) {
	q := auditQuery(filter)
	q.Set("format", string(format))

	req, err := c.newRequest(ctx, http.MethodGet, "/audit/export?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.doWith(c.stream, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: export interrupted: %w", domain.ErrNetwork, err)
	}
	return n, nil
}

func auditQuery(f domain.AuditFilter) url.Values {
	q := url.Values{}
	if f.StartDate != nil {
		q.Set("start", f.StartDate.String())
	}
	if f.EndDate != nil {
		q.Set("end", f.EndDate.String())
	}
	if f.PSP != "" {
		q.Set("psp", f.PSP)
	}
	if f.Kind != "" {
		q.Set("kind", string(f.Kind))
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return decodeBody(resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
	if c.actor != "" {
		req.Header.Set(middleware.ActorHeader, c.actor)
	}
	req.Header.Set(middleware.SessionIDHeader, c.sessionID)
	return req, nil
}

// do sends req; transport failures become ErrNetwork.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	return c.doWith(c.http, req)
}

func (c *Client) doWith(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}
