package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
)

type syncState int

const (
	stateAttempting syncState = iota
	stateRefreshingAuth
	stateRetrying
	stateExhausted
)

func (s syncState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateRefreshingAuth:
		return "refreshing_auth"
	case stateRetrying:
		return "retrying"
	case stateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// syncWrite is one logical mutation.
type syncWrite struct {
	method string
	path   string
	body   any
	out    any
	fields func(*zerolog.Event) *zerolog.Event
}

// run drives w through the attempt/refresh/retry cycle. Only an expired
// security token is retried; every other failure returns at once.
func (c *Client) run(ctx context.Context, w *syncWrite) error {
	payload, err := json.Marshal(w.body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	key := c.newKey()
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.maxAttempts-1)),
		ctx,
	)

	var (
		state    = stateAttempting
		attempts int
		stale    string
		lastErr  error
	)
	for {
		switch state {
		case stateAttempting, stateRetrying:
			attempts++
			stale = c.currentToken()
			lastErr = c.attempt(ctx, w, payload, key, stale)
			if lastErr == nil {
				c.recordAttempt("success")
				return nil
			}
			if !errors.Is(lastErr, domain.ErrTransientAuth) {
				c.recordAttempt("failed")
				return lastErr
			}
			c.recordAttempt("token_expired")
			c.logEvent(c.logger.Warn(), w).
				Int("attempt", attempts).
				Str("idempotency_key", key).
				Msg("security token expired")
			state = stateRefreshingAuth

		case stateRefreshingAuth:
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				state = stateExhausted
				continue
			}
			if err := c.refreshToken(ctx, stale); err != nil {
				return err
			}
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			state = stateRetrying

		case stateExhausted:
			if err := ctx.Err(); err != nil {
				return err
			}
			if c.metrics != nil {
				c.metrics.SyncEscalations.Inc()
			}
			c.logEvent(c.logger.Error(), w).
				Int("attempts", attempts).
				Str("idempotency_key", key).
				Msg("write escalated to re-authentication")
			return fmt.Errorf("%w: %s %s rejected %d times: %v", domain.ErrPersistentAuth, w.method, w.path, attempts, lastErr)
		}
	}
}

func (c *Client) attempt(ctx context.Context, w *syncWrite, payload []byte, key, token string) error {
	req, err := c.newRequest(ctx, w.method, w.path, payload)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.IdempotencyKeyHeader, key)
	req.Header.Set(middleware.SecurityTokenHeader, token)

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if resp.Header.Get(middleware.IdempotencyReplayHeader) != "" {
		c.logEvent(c.logger.Debug(), w).Str("idempotency_key", key).Msg("write replayed")
	}
	return decodeBody(resp, w.out)
}

func (c *Client) currentToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.currentToken() != "" {
		return nil
	}
	return c.refreshToken(ctx, "")
}

// refreshToken mints a new security token unless another writer already
// replaced stale. Concurrent writers share one refresh.
func (c *Client) refreshToken(ctx context.Context, stale string) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != stale {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/session/security-token", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		c.recordRefresh("error")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordRefresh("error")
		err := decodeError(resp)
		if errors.Is(err, domain.ErrTransientAuth) {
			// the session itself is gone
			return fmt.Errorf("%w: %v", domain.ErrPersistentAuth, err)
		}
		return err
	}

	var tok dto.SecurityTokenResponse
	if err := decodeBody(resp, &tok); err != nil {
		c.recordRefresh("error")
		return err
	}
	c.token = tok.Token
	c.recordRefresh("success")
	c.logger.Debug().Msg("security token refreshed")
	return nil
}

func (c *Client) recordAttempt(outcome string) {
	if c.metrics != nil {
		c.metrics.SyncAttempts.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) recordRefresh(status string) {
	if c.metrics != nil {
		c.metrics.TokenRefreshes.WithLabelValues(status).Inc()
	}
}

func (c *Client) logEvent(e *zerolog.Event, w *syncWrite) *zerolog.Event {
	e = e.Str("method", w.method).Str("path", w.path)
	if w.fields != nil {
		e = w.fields(e)
	}
	return e
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
