package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 3 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check is one named readiness probe.
type Check struct {
	Name   string
	Pinger Pinger
}

// HealthHandler serves /health and /ready.
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler skips checks without a Pinger.
func NewHealthHandler(checks ...Check) *HealthHandler {
	h := &HealthHandler{}
	for _, c := range checks {
		if c.Pinger != nil {
			h.checks = append(h.checks, c)
		}
	}
	return h
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness only proves the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness probes every dependency in parallel and answers 503 with the
// failing ones named when any probe fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	var mu sync.Mutex

	var g errgroup.Group
	for _, c := range h.checks {
		g.Go(func() error {
			result := "ok"
			if err := c.Pinger.Ping(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			resp.Checks[c.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	for _, result := range resp.Checks {
		if result != "ok" {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
