package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/infrastructure/metrics"
	"github.com/iho/pspledger/internal/usecase"
)

// SecurityTokenHeader carries the per-session write token.
const SecurityTokenHeader = "X-Security-Token"

// SecurityTokenMiddleware rejects mutating requests without the session's
// current security token.
type SecurityTokenMiddleware struct {
	store   usecase.SecurityTokenStore
	metrics *metrics.Metrics
}

// NewSecurityTokenMiddleware creates a new SecurityTokenMiddleware.
func NewSecurityTokenMiddleware(store usecase.SecurityTokenStore, m *metrics.Metrics) *SecurityTokenMiddleware {
	return &SecurityTokenMiddleware{store: store, metrics: m}
}

// Wrap wraps an http.Handler with the token check.
func (m *SecurityTokenMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}

		token := r.Header.Get(SecurityTokenHeader)
		if token == "" {
			m.record("missing")
			writeError(w, http.StatusForbidden, CodeSecurityTokenExpired, "security token required")
			return
		}

		valid, err := m.store.Validate(r.Context(), p.SessionID, token)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("security token check failed")
			writeError(w, http.StatusInternalServerError, CodeInternal, "security token check failed")
			return
		}
		if !valid {
			m.record("stale")
			writeError(w, http.StatusForbidden, CodeSecurityTokenExpired, "security token expired")
			return
		}

		m.record("accepted")
		next.ServeHTTP(w, r)
	})
}

func (m *SecurityTokenMiddleware) record(result string) {
	if m.metrics != nil {
		m.metrics.SecurityTokens.WithLabelValues(result).Inc()
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
