package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/usecase"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a replayed response.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	defaultIdempotencyTTL = 24 * time.Hour
	pendingResponse       = "processing"
	maxFingerprintBody    = 1 << 20
)

// IdempotencyMiddleware replays the stored response of a repeated write.
//
// Keys are scoped to the caller, so two operators cannot collide. A key
// replays only for the request it was first used with: the same key on a
// different method, path or body is rejected with 422. Only 2xx responses
// are stored; anything else frees the key for a retry.
type IdempotencyMiddleware struct {
	store usecase.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl}
}

type storedResponse struct {
	Fingerprint string          `json:"fingerprint,omitempty"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
			next.ServeHTTP(w, r)
			return
		}
		if p, ok := PrincipalFrom(r.Context()); ok {
			key = p.UserID + ":" + key
		}

		fp, err := fingerprint(r)
		switch {
		case errors.Is(err, errBodyTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, CodeBadBody, "request body could not be read")
			return
		}

		exists, cached, err := m.store.CheckAndSet(r.Context(), key, nil, m.ttl)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "idempotency check failed")
			return
		}
		if exists {
			if string(cached) == pendingResponse {
				writeError(w, http.StatusConflict, CodeIdempotencyInProgress, "request with this key is still running")
				return
			}
			var stored storedResponse
			if err := json.Unmarshal(cached, &stored); err == nil && stored.Status != 0 {
				if stored.Fingerprint != "" && stored.Fingerprint != fp {
					writeError(w, http.StatusUnprocessableEntity, CodeIdempotencyKeyReused, "idempotency key was used for a different request")
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotencyReplayHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}
		}

		rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger := zerolog.Ctx(r.Context())
		if rec.statusCode < 200 || rec.statusCode >= 300 {
			if err := m.store.Release(r.Context(), key); err != nil {
				logger.Warn().Err(err).Msg("release idempotency key")
			}
			return
		}

		payload, err := json.Marshal(storedResponse{Fingerprint: fp, Status: rec.statusCode, Body: rec.body.Bytes()})
		if err != nil {
			logger.Warn().Err(err).Int("status", rec.statusCode).Msg("response not cacheable")
			_ = m.store.Release(r.Context(), key)
			return
		}
		if err := m.store.Update(r.Context(), key, payload, m.ttl); err != nil {
			logger.Warn().Err(err).Msg("store idempotent response")
		}
	})
}

var errBodyTooLarge = errors.New("request body exceeds 1 MiB")

// fingerprint hashes method, path and body, then restores the body for the
// handler.
func fingerprint(r *http.Request) (string, error) {
	h := sha256.New()
	_, _ = io.WriteString(h, r.Method+" "+r.URL.Path+"\n")
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
		if err != nil {
			return "", err
		}
		if len(body) > maxFingerprintBody {
			return "", errBodyTooLarge
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
