package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/pspledger/internal/domain"
)

// memIdempotencyStore mirrors the Redis store: claims hold pendingResponse
// until Update, and Release only drops pending claims.
type memIdempotencyStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	released []string
	failWith error
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{values: map[string][]byte{}}
}

func (s *memIdempotencyStore) CheckAndSet(_ context.Context, key string, _ []byte, _ time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, nil, s.failWith
	}
	if v, ok := s.values[key]; ok {
		return true, v, nil
	}
	s.values[key] = []byte(pendingResponse)
	return false, nil, nil
}

func (s *memIdempotencyStore) Update(_ context.Context, key string, response []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), response...)
	return nil
}

func (s *memIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, key)
	if string(s.values[key]) == pendingResponse {
		delete(s.values, key)
	}
	return nil
}

func writeReq(method, key, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/overrides", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "alice", Role: domain.RoleOperator, SessionID: "s1"}))
}

// countingHandler echoes the request body with the given status.
func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		buf := new(strings.Builder)
		_, _ = buf.WriteString(`{"seen":`)
		b := make([]byte, 64)
		n, _ := r.Body.Read(b)
		_, _ = buf.Write(b[:n])
		_, _ = buf.WriteString(`}`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(buf.String()))
	})
}

func TestIdempotencyReplaysSuccess(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusOK, &calls))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, writeReq(http.MethodPut, "k1", `{"amount":"10"}`))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, `{"seen":{"amount":"10"}}`, first.Body.String())
	assert.Contains(t, store.values, "alice:k1")

	second := httptest.NewRecorder()
	h.ServeHTTP(second, writeReq(http.MethodPut, "k1", `{"amount":"10"}`))
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestIdempotencyRejectsKeyReuse(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusOK, &calls))

	h.ServeHTTP(httptest.NewRecorder(), writeReq(http.MethodPut, "k1", `{"amount":"10"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, writeReq(http.MethodPut, "k1", `{"amount":"11"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeIdempotencyKeyReused)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesFailures(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusUnauthorized, &calls))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, writeReq(http.MethodPut, "k-expired", `{}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	// the retry after a failed attempt reaches the handler again
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"alice:k-expired", "alice:k-expired"}, store.released)
	assert.NotContains(t, store.values, "alice:k-expired")
}

func TestIdempotencyPendingConflicts(t *testing.T) {
	store := newMemIdempotencyStore()
	store.values["alice:k-slow"] = []byte(pendingResponse)
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusOK, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, writeReq(http.MethodPut, "k-slow", `{}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyPassThrough(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusOK, &calls))

	h.ServeHTTP(httptest.NewRecorder(), writeReq(http.MethodGet, "k1", ""))
	h.ServeHTTP(httptest.NewRecorder(), writeReq(http.MethodPut, "", `{}`))
	h.ServeHTTP(httptest.NewRecorder(), writeReq(http.MethodPut, "", `{}`))

	assert.Equal(t, 3, calls)
	assert.Empty(t, store.values)
}

func TestIdempotencyStoreError(t *testing.T) {
	store := newMemIdempotencyStore()
	store.failWith = errors.New("redis down")
	calls := 0
	h := NewIdempotencyMiddleware(store, 0).Wrap(countingHandler(http.StatusOK, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, writeReq(http.MethodPut, "k1", `{}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyBodyTooLarge(t *testing.T) {
	calls := 0
	h := NewIdempotencyMiddleware(newMemIdempotencyStore(), 0).Wrap(countingHandler(http.StatusOK, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, writeReq(http.MethodPost, "k1", strings.Repeat("x", maxFingerprintBody+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, calls)
}

func TestFingerprintRestoresBody(t *testing.T) {
	a := writeReq(http.MethodPut, "k", `{"a":1}`)
	fa, err := fingerprint(a)
	require.NoError(t, err)

	rest := make([]byte, 16)
	n, _ := a.Body.Read(rest)
	assert.Equal(t, `{"a":1}`, string(rest[:n]))

	fb, err := fingerprint(writeReq(http.MethodPost, "k", `{"a":1}`))
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}
