package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes written by the middleware chain.
const (
	CodeUnauthorized          = "unauthorized"
	CodeForbidden             = "forbidden"
	CodeSecurityTokenExpired  = "security_token_expired"
	CodeRateLimited           = "rate_limit_exceeded"
	CodeIdempotencyInProgress = "idempotency_in_progress"
	CodeIdempotencyKeyReused  = "idempotency_key_reused"
	CodeBodyTooLarge          = "request_too_large"
	CodeBadBody               = "bad_request"
	CodeInternal              = "internal_error"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}
