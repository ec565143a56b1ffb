package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
)

// Error codes returned in dto.ErrorResponse.Error.
const (
	CodeValidation           = "validation_error"
	CodeInvalidAmount        = "invalid_amount"
	CodeUnknownPSP           = "unknown_psp"
	CodeConfirmationRequired = "confirmation_required"
	CodeNotFound             = "not_found"
	CodeBadRequest           = "bad_request"
	CodeInternal             = "internal_error"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps err and logs server-side failures.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	resp := dto.ErrorResponse{Error: code, Message: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Message = "internal server error"
	}

	writeJSON(w, status, resp)
}

// mapDomainError maps domain errors to HTTP status codes and error codes.
func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnknownPSP):
		return http.StatusNotFound, CodeUnknownPSP
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrNegativeAmount):
		return http.StatusUnprocessableEntity, CodeInvalidAmount
	case errors.Is(err, domain.ErrConfirmationRequired):
		return http.StatusBadRequest, CodeConfirmationRequired
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domain.ErrOverrideNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrTransientAuth):
		return http.StatusForbidden, middleware.CodeSecurityTokenExpired
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized, middleware.CodeUnauthorized
	case errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden, middleware.CodeForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeInternal
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parseDateQuery parses an optional YYYY-MM-DD query parameter.
func parseDateQuery(r *http.Request, key string) (*domain.Date, error) {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(val)
	if err != nil {
		return nil, domain.NewValidationError(key, err)
	}
	return &d, nil
}

// requireDateQuery parses a mandatory YYYY-MM-DD query parameter.
func requireDateQuery(r *http.Request, key string) (domain.Date, error) {
	d, err := parseDateQuery(r, key)
	if err != nil {
		return domain.Date{}, err
	}
	if d == nil {
		return domain.Date{}, domain.NewValidationError(key, domain.ErrInvalidDate)
	}
	return *d, nil
}

// actorOf returns the identity recorded for writes of the request.
func actorOf(r *http.Request) string {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		return p.Actor()
	}
	return ""
}
