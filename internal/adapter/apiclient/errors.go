package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/handler"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	"github.com/iho/pspledger/internal/domain"
)

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Code, e.Message)
}

// decodeError reads an error body and classifies it into the domain
// taxonomy. The *APIError stays reachable with errors.As.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	var payload dto.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Error
		apiErr.Message = payload.Message
		apiErr.Field = payload.Field
	} else {
		apiErr.Message = string(body)
	}

	return classify(apiErr)
}

func classify(e *APIError) error {
	switch {
	case e.Code == middleware.CodeSecurityTokenExpired:
		return fmt.Errorf("%w: %w", domain.ErrTransientAuth, e)
	case e.Status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", domain.ErrPersistentAuth, e)
	case e.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrInsufficientRole, e)
	}

	var cause error
	switch e.Code {
	case handler.CodeInvalidAmount:
		cause = domain.ErrInvalidAmount
	case handler.CodeUnknownPSP:
		cause = domain.ErrUnknownPSP
	case handler.CodeConfirmationRequired:
		cause = domain.ErrConfirmationRequired
	case handler.CodeValidation, handler.CodeBadRequest:
		cause = errors.New("rejected")
	}
	if cause != nil {
		return domain.NewValidationError(e.Field, fmt.Errorf("%w: %w", cause, e))
	}
	return e
}
