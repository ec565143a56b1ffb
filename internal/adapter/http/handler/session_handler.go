package handler

import (
	"context"
	"net/http"

	"github.com/iho/pspledger/internal/adapter/http/dto"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
)

// TokenIssuer rotates a session's write token.
type TokenIssuer interface {
	Issue(ctx context.Context, sessionID string) (string, error)
}

// SessionHandler issues security tokens.
type SessionHandler struct {
	tokens TokenIssuer
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(tokens TokenIssuer) *SessionHandler {
	return &SessionHandler{tokens: tokens}
}

// IssueSecurityToken handles POST /api/v1/session/security-token. The
// previous token of the session stops validating.
func (h *SessionHandler) IssueSecurityToken(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "unauthorized")
		return
	}

	token, err := h.tokens.Issue(r.Context(), p.SessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SecurityTokenResponse{Token: token})
}
