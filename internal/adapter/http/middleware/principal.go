package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/auth"
)

// Headers honoured when authentication is disabled.
const (
	ActorHeader     = "X-Actor"
	SessionIDHeader = "X-Session-ID"
)

// AnonymousSession is the session of requests without a session header.
const AnonymousSession = "anonymous"

type contextKey string

const principalKey contextKey = "principal"

// Principal is the caller of a request.
type Principal struct {
	UserID    string
	Role      domain.Role
	SessionID string
}

// Actor is the identity recorded as updated_by.
func (p Principal) Actor() string {
	return p.UserID
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the principal of the request.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, domain.ErrExpiredToken) {
					msg = "session expired"
				}
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
				return
			}

			p := Principal{UserID: claims.UserID, Role: claims.Role, SessionID: claims.SessionID()}
			tagLogger(r, p)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Anonymous attaches a principal without checking credentials. The actor
// comes from X-Actor and defaults to the system actor.
func Anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = domain.SystemActor
		}
		session := strings.TrimSpace(r.Header.Get(SessionIDHeader))
		if session == "" {
			session = AnonymousSession
		}

		p := Principal{UserID: actor, Role: domain.RoleAdmin, SessionID: session}
		tagLogger(r, p)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireWrite rejects principals that may only read.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}
		if !p.Role.CanWrite() {
			writeError(w, http.StatusForbidden, CodeForbidden, domain.ErrInsufficientRole.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
