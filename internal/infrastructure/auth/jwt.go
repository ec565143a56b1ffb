package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iho/pspledger/internal/domain"
)

// Issuer is stamped on every session token and required on verify.
const Issuer = "pspledger"

// Claims identifies the operator behind a session. RegisteredClaims.ID is
// the session id that write security tokens are bound to.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionID returns the session the token was minted for.
func (c *Claims) SessionID() string {
	return c.ID
}

// JWTManager mints and verifies HS256 session tokens.
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	parser    *jwt.Parser
	now       func() time.Time
}

func NewJWTManager(secretKey string, ttl time.Duration) *JWTManager {
	m := &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m
}

// Generate starts a new session for userID. Every call yields a fresh
// session id, so security tokens issued under an older session stop working.
func (m *JWTManager) Generate(userID string, role domain.Role) (string, error) {
	if userID == "" {
		return "", domain.ErrMissingActor
	}
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", role)
	}

	now := m.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// Verify returns the claims of a valid session token. Expiry maps to
// domain.ErrExpiredToken, every other failure to domain.ErrInvalidToken.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrExpiredToken
	case err != nil:
		return nil, domain.ErrInvalidToken
	}

	if claims.UserID == "" || claims.ID == "" || !claims.Role.IsValid() {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
