// Package auth issues and validates the JWTs that authenticate a guardian's
// websocket session, grounded on the pack's x402 token-manager shape
// (HMAC-signed jwt/v5 claims, ParseWithClaims with an explicit signing
// method check).
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies which guardian, on which vault, a session belongs to.
// Every transport-layer identity check (spec.md §7 IdentityMismatch)
// compares against these fields, never against anything the client sends
// unauthenticated.
type Claims struct {
	jwt.RegisteredClaims
	GuardianID string `json:"gid"`
	VaultID    string `json:"vid"`
}

// Manager issues and validates guardian session tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

// NewManager builds a Manager with an HMAC secret and token lifetime.
func NewManager(secret []byte, expiry time.Duration) *Manager {
	return &Manager{secret: secret, expiry: expiry}
}

// IssueToken signs a session token for guardianID on vaultID.
func (m *Manager) IssueToken(guardianID, vaultID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   guardianID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
		GuardianID: guardianID,
		VaultID:    vaultID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}
