package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateTokenRoundTrip(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)

	token, err := m.IssueToken("guardian-1", "vault-1")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "guardian-1", claims.GuardianID)
	require.Equal(t, "vault-1", claims.VaultID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewManager([]byte("secret-a"), time.Hour)
	m2 := NewManager([]byte("secret-b"), time.Hour)

	token, err := m1.IssueToken("guardian-1", "vault-1")
	require.NoError(t, err)

	_, err = m2.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	m := NewManager([]byte("test-secret"), -time.Hour)

	token, err := m.IssueToken("guardian-1", "vault-1")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}
