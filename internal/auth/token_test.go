package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamcollab/huddle/internal/domain"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)

	token, identity := m.Mint("Alice")
	require.Equal(t, domain.Identity("Alice"), identity)

	got, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, identity, got)
}

func TestMintAssignsIdentityWhenAbsent(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)

	token, identity := m.Mint("")
	require.NotEmpty(t, identity)

	got, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, identity, got)
}

func TestVerifyExpired(t *testing.T) {
	m := NewMinter("test-secret", -time.Minute)

	token, _ := m.Mint("Alice")
	_, err := m.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)
	other := NewMinter("other-secret", time.Hour)

	token, _ := m.Mint("Alice")
	_, err := other.Verify(token)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = m.Verify("not-a-token")
	require.ErrorIs(t, err, ErrTokenMalformed)
}
