package utils

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret123!", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, "Secret123!", hash)

	require.True(t, VerifyPassword(hash, "Secret123!"))
	require.False(t, VerifyPassword(hash, "secret123!"))
	require.False(t, VerifyPassword("not-a-hash", "Secret123!"))
}

func TestNewDummyHashUsesCost(t *testing.T) {
	hash := NewDummyHash(bcrypt.MinCost + 1)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost+1, cost)

	// an out of range cost falls back to the default
	cost, err = bcrypt.Cost([]byte(NewDummyHash(bcrypt.MaxCost + 1)))
	require.NoError(t, err)
	require.Equal(t, bcrypt.DefaultCost, cost)

	BurnPasswordCheck(hash, "anything")
}

func TestNewIDIsMonotonicULID(t *testing.T) {
	a := NewID()
	b := NewID()

	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	require.Less(t, a, b)
}

func TestRandomToken(t *testing.T) {
	tok, err := NewCSRFToken()
	require.NoError(t, err)
	require.Len(t, tok, 43)

	other, err := NewCSRFToken()
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	_, err = RandomToken(0)
	require.Error(t, err)
}
