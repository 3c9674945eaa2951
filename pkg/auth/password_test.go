package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong horse"), ErrPasswordMismatch)
	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
}

func TestHashPassword_DefaultsLowCost(t *testing.T) {
	hash, err := HashPassword("pw", 0)
	require.NoError(t, err)

	cost, err := HashCost(hash)
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordCost, cost)
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	err := CheckPassword("not-a-bcrypt-hash", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "pw"))
}

func TestHashCost_Invalid(t *testing.T) {
	_, err := HashCost("nope")
	assert.Error(t, err)
}

func TestTimingHash(t *testing.T) {
	hash := TimingHash(bcrypt.MinCost + 1)
	cost, err := HashCost(hash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
	assert.NotPanics(t, func() { BurnPasswordCheck(hash, "anything") })

	// Out of range costs fall back to the default
	cost, err = HashCost(TimingHash(bcrypt.MaxCost + 1))
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordCost, cost)
}
