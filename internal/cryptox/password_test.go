package cryptox

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	d1, err := h.Hash("s3cret")
	require.NoError(t, err)
	d2, err := h.Hash("s3cret")
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2, "salts must differ")
	assert.True(t, h.Verify("s3cret", d1))
	assert.True(t, h.Verify("s3cret", d2))
	assert.False(t, h.Verify("wrong", d1))
}

func TestPasswordHasher_EmptyPassword(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	_, err := h.Hash("")
	require.ErrorIs(t, err, common.ErrorBadRequest)
}

func TestPasswordHasher_TooLong(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, common.ErrorBadRequest)
}

func TestPasswordHasher_VerifyMalformedDigest(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	assert.NotPanics(t, func() {
		assert.False(t, h.Verify("x", ""))
		assert.False(t, h.Verify("x", "not-a-bcrypt-hash"))
		assert.False(t, h.Verify("x", "$2a$04$short"))
	})
}

func TestNewPasswordHasher_CostClamp(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(100).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)
}

func TestPasswordHasher_VerifyDecoy(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost + 1)

	assert.False(t, h.VerifyDecoy("audiokeeper-decoy"))
	assert.False(t, h.VerifyDecoy(""))

	cost, err := bcrypt.Cost(h.decoy)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost, "decoy digest uses the hasher's cost")
}
