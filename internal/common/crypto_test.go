package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_SealOpen(t *testing.T) {
	sealer, err := NewSealer("master-key")
	require.NoError(t, err)
	require.True(t, sealer.Enabled())

	sealed, err := sealer.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "access-token")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", opened)
}

func TestSealer_NonceDiffersPerSeal(t *testing.T) {
	sealer, err := NewSealer("master-key")
	require.NoError(t, err)

	a, err := sealer.Seal("same")
	require.NoError(t, err)
	b, err := sealer.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	sealer, err := NewSealer("master-key")
	require.NoError(t, err)
	other, err := NewSealer("another-key")
	require.NoError(t, err)

	sealed, err := sealer.Seal("secret")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedValueInvalid)
}

func TestSealer_Disabled(t *testing.T) {
	sealer, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, sealer.Enabled())

	sealed, err := sealer.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)
}

func TestSealer_OpenPassesThroughPlaintext(t *testing.T) {
	sealer, err := NewSealer("master-key")
	require.NoError(t, err)

	opened, err := sealer.Open("1//legacy-refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "1//legacy-refresh-token", opened)

	empty, err := sealer.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	require.NoError(t, err)
	b, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestTokenFingerprint(t *testing.T) {
	assert.Empty(t, TokenFingerprint("key", ""))
	assert.Len(t, TokenFingerprint("key", "token"), 12)
	assert.Equal(t, TokenFingerprint("key", "token"), TokenFingerprint("key", "token"))
	assert.NotEqual(t, TokenFingerprint("key", "token"), TokenFingerprint("key", "other"))
	assert.NotEqual(t, TokenFingerprint("key", "token"), TokenFingerprint("rotated", "token"))
	assert.Equal(t, CalculateHash("key", "token")[:12], TokenFingerprint("key", "token"))
}

func TestCalculateHash(t *testing.T) {
	assert.Empty(t, CalculateHash("key"))
	assert.Len(t, CalculateHash("key", "a"), 64)
	assert.NotEqual(t, CalculateHash("key", "ab", "c"), CalculateHash("key", "a", "bc"))
	assert.NotEqual(t, CalculateHash("", "token"), CalculateHash("key", "token"))
}
