package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("EAAB-token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "EAAB-token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-token", plain)
}

func TestSealer_Disabled(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	v, err := s.Seal("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = s.Open("v1:AAAA")
	assert.ErrorIs(t, err, ErrUnseal)
}

func TestSealer_OpenPlaintextAndTampered(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	v, err := s.Open("legacy-plain")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plain", v)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, "v1:"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = s.Open("v1:" + base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrUnseal)
}

func TestNewSealer_BadKey(t *testing.T) {
	_, err := NewSealer("abcd")
	assert.Error(t, err)
	_, err = NewSealer("zz")
	assert.Error(t, err)
}

func TestNewStateToken(t *testing.T) {
	a, err := NewStateToken()
	require.NoError(t, err)
	b, err := NewStateToken()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
