package token

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecret_EntropyAndEncoding(t *testing.T) {
	s, err := NewSecret(DefaultSecretBytes)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultSecretBytes)
	assert.True(t, WellFormedSecret(s))

	other, err := NewSecret(DefaultSecretBytes)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestNewSecret_RejectsWeakSizes(t *testing.T) {
	_, err := NewSecret(8)
	require.ErrorIs(t, err, ErrWeakSecret)
}

func TestWellFormedSecret(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "empty", in: "", want: false},
		{name: "not base64", in: "!!!!", want: false},
		{name: "too short", in: base64.RawURLEncoding.EncodeToString([]byte("short")), want: false},
		{name: "too long", in: strings.Repeat("A", MaxEncodedSecretLen+1), want: false},
		{name: "sixteen bytes", in: base64.RawURLEncoding.EncodeToString(make([]byte, 16)), want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WellFormedSecret(tc.in))
		})
	}
}

func TestHashSecretHex_Modes(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	plain := HashSecretHex("abc")
	assert.Equal(t, HashSHA256Hex("abc"), plain)
	assert.Len(t, plain, 64)

	key := strings.Repeat("k", 32)
	t.Setenv(HMACEnvKey, key)
	keyed := HashSecretHex("abc")
	assert.Equal(t, HashHMACSHA256Hex("abc", []byte(key)), keyed)
	assert.NotEqual(t, plain, keyed)
}

func TestHashSecretHexRequireHMAC(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	_, err := HashSecretHexRequireHMAC("abc", 32)
	require.ErrorIs(t, err, ErrHMACKeyMissing)

	t.Setenv(HMACEnvKey, "short")
	_, err = HashSecretHexRequireHMAC("abc", 32)
	require.ErrorIs(t, err, ErrHMACKeyTooShort)

	t.Setenv(HMACEnvKey, strings.Repeat("x", 40))
	h, err := HashSecretHexRequireHMAC("abc", 32)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}
