package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequentialKey(n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestDecodeKeyForms(t *testing.T) {
	raw := sequentialKey(32)

	cases := map[string]string{
		"hex":           hex.EncodeToString(raw),
		"base64":        base64.StdEncoding.EncodeToString(raw),
		"raw base64":    base64.RawStdEncoding.EncodeToString(raw),
		"base64 prefix": "base64:" + base64.StdEncoding.EncodeToString(raw),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeKey(encoded)
			require.NoError(t, err)
			require.Equal(t, raw, decoded)
		})
	}
}

func TestDecodeKeyFallsBackToRawBytes(t *testing.T) {
	decoded, err := DecodeKey("not-hex-or-base64!")
	require.NoError(t, err)
	require.Equal(t, []byte("not-hex-or-base64!"), decoded)
}

func TestDecodeKeyRejectsEmptyAndBadPrefix(t *testing.T) {
	_, err := DecodeKey("  ")
	require.Error(t, err)

	_, err = DecodeKey("base64:***")
	require.Error(t, err)
}

func TestKeyByteLength(t *testing.T) {
	n, err := KeyByteLength(hex.EncodeToString(sequentialKey(32)))
	require.NoError(t, err)
	require.Equal(t, 32, n)

	n, err = KeyByteLength("short-raw-key")
	require.NoError(t, err)
	require.Equal(t, len("short-raw-key"), n)

	n, err = KeyByteLength("   ")
	require.NoError(t, err)
	require.Zero(t, n)
}
