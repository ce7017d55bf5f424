package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// minAppKeyBytes is the shortest application key accepted for signing.
const minAppKeyBytes = 32

// DecodeKey decodes an application key to raw bytes. Accepted forms are
// "base64:<std base64>", plain hex (the generated form), standard or raw
// base64, and finally the literal string bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if rest, ok := strings.CutPrefix(v, "base64:"); ok {
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode base64 key: %w", err)
		}
		return decoded, nil
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// KeyByteLength returns the decoded byte length of a key string, or zero for
// an empty value.
func KeyByteLength(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := DecodeKey(value)
	if err != nil {
		return 0, err
	}
	return len(decoded), nil
}
