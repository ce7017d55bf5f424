package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const appKeyBytes = 32

// ApplyRuntimeDefaults fills values derived from other settings. It returns
// the keys it populated so callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	applied := make(map[string]bool)

	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		port := cfg.Server.Port
		if port <= 0 {
			port = 8000
		}
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", port)
		applied["server.base_url"] = true
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	if strings.TrimSpace(cfg.Email.SMTP.From) == "" {
		cfg.Email.SMTP.From = "no-reply@localhost"
		applied["email.smtp.from"] = true
	}

	return applied, nil
}

// GenerateAppKey returns a fresh hex encoded application key.
func GenerateAppKey() (string, error) {
	return generateHexKey(appKeyBytes)
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
