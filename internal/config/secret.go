package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// ResolveSecret turns a SecretConfig into the raw key bytes it names.
// A nil SecretConfig resolves to a nil key (authentication disabled,
// per spec.md §4.4's "if no key is configured... the connection should
// still be TLS-protected" language).
func ResolveSecret(s *SecretConfig) ([]byte, error) {
	if s == nil || s.Value == "" {
		return nil, nil
	}
	switch s.Type {
	case "", "string":
		return []byte(s.Value), nil
	case "base64":
		return decodeBase64Key(s.Value)
	case "file-string":
		b, err := os.ReadFile(s.Value)
		if err != nil {
			return nil, fmt.Errorf("config: read secret file %s: %w", s.Value, err)
		}
		return []byte(strings.TrimRight(string(b), "\r\n")), nil
	case "file-base64":
		b, err := os.ReadFile(s.Value)
		if err != nil {
			return nil, fmt.Errorf("config: read secret file %s: %w", s.Value, err)
		}
		return decodeBase64Key(strings.TrimSpace(string(b)))
	default:
		return nil, fmt.Errorf("config: unknown secret.type %q", s.Type)
	}
}

func decodeBase64Key(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("config: decode base64 secret: %w", err)
	}
	return key, nil
}
