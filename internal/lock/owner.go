package lock

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Owner tokens arrive from clients in two historical shapes: a plain JSON
// string ("sess-1a2b") or an object wrapping it under one of a few legacy
// field names.  ParseOwner is the single place either shape is accepted;
// everything past the HTTP boundary works with the normalized string.
// Ambiguous or empty payloads are rejected rather than guessed at.

const maxOwnerLen = 128

// ParseOwner normalizes a raw JSON owner payload into an owner token.
func ParseOwner(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing owner", ErrInvalidRequest)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return validateOwner(s)
	}
	var obj struct {
		Owner      string `json:"owner"`
		OwnerToken string `json:"owner_token"`
		LockedBy   string `json:"locked_by"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: owner must be a string or an object", ErrInvalidRequest)
	}
	for _, candidate := range []string{obj.Owner, obj.OwnerToken, obj.LockedBy} {
		if candidate != "" {
			return validateOwner(candidate)
		}
	}
	return "", fmt.Errorf("%w: owner object carries no token", ErrInvalidRequest)
}

// validateOwner enforces the wire constraints on a normalized token.
func validateOwner(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty owner", ErrInvalidRequest)
	}
	if len(s) > maxOwnerLen {
		return "", fmt.Errorf("%w: owner exceeds %d bytes", ErrInvalidRequest, maxOwnerLen)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: owner contains control characters", ErrInvalidRequest)
		}
	}
	return s, nil
}
