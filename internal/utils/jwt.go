// Package utils holds small helpers shared across handlers.
package utils

import (
	"github.com/golang-jwt/jwt/v5"
)

// SubjectFromToken parses an HS256 token and returns its subject claim.
// The seat-map socket accepts anonymous viewers, so callers treat a false
// return as "no identity" rather than an error.
func SubjectFromToken(raw, secret string) (string, bool) {
	if raw == "" || secret == "" {
		return "", false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return "", false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, true
	}
	return "", false
}
