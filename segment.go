package jwtclaims

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeSegment decodes the base64url claims segment of a compact token.
// Both padded and unpadded input is accepted.
func DecodeSegment(segment string) (*Claims, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
	if err != nil {
		return nil, newError(ErrCodeMalformed, fmt.Errorf("decode segment: %w", err))
	}
	return Decode(data)
}

// EncodeSegment encodes claims as an unpadded base64url segment.
func EncodeSegment(c *Claims) (string, error) {
	data, err := Encode(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// FromToken extracts the claims of a compact JWS without verifying the
// signature. Only use the result for routing or display; trust decisions
// belong to Validator.
func FromToken(token string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return nil, newError(ErrCodeMalformed, fmt.Errorf("token has %d segments, want 3", len(parts)))
	}
	return DecodeSegment(parts[1])
}
