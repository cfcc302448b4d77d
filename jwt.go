package jwtclaims

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var _ jwt.Claims = (*Claims)(nil)

// GetExpirationTime implements jwt.Claims.
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return numericDate(c.Registered.Expiration), nil
}

// GetNotBefore implements jwt.Claims.
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return numericDate(c.Registered.NotBefore), nil
}

// GetIssuedAt implements jwt.Claims.
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return numericDate(c.Registered.IssuedAt), nil
}

// GetAudience implements jwt.Claims.
func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Registered.Audience == nil {
		return nil, nil
	}
	return append(jwt.ClaimStrings{}, c.Registered.Audience...), nil
}

// GetIssuer implements jwt.Claims.
func (c *Claims) GetIssuer() (string, error) {
	if c.Registered.Issuer == nil {
		return "", nil
	}
	return *c.Registered.Issuer, nil
}

// GetSubject implements jwt.Claims.
func (c *Claims) GetSubject() (string, error) {
	if c.Registered.Subject == nil {
		return "", nil
	}
	return *c.Registered.Subject, nil
}

// SignHS256 signs claims with a shared secret.
func SignHS256(secret []byte, c *Claims) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// ParseHS256 verifies an HS256 token and decodes its claims. The signing
// method is pinned so a token cannot pick a weaker algorithm. Expiry and
// not-before are enforced by the parser when present.
func ParseHS256(secret []byte, token string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, opts...)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}
	return claims, nil
}

func mapJWTError(err error) error {
	var claimsErr *Error
	switch {
	case errors.As(err, &claimsErr):
		return claimsErr
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(ErrCodeExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return newError(ErrCodeNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newError(ErrCodeInvalidIssuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return newError(ErrCodeInvalidAudience, err)
	default:
		return newError(ErrCodeInvalidToken, err)
	}
}

func numericDate(v *uint64) *jwt.NumericDate {
	t, ok := unixTime(v)
	if !ok {
		return nil
	}
	return jwt.NewNumericDate(t)
}
