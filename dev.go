package jwtclaims

import (
	"time"

	"github.com/google/uuid"
)

// DevBypassClaims holds attributes used when issuing synthetic claims in dev mode.
type DevBypassClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Email    string
}

// NewID returns a random value suitable for the `jti` claim.
func NewID() *string {
	return String(uuid.NewString())
}

// ToCallerClaims converts the dev bypass configuration into caller claims.
func (d DevBypassClaims) ToCallerClaims() CallerClaims {
	claims := NewClaims(RegisteredClaims{
		Subject:        String(d.Subject),
		Issuer:         String(d.Issuer),
		Audience:       append([]string(nil), d.Audience...),
		IssuedAt:       SecondsOf(time.Now()),
		JSONWebTokenID: NewID(),
	})
	if d.Email != "" {
		claims.Private["email"] = d.Email
	}
	return CallerClaims{
		Claims:    claims,
		Issuer:    d.Issuer,
		DevBypass: true,
	}
}

// DefaultDevBypassClaims returns a baseline set of claims suitable for local development.
func DefaultDevBypassClaims(audience string) DevBypassClaims {
	aud := audience
	if aud == "" {
		aud = "https://dev.local"
	}
	return DevBypassClaims{
		Subject:  "dev-bypass",
		Issuer:   "jwtclaims.dev",
		Audience: []string{aud},
	}
}
