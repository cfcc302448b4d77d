package jwtclaims

import (
	"fmt"
	"strings"
	"time"
)

// Policy checks claim semantics on top of a decoded Claims value. The claims
// model itself never rejects a token for being expired or addressed to
// someone else; that is decided here.
type Policy struct {
	// Issuer, when set, must equal the `iss` claim.
	Issuer string
	// IssuerFold compares Issuer case-insensitively.
	IssuerFold bool
	// Audience, when set, must be one of the `aud` values.
	Audience string
	// AllowedSubjects restricts `sub` (or the `email` claim). Matching is case-insensitive.
	AllowedSubjects []string
	// ClockSkew is tolerated on `exp` and `nbf`.
	ClockSkew time.Duration
	// RequireExpiration rejects tokens without `exp`.
	RequireExpiration bool
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Check returns nil when the claims satisfy the policy, otherwise an *Error
// carrying one of the validator codes.
func (p Policy) Check(c *Claims) error {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	r := c.Registered

	if exp, ok := r.ExpiresAt(); ok {
		if !now.Before(exp.Add(p.ClockSkew)) {
			return newFieldError(ErrCodeExpired, ClaimExpiration, fmt.Errorf("expired at %s", exp.Format(time.RFC3339)))
		}
	} else if p.RequireExpiration {
		return newFieldError(ErrCodeInvalidToken, ClaimExpiration, fmt.Errorf("claim is required"))
	}
	if nbf, ok := r.NotBeforeTime(); ok {
		if now.Add(p.ClockSkew).Before(nbf) {
			return newFieldError(ErrCodeNotYetValid, ClaimNotBefore, fmt.Errorf("not valid before %s", nbf.Format(time.RFC3339)))
		}
	}

	if p.Issuer != "" {
		got, _ := c.GetIssuer()
		match := got == p.Issuer
		if p.IssuerFold {
			match = strings.EqualFold(got, p.Issuer)
		}
		if !match {
			return newFieldError(ErrCodeInvalidIssuer, ClaimIssuer, fmt.Errorf("issuer mismatch: got %s, want %s", got, p.Issuer))
		}
	}
	if p.Audience != "" && !r.HasAudience(p.Audience) {
		return newFieldError(ErrCodeInvalidAudience, ClaimAudience, fmt.Errorf("%q not in %v", p.Audience, r.Audience))
	}
	if !p.subjectAllowed(c) {
		sub, _ := c.GetSubject()
		return newFieldError(ErrCodeSubjectNotAllowed, ClaimSubject, fmt.Errorf("subject %q not allowed", sub))
	}
	return nil
}

func (p Policy) subjectAllowed(c *Claims) bool {
	allowed := toSet(p.AllowedSubjects)
	if len(allowed) == 0 {
		return true
	}
	sub, _ := c.GetSubject()
	if _, ok := allowed[strings.ToLower(sub)]; ok {
		return true
	}
	if email := c.Email(); email != "" {
		if _, ok := allowed[email]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
