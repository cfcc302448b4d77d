package jwtclaims

import (
	"bytes"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

// Wire names of the registered claims, see https://tools.ietf.org/html/rfc7519#section-4.1.
const (
	ClaimIssuer         = "iss"
	ClaimSubject        = "sub"
	ClaimAudience       = "aud"
	ClaimExpiration     = "exp"
	ClaimNotBefore      = "nbf"
	ClaimIssuedAt       = "iat"
	ClaimJSONWebTokenID = "jti"
)

// registeredNames is in encode order.
var registeredNames = [...]string{
	ClaimIssuer,
	ClaimSubject,
	ClaimAudience,
	ClaimExpiration,
	ClaimNotBefore,
	ClaimIssuedAt,
	ClaimJSONWebTokenID,
}

// RegisteredNames returns the seven registered claim wire names.
func RegisteredNames() []string {
	return append([]string(nil), registeredNames[:]...)
}

// IsRegistered reports whether name is a registered claim wire name.
// Matching is exact: "EXP" and " exp" are private claims.
func IsRegistered(name string) bool {
	for _, n := range registeredNames {
		if n == name {
			return true
		}
	}
	return false
}

// RegisteredClaims holds the claims defined by RFC 7519 section 4.1.
// A nil field means the claim is not asserted; it is omitted on the wire.
type RegisteredClaims struct {
	// Issuer is the `iss` claim.
	Issuer *string
	// Subject is the `sub` claim.
	Subject *string
	// Audience is the `aud` claim. On the wire it may be a single string or an
	// array; in memory it is always a slice. nil means absent, an empty
	// non-nil slice means an asserted empty audience.
	Audience []string
	// Expiration is the `exp` claim in seconds since the epoch.
	Expiration *uint64
	// NotBefore is the `nbf` claim in seconds since the epoch.
	NotBefore *uint64
	// IssuedAt is the `iat` claim in seconds since the epoch.
	IssuedAt *uint64
	// JSONWebTokenID is the `jti` claim.
	JSONWebTokenID *string
}

// Claims is a full JWT payload: the registered claims plus every other key
// the issuer put in the object.
type Claims struct {
	Registered RegisteredClaims
	// Private holds opaque JSON values keyed by claim name. It never contains
	// a registered wire name.
	Private map[string]any
}

// NewClaims returns claims with the given registered part and no private claims.
func NewClaims(registered RegisteredClaims) *Claims {
	return &Claims{
		Registered: registered,
		Private:    make(map[string]any),
	}
}

// String returns a pointer to s for populating optional string claims.
func String(s string) *string {
	return &s
}

// Seconds returns a pointer to v for populating optional time claims.
func Seconds(v uint64) *uint64 {
	return &v
}

// SecondsOf converts t into a time claim value. Times before the epoch clamp to zero.
func SecondsOf(t time.Time) *uint64 {
	unix := t.Unix()
	if unix < 0 {
		unix = 0
	}
	return Seconds(uint64(unix))
}

// ExpiresAt returns the expiration as a UTC time. Like the other time
// accessors it clamps values past the year 9999 to 9999-12-31T23:59:59Z.
func (r RegisteredClaims) ExpiresAt() (time.Time, bool) {
	return unixTime(r.Expiration)
}

// NotBeforeTime returns the not-before claim as a UTC time.
func (r RegisteredClaims) NotBeforeTime() (time.Time, bool) {
	return unixTime(r.NotBefore)
}

// IssuedAtTime returns the issued-at claim as a UTC time.
func (r RegisteredClaims) IssuedAtTime() (time.Time, bool) {
	return unixTime(r.IssuedAt)
}

// HasAudience reports whether aud is one of the asserted audiences.
func (r RegisteredClaims) HasAudience(aud string) bool {
	for _, a := range r.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

// Equal reports whether both values assert the same claims.
func (r RegisteredClaims) Equal(o RegisteredClaims) bool {
	return equalString(r.Issuer, o.Issuer) &&
		equalString(r.Subject, o.Subject) &&
		equalAudience(r.Audience, o.Audience) &&
		equalSeconds(r.Expiration, o.Expiration) &&
		equalSeconds(r.NotBefore, o.NotBefore) &&
		equalSeconds(r.IssuedAt, o.IssuedAt) &&
		equalString(r.JSONWebTokenID, o.JSONWebTokenID)
}

// Equal reports value equality. A nil and an empty private map are equal.
// Private values are equal when they encode to the same JSON, so an int set
// by hand equals the json.Number it decodes back as.
func (c *Claims) Equal(o *Claims) bool {
	if c == nil || o == nil {
		return c == o
	}
	if !c.Registered.Equal(o.Registered) {
		return false
	}
	if len(c.Private) != len(o.Private) {
		return false
	}
	for k, v := range c.Private {
		ov, ok := o.Private[k]
		if !ok || !equalValue(v, ov) {
			return false
		}
	}
	return true
}

// PrivateNames returns the private claim names in lexicographic order.
func (c *Claims) PrivateNames() []string {
	names := make([]string, 0, len(c.Private))
	for k := range c.Private {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetPrivate stores a private claim. Registered names are rejected so the
// key sets stay disjoint. The value is stored in its decoded JSON form
// (json.Number, []any, map[string]any), the same form Decode produces.
func (c *Claims) SetPrivate(name string, value any) error {
	if IsRegistered(name) {
		return newFieldError(ErrCodeKeyCollision, name, nil)
	}
	normalized, err := normalizeValue(value)
	if err != nil {
		return err
	}
	if c.Private == nil {
		c.Private = make(map[string]any)
	}
	c.Private[name] = normalized
	return nil
}

// PrivateString returns a private claim when it holds a JSON string.
func (c *Claims) PrivateString(name string) (string, bool) {
	s, ok := c.Private[name].(string)
	return s, ok
}

// Email returns the lower-cased `email` private claim.
func (c *Claims) Email() string {
	email, _ := c.PrivateString("email")
	return strings.ToLower(email)
}

// Scopes returns the `scopes` claim, or failing that the space separated
// `scope` claim. A bare string is treated as a single scope.
func (c *Claims) Scopes() []string {
	if v, ok := c.Private["scopes"]; ok {
		return normalizeScopes(v)
	}
	if s, ok := c.PrivateString("scope"); ok {
		return strings.Fields(s)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Claims) Clone() *Claims {
	out := &Claims{
		Registered: RegisteredClaims{
			Issuer:         cloneString(c.Registered.Issuer),
			Subject:        cloneString(c.Registered.Subject),
			Expiration:     cloneSeconds(c.Registered.Expiration),
			NotBefore:      cloneSeconds(c.Registered.NotBefore),
			IssuedAt:       cloneSeconds(c.Registered.IssuedAt),
			JSONWebTokenID: cloneString(c.Registered.JSONWebTokenID),
		},
		Private: make(map[string]any, len(c.Private)),
	}
	if c.Registered.Audience != nil {
		out.Registered.Audience = append([]string{}, c.Registered.Audience...)
	}
	for k, v := range c.Private {
		out.Private[k] = cloneValue(v)
	}
	return out
}

func normalizeScopes(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
		return nil
	default:
		return nil
	}
}

func normalizeValue(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, newError(ErrCodeMalformed, err)
	}
	if err := checkNumbers(out); err != nil {
		return nil, err
	}
	return out, nil
}

func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// maxUnixSeconds is 9999-12-31T23:59:59Z. Larger time claims clamp to it so
// that time arithmetic and comparisons never overflow.
const maxUnixSeconds = 253402300799

func unixTime(v *uint64) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	secs := *v
	if secs > maxUnixSeconds {
		secs = maxUnixSeconds
	}
	return time.Unix(int64(secs), 0).UTC(), true
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalSeconds(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalAudience(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	return String(*s)
}

func cloneSeconds(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	return Seconds(*v)
}
