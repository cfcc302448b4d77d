// Package ginmw binds validated JWT claims to gin requests.
package ginmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bionicotaku/lingo-utils-jwtclaims"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// ClaimsKey is the gin context key holding the *jwtclaims.Claims.
	ClaimsKey = "jwt_claims"
)

// Verifier is satisfied by *jwtclaims.Validator.
type Verifier interface {
	Validate(ctx context.Context, token, issuerName string) (*jwtclaims.Claims, error)
}

// RequireClaims verifies the bearer token against issuer and stores the
// claims in both the request context and the gin context.
func RequireClaims(v Verifier, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))

		claims, err := v.Validate(c.Request.Context(), token, issuer)
		if err != nil {
			code := jwtclaims.CodeOf(err)
			if code == "" {
				code = jwtclaims.ErrCodeInvalidToken
			}
			c.AbortWithStatusJSON(statusFor(code), gin.H{"error": string(code)})
			return
		}

		bind(c, jwtclaims.CallerClaims{Claims: claims, Issuer: issuer})
		c.Next()
	}
}

// DevBypass attaches synthetic claims without looking at the request. Only
// mount it in local environments.
func DevBypass(d jwtclaims.DevBypassClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		bind(c, d.ToCallerClaims())
		c.Next()
	}
}

// Claims returns the claims stored by RequireClaims or DevBypass.
func Claims(c *gin.Context) (*jwtclaims.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwtclaims.Claims)
	return claims, ok && claims != nil
}

func bind(c *gin.Context, caller jwtclaims.CallerClaims) {
	ctx := jwtclaims.BindCallerClaims(c.Request.Context(), caller)
	c.Request = c.Request.WithContext(ctx)
	c.Set(ClaimsKey, caller.Claims)
}

func statusFor(code jwtclaims.ErrorCode) int {
	switch code {
	case jwtclaims.ErrCodeSubjectNotAllowed:
		return http.StatusForbidden
	case jwtclaims.ErrCodeJWKSUnavailable, jwtclaims.ErrCodeInternal:
		return http.StatusServiceUnavailable
	case jwtclaims.ErrCodeIssuerNotRegistered:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}
