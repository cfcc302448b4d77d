package jwtclaims

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/idtoken"
)

var googleValidate = idtoken.Validate

// Validator verifies tokens from configured issuers and returns their claims.
// Signatures are checked first, the verified payload is decoded with Decode,
// and the issuer Policy runs last.
type Validator struct {
	mu            sync.RWMutex
	issuers       map[string]*issuerState
	defaultIssuer string
}

type issuerState struct {
	cfg    IssuerConfig
	policy Policy
	cache  *jwk.Cache
	google bool
}

// NewValidator builds a validator from the given configuration.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	index, err := cfg.issuerIndex()
	if err != nil {
		return nil, err
	}

	defaultIssuer := ""
	if len(cfg.Issuers) == 1 {
		defaultIssuer = cfg.Issuers[0].Name
	}

	v := &Validator{
		issuers:       make(map[string]*issuerState, len(index)),
		defaultIssuer: defaultIssuer,
	}
	for name, issuerCfg := range index {
		state := &issuerState{
			cfg:    issuerCfg,
			policy: issuerCfg.policy(),
			google: issuerCfg.JWKSURL == "",
		}
		if !state.google {
			cache := jwk.NewCache(context.Background())
			httpClient := &http.Client{
				Timeout: issuerCfg.HTTPTimeout,
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
				},
			}
			if err := cache.Register(
				issuerCfg.JWKSURL,
				jwk.WithMinRefreshInterval(issuerCfg.MinRefresh),
				jwk.WithHTTPClient(httpClient),
			); err != nil {
				return nil, fmt.Errorf("register jwks for %q: %w", name, err)
			}
			state.cache = cache
		}
		v.issuers[name] = state
	}

	return v, nil
}

// Warmup refreshes JWKS for the specified issuer.
func (v *Validator) Warmup(ctx context.Context, issuerName string) error {
	state, ok := v.lookupIssuer(issuerName)
	if !ok {
		return newError(ErrCodeIssuerNotRegistered, fmt.Errorf("issuer %q not found", issuerName))
	}
	if state.google {
		return nil
	}
	refreshCtx := ctx
	if state.cfg.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(ctx, state.cfg.HTTPTimeout)
		defer cancel()
	}
	if _, err := state.cache.Refresh(refreshCtx, state.cfg.JWKSURL); err != nil {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return nil
}

// Validate verifies the token using the issuer identified by issuerName.
// An empty issuerName selects the only configured issuer.
func (v *Validator) Validate(ctx context.Context, token, issuerName string) (*Claims, error) {
	if issuerName == "" {
		issuerName = v.defaultIssuer
	}
	if issuerName == "" {
		return nil, newError(ErrCodeIssuerNotRegistered, fmt.Errorf("issuer not specified"))
	}

	if token == "" {
		return nil, newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}
	state, ok := v.lookupIssuer(issuerName)
	if !ok {
		return nil, newError(ErrCodeIssuerNotRegistered, fmt.Errorf("issuer %q not found", issuerName))
	}

	var (
		claims *Claims
		err    error
	)
	if state.google {
		claims, err = v.validateGoogle(ctx, token, state)
	} else {
		claims, err = v.validateJWKS(ctx, token, state)
	}
	if err == nil {
		err = state.policy.Check(claims)
	}
	if err != nil {
		Log().WithFields(logrus.Fields{
			"issuer": issuerName,
			"code":   CodeOf(err),
		}).WithError(err).Debug("token rejected")
		return nil, err
	}
	return claims, nil
}

func (v *Validator) validateJWKS(ctx context.Context, token string, state *issuerState) (*Claims, error) {
	keySet, err := state.cache.Get(ctx, state.cfg.JWKSURL)
	if err != nil {
		return nil, newError(ErrCodeJWKSUnavailable, err)
	}

	payload, err := jws.Verify([]byte(token), jws.WithKeySet(keySet))
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}

	claims, err := Decode(payload)
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}
	return claims, nil
}

func (v *Validator) validateGoogle(ctx context.Context, token string, state *issuerState) (*Claims, error) {
	validateCtx := ctx
	if state.cfg.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		validateCtx, cancel = context.WithTimeout(ctx, state.cfg.HTTPTimeout)
		defer cancel()
	}

	payload, err := googleValidate(validateCtx, token, state.cfg.Audience)
	if err != nil {
		return nil, mapGoogleError(err)
	}
	return claimsFromGooglePayload(payload)
}

func (v *Validator) lookupIssuer(name string) (*issuerState, bool) {
	if name == "" {
		name = v.defaultIssuer
	}
	if name == "" {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	state, ok := v.issuers[name]
	return state, ok
}

// claimsFromGooglePayload decodes the raw claim map and fills registered
// claims that only appear as typed payload fields.
func claimsFromGooglePayload(payload *idtoken.Payload) (*Claims, error) {
	raw := payload.Claims
	if raw == nil {
		raw = map[string]any{}
	}
	claims, err := FromMap(raw)
	if err != nil {
		return nil, newError(ErrCodeInvalidToken, err)
	}
	r := &claims.Registered
	if r.Issuer == nil && payload.Issuer != "" {
		r.Issuer = String(payload.Issuer)
	}
	if r.Subject == nil && payload.Subject != "" {
		r.Subject = String(payload.Subject)
	}
	if r.Audience == nil && payload.Audience != "" {
		r.Audience = []string{payload.Audience}
	}
	if r.Expiration == nil && payload.Expires > 0 {
		r.Expiration = Seconds(uint64(payload.Expires))
	}
	if r.IssuedAt == nil && payload.IssuedAt > 0 {
		r.IssuedAt = Seconds(uint64(payload.IssuedAt))
	}
	return claims, nil
}

func mapGoogleError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "audience provided does not match"):
		return newError(ErrCodeInvalidAudience, err)
	case strings.Contains(msg, "token expired"):
		return newError(ErrCodeExpired, err)
	case strings.Contains(msg, "could not find matching cert"):
		return newError(ErrCodeInvalidToken, err)
	case strings.Contains(msg, "invalid token"):
		return newError(ErrCodeInvalidToken, err)
	case strings.Contains(msg, "unable to decode JWT"):
		return newError(ErrCodeInvalidToken, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	return newError(ErrCodeInvalidToken, err)
}
