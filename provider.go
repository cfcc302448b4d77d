package jwtclaims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/impersonate"
)

const defaultRefreshBefore = time.Minute

// TokenFactory allows callers to override how identity tokens are minted.
type TokenFactory func(context.Context, string, ProviderParams) (oauth2.TokenSource, error)

// ProviderConfig defines how tokens should be issued by default.
type ProviderConfig struct {
	ServiceAccount string
	IncludeEmail   bool
	Delegates      []string
	TokenFactory   TokenFactory
	// RefreshBefore re-mints a token this long before its `exp` claim.
	RefreshBefore time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Provider mints identity tokens for service-to-service calls.
//
// One token source is kept per audience and identity. The last token it
// produced is decoded with FromToken and reused until RefreshBefore ahead of
// its `exp` claim. Tokens without a decodable `exp` fall back to the expiry
// reported by the token source; a zero expiry never goes stale.
type Provider struct {
	mu            sync.Mutex
	factory       TokenFactory
	slots         map[mintKey]*mintSlot
	defaults      ProviderParams
	refreshBefore time.Duration
	now           func() time.Time
}

type mintKey struct {
	audience       string
	serviceAccount string
	includeEmail   bool
	delegates      string
}

type mintSlot struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	last   *mintedToken
}

type mintedToken struct {
	raw       string
	claims    *Claims
	decodeErr error
	staleAt   time.Time
}

// ProviderParams are the resolved options a TokenFactory mints with.
type ProviderParams struct {
	ServiceAccount string
	IncludeEmail   bool
	Delegates      []string
}

// TokenOption customizes the behaviour for a single Token call.
type TokenOption func(*ProviderParams)

// WithServiceAccount overrides the service account used to mint the token.
func WithServiceAccount(email string) TokenOption {
	return func(p *ProviderParams) {
		p.ServiceAccount = email
	}
}

// WithIncludeEmail controls whether the resulting token contains the email claim.
func WithIncludeEmail(include bool) TokenOption {
	return func(p *ProviderParams) {
		p.IncludeEmail = include
	}
}

// WithDelegates sets the impersonation delegation chain.
func WithDelegates(delegates ...string) TokenOption {
	return func(p *ProviderParams) {
		p.Delegates = append([]string(nil), delegates...)
	}
}

// NewProvider constructs a Provider using the supplied defaults.
func NewProvider(cfg ProviderConfig) *Provider {
	p := &Provider{
		factory:       cfg.TokenFactory,
		slots:         make(map[mintKey]*mintSlot),
		refreshBefore: cfg.RefreshBefore,
		now:           cfg.Now,
		defaults: ProviderParams{
			ServiceAccount: cfg.ServiceAccount,
			IncludeEmail:   cfg.IncludeEmail,
			Delegates:      append([]string(nil), cfg.Delegates...),
		},
	}
	if p.factory == nil {
		p.factory = googleTokenSource
	}
	if p.refreshBefore <= 0 {
		p.refreshBefore = defaultRefreshBefore
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Token returns an identity token for the given audience.
func (p *Provider) Token(ctx context.Context, audience string, opts ...TokenOption) (string, error) {
	m, err := p.mint(ctx, audience, opts)
	if err != nil {
		return "", err
	}
	return m.raw, nil
}

// TokenClaims returns an identity token together with its decoded claims.
// The claims are read from the minted token and are not signature checked.
func (p *Provider) TokenClaims(ctx context.Context, audience string, opts ...TokenOption) (string, *Claims, error) {
	m, err := p.mint(ctx, audience, opts)
	if err != nil {
		return "", nil, err
	}
	if m.decodeErr != nil {
		return "", nil, fmt.Errorf("decode minted token: %w", m.decodeErr)
	}
	return m.raw, m.claims.Clone(), nil
}

func (p *Provider) mint(ctx context.Context, audience string, opts []TokenOption) (*mintedToken, error) {
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("audience is required")
	}
	params := ProviderParams{
		ServiceAccount: p.defaults.ServiceAccount,
		IncludeEmail:   p.defaults.IncludeEmail,
		Delegates:      append([]string(nil), p.defaults.Delegates...),
	}
	for _, opt := range opts {
		opt(&params)
	}
	key := mintKey{
		audience:       audience,
		serviceAccount: params.ServiceAccount,
		includeEmail:   params.IncludeEmail,
		delegates:      strings.Join(params.Delegates, ","),
	}

	slot, err := p.slot(ctx, key, params)
	if err != nil {
		return nil, err
	}
	return slot.token(p.now(), p.refreshBefore, key)
}

func (p *Provider) slot(ctx context.Context, key mintKey, params ProviderParams) (*mintSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.slots[key]; ok {
		return slot, nil
	}
	// The source outlives this call, so it must not inherit its cancellation.
	if ctx == nil {
		ctx = context.Background()
	}
	source, err := p.factory(context.WithoutCancel(ctx), key.audience, params)
	if err != nil {
		return nil, err
	}
	slot := &mintSlot{source: source}
	p.slots[key] = slot
	return slot, nil
}

func (s *mintSlot) token(now time.Time, refreshBefore time.Duration, key mintKey) (*mintedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && (s.last.staleAt.IsZero() || now.Before(s.last.staleAt)) {
		return s.last, nil
	}

	tok, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access token returned")
	}
	m := &mintedToken{raw: tok.AccessToken}
	m.claims, m.decodeErr = FromToken(tok.AccessToken)
	expiry := tok.Expiry
	if m.claims != nil {
		if exp, ok := m.claims.Registered.ExpiresAt(); ok {
			expiry = exp
		}
	}
	if !expiry.IsZero() {
		m.staleAt = expiry.Add(-refreshBefore)
	}
	s.last = m

	Log().WithFields(logrus.Fields{
		"audience":        key.audience,
		"service_account": key.serviceAccount,
		"stale_at":        m.staleAt,
	}).Debug("identity token minted")
	return m, nil
}

func googleTokenSource(ctx context.Context, audience string, params ProviderParams) (oauth2.TokenSource, error) {
	if params.ServiceAccount == "" {
		return idtoken.NewTokenSource(ctx, audience)
	}
	return impersonate.IDTokenSource(ctx, impersonate.IDTokenConfig{
		Audience:        audience,
		TargetPrincipal: params.ServiceAccount,
		IncludeEmail:    params.IncludeEmail,
		Delegates:       params.Delegates,
	})
}
