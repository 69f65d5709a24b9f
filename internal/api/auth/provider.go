package auth

import (
	"context"
	"fmt"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/gravatar"
	"github.com/polaris-class/clubhouse/internal/store"
)

// Session keys.
const (
	sessionUsername    = "username"
	sessionName        = "name"
	sessionEmail       = "email"
	sessionOIDCTeacher = "oidc_teacher"
	sessionOAuthState  = "oauth_state"
)

// Provider authenticates users against users.csv and, when configured, an
// OpenID Connect provider.
type Provider struct {
	cfg      *config.AuthConfig
	store    *store.Store
	oidc     *OIDCProvider
	gravatar *gravatar.Resolver
}

// New creates the auth provider. At least one login method must be enabled.
func New(ctx context.Context, cfg *config.AuthConfig, s *store.Store, g *gravatar.Resolver) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	p := &Provider{cfg: cfg, store: s, gravatar: g}

	if cfg.OIDC != nil && cfg.OIDC.Enabled {
		oidcProvider, err := NewOIDCProvider(ctx, cfg.OIDC, s)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		p.oidc = oidcProvider
	}

	if p.oidc == nil && !p.HasLocal() {
		return nil, fmt.Errorf("no authentication provider is enabled")
	}
	return p, nil
}

// HasLocal reports whether password login is enabled.
func (p *Provider) HasLocal() bool {
	return p.cfg.Local != nil && p.cfg.Local.Enabled
}

// HasOIDC reports whether OIDC login is enabled.
func (p *Provider) HasOIDC() bool {
	return p.oidc != nil
}

// OIDC returns the OIDC provider, nil when disabled.
func (p *Provider) OIDC() *OIDCProvider {
	return p.oidc
}

// Methods describes the enabled login methods for the login page.
type Methods struct {
	Local    bool   `json:"local"`
	OIDC     bool   `json:"oidc"`
	OIDCName string `json:"oidcName,omitempty"`
	Demo     bool   `json:"demo"`
}

// Methods returns the enabled login methods.
func (p *Provider) Methods() Methods {
	m := Methods{Local: p.HasLocal(), OIDC: p.HasOIDC()}
	if p.oidc != nil {
		m.OIDCName = p.cfg.OIDC.Name
	}
	m.Demo = m.Local && p.cfg.Local.DemoUser != ""
	return m
}
