package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/store"
	"golang.org/x/oauth2"
)

// OIDCProvider logs users in through an OpenID Connect provider. The
// preferred_username claim must match a username in users.csv unless the user
// belongs to the teacher group.
type OIDCProvider struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	cfg      *config.OIDCConfig
	store    *store.Store
}

func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig, s *store.Store) (*OIDCProvider, error) {
	p := OIDCProvider{
		cfg:   cfg,
		store: s,
	}
	var err error
	p.provider, err = oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	p.config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     p.provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "groups"},
	}

	p.verifier = p.provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return &p, nil
}
