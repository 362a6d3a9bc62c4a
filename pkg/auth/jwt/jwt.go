// Package jwt authenticates RS256/384/512 signed JWT bearer tokens whose
// keys are published on a JWKS endpoint. Claims map onto the relay
// identity: subject, tenant, service tier and scopes.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/relay/pkg/auth"
)

// Config configures the authenticator.
type Config struct {
	// Issuer and Audience are validated when set.
	Issuer   string
	Audience string

	// JWKSURL publishes the verification keys.
	JWKSURL string

	// Claim names. Defaults: sub, tenant_id, tier, scope. The scopes
	// claim may be a space separated string or an array.
	SubjectClaim string
	TenantClaim  string
	TierClaim    string
	ScopesClaim  string

	// CacheTTL bounds the age of cached keys. Default: 1h.
	CacheTTL time.Duration

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration

	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg  Config
	keys *keySet
}

// New creates an authenticator. Keys are fetched on first use.
func New(cfg Config) (*Authenticator, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwt: JWKS URL is required")
	}
	cfg.defaults()
	return &Authenticator{cfg: cfg, keys: newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL)}, nil
}

// Authenticate abstains without a bearer token and votes No for tokens
// that fail verification.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return reject(errors.New("empty bearer token"))
	}

	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.key(ctx, kid)
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("jwt rejected", "error", err)
		return reject(fmt.Errorf("invalid token: %w", err))
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return reject(errors.New("unexpected claims type"))
	}
	subject := claimString(claims, a.cfg.SubjectClaim)
	if subject == "" {
		return reject(fmt.Errorf("token has no %q claim", a.cfg.SubjectClaim))
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     subject,
			Tenant:      claimString(claims, a.cfg.TenantClaim),
			ServiceTier: claimString(claims, a.cfg.TierClaim),
			Scopes:      claimScopes(claims, a.cfg.ScopesClaim),
		},
	}
}

func reject(err error) auth.Result {
	return auth.Result{Decision: auth.No, Err: err}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.cfg.Audience))
	}
	if a.cfg.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(a.cfg.Leeway))
	}
	return opts
}

func claimString(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func claimScopes(claims jwtlib.MapClaims, name string) []string {
	switch v := claims[name].(type) {
	case string:
		if f := strings.Fields(v); len(f) > 0 {
			return f
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
