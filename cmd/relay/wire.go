package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/relay/pkg/auth"
	"github.com/rhuss/relay/pkg/auth/apikey"
	"github.com/rhuss/relay/pkg/auth/jwt"
	"github.com/rhuss/relay/pkg/auth/noop"
	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/capability/builtin"
	"github.com/rhuss/relay/pkg/capability/mcp"
	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/storage/memory"
	"github.com/rhuss/relay/pkg/storage/postgres"
	"github.com/rhuss/relay/pkg/task"
)

// taskStore is a task.Store the server can health-check and close.
type taskStore interface {
	task.Store
	HealthCheck(ctx context.Context) error
	Close() error
}

func newTaskStore(ctx context.Context, cfg config.StorageConfig) (taskStore, error) {
	switch cfg.Type {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting task store: %w", err)
		}
		return s, nil
	default:
		return memory.New(cfg.MaxSize), nil
	}
}

func toOverrides(in map[string]config.OverrideConfig) map[string]capability.Override {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]capability.Override, len(in))
	for name, o := range in {
		out[name] = capability.Override{Timeout: o.Timeout, Category: capability.Category(o.Category)}
	}
	return out
}

// buildSources turns the capabilities section into registry sources. MCP
// sources are not connected yet.
func buildSources(cfg config.CapabilitiesConfig) ([]capability.Source, error) {
	b, err := builtin.New(builtin.Config{
		Files: builtin.FilesConfig{
			Enabled:  cfg.Builtin.Files.Enabled,
			Root:     cfg.Builtin.Files.Root,
			Writable: cfg.Builtin.Files.Writable,
			MaxBytes: cfg.Builtin.Files.MaxBytes,
		},
		Command: builtin.CommandConfig{
			Enabled: cfg.Builtin.Command.Enabled,
			Allowed: cfg.Builtin.Command.Allowed,
			WorkDir: cfg.Builtin.Command.WorkDir,
			Timeout: cfg.Builtin.Command.Timeout,
		},
		WebSearch: builtin.WebSearchConfig{
			Enabled:    cfg.Builtin.WebSearch.Enabled,
			URL:        cfg.Builtin.WebSearch.URL,
			MaxResults: cfg.Builtin.WebSearch.MaxResults,
			Timeout:    cfg.Builtin.WebSearch.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("builtin capabilities: %w", err)
	}

	overrides := toOverrides(cfg.Overrides)
	sources := []capability.Source{capability.WithOverrides(b, overrides, cfg.DefaultTimeout)}

	for _, sc := range cfg.MCP.Servers {
		mc := mcp.Config{
			Name:      sc.Name,
			Transport: sc.Transport,
			URL:       sc.URL,
			Headers:   sc.Headers,
			Command:   sc.Command,
			Args:      sc.Args,
			Prefix:    sc.Prefix,
			Timeout:   sc.Timeout,
			Tools:     toOverrides(sc.Tools),
		}
		if mc.Timeout <= 0 {
			mc.Timeout = cfg.DefaultTimeout
		}
		if sc.Auth.Type == "oauth_client_credentials" {
			mc.Auth = mcp.NewClientCredentials(sc.Auth.TokenURL, sc.Auth.ClientID, sc.Auth.ClientSecret, sc.Auth.Scopes)
		}
		src, err := mcp.New(mc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, capability.WithOverrides(src, overrides, cfg.DefaultTimeout))
	}
	return sources, nil
}

func buildRegistry(ctx context.Context, cfg config.CapabilitiesConfig) (*capability.Registry, error) {
	sources, err := buildSources(cfg)
	if err != nil {
		return nil, err
	}
	b := capability.NewBuilder()
	for _, src := range sources {
		if err := b.AddSource(ctx, src); err != nil {
			closeSources(sources)
			return nil, fmt.Errorf("registering %s: %w", src.Name(), err)
		}
	}
	reg, err := b.Build()
	if err != nil {
		closeSources(sources)
		return nil, err
	}
	return reg, nil
}

func closeSources(sources []capability.Source) {
	for _, src := range sources {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	}
}

func buildAuth(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	chain := &auth.Chain{Default: auth.No}
	switch cfg.Type {
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Tenant:      k.TenantID,
					Scopes:      k.Scopes,
				},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			JWKSURL:      cfg.JWT.JWKSURL,
			SubjectClaim: cfg.JWT.SubjectClaim,
			TenantClaim:  cfg.JWT.TenantClaim,
			TierClaim:    cfg.JWT.TierClaim,
			ScopesClaim:  cfg.JWT.ScopesClaim,
			CacheTTL:     cfg.JWT.CacheTTL,
			Leeway:       cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt auth: %w", err)
		}
		chain.Authenticators = []auth.Authenticator{a}
	default:
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	}

	opts := auth.Options{Bypass: auth.DefaultBypassEndpoints}
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for name, rpm := range cfg.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		opts.Limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimit.DefaultRPM)
	}
	if cfg.InvokeScope != "" {
		opts.Scopes = []auth.ScopeRule{{Method: http.MethodPost, PathPrefix: "/v1/capabilities/", Scope: cfg.InvokeScope}}
	}
	return auth.Middleware(chain, opts), nil
}
