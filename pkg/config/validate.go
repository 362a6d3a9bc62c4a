package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate reports every invalid field, each prefixed with its path.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Oracle.BackendURL == "" {
		add("oracle.backend_url is required")
	} else if !isHTTPURL(c.Oracle.BackendURL) {
		add("oracle.backend_url must be an http(s) URL, got %q", c.Oracle.BackendURL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	if c.Dispatch.InlineThreshold <= 0 {
		add("dispatch.inline_threshold must be > 0, got %s", c.Dispatch.InlineThreshold)
	}
	if c.Dispatch.Workers <= 0 {
		add("dispatch.workers must be > 0, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.PollInterval <= 0 {
		add("dispatch.poll_interval must be > 0, got %s", c.Dispatch.PollInterval)
	}
	if c.Planner.MaxDepth <= 0 {
		add("planner.max_depth must be > 0, got %d", c.Planner.MaxDepth)
	}
	if c.Planner.HistoryTurns < 0 {
		add("planner.history_turns must be >= 0, got %d", c.Planner.HistoryTurns)
	}
	if c.Planner.MaxConcurrentChains < 0 {
		add("planner.max_concurrent_chains must be >= 0, got %d", c.Planner.MaxConcurrentChains)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	default:
		add("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type)
	}

	errs = append(errs, c.Auth.validate()...)
	errs = append(errs, c.Capabilities.validate()...)

	switch c.Observability.Tracing.Exporter {
	case "", "otlp-http", "stdout":
	default:
		add("observability.tracing.exporter must be \"otlp-http\" or \"stdout\", got %q", c.Observability.Tracing.Exporter)
	}
	if r := c.Observability.Tracing.SampleRate; r < 0 || r > 1 {
		add("observability.tracing.sample_rate must be in [0,1], got %g", r)
	}
	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		add("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path)
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) validate() []error {
	var errs []error
	switch a.Type {
	case "none":
	case "apikey":
		if len(a.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range a.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if a.JWT.JWKSURL == "" {
			errs = append(errs, errors.New("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", a.Type))
	}
	if a.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must be >= 0, got %d", a.RateLimit.DefaultRPM))
	}
	return errs
}

func (c *CapabilitiesConfig) validate() []error {
	var errs []error
	if c.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capabilities.default_timeout must be > 0, got %s", c.DefaultTimeout))
	}
	if ws := c.Builtin.WebSearch; ws.Enabled && !isHTTPURL(ws.URL) {
		errs = append(errs, fmt.Errorf("capabilities.builtin.web_search.url must be an http(s) URL, got %q", ws.URL))
	}
	for name, o := range c.Overrides {
		errs = append(errs, o.validate("capabilities.overrides."+name)...)
	}

	names := map[string]bool{}
	for i, s := range c.MCP.Servers {
		path := fmt.Sprintf("capabilities.mcp.servers[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else if names[s.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is not unique", path, s.Name))
		}
		names[s.Name] = true

		switch s.Transport {
		case "", "streamable-http", "sse":
			if !isHTTPURL(s.URL) {
				errs = append(errs, fmt.Errorf("%s.url must be an http(s) URL, got %q", path, s.URL))
			}
		case "stdio":
			if s.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required for the stdio transport", path))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport must be \"streamable-http\", \"sse\" or \"stdio\", got %q", path, s.Transport))
		}

		switch s.Auth.Type {
		case "":
		case "oauth_client_credentials":
			if s.Auth.TokenURL == "" {
				errs = append(errs, fmt.Errorf("%s.auth.token_url is required", path))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.auth.type must be \"oauth_client_credentials\", got %q", path, s.Auth.Type))
		}
		if s.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must be >= 0, got %s", path, s.Timeout))
		}
		for tool, o := range s.Tools {
			errs = append(errs, o.validate(path+".tools."+tool)...)
		}
	}
	return errs
}

func (o OverrideConfig) validate(path string) []error {
	var errs []error
	if o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be >= 0, got %s", path, o.Timeout))
	}
	switch strings.ToUpper(o.Category) {
	case "", "ACTION", "QUERY":
	default:
		errs = append(errs, fmt.Errorf("%s.category must be \"ACTION\" or \"QUERY\", got %q", path, o.Category))
	}
	return errs
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
