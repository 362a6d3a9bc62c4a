// Package config loads relay configuration.
//
// Sources are layered, later ones winning:
//  1. Built-in defaults
//  2. YAML file (explicit path, RELAY_CONFIG, ./config.yaml, /etc/relay/config.yaml)
//  3. RELAY_* environment variables
//  4. _file secret references
//
// The result is validated before it is returned.
package config

import "time"

// Config is the complete relay configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Planner       PlannerConfig       `yaml:"planner"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Capabilities  CapabilitiesConfig  `yaml:"capabilities"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (chat streams are long-lived)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
}

// DispatchConfig controls capability routing and background execution.
type DispatchConfig struct {
	InlineThreshold time.Duration `yaml:"inline_threshold"` // default: 30s
	Workers         int           `yaml:"workers"`          // default: 8
	PollInterval    time.Duration `yaml:"poll_interval"`    // default: 1s
}

// PlannerConfig controls the chaining loop.
type PlannerConfig struct {
	MaxDepth      int `yaml:"max_depth"`      // default: 15
	HistoryTurns  int `yaml:"history_turns"`  // default: 10
	RenderedCalls int `yaml:"rendered_calls"` // default: 5

	// MaxConcurrentChains caps chains running at once across all
	// sessions. Zero means no limit.
	MaxConcurrentChains int `yaml:"max_concurrent_chains"`
}

// OracleConfig points at the OpenAI-compatible reasoning backend.
type OracleConfig struct {
	BackendURL string        `yaml:"backend_url"` // required
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"` // default: 60s
}

// StorageConfig selects the task store.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"`
	JWT     JWTConfig      `yaml:"jwt"`

	// InvokeScope, when set, is required for direct capability invocation.
	InvokeScope string `yaml:"invoke_scope"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes one API key.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"`
	Subject     string   `yaml:"subject" json:"subject"`
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig configures JWT bearer validation.
type JWTConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	SubjectClaim string        `yaml:"subject_claim"`
	TenantClaim  string        `yaml:"tenant_claim"`
	TierClaim    string        `yaml:"tier_claim"`
	ScopesClaim  string        `yaml:"scopes_claim"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Leeway       time.Duration `yaml:"leeway"`
}

// RateLimitConfig limits requests per minute by service tier. Zero
// disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// CapabilitiesConfig selects the capability sources.
type CapabilitiesConfig struct {
	Builtin BuiltinConfig `yaml:"builtin"`
	MCP     MCPConfig     `yaml:"mcp"`

	// DefaultTimeout is the budget of capabilities that declare none.
	DefaultTimeout time.Duration `yaml:"default_timeout"` // default: 60s

	// Overrides adjust timeout budgets and categories by capability name.
	Overrides map[string]OverrideConfig `yaml:"overrides"`
}

// OverrideConfig replaces the timeout or category of a capability.
type OverrideConfig struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Category string        `yaml:"category" json:"category"`
}

// BuiltinConfig toggles the built-in capabilities.
type BuiltinConfig struct {
	Files     FilesConfig     `yaml:"files"`
	Command   CommandConfig   `yaml:"command"`
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// FilesConfig configures read_file, list_dir and write_file.
type FilesConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Root     string `yaml:"root"`     // default: "."
	Writable bool   `yaml:"writable"` // registers write_file
	MaxBytes int64  `yaml:"max_bytes"`
}

// CommandConfig configures run_command.
type CommandConfig struct {
	Enabled bool          `yaml:"enabled"`
	Allowed []string      `yaml:"allowed"` // program names; empty allows none
	WorkDir string        `yaml:"work_dir"`
	Timeout time.Duration `yaml:"timeout"` // default: 5m
}

// WebSearchConfig configures web_search against a SearXNG instance.
type WebSearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	MaxResults int           `yaml:"max_results"` // default: 5
	Timeout    time.Duration `yaml:"timeout"`     // default: 10s
}

// MCPConfig lists MCP servers whose tools become capabilities.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "streamable-http" (default), "sse" or "stdio"
	URL       string            `yaml:"url" json:"url"`
	Command   string            `yaml:"command" json:"command"`
	Args      []string          `yaml:"args" json:"args"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth" json:"auth"`

	// Timeout is the default budget of the server's tools.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Prefix is prepended to tool names.
	Prefix string `yaml:"prefix" json:"prefix"`
	// Tools overrides budgets and categories per tool.
	Tools map[string]OverrideConfig `yaml:"tools" json:"tools"`
}

// MCPAuthConfig configures OAuth client credentials for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret" json:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file"`
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // "otlp-http" (default) or "stdout"
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"` // default: 1.0
}

// LoggingConfig configures log/slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "text" (default) or "json"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with every default filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
		},
		Dispatch: DispatchConfig{
			InlineThreshold: 30 * time.Second,
			Workers:         8,
			PollInterval:    time.Second,
		},
		Planner: PlannerConfig{
			MaxDepth:      15,
			HistoryTurns:  10,
			RenderedCalls: 5,
		},
		Oracle: OracleConfig{
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Capabilities: CapabilitiesConfig{
			DefaultTimeout: 60 * time.Second,
			Builtin: BuiltinConfig{
				Files:     FilesConfig{Root: "."},
				Command:   CommandConfig{Timeout: 5 * time.Minute},
				WebSearch: WebSearchConfig{MaxResults: 5, Timeout: 10 * time.Second},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Tracing: TracingConfig{Exporter: "otlp-http", SampleRate: 1.0},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
