package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELAY_"

// Load builds the configuration from defaults, the YAML file at
// configPath (or a discovered one), the environment and _file secrets,
// then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "/etc/relay/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg. Unknown keys are rejected.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envSetter applies one environment variable.
type envSetter func(cfg *Config, v string) error

var envOverrides = map[string]envSetter{
	"PORT":               intVar(func(c *Config) *int { return &c.Server.Port }),
	"ORACLE_URL":         stringVar(func(c *Config) *string { return &c.Oracle.BackendURL }),
	"ORACLE_MODEL":       stringVar(func(c *Config) *string { return &c.Oracle.Model }),
	"ORACLE_API_KEY":     stringVar(func(c *Config) *string { return &c.Oracle.APIKey }),
	"ORACLE_TIMEOUT":     durationVar(func(c *Config) *time.Duration { return &c.Oracle.Timeout }),
	"INLINE_THRESHOLD":   durationVar(func(c *Config) *time.Duration { return &c.Dispatch.InlineThreshold }),
	"WORKERS":            intVar(func(c *Config) *int { return &c.Dispatch.Workers }),
	"POLL_INTERVAL":      durationVar(func(c *Config) *time.Duration { return &c.Dispatch.PollInterval }),
	"MAX_DEPTH":          intVar(func(c *Config) *int { return &c.Planner.MaxDepth }),
	"HISTORY_TURNS":      intVar(func(c *Config) *int { return &c.Planner.HistoryTurns }),
	"MAX_CHAINS":         intVar(func(c *Config) *int { return &c.Planner.MaxConcurrentChains }),
	"STORAGE":            stringVar(func(c *Config) *string { return &c.Storage.Type }),
	"STORAGE_SIZE":       intVar(func(c *Config) *int { return &c.Storage.MaxSize }),
	"POSTGRES_DSN":       stringVar(func(c *Config) *string { return &c.Storage.Postgres.DSN }),
	"AUTH_TYPE":          stringVar(func(c *Config) *string { return &c.Auth.Type }),
	"JWKS_URL":           stringVar(func(c *Config) *string { return &c.Auth.JWT.JWKSURL }),
	"TRACING_EXPORTER":   stringVar(func(c *Config) *string { return &c.Observability.Tracing.Exporter }),
	"TRACING_ENDPOINT":   stringVar(func(c *Config) *string { return &c.Observability.Tracing.Endpoint }),
	"CAPABILITY_TIMEOUT": durationVar(func(c *Config) *time.Duration { return &c.Capabilities.DefaultTimeout }),
	"SEARXNG_URL":        stringVar(func(c *Config) *string { return &c.Capabilities.Builtin.WebSearch.URL }),
	"API_KEYS":           jsonVar(func(c *Config) any { return &c.Auth.APIKeys }),
	"MCP_SERVERS":        jsonVar(func(c *Config) any { return &c.Capabilities.MCP.Servers }),
}

// applyEnvOverrides applies RELAY_* variables read through getenv.
// Malformed values are reported together.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	var errs []error
	for name, set := range envOverrides {
		v := getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		}
	}
	if v := getenv(EnvPrefix + "TRACING_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTRACING_ENABLED: %w", EnvPrefix, err))
		} else {
			cfg.Observability.Tracing.Enabled = b
		}
	}
	return errors.Join(errs...)
}

func stringVar(field func(*Config) *string) envSetter {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func intVar(field func(*Config) *int) envSetter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) envSetter {
	return func(cfg *Config, v string) error {
		d, err := parseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

func jsonVar(field func(*Config) any) envSetter {
	return func(cfg *Config, v string) error {
		return json.Unmarshal([]byte(v), field(cfg))
	}
}

// parseDuration accepts Go durations and plain seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

type secretRef struct {
	path  string
	file  string
	value *string
}

// resolveFileReferences fills empty secret fields from their _file
// counterparts.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"oracle.api_key_file", cfg.Oracle.APIKeyFile, &cfg.Oracle.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}
	for i := range cfg.Capabilities.MCP.Servers {
		a := &cfg.Capabilities.MCP.Servers[i].Auth
		prefix := fmt.Sprintf("capabilities.mcp.servers[%d].auth.", i)
		refs = append(refs,
			secretRef{prefix + "client_id_file", a.ClientIDFile, &a.ClientID},
			secretRef{prefix + "client_secret_file", a.ClientSecretFile, &a.ClientSecret},
		)
	}

	for _, r := range refs {
		if r.file == "" || *r.value != "" {
			continue
		}
		v, err := readSecretFile(r.file)
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
		*r.value = v
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
