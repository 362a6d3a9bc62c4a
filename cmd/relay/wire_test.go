package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/config"
)

func TestBuildRegistry_BuiltinWithOverrides(t *testing.T) {
	cfg := config.Defaults().Capabilities
	cfg.Builtin.Files.Enabled = true
	cfg.Builtin.Files.Root = t.TempDir()
	cfg.Overrides = map[string]config.OverrideConfig{
		"list_dir": {Timeout: 90 * time.Second, Category: "ACTION"},
	}

	reg, err := buildRegistry(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildRegistry() error: %v", err)
	}
	defer reg.Close()

	c, err := reg.Lookup("list_dir")
	if err != nil {
		t.Fatalf("Lookup(list_dir) error: %v", err)
	}
	if c.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", c.Timeout)
	}
	if c.Category != capability.CategoryAction {
		t.Errorf("Category = %q, want ACTION", c.Category)
	}
	if _, err := reg.Lookup("write_file"); err == nil {
		t.Error("write_file registered without writable root")
	}
}

func TestBuildSources_MCP(t *testing.T) {
	cfg := config.Defaults().Capabilities
	cfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "media", URL: "http://localhost:9/mcp"},
		{Name: "local", Transport: "stdio", Command: "mcp-server"},
	}
	sources, err := buildSources(cfg)
	if err != nil {
		t.Fatalf("buildSources() error: %v", err)
	}
	want := []string{"builtin", "mcp:media", "mcp:local"}
	if len(sources) != len(want) {
		t.Fatalf("got %d sources, want %d", len(sources), len(want))
	}
	for i, name := range want {
		if got := sources[i].Name(); got != name {
			t.Errorf("source %d = %q, want %q", i, got, name)
		}
	}
}

func TestBuildAuth(t *testing.T) {
	cfg := config.AuthConfig{
		Type: "apikey",
		APIKeys: []config.APIKeyConfig{
			{Key: "reader-key", Subject: "reader", Scopes: []string{"capabilities:read"}},
			{Key: "writer-key", Subject: "writer", Scopes: []string{"capabilities:invoke"}},
		},
		InvokeScope: "capabilities:invoke",
	}
	mw, err := buildAuth(cfg)
	if err != nil {
		t.Fatalf("buildAuth() error: %v", err)
	}
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"health bypass", http.MethodGet, "/healthz", "", http.StatusOK},
		{"missing key", http.MethodGet, "/v1/capabilities", "", http.StatusUnauthorized},
		{"catalog with reader", http.MethodGet, "/v1/capabilities", "reader-key", http.StatusOK},
		{"invoke with reader", http.MethodPost, "/v1/capabilities/render/invoke", "reader-key", http.StatusForbidden},
		{"invoke with writer", http.MethodPost, "/v1/capabilities/render/invoke", "writer-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBuildAuth_JWTRequiresJWKS(t *testing.T) {
	if _, err := buildAuth(config.AuthConfig{Type: "jwt"}); err == nil {
		t.Fatal("expected error without jwks_url")
	}
}
