package storage

import (
	"context"
	"testing"
)

func TestTenantRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant(background) = %q, want empty", got)
	}

	ctx = SetTenant(ctx, "acme")
	if got := GetTenant(ctx); got != "acme" {
		t.Errorf("GetTenant = %q, want %q", got, "acme")
	}

	ctx = context.WithValue(context.Background(), "tenant", "spoofed")
	if got := GetTenant(ctx); got != "" {
		t.Errorf("GetTenant with string key = %q, want empty", got)
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		owner  string
		want   bool
	}{
		{"single tenant sees all", "", "acme", true},
		{"same tenant", "acme", "acme", true},
		{"other tenant", "acme", "globex", false},
		{"tenant sees no unowned records", "acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.tenant != "" {
				ctx = SetTenant(ctx, tt.tenant)
			}
			if got := Visible(ctx, tt.owner); got != tt.want {
				t.Errorf("Visible = %v, want %v", got, tt.want)
			}
		})
	}
}
