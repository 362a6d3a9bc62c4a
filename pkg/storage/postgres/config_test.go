package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantMax  int32
		wantMin  int32
		wantApp  string
		wantLife time.Duration
		wantErr  string
	}{
		{
			name:     "defaults",
			cfg:      Config{DSN: "postgres://relay@db:5432/relay"},
			wantMax:  10,
			wantMin:  2,
			wantApp:  "relay",
			wantLife: 5 * time.Minute,
		},
		{
			name:     "single connection",
			cfg:      Config{DSN: "postgres://relay@db/relay", MaxConns: 1},
			wantMax:  1,
			wantMin:  1,
			wantApp:  "relay",
			wantLife: 5 * time.Minute,
		},
		{
			name:     "application from DSN",
			cfg:      Config{DSN: "postgres://relay@db/relay?application_name=relay-eu", MaxConns: 4, MinConns: 1, MaxConnLifetime: time.Minute},
			wantMax:  4,
			wantMin:  1,
			wantApp:  "relay-eu",
			wantLife: time.Minute,
		},
		{name: "min above max", cfg: Config{DSN: "postgres://db/relay", MaxConns: 2, MinConns: 3}, wantErr: "exceeds max conns"},
		{name: "bad DSN", cfg: Config{DSN: "postgres://db:notaport/relay"}, wantErr: "parsing DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := tt.cfg.poolConfig()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if pc.MaxConns != tt.wantMax || pc.MinConns != tt.wantMin {
				t.Errorf("conns = %d/%d, want %d/%d", pc.MinConns, pc.MaxConns, tt.wantMin, tt.wantMax)
			}
			if pc.MaxConnLifetime != tt.wantLife {
				t.Errorf("MaxConnLifetime = %s, want %s", pc.MaxConnLifetime, tt.wantLife)
			}
			if got := pc.ConnConfig.RuntimeParams["application_name"]; got != tt.wantApp {
				t.Errorf("application_name = %q, want %q", got, tt.wantApp)
			}
		})
	}
}
