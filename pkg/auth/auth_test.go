package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func vote(d Decision, subject string) Authenticator {
	return AuthenticatorFunc(func(context.Context, *http.Request) Result {
		switch d {
		case Yes:
			return Result{Decision: Yes, Identity: &Identity{Subject: subject}}
		case No:
			return Result{Decision: No, Err: ErrUnauthenticated}
		}
		return Result{Decision: Abstain}
	})
}

func TestChain_Authenticate(t *testing.T) {
	tests := []struct {
		name        string
		chain       Chain
		want        Decision
		wantSubject string
	}{
		{
			name:        "first yes wins",
			chain:       Chain{Authenticators: []Authenticator{vote(Abstain, ""), vote(Yes, "a"), vote(Yes, "b")}},
			want:        Yes,
			wantSubject: "a",
		},
		{
			name:  "no stops chain",
			chain: Chain{Authenticators: []Authenticator{vote(No, ""), vote(Yes, "a")}},
			want:  No,
		},
		{
			name:  "all abstain rejects by default",
			chain: Chain{Authenticators: []Authenticator{vote(Abstain, "")}, Default: No},
			want:  No,
		},
		{
			name:        "all abstain permissive",
			chain:       Chain{Authenticators: []Authenticator{vote(Abstain, "")}, Default: Yes},
			want:        Yes,
			wantSubject: AnonymousSubject,
		},
		{
			name:  "empty chain rejects",
			chain: Chain{Default: Abstain},
			want:  No,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
			if res.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", res.Decision, tt.want)
			}
			if tt.want == Yes && res.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && !errors.Is(res.Err, ErrUnauthenticated) {
				t.Errorf("Err = %v, want ErrUnauthenticated", res.Err)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	var nilID *Identity
	if nilID.Tier() != DefaultTier || nilID.HasScope("chat") {
		t.Error("nil identity should have default tier and no scopes")
	}

	id := &Identity{Subject: "a", ServiceTier: "premium", Scopes: []string{"chat"}}
	if id.Tier() != "premium" {
		t.Errorf("Tier = %q, want %q", id.Tier(), "premium")
	}
	if !id.HasScope("chat") || id.HasScope("capabilities:invoke") {
		t.Errorf("HasScope mismatch for %v", id.Scopes)
	}
	admin := &Identity{Subject: "root", Scopes: []string{"*"}}
	if !admin.HasScope("capabilities:invoke") {
		t.Error("wildcard scope should grant everything")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Bearer ", "", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", tt.header)
			token, ok := BearerToken(r)
			if token != tt.wantToken || ok != tt.wantOK {
				t.Errorf("BearerToken = (%q, %v), want (%q, %v)", token, ok, tt.wantToken, tt.wantOK)
			}
		})
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Fatal("expected nil identity")
	}
	if got := SubjectFromContext(ctx); got != "" {
		t.Errorf("SubjectFromContext = %q, want empty", got)
	}
	id := &Identity{Subject: "a"}
	ctx = WithIdentity(ctx, id)
	if got := IdentityFromContext(ctx); got != id {
		t.Errorf("IdentityFromContext = %v, want %v", got, id)
	}
	if got := SubjectFromContext(ctx); got != "a" {
		t.Errorf("SubjectFromContext = %q, want %q", got, "a")
	}
}

func TestSessionKey(t *testing.T) {
	tests := []struct {
		name     string
		identity *Identity
		want     string
	}{
		{"anonymous", nil, "sess_1"},
		{"authenticated", &Identity{Subject: "alice"}, "alice/sess_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.identity != nil {
				ctx = WithIdentity(ctx, tt.identity)
			}
			if got := SessionKey(ctx, "sess_1"); got != tt.want {
				t.Errorf("SessionKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInProcessLimiter(t *testing.T) {
	l := NewInProcessLimiter(map[string]TierConfig{
		"premium":   {RequestsPerMinute: 3},
		"unlimited": {RequestsPerMinute: 0},
	}, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	premium := &Identity{Subject: "a", ServiceTier: "premium"}
	for i := range 3 {
		if err := l.Allow(ctx, premium); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	now = now.Add(20 * time.Second)
	err := l.Allow(ctx, premium)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("Allow = %v, want ErrTooManyRequests", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 40*time.Second || rl.Tier != "premium" {
		t.Errorf("RateLimitError = %+v", rl)
	}

	// Default tier uses defaultRPM and is counted separately per subject.
	if err := l.Allow(ctx, &Identity{Subject: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(ctx, &Identity{Subject: "b"}); err == nil {
		t.Error("second default-tier request should be limited")
	}
	if err := l.Allow(ctx, &Identity{Subject: "c"}); err != nil {
		t.Errorf("other subject limited: %v", err)
	}

	for range 10 {
		if err := l.Allow(ctx, &Identity{Subject: "d", ServiceTier: "unlimited"}); err != nil {
			t.Fatalf("unlimited tier limited: %v", err)
		}
	}

	// A new window resets the count and prunes stale windows.
	now = now.Add(2 * time.Minute)
	if err := l.Allow(ctx, premium); err != nil {
		t.Errorf("new window: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("Len after prune = %d, want 1", l.Len())
	}
}
