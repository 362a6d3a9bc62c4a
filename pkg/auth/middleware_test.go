package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/storage"
)

type fixedLimiter struct{ err error }

func (l fixedLimiter) Allow(context.Context, *Identity) error { return l.err }

func tokenAuth(token string, id Identity) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, r *http.Request) Result {
		got, ok := BearerToken(r)
		if !ok {
			return Result{Decision: Abstain}
		}
		if got != token {
			return Result{Decision: No, Err: ErrUnauthenticated}
		}
		return Result{Decision: Yes, Identity: &id}
	})
}

type seen struct {
	identity *Identity
	tenant   string
	called   bool
}

func (s *seen) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.identity = IdentityFromContext(r.Context())
		s.tenant = storage.GetTenant(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var body api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestMiddleware(t *testing.T) {
	chain := &Chain{
		Authenticators: []Authenticator{tokenAuth("good", Identity{Subject: "alice", Tenant: "acme", Scopes: []string{"chat"}})},
		Default:        No,
	}
	opts := Options{
		Bypass: DefaultBypassEndpoints,
		Scopes: []ScopeRule{{Method: http.MethodPost, PathPrefix: "/v1/capabilities/", Scope: "capabilities:invoke"}},
	}

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
		wantType   api.ErrorType
		wantCalled bool
	}{
		{name: "authenticated", method: http.MethodGet, path: "/v1/tasks", token: "good", wantStatus: 204, wantCalled: true},
		{name: "bad token", method: http.MethodGet, path: "/v1/tasks", token: "bad", wantStatus: 401, wantType: api.ErrorTypeUnauthorized},
		{name: "missing token", method: http.MethodGet, path: "/v1/tasks", wantStatus: 401, wantType: api.ErrorTypeUnauthorized},
		{name: "bypass", method: http.MethodGet, path: "/healthz", wantStatus: 204, wantCalled: true},
		{name: "scope missing", method: http.MethodPost, path: "/v1/capabilities/echo/invoke", token: "good", wantStatus: 403, wantType: api.ErrorTypeUnauthorized},
		{name: "scope rule other method", method: http.MethodGet, path: "/v1/capabilities/echo", token: "good", wantStatus: 204, wantCalled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &seen{}
			w := serve(Middleware(chain, opts)(s.handler()), tt.method, tt.path, tt.token)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if s.called != tt.wantCalled {
				t.Errorf("called = %v, want %v", s.called, tt.wantCalled)
			}
			if tt.wantType != "" {
				if got := decodeError(t, w); got.Type != tt.wantType {
					t.Errorf("error type = %q, want %q", got.Type, tt.wantType)
				}
			}
		})
	}
}

func TestMiddleware_InjectsIdentityAndTenant(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{tokenAuth("good", Identity{Subject: "alice", Tenant: "acme"})}}
	s := &seen{}
	serve(Middleware(chain, Options{})(s.handler()), http.MethodGet, "/v1/tasks", "good")
	if s.identity == nil || s.identity.Subject != "alice" {
		t.Fatalf("identity = %+v", s.identity)
	}
	if s.tenant != "acme" {
		t.Errorf("tenant = %q, want %q", s.tenant, "acme")
	}

	// Anonymous callers carry no tenant.
	s = &seen{}
	serve(Middleware(&Chain{Default: Yes}, Options{})(s.handler()), http.MethodGet, "/v1/tasks", "")
	if s.identity == nil || s.identity.Subject != AnonymousSubject || s.tenant != "" {
		t.Errorf("anonymous identity = %+v, tenant %q", s.identity, s.tenant)
	}
}

func TestMiddleware_EmptySubject(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{tokenAuth("good", Identity{})}}
	s := &seen{}
	w := serve(Middleware(chain, Options{})(s.handler()), http.MethodGet, "/", "good")
	if w.Code != http.StatusInternalServerError || s.called {
		t.Errorf("status = %d, called = %v", w.Code, s.called)
	}
}

func TestMiddleware_RateLimited(t *testing.T) {
	chain := &Chain{Default: Yes}
	limiter := fixedLimiter{err: &RateLimitError{Tier: DefaultTier, RetryAfter: 1500 * time.Millisecond}}
	s := &seen{}
	w := serve(Middleware(chain, Options{Limiter: limiter})(s.handler()), http.MethodGet, "/v1/tasks", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}
	if got := decodeError(t, w); got.Type != api.ErrorTypeTooManyRequests {
		t.Errorf("error type = %q", got.Type)
	}
	if s.called {
		t.Error("handler called despite rate limit")
	}
}
