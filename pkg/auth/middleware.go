package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/storage"
	"github.com/rhuss/relay/pkg/transport"
)

// DefaultBypassEndpoints skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// ScopeRule requires Scope for requests matching Method (empty: any) and
// PathPrefix.
type ScopeRule struct {
	Method     string
	PathPrefix string
	Scope      string
}

func (r ScopeRule) matches(req *http.Request) bool {
	if r.Method != "" && r.Method != req.Method {
		return false
	}
	return strings.HasPrefix(req.URL.Path, r.PathPrefix)
}

// Options configures Middleware.
type Options struct {
	// Limiter is optional.
	Limiter RateLimiter

	// Bypass lists exact paths that skip authentication.
	Bypass []string

	// Scopes are checked in order; the first matching rule applies.
	Scopes []ScopeRule
}

// Middleware authenticates requests with chain and stores the identity
// and its tenant in the request context.
func Middleware(chain *Chain, opts Options) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(opts.Bypass))
	for _, ep := range opts.Bypass {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"decision", res.Decision,
					"error", res.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
				return
			}
			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if opts.Limiter != nil {
				if err := opts.Limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Tier())
					observability.RateLimitRejectedTotal.WithLabelValues(id.Tier()).Inc()
					var rl *RateLimitError
					if errors.As(err, &rl) {
						secs := int(math.Ceil(rl.RetryAfter.Seconds()))
						w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
					}
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			for _, rule := range opts.Scopes {
				if !rule.matches(r) {
					continue
				}
				if !id.HasScope(rule.Scope) {
					slog.Warn("missing scope", "subject", id.Subject, "scope", rule.Scope, "path", r.URL.Path)
					transport.WriteErrorResponse(w, &api.APIError{
						Type:    api.ErrorTypeUnauthorized,
						Code:    "insufficient_scope",
						Message: "scope " + rule.Scope + " required",
					}, http.StatusForbidden)
					return
				}
				break
			}

			slog.Debug("authentication succeeded", "subject", id.Subject, "path", r.URL.Path)

			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.SetTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
