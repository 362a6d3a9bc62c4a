package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Decision is the vote of an Authenticator.
type Decision int

const (
	// Yes means the credentials are valid. The chain stops.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain means the authenticator does not handle these credentials.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// DefaultTier is the service tier of identities that do not name one.
const DefaultTier = "default"

// AnonymousSubject identifies callers admitted by a permissive chain.
const AnonymousSubject = "anonymous"

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller. Never empty.
	Subject string

	// ServiceTier selects the rate limit.
	ServiceTier string

	// Tenant scopes task visibility. Empty means the shared tenant.
	Tenant string

	// Scopes are the permissions granted to the caller.
	Scopes []string
}

// Tier returns the service tier, or DefaultTier.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return DefaultTier
	}
	return id.ServiceTier
}

// HasScope reports whether the identity was granted scope. The scope "*"
// grants everything.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Scopes, scope) || slices.Contains(id.Scopes, "*")
}

// Authenticator examines the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

// Authenticate calls f(ctx, r).
func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators in order.
type Chain struct {
	Authenticators []Authenticator

	// Default applies when every authenticator abstains. Yes admits the
	// caller as AnonymousSubject; anything else rejects.
	Default Decision
}

// Authenticate returns the first non-abstaining vote, or the default.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{
			Decision: Yes,
			Identity: &Identity{Subject: AnonymousSubject, ServiceTier: DefaultTier},
		}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken extracts the token of a "Bearer" Authorization header.
// ok is false when the header is missing or uses another scheme; a
// present but empty token returns ("", true).
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
