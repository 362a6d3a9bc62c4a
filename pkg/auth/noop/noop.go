// Package noop admits every request as the anonymous caller. It backs the
// "none" auth mode.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/relay/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct {
	// Tenant, if set, is assigned to the anonymous identity.
	Tenant string
}

// Authenticate implements auth.Authenticator.
func (a *Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     auth.AnonymousSubject,
			ServiceTier: auth.DefaultTier,
			Tenant:      a.Tenant,
			Scopes:      []string{"*"},
		},
	}
}
