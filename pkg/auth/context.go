package auth

import "context"

type identityKey struct{}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// SubjectFromContext returns the caller's subject, or "" when the request
// was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Subject
	}
	return ""
}

// SessionKey scopes a client-chosen chat session ID to the caller, so two
// callers picking the same ID never share conversation memory or cancel
// each other's chains. Unauthenticated requests use the bare ID.
func SessionKey(ctx context.Context, session string) string {
	subject := SubjectFromContext(ctx)
	if subject == "" {
		return session
	}
	return subject + "/" + session
}
