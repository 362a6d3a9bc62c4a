// Package auth authenticates callers of the relay HTTP surface.
//
// Authenticators vote on each request: Yes (identity established), No
// (credentials present but invalid) or Abstain (credentials of another
// kind). A Chain asks them in order and falls back to a default decision
// when all abstain.
//
// Middleware runs the chain, enforces per-tier rate limits and scope
// rules, and stores the identity and its tenant in the request context.
// The tenant scopes task visibility in the task store.
package auth
