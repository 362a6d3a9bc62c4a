// Package transport defines the handler contracts and middleware chain
// between the relay HTTP surface and the services behind it.
//
// # Handler Interfaces
//
//   - ChatHandler runs a planner chain for one message and is the primary
//     contract; middleware wraps it.
//   - CapabilityService exposes the catalog and direct invocation.
//   - TaskReader exposes background task snapshots.
//
// The EventWriter interface lets a ChatHandler stream chain events without
// knowing the underlying protocol.
//
// # Middleware
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID) and structured logging via log/slog.
package transport
