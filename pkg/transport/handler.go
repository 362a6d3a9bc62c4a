package transport

import (
	"context"

	"github.com/rhuss/relay/pkg/api"
)

// ChatHandler handles a chat message. When w is non-nil the handler
// streams chain events to it; the returned response is the final outcome
// either way.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error)
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error)

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error) {
	return f(ctx, req, w)
}

// CapabilityService exposes the capability catalog and direct invocation.
type CapabilityService interface {
	// ListCapabilities returns the catalog in registration order.
	ListCapabilities(ctx context.Context) (*api.CapabilityList, error)

	// GetCapability returns one catalog entry or a not_found APIError.
	GetCapability(ctx context.Context, name string) (*api.Capability, error)

	// Invoke runs a capability. Background invocations return a task
	// handle immediately.
	Invoke(ctx context.Context, name string, req *api.InvokeRequest) (*api.InvokeResponse, error)
}

// TaskReader exposes background task snapshots. Reads have no side effects.
type TaskReader interface {
	// GetTask returns a snapshot. Returns an error wrapping
	// storage.ErrNotFound if the task does not exist or belongs to
	// another tenant.
	GetTask(ctx context.Context, id string) (*api.Task, error)

	// ListTasks returns snapshots newest first, optionally filtered by status.
	ListTasks(ctx context.Context, opts ListOptions) (*api.TaskList, error)
}

// ListOptions controls task listings.
type ListOptions struct {
	Status     string // Filter by status (empty: all).
	Capability string // Filter by capability name (empty: all).
	Limit      int    // Maximum number of tasks (default 100).
}

// EventWriter receives streamed chain events.
//
// WriteEvent after a terminal event (chain.done, chain.aborted, error)
// returns an error.
type EventWriter interface {
	WriteEvent(ctx context.Context, event api.ChatEvent) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}

// HealthChecker reports readiness of a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
