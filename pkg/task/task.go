// Package task models asynchronously dispatched capability invocations and
// the Store contract that tracks them.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/relay/pkg/storage"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses from which to is reachable.
func AllowedFrom(to Status) []Status {
	var out []Status
	for from, tos := range transitions {
		for _, s := range tos {
			if s == to {
				out = append(out, from)
			}
		}
	}
	return out
}

var (
	ErrNotFound          = fmt.Errorf("task %w", storage.ErrNotFound)
	ErrConflict          = fmt.Errorf("task %w", storage.ErrConflict)
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTerminal          = errors.New("task is in a terminal state")
)

// Task is a tracked asynchronous invocation.
type Task struct {
	ID             string          `json:"task_id"`
	CapabilityName string          `json:"capability_name"`
	Arguments      map[string]any  `json:"arguments,omitempty"`
	Status         Status          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	TenantID       string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with t.
func (t *Task) Clone() *Task {
	c := *t
	c.Arguments = CloneArguments(t.Arguments)
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &c
}

// CloneArguments deep-copies decoded JSON arguments. Nested objects and
// arrays are copied too, so the result shares nothing with args.
func CloneArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return CloneArguments(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), v...)
	default:
		return v
	}
}

// Update is a single status change together with its payload. Result and
// Error are recorded only for terminal statuses.
type Update struct {
	Status Status
	Result json.RawMessage
	Error  string
}

// Apply validates u against t's current status and returns the updated
// copy. t itself is not modified.
func (u Update) Apply(t *Task, now time.Time) (*Task, error) {
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: task %s is %s", ErrTerminal, t.ID, t.Status)
	}
	if !CanTransition(t.Status, u.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, u.Status)
	}
	next := t.Clone()
	next.Status = u.Status
	next.UpdatedAt = now
	if u.Status.Terminal() {
		if u.Result != nil {
			next.Result = append(json.RawMessage(nil), u.Result...)
		}
		next.Error = u.Error
	}
	return next, nil
}

// Filter narrows List results.
type Filter struct {
	// Status restricts results to one status. Empty means any.
	Status Status
	// CapabilityName restricts results to one capability. Empty means any.
	CapabilityName string
	// Limit caps the number of results. Zero means the store default.
	Limit int
}

// DefaultListLimit applies when Filter.Limit is zero.
const DefaultListLimit = 100

// Store persists tasks. Implementations must make every Update atomic: a
// snapshot never mixes fields from different writes.
type Store interface {
	// Create records a new PENDING task.
	Create(ctx context.Context, t *Task) error

	// Get returns a snapshot of the task or ErrNotFound.
	Get(ctx context.Context, id string) (*Task, error)

	// Update applies a status transition and returns the new snapshot.
	// It fails with ErrTerminal or ErrInvalidTransition.
	Update(ctx context.Context, id string, u Update) (*Task, error)

	// List returns tasks newest first.
	List(ctx context.Context, f Filter) ([]*Task, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
