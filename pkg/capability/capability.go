// Package capability defines invocable capabilities and the immutable
// Registry that catalogs them.
//
// A Registry is produced by a Builder: descriptors are collected during an
// explicit build phase (from direct registrations and from Sources such as
// built-in providers or MCP servers), after which the Registry is read-only
// and safe for concurrent use without locking.
package capability

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Category classifies a capability by its side effects.
type Category string

const (
	// CategoryAction marks side-effecting capabilities.
	CategoryAction Category = "ACTION"
	// CategoryQuery marks read-only capabilities.
	CategoryQuery Category = "QUERY"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryAction || c == CategoryQuery
}

// DefaultTimeout is the budget assigned to capabilities that declare none.
const DefaultTimeout = 60 * time.Second

// Lane identifies the execution discipline of a handler.
type Lane int

const (
	// LaneBlocking handlers may block an OS thread and run on the bounded
	// worker pool.
	LaneBlocking Lane = iota
	// LaneSuspending handlers cooperate with cancellation and run under the
	// scheduler.
	LaneSuspending
)

func (l Lane) String() string {
	switch l {
	case LaneBlocking:
		return "blocking"
	case LaneSuspending:
		return "suspending"
	default:
		return "unknown"
	}
}

// Handler executes a capability.
type Handler interface {
	Lane() Lane
	Call(ctx context.Context, args map[string]any) (any, error)
}

// BlockingFunc adapts a function to a Handler on the blocking lane.
type BlockingFunc func(ctx context.Context, args map[string]any) (any, error)

// Lane returns LaneBlocking.
func (f BlockingFunc) Lane() Lane { return LaneBlocking }

// Call invokes f.
func (f BlockingFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// SuspendingFunc adapts a function to a Handler on the suspending lane.
// The function must return promptly once ctx is done.
type SuspendingFunc func(ctx context.Context, args map[string]any) (any, error)

// Lane returns LaneSuspending.
func (f SuspendingFunc) Lane() Lane { return LaneSuspending }

// Call invokes f.
func (f SuspendingFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Capability is a registered unit of invocable functionality.
type Capability struct {
	Name        string
	Description string

	// Parameters is a JSON Schema describing the arguments object. An empty
	// value accepts any object.
	Parameters json.RawMessage

	// Timeout is the execution budget. It also decides routing: budgets
	// above the dispatch inline threshold run in the background.
	Timeout time.Duration

	Category Category
	Handler  Handler
}

// Descriptor is the catalog view of a capability.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Timeout     float64         `json:"timeout"`
	Category    Category        `json:"category"`
}

// Descriptor returns the catalog view of c. Timeout is in seconds.
func (c Capability) Descriptor() Descriptor {
	params := c.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object"}`)
	}
	return Descriptor{
		Name:        c.Name,
		Description: c.Description,
		Parameters:  params,
		Timeout:     c.Timeout.Seconds(),
		Category:    c.Category,
	}
}

var queryPrefixes = []string{"list", "get", "read", "search", "find", "query", "describe", "lookup"}

// InferCategory guesses a category from a capability name: names that
// start with a read verb are queries, everything else is an action.
func InferCategory(name string) Category {
	lower := strings.ToLower(name)
	for _, p := range queryPrefixes {
		if lower == p || strings.HasPrefix(lower, p+"_") || strings.HasPrefix(lower, p+"-") {
			return CategoryQuery
		}
	}
	return CategoryAction
}

func (c Capability) clone() Capability {
	if c.Parameters != nil {
		c.Parameters = append(json.RawMessage(nil), c.Parameters...)
	}
	return c
}
