// Package conversation keeps the short-term memory the planner consults at
// the start of a chain: a bounded window of recent turns and the capability
// calls made during them, per session.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxTurns is the number of turns kept per session.
	DefaultMaxTurns = 10
	// DefaultRenderedCalls is the number of recent calls rendered into
	// oracle context.
	DefaultRenderedCalls = 5
)

// Call records one capability invocation made during a turn.
type Call struct {
	CapabilityName string         `json:"capability_name"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Success        bool           `json:"success"`
	// Summary is a short rendering of the result or error.
	Summary string `json:"summary,omitempty"`
}

// Turn is one request/reply exchange.
type Turn struct {
	Request string    `json:"request"`
	Reply   string    `json:"reply"`
	Calls   []Call    `json:"calls,omitempty"`
	At      time.Time `json:"at"`
}

// History is the memory of a session, oldest first.
type History struct {
	Turns []Turn
}

// Calls returns every recorded call across the turns, oldest first.
func (h History) Calls() []Call {
	var calls []Call
	for _, t := range h.Turns {
		calls = append(calls, t.Calls...)
	}
	return calls
}

// Render formats the history as oracle context: the turns followed by the
// last maxCalls capability calls. An empty history renders as "".
func (h History) Render(maxCalls int) string {
	if len(h.Turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range h.Turns {
		fmt.Fprintf(&b, "user: %s\nassistant: %s\n", t.Request, t.Reply)
	}

	calls := h.Calls()
	if maxCalls > 0 && len(calls) > maxCalls {
		calls = calls[len(calls)-maxCalls:]
	}
	if maxCalls > 0 && len(calls) > 0 {
		b.WriteString("\nRecent capability calls:\n")
		for _, c := range calls {
			args, _ := json.Marshal(c.Arguments)
			outcome := "ok"
			if !c.Success {
				outcome = "failed"
			}
			fmt.Fprintf(&b, "- %s %s -> %s", c.CapabilityName, args, outcome)
			if c.Summary != "" {
				fmt.Fprintf(&b, ": %s", c.Summary)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Store is the conversation memory contract.
type Store interface {
	// Context returns the session's history. Unknown sessions yield an
	// empty history, not an error.
	Context(ctx context.Context, session string) (History, error)

	// Append records a finished turn.
	Append(ctx context.Context, session string, turn Turn) error
}
