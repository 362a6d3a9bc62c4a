// Package oracle defines the contract of the external reasoning component
// that picks capabilities and judges their results, together with an
// OpenAI-compatible chat-completions implementation.
//
// Replies for decisions and assessments are validated against one strict
// JSON schema each. Replies that fail validation are reported as
// ErrMalformed; transport failures as ErrUnavailable. Callers apply the
// fallback appropriate to their state.
package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rhuss/relay/pkg/capability"
)

var (
	// ErrUnavailable wraps transport failures talking to the oracle.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrMalformed wraps replies that do not match the expected schema.
	ErrMalformed = errors.New("malformed oracle reply")
)

// Decision is the oracle's choice for the next step of a chain.
type Decision struct {
	UseCapability  bool           `json:"use_capability"`
	CapabilityName string         `json:"capability_name,omitempty"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
	FollowUpHint   string         `json:"follow_up_hint,omitempty"`
}

// Assessment is the oracle's judgement of the chain so far.
type Assessment struct {
	Succeeded   bool   `json:"succeeded"`
	Complete    bool   `json:"complete"`
	Summary     string `json:"summary,omitempty"`
	MissingInfo string `json:"missing_info,omitempty"`
}

// Step is one executed invocation as presented to the oracle.
type Step struct {
	CapabilityName string              `json:"capability_name"`
	Category       capability.Category `json:"category,omitempty"`
	Arguments      map[string]any      `json:"arguments,omitempty"`
	Success        bool                `json:"success"`
	Result         json.RawMessage     `json:"result,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// DecideRequest asks for the next capability to invoke.
type DecideRequest struct {
	Instruction string
	// Context is the rendered conversation history.
	Context string
	Catalog []capability.Descriptor
	// Hint carries missing information reported by the last assessment.
	Hint  string
	Steps []Step
}

// AssessRequest asks whether the chain has satisfied the instruction.
type AssessRequest struct {
	Instruction string
	Steps       []Step
}

// ReplyRequest asks for user-facing text.
type ReplyRequest struct {
	Instruction string
	Context     string
	Steps       []Step
}

// Oracle is the reasoning component consulted by the planner.
type Oracle interface {
	// Decide returns the next decision.
	Decide(ctx context.Context, req *DecideRequest) (*Decision, error)

	// Assess judges the chain after an invocation.
	Assess(ctx context.Context, req *AssessRequest) (*Assessment, error)

	// Respond answers directly without capabilities.
	Respond(ctx context.Context, req *ReplyRequest) (string, error)

	// Synthesize writes the final reply from the chain's results.
	Synthesize(ctx context.Context, req *ReplyRequest) (string, error)
}
