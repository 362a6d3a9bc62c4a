package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/conversation"
	"github.com/rhuss/relay/pkg/dispatch"
	"github.com/rhuss/relay/pkg/oracle"
	"github.com/rhuss/relay/pkg/task"
)

const (
	// DefaultMaxDepth bounds the number of invocations per chain.
	DefaultMaxDepth = 15
	// DefaultPollInterval is how often async tasks are polled.
	DefaultPollInterval = time.Second
)

// Fallback replies used when a chain cannot produce one from the oracle.
const (
	DepthExceededReply   = "The capability chain grew too long and was stopped. Please simplify your request."
	InvalidDecisionReply = "I could not carry out that request: the selected capability is not available."
	UnavailableReply     = "Sorry, the reasoning service is unavailable right now. Please try again later."
)

var (
	// ErrChainDepthExceeded reports a chain stopped at MaxDepth invocations.
	ErrChainDepthExceeded = errors.New("chain depth exceeded")
)

// InvalidDecisionError reports an oracle decision the planner refused to
// execute: an unknown capability or arguments that do not fit its schema.
type InvalidDecisionError struct {
	Name   string
	Reason string
	Err    error
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision for capability %q: %s", e.Name, e.Reason)
}

func (e *InvalidDecisionError) Unwrap() error { return e.Err }

// State is a planner state.
type State string

const (
	StateInit         State = "INIT"
	StateDeciding     State = "DECIDING"
	StateDirectAnswer State = "DIRECT_ANSWER"
	StateInvoking     State = "INVOKING"
	StateAssessing    State = "ASSESSING"
	StateDone         State = "DONE"
	StateAborted      State = "ABORTED"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Dispatcher executes capabilities. *dispatch.Engine implements it.
type Dispatcher interface {
	Invoke(ctx context.Context, name string, args map[string]any) (*dispatch.Outcome, error)
	WaitForCompletion(ctx context.Context, id string, interval time.Duration) (*task.Task, error)
}

// Catalog is the read side of the capability registry.
type Catalog interface {
	Lookup(name string) (capability.Capability, error)
	Descriptors() []capability.Descriptor
	ValidateArguments(name string, args map[string]any) error
}

var (
	_ Dispatcher = (*dispatch.Engine)(nil)
	_ Catalog    = (*capability.Registry)(nil)
)

// Config holds planner settings.
type Config struct {
	// MaxDepth is the maximum number of invocations per chain.
	// Zero or negative means DefaultMaxDepth.
	MaxDepth int

	// PollInterval paces WaitForCompletion on async tasks.
	PollInterval time.Duration

	// RenderedCalls is how many recent capability calls from conversation
	// memory are rendered into the oracle context.
	RenderedCalls int
}

func (c *Config) defaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RenderedCalls <= 0 {
		c.RenderedCalls = conversation.DefaultRenderedCalls
	}
}

// Step is one executed invocation in a chain.
type Step struct {
	CapabilityName string
	Category       capability.Category
	Arguments      map[string]any
	Outcome        *dispatch.Outcome
}

// Request is a single user request handled by Run.
type Request struct {
	SessionID string
	Message   string
}

// Result is the end state of a run. Err is set for ABORTED runs.
type Result struct {
	Reply string
	State State
	Steps []Step
	// Depth is the number of invocations performed.
	Depth int
	Err   error
}

// Planner runs chains. It is safe for concurrent use; each Run owns its
// own chain state.
type Planner struct {
	oracle     oracle.Oracle
	catalog    Catalog
	dispatcher Dispatcher
	memory     conversation.Store
	cfg        Config
}

// New creates a Planner. memory may be nil, in which case runs start
// without context and nothing is remembered.
func New(o oracle.Oracle, catalog Catalog, d Dispatcher, memory conversation.Store, cfg Config) *Planner {
	cfg.defaults()
	return &Planner{
		oracle:     o,
		catalog:    catalog,
		dispatcher: d,
		memory:     memory,
		cfg:        cfg,
	}
}

// Config returns the effective configuration.
func (p *Planner) Config() Config { return p.cfg }

// oracleSteps converts the chain into the oracle's view of it.
func oracleSteps(steps []Step) []oracle.Step {
	out := make([]oracle.Step, len(steps))
	for i, s := range steps {
		out[i] = oracle.Step{
			CapabilityName: s.CapabilityName,
			Category:       s.Category,
			Arguments:      s.Arguments,
			Success:        s.Outcome.Success,
			Result:         s.Outcome.Result,
			Error:          s.Outcome.Error,
		}
	}
	return out
}

// outcomeFromTask folds a finished task into an Outcome.
func outcomeFromTask(t *task.Task, mode dispatch.Mode, waited time.Duration) *dispatch.Outcome {
	return &dispatch.Outcome{
		Success:  t.Status == task.StatusCompleted,
		Result:   t.Result,
		Error:    t.Error,
		Duration: waited,
		TaskID:   t.ID,
		Status:   t.Status,
		Mode:     mode,
	}
}

// fallbackSummary builds a reply from the chain when synthesis fails.
func fallbackSummary(steps []Step) string {
	if len(steps) == 0 {
		return "I could not generate a response."
	}
	last := steps[len(steps)-1]
	if !last.Outcome.Success {
		return fmt.Sprintf("I completed %d step(s) but could not generate a response. The last capability, %s, failed: %s",
			len(steps), last.CapabilityName, last.Outcome.Error)
	}
	return fmt.Sprintf("I completed %d step(s) but could not generate a response. The last capability, %s, returned: %s",
		len(steps), last.CapabilityName, compact(last.Outcome.Result))
}

func compact(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func outcomeError(err error) *dispatch.Outcome {
	return &dispatch.Outcome{Error: err.Error()}
}
