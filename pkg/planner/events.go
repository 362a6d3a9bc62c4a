package planner

import (
	"context"

	"github.com/rhuss/relay/pkg/oracle"
)

// Event reports a state transition of a run. Only the fields relevant to
// State are set.
type Event struct {
	State State
	Depth int

	Decision   *oracle.Decision
	Step       *Step
	Assessment *oracle.Assessment
	Reply      string
	Err        error
}

// Observer receives the events of a run in order, from the goroutine
// calling Run.
type Observer interface {
	OnEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// OnEvent calls f(ctx, ev).
func (f ObserverFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }
