package engine

import (
	"context"
	"log/slog"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/transport"
)

// eventStream maps planner events onto chat events. It collects the steps
// it sees so the terminal event can carry the full response.
type eventStream struct {
	session string
	w       transport.EventWriter
	steps   []planner.Step
	failed  bool
}

func newEventStream(session string, w transport.EventWriter) *eventStream {
	return &eventStream{session: session, w: w}
}

var stateEvents = map[planner.State]api.ChatEventType{
	planner.StateInit:         api.EventChainStarted,
	planner.StateDeciding:     api.EventChainDeciding,
	planner.StateDirectAnswer: api.EventChainDirectAnswer,
	planner.StateInvoking:     api.EventChainInvoking,
	planner.StateAssessing:    api.EventChainAssessing,
	planner.StateDone:         api.EventChainDone,
	planner.StateAborted:      api.EventChainAborted,
}

// OnEvent implements planner.Observer. Write failures (usually a gone
// client) stop further writes; the chain itself is not interrupted here.
func (s *eventStream) OnEvent(ctx context.Context, ev planner.Event) {
	if s.failed {
		return
	}
	if err := s.w.WriteEvent(ctx, s.translate(ev)); err != nil {
		slog.Debug("chat event not delivered", "session", s.session, "state", ev.State, "error", err)
		s.failed = true
	}
}

func (s *eventStream) translate(ev planner.Event) api.ChatEvent {
	out := api.ChatEvent{
		Type:      stateEvents[ev.State],
		SessionID: s.session,
		Depth:     ev.Depth,
	}
	if d := ev.Decision; d != nil {
		out.Capability = d.CapabilityName
		out.Arguments = d.Arguments
		out.Rationale = d.Rationale
	}
	if ev.Step != nil {
		s.steps = append(s.steps, *ev.Step)
		step := toChatStep(*ev.Step)
		out.Step = &step
		out.Capability = step.Capability
	}
	if ev.State.Terminal() {
		out.Reply = ev.Reply
		out.Response = toChatResponse(s.session, &planner.Result{
			Reply: ev.Reply,
			State: ev.State,
			Steps: s.steps,
			Depth: ev.Depth,
			Err:   ev.Err,
		})
		if ev.Err != nil {
			out.Error = chainError(ev.Err)
		}
	}
	return out
}
