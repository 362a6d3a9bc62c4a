package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/relay/pkg/conversation"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/oracle"
)

// run is the state of a single chain.
type run struct {
	p   *Planner
	req Request
	obs Observer

	context string
	hint    string
	steps   []Step
}

// Run handles one request. It returns an error only when ctx ends before
// the chain does; chain-level failures are reported in Result.Err with
// State ABORTED. obs may be nil.
func (p *Planner) Run(ctx context.Context, req Request, obs Observer) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "planner.run", observability.AttrSessionID.String(req.SessionID))
	defer func() {
		if res != nil {
			span.SetAttributes(observability.AttrChainDepth.Int(res.Depth))
			if res.Err != nil {
				span.SetStatus(codes.Error, res.Err.Error())
			}
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	r := &run{p: p, req: req, obs: obs}
	r.enter(ctx, Event{State: StateInit})
	r.loadContext(ctx)

	res, err = r.loop(ctx)
	if err != nil {
		observability.ChainsTotal.WithLabelValues("CANCELED", "context").Inc()
		return nil, err
	}

	observability.ChainsTotal.WithLabelValues(string(res.State), reason(res.Err)).Inc()
	observability.ChainDepth.Observe(float64(res.Depth))
	r.remember(ctx, res)
	return res, nil
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	cfg := r.p.cfg
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.enter(ctx, Event{State: StateDeciding, Depth: len(r.steps)})
		decision, err := r.p.oracle.Decide(ctx, &oracle.DecideRequest{
			Instruction: r.req.Message,
			Context:     r.context,
			Catalog:     r.p.catalog.Descriptors(),
			Hint:        r.hint,
			Steps:       oracleSteps(r.steps),
		})
		switch {
		case err == nil:
		case errors.Is(err, oracle.ErrMalformed):
			debug.Log(debug.Planner, "unparseable decision, answering directly", "error", err)
			decision = &oracle.Decision{UseCapability: false}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return r.abort(ctx, err, UnavailableReply), nil
		}

		if !decision.UseCapability {
			if len(r.steps) > 0 {
				return r.synthesize(ctx)
			}
			return r.respond(ctx, decision)
		}

		c, err := r.p.catalog.Lookup(decision.CapabilityName)
		if err != nil {
			return r.abort(ctx, &InvalidDecisionError{Name: decision.CapabilityName, Reason: "not in the catalog", Err: err}, InvalidDecisionReply), nil
		}
		if err := r.p.catalog.ValidateArguments(c.Name, decision.Arguments); err != nil {
			return r.abort(ctx, &InvalidDecisionError{Name: c.Name, Reason: err.Error(), Err: err}, InvalidDecisionReply), nil
		}

		r.enter(ctx, Event{State: StateInvoking, Depth: len(r.steps), Decision: decision})
		step, err := r.invoke(ctx, Step{CapabilityName: c.Name, Category: c.Category, Arguments: decision.Arguments})
		if err != nil {
			return nil, err
		}
		r.steps = append(r.steps, step)

		r.enter(ctx, Event{State: StateAssessing, Depth: len(r.steps), Step: &r.steps[len(r.steps)-1]})
		assessment, err := r.p.oracle.Assess(ctx, &oracle.AssessRequest{
			Instruction: r.req.Message,
			Steps:       oracleSteps(r.steps),
		})
		switch {
		case err == nil:
		case errors.Is(err, oracle.ErrMalformed):
			debug.Log(debug.Planner, "unparseable assessment, treating as incomplete", "error", err)
			assessment = &oracle.Assessment{Succeeded: step.Outcome.Success, Complete: false}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return r.abort(ctx, err, UnavailableReply), nil
		}

		if assessment.Complete {
			return r.synthesize(ctx)
		}
		if len(r.steps) >= cfg.MaxDepth {
			return r.abort(ctx, fmt.Errorf("%w: %d invocations", ErrChainDepthExceeded, len(r.steps)), DepthExceededReply), nil
		}
		r.hint = assessment.MissingInfo
		debug.Log(debug.Planner, "chain continues", "depth", len(r.steps), "missing", assessment.MissingInfo)
	}
}

// invoke dispatches one step and waits for async tasks. Failures to
// dispatch are recorded on the step; only context errors are returned.
func (r *run) invoke(ctx context.Context, step Step) (Step, error) {
	start := time.Now()
	out, err := r.p.dispatcher.Invoke(ctx, step.CapabilityName, step.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return step, ctx.Err()
		}
		slog.Warn("dispatch failed", "capability", step.CapabilityName, "error", err)
		step.Outcome = outcomeError(err)
		return step, nil
	}

	if out.Async() {
		debug.Log(debug.Planner, "waiting for task", "capability", step.CapabilityName, "task_id", out.TaskID)
		t, err := r.p.dispatcher.WaitForCompletion(ctx, out.TaskID, r.p.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return step, ctx.Err()
			}
			step.Outcome = outcomeError(err)
			step.Outcome.TaskID = out.TaskID
			return step, nil
		}
		out = outcomeFromTask(t, out.Mode, time.Since(start))
	}
	step.Outcome = out
	return step, nil
}

func (r *run) respond(ctx context.Context, d *oracle.Decision) (*Result, error) {
	r.enter(ctx, Event{State: StateDirectAnswer, Decision: d})
	reply, err := r.p.oracle.Respond(ctx, &oracle.ReplyRequest{
		Instruction: r.req.Message,
		Context:     r.context,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.abort(ctx, err, UnavailableReply), nil
	}
	return r.done(ctx, reply), nil
}

func (r *run) synthesize(ctx context.Context) (*Result, error) {
	reply, err := r.p.oracle.Synthesize(ctx, &oracle.ReplyRequest{
		Instruction: r.req.Message,
		Context:     r.context,
		Steps:       oracleSteps(r.steps),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("synthesis failed, using chain summary", "error", err)
		reply = fallbackSummary(r.steps)
	}
	return r.done(ctx, reply), nil
}

func (r *run) done(ctx context.Context, reply string) *Result {
	r.enter(ctx, Event{State: StateDone, Depth: len(r.steps), Reply: reply})
	return &Result{Reply: reply, State: StateDone, Steps: r.steps, Depth: len(r.steps)}
}

func (r *run) abort(ctx context.Context, err error, reply string) *Result {
	slog.Warn("chain aborted", "session", r.req.SessionID, "depth", len(r.steps), "error", err)
	r.enter(ctx, Event{State: StateAborted, Depth: len(r.steps), Reply: reply, Err: err})
	return &Result{Reply: reply, State: StateAborted, Steps: r.steps, Depth: len(r.steps), Err: err}
}

func (r *run) enter(ctx context.Context, ev Event) {
	debug.Log(debug.Planner, "state", "session", r.req.SessionID, "state", ev.State, "depth", ev.Depth)
	if r.obs != nil {
		r.obs.OnEvent(ctx, ev)
	}
}

func (r *run) loadContext(ctx context.Context) {
	if r.p.memory == nil || r.req.SessionID == "" {
		return
	}
	h, err := r.p.memory.Context(ctx, r.req.SessionID)
	if err != nil {
		slog.Warn("loading conversation context failed", "session", r.req.SessionID, "error", err)
		return
	}
	r.context = h.Render(r.p.cfg.RenderedCalls)
}

func (r *run) remember(ctx context.Context, res *Result) {
	if r.p.memory == nil || r.req.SessionID == "" {
		return
	}
	turn := conversation.Turn{Request: r.req.Message, Reply: res.Reply, At: time.Now()}
	for _, s := range res.Steps {
		c := conversation.Call{CapabilityName: s.CapabilityName, Arguments: s.Arguments, Success: s.Outcome.Success}
		if s.Outcome.Success {
			c.Summary = debug.Truncate(compact(s.Outcome.Result), 200)
		} else {
			c.Summary = debug.Truncate(s.Outcome.Error, 200)
		}
		turn.Calls = append(turn.Calls, c)
	}
	if err := r.p.memory.Append(context.WithoutCancel(ctx), r.req.SessionID, turn); err != nil {
		slog.Warn("saving conversation turn failed", "session", r.req.SessionID, "error", err)
	}
}

func reason(err error) string {
	var invalid *InvalidDecisionError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrChainDepthExceeded):
		return "depth_exceeded"
	case errors.As(err, &invalid):
		return "invalid_decision"
	case errors.Is(err, oracle.ErrUnavailable):
		return "oracle_unavailable"
	default:
		return "error"
	}
}
