// Package dispatch routes capability invocations to inline or background
// execution according to each capability's timeout budget.
//
// Budgets at or below the inline threshold run while the caller waits and
// are cut off hard at the budget. Larger budgets become tasks: the task is
// recorded PENDING, execution starts on a background context owned by the
// Engine, and the caller gets the task ID back immediately. Handler errors
// and panics never escape; they are reported as negative outcomes or FAILED
// tasks.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/storage"
	"github.com/rhuss/relay/pkg/task"
)

// Defaults for Config fields left at zero.
const (
	DefaultInlineThreshold = 30 * time.Second
	DefaultWorkers         = 8
	DefaultPollInterval    = time.Second
)

// Config controls routing and execution.
type Config struct {
	// InlineThreshold is the largest timeout budget executed inline.
	InlineThreshold time.Duration

	// Workers bounds concurrently running blocking handlers.
	Workers int

	// PollInterval is the default interval for WaitForCompletion.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.InlineThreshold <= 0 {
		c.InlineThreshold = DefaultInlineThreshold
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Mode is the routing decision for an invocation.
type Mode string

const (
	ModeInline Mode = "inline"
	ModeAsync  Mode = "async"
)

// Outcome is the structured result of Invoke. For async invocations only
// TaskID, Status and Mode are set; the result arrives on the task.
type Outcome struct {
	Success  bool
	Result   json.RawMessage
	Error    string
	Duration time.Duration
	TaskID   string
	Status   task.Status
	Mode     Mode

	causeLabel string
}

// Async reports whether the outcome is a task handle.
func (o *Outcome) Async() bool { return o.TaskID != "" }

// Engine dispatches invocations. It is safe for concurrent use.
type Engine struct {
	registry *capability.Registry
	store    task.Store
	cfg      Config

	pool  *workerPool
	sched scheduler

	// baseCtx parents every background task so tasks outlive the request
	// that submitted them.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	now   func() time.Time
	newID func() string
}

// New creates an Engine over an immutable registry and a task store.
func New(reg *capability.Registry, store task.Store, cfg Config) *Engine {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		registry: reg,
		store:    store,
		cfg:      cfg,
		pool:     newWorkerPool(cfg.Workers),
		baseCtx:  ctx,
		cancel:   cancel,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Registry returns the capability catalog the engine dispatches against.
func (e *Engine) Registry() *capability.Registry { return e.registry }

// Invoke runs the named capability. An unknown name is an error
// (capability.ErrNotFound); everything that goes wrong after lookup is
// reported in the Outcome, except failures to record a background task.
func (e *Engine) Invoke(ctx context.Context, name string, args map[string]any) (*Outcome, error) {
	c, err := e.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	mode := ModeInline
	if c.Timeout > e.cfg.InlineThreshold {
		mode = ModeAsync
	}

	ctx, span := observability.StartSpan(ctx, "dispatch.invoke",
		observability.AttrCapability.String(name),
		observability.AttrMode.String(string(mode)),
	)
	defer span.End()

	debug.Log(debug.Dispatch, "routing invocation", "capability", name, "mode", mode, "budget", c.Timeout)

	if err := e.registry.ValidateArguments(name, args); err != nil {
		observability.InvocationsTotal.WithLabelValues(name, string(mode), "invalid").Inc()
		span.SetStatus(codes.Error, "invalid arguments")
		return &Outcome{Error: err.Error(), Mode: mode}, nil
	}

	if mode == ModeInline {
		out := e.invokeInline(ctx, c, args)
		if !out.Success {
			span.SetStatus(codes.Error, out.Error)
		}
		return out, nil
	}

	out, err := e.invokeAsync(ctx, c, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(observability.AttrTaskID.String(out.TaskID))
	return out, nil
}

func (e *Engine) laneFor(c capability.Capability) lane {
	if c.Handler.Lane() == capability.LaneSuspending {
		return e.sched
	}
	return e.pool
}

func (e *Engine) invokeInline(ctx context.Context, c capability.Capability, args map[string]any) *Outcome {
	start := e.now()
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	fut := e.laneFor(c).submit(callCtx, c.Name, c.Handler, args)

	var (
		v   any
		err error
	)
	select {
	case <-fut.Done():
		v, err = fut.Result()
	case <-callCtx.Done():
		// The handler may keep running; its result is discarded.
		err = callCtx.Err()
	}

	out := e.settle(ctx, callCtx, c, v, err)
	out.Duration = e.now().Sub(start)
	out.Mode = ModeInline
	e.record(c.Name, ModeInline, out)
	return out
}

// settle turns a handler result into an Outcome. parent is the context the
// budget was derived from; callCtx carries the budget.
func (e *Engine) settle(parent, callCtx context.Context, c capability.Capability, v any, err error) *Outcome {
	if err != nil {
		switch {
		case errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
			err = timeoutError(c.Name, c.Timeout)
		case parent.Err() != nil:
			err = fmt.Errorf("capability %q canceled: %w", c.Name, parent.Err())
		}
		return &Outcome{Error: err.Error(), causeLabel: label(err)}
	}

	data, mErr := json.Marshal(v)
	if mErr != nil {
		return &Outcome{Error: fmt.Sprintf("encode result of %q: %v", c.Name, mErr), causeLabel: "error"}
	}
	return &Outcome{Success: true, Result: data, causeLabel: "success"}
}

func (e *Engine) record(name string, mode Mode, out *Outcome) {
	observability.InvocationsTotal.WithLabelValues(name, string(mode), out.causeLabel).Inc()
	observability.InvocationDuration.WithLabelValues(name, string(mode)).Observe(out.Duration.Seconds())
	if !out.Success {
		slog.Warn("capability invocation failed", "capability", name, "mode", mode, "error", out.Error)
	}
}

func label(err error) string {
	var hf *HandlerFailure
	switch {
	case errors.Is(err, ErrTimedOut):
		return "timeout"
	case errors.As(err, &hf) && hf.Panicked:
		return "panic"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func (e *Engine) invokeAsync(ctx context.Context, c capability.Capability, args map[string]any) (*Outcome, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	now := e.now().UTC()
	t := &task.Task{
		ID:             e.newID(),
		CapabilityName: c.Name,
		Arguments:      task.CloneArguments(args),
		Status:         task.StatusPending,
		TenantID:       storage.GetTenant(ctx),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	e.wg.Add(1)
	observability.TasksInflight.Inc()
	go e.run(t, c, trace.LinkFromContext(ctx))

	slog.Info("task submitted", "task_id", t.ID, "capability", c.Name, "budget", c.Timeout)
	return &Outcome{TaskID: t.ID, Status: task.StatusPending, Mode: ModeAsync}, nil
}

// run owns the task from submission to its terminal state. It is the only
// writer of the task record.
func (e *Engine) run(t *task.Task, c capability.Capability, link trace.Link) {
	defer e.wg.Done()
	defer observability.TasksInflight.Dec()

	ctx := storage.SetTenant(e.baseCtx, t.TenantID)
	ctx, span := observability.Tracer().Start(ctx, "dispatch.task",
		trace.WithLinks(link),
		trace.WithAttributes(
			observability.AttrCapability.String(c.Name),
			observability.AttrTaskID.String(t.ID),
		),
	)
	defer span.End()

	// Store writes must land even when the engine is shutting down.
	storeCtx := context.WithoutCancel(ctx)

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	fut := e.laneFor(c).submit(runCtx, c.Name, c.Handler, t.Arguments)

	select {
	case <-fut.Started():
	case <-fut.Done():
	case <-runCtx.Done():
	}

	start := e.now()
	running := false
	if fut.hasStarted() {
		if _, err := e.store.Update(storeCtx, t.ID, task.Update{Status: task.StatusRunning}); err != nil {
			slog.Error("failed to mark task running", "task_id", t.ID, "error", err)
		} else {
			running = true
			debug.Log(debug.Tasks, "task running", "task_id", t.ID, "capability", c.Name)
		}
	}

	var (
		v   any
		err error
	)
	select {
	case <-fut.Done():
		v, err = fut.Result()
	case <-runCtx.Done():
		err = runCtx.Err()
	}

	out := e.settle(ctx, runCtx, c, v, err)
	if errors.Is(ctx.Err(), context.Canceled) && !out.Success {
		out.Error = fmt.Sprintf("capability %q aborted: dispatch engine shut down", c.Name)
	}
	out.Duration = e.now().Sub(start)
	e.record(c.Name, ModeAsync, out)

	u := task.Update{Status: task.StatusCompleted, Result: out.Result}
	if !out.Success {
		u = task.Update{Status: task.StatusFailed, Error: out.Error}
		span.SetStatus(codes.Error, out.Error)
	}
	if !running && u.Status == task.StatusCompleted {
		// Without a RUNNING record the task can only fail.
		u = task.Update{Status: task.StatusFailed, Error: "task state could not be recorded as running"}
	}
	if _, err := e.store.Update(storeCtx, t.ID, u); err != nil {
		slog.Error("failed to record task result", "task_id", t.ID, "status", u.Status, "error", err)
		return
	}
	slog.Info("task finished", "task_id", t.ID, "capability", c.Name, "status", u.Status, "duration", out.Duration)
}

// Poll returns a snapshot of the task. It has no side effects.
func (e *Engine) Poll(ctx context.Context, id string) (*task.Task, error) {
	return e.store.Get(ctx, id)
}

// Tasks lists tasks visible to the caller.
func (e *Engine) Tasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	return e.store.List(ctx, f)
}

// WaitForCompletion polls the task every interval until it reaches a
// terminal state or ctx ends. A non-positive interval uses the configured
// poll interval.
func (e *Engine) WaitForCompletion(ctx context.Context, id string, interval time.Duration) (*task.Task, error) {
	if interval <= 0 {
		interval = e.cfg.PollInterval
	}
	return WaitForCompletion(ctx, e, id, interval)
}

// Poller is anything that can report a task snapshot.
type Poller interface {
	Poll(ctx context.Context, id string) (*task.Task, error)
}

// WaitForCompletion polls p until the task is terminal or ctx ends. When
// ctx ends first, the last snapshot read is returned with ctx's error.
func WaitForCompletion(ctx context.Context, p Poller, id string, interval time.Duration) (*task.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last *task.Task
	for {
		t, err := p.Poll(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return nil, err
		}
		last = t
		if t.Status.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

// HealthCheck reports the task store's health.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}

// Close stops accepting background work and waits for running tasks until
// ctx ends. Tasks still running then are cancelled and recorded FAILED.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
