package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/auth"
	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/dispatch"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/task"
	"github.com/rhuss/relay/pkg/transport"
)

// Engine serves the relay API from the dispatch engine and the planner.
type Engine struct {
	dispatcher *dispatch.Engine
	planner    *planner.Planner
}

var (
	_ transport.ChatHandler       = (*Engine)(nil)
	_ transport.CapabilityService = (*Engine)(nil)
	_ transport.TaskReader        = (*Engine)(nil)
)

// New creates an Engine. Neither argument may be nil.
func New(d *dispatch.Engine, p *planner.Planner) (*Engine, error) {
	if d == nil {
		return nil, fmt.Errorf("engine: dispatcher must not be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("engine: planner must not be nil")
	}
	return &Engine{dispatcher: d, planner: p}, nil
}

// ListCapabilities returns the catalog in registration order.
func (e *Engine) ListCapabilities(_ context.Context) (*api.CapabilityList, error) {
	descs := e.dispatcher.Registry().Descriptors()
	list := &api.CapabilityList{Object: api.ObjectList, Data: make([]api.Capability, len(descs))}
	for i, d := range descs {
		list.Data[i] = toAPICapability(d)
	}
	return list, nil
}

// GetCapability returns one catalog entry.
func (e *Engine) GetCapability(_ context.Context, name string) (*api.Capability, error) {
	c, err := e.dispatcher.Registry().Lookup(name)
	if err != nil {
		return nil, capabilityError(name, err)
	}
	out := toAPICapability(c.Descriptor())
	return &out, nil
}

// Invoke runs a capability directly, without the planner.
func (e *Engine) Invoke(ctx context.Context, name string, req *api.InvokeRequest) (*api.InvokeResponse, error) {
	out, err := e.dispatcher.Invoke(ctx, name, req.Arguments)
	if err != nil {
		return nil, capabilityError(name, err)
	}
	return toInvokeResponse(out), nil
}

// GetTask returns a task snapshot.
func (e *Engine) GetTask(ctx context.Context, id string) (*api.Task, error) {
	t, err := e.dispatcher.Poll(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, api.NewNotFoundError("task " + id + " not found")
		}
		return nil, err
	}
	out := toAPITask(t)
	return &out, nil
}

// ListTasks returns task snapshots, newest first.
func (e *Engine) ListTasks(ctx context.Context, opts transport.ListOptions) (*api.TaskList, error) {
	tasks, err := e.dispatcher.Tasks(ctx, task.Filter{
		Status:         task.Status(opts.Status),
		CapabilityName: opts.Capability,
		Limit:          opts.Limit,
	})
	if err != nil {
		return nil, err
	}
	list := &api.TaskList{Object: api.ObjectList, Data: make([]api.Task, len(tasks))}
	for i, t := range tasks {
		list.Data[i] = toAPITask(t)
	}
	return list, nil
}

// Chat runs one planner chain. Chain-level failures are reported in the
// response with state ABORTED; only cancellation is an error. Conversation
// memory is keyed per caller, so the client-visible session ID may repeat
// across callers.
func (e *Engine) Chat(ctx context.Context, req *api.ChatRequest, w transport.EventWriter) (*api.ChatResponse, error) {
	session := req.SessionID
	if session == "" {
		session = api.NewSessionID()
	}

	var obs planner.Observer
	if w != nil {
		obs = newEventStream(session, w)
	}

	res, err := e.planner.Run(ctx, planner.Request{SessionID: auth.SessionKey(ctx, session), Message: req.Message}, obs)
	if err != nil {
		return nil, err
	}
	return toChatResponse(session, res), nil
}

func capabilityError(name string, err error) error {
	switch {
	case errors.Is(err, capability.ErrNotFound):
		return api.NewNotFoundError("capability " + name + " not found")
	case errors.Is(err, dispatch.ErrClosed):
		return api.NewUnavailableError("service is shutting down")
	default:
		return err
	}
}
