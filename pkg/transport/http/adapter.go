package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/auth"
	"github.com/rhuss/relay/pkg/transport"
)

// Adapter serves the relay API over HTTP.
type Adapter struct {
	chat     transport.ChatHandler
	caps     transport.CapabilityService
	tasks    transport.TaskReader
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// StreamHeartbeat is the idle time after which a chat stream receives
	// a keepalive comment. Zero disables keepalives.
	StreamHeartbeat time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:     1 << 20, // 1 MB
		Validation:      api.DefaultValidationConfig(),
		StreamHeartbeat: 15 * time.Second,
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// ChatHandler in the given order. caps and tasks may be nil, in which case
// their routes answer 501.
func NewAdapter(chat transport.ChatHandler, caps transport.CapabilityService, tasks transport.TaskReader, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		chat = transport.Chain(middlewares...)(chat)
	}

	a := &Adapter{
		chat:     chat,
		caps:     caps,
		tasks:    tasks,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("GET /v1/capabilities", a.handleListCapabilities)
	a.mux.HandleFunc("GET /v1/capabilities/{name}", a.handleGetCapability)
	a.mux.HandleFunc("POST /v1/capabilities/{name}/invoke", a.handleInvoke)
	a.mux.HandleFunc("GET /v1/tasks/{id}", a.handleGetTask)
	a.mux.HandleFunc("GET /v1/tasks", a.handleListTasks)
	a.mux.HandleFunc("POST /v1/chat", a.handleChat)
	a.mux.HandleFunc("DELETE /v1/chat/{session}", a.handleCancelChat)

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware propagates X-Request-ID: an incoming header is
// put into the context, a missing one is generated, and the id is echoed
// in the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	if a.caps == nil {
		notImplemented(w, "capability catalog")
		return
	}
	list, err := a.caps.ListCapabilities(r.Context())
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	if a.caps == nil {
		notImplemented(w, "capability catalog")
		return
	}
	name := r.PathValue("name")
	if !api.ValidateCapabilityName(name) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("name", "malformed capability name"))
		return
	}
	c, err := a.caps.GetCapability(r.Context(), name)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleInvoke handles POST /v1/capabilities/{name}/invoke. Background
// invocations answer 202 with a Location header pointing at the task.
func (a *Adapter) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if a.caps == nil {
		notImplemented(w, "capability invocation")
		return
	}
	name := r.PathValue("name")
	if !api.ValidateCapabilityName(name) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("name", "malformed capability name"))
		return
	}

	var req api.InvokeRequest
	if !a.decodeBody(w, r, &req, true) {
		return
	}
	if apiErr := api.ValidateInvokeRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	resp, err := a.caps.Invoke(r.Context(), name, &req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if resp.Async() {
		w.Header().Set("Location", "/v1/tasks/"+resp.TaskID)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Adapter) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if a.tasks == nil {
		notImplemented(w, "task retrieval")
		return
	}
	id := r.PathValue("id")
	if !api.ValidateTaskID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed task ID"))
		return
	}
	t, err := a.tasks.GetTask(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *Adapter) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if a.tasks == nil {
		notImplemented(w, "task listing")
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	list, err := a.tasks.ListTasks(r.Context(), opts)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleChat handles POST /v1/chat. Clients asking for text/event-stream
// (or passing ?stream=true) receive chain events as SSE.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if !a.decodeBody(w, r, &req, false) {
		return
	}
	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if req.SessionID == "" {
		req.SessionID = api.NewSessionID()
	}

	key := auth.SessionKey(r.Context(), req.SessionID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !a.inflight.Register(key, cancel) {
		transport.WriteAPIError(w, api.NewConflictError("session "+req.SessionID+" already has a running chain"))
		return
	}
	defer a.inflight.Remove(key)

	if !wantsStream(r) {
		resp, err := a.chat.Chat(ctx, &req, nil)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	sw := newSSEWriter(w, a.config.StreamHeartbeat)
	defer sw.close()
	resp, err := a.chat.Chat(ctx, &req, sw)
	switch {
	case err != nil && sw.started():
		sw.WriteEvent(context.Background(), api.ChatEvent{
			Type:      api.EventError,
			SessionID: req.SessionID,
			Error:     transport.AsAPIError(err),
		})
	case err != nil:
		transport.WriteError(w, err)
	case resp != nil && !sw.completed():
		// Handlers that stream nothing still end the stream properly.
		typ := api.EventChainDone
		if resp.State == "ABORTED" {
			typ = api.EventChainAborted
		}
		sw.WriteEvent(context.Background(), api.ChatEvent{Type: typ, SessionID: resp.SessionID, Depth: resp.Depth, Reply: resp.Reply, Response: resp})
	}
}

// handleCancelChat handles DELETE /v1/chat/{session}. Callers can only
// cancel their own chains.
func (a *Adapter) handleCancelChat(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	if !api.ValidateSessionID(session) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("session", "malformed session ID"))
		return
	}
	if !a.inflight.Cancel(auth.SessionKey(r.Context(), session)) {
		transport.WriteAPIError(w, api.NewNotFoundError("no running chain for session "+session))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON request body into dst. An empty body is
// accepted when allowEmpty is set. It writes the error response and
// returns false on failure.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
			http.StatusRequestEntityTooLarge,
		)
		return false
	}
	transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
	return false
}

// parseListOptions extracts task listing filters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		Status:     strings.ToUpper(q.Get("status")),
		Capability: q.Get("capability"),
	}
	if apiErr := api.ValidateTaskStatus(opts.Status); apiErr != nil {
		return opts, apiErr
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}
	return opts, nil
}

func wantsStream(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	return stream
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notImplemented(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available"),
		http.StatusNotImplemented,
	)
}
