package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rhuss/relay/pkg/api"
)

// Middleware decorates a ChatHandler. Capability and task routes are plain
// request/response calls and do not pass through it.
type Middleware func(ChatHandler) ChatHandler

// Chain composes middleware so that Chain(a, b)(h) runs a, then b, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(h ChatHandler) ChatHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID returns a context carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewRequestID returns a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID makes sure every chain runs with a request ID. The HTTP adapter
// copies X-Request-ID into the context first, and that value wins.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Chat(ctx, req, w)
		})
	}
}

// Recovery turns a panic anywhere in the chain into a server error for that
// request only.
func Recovery() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) (resp *api.ChatResponse, err error) {
			defer func() {
				if p := recover(); p != nil {
					slog.Error("chat chain panicked",
						"request_id", RequestIDFromContext(ctx),
						"session", req.SessionID,
						"panic", p,
						"stack", string(debug.Stack()))
					resp, err = nil, api.NewServerError(fmt.Sprintf("chat chain failed: %v", p))
				}
			}()
			return next.Chat(ctx, req, w)
		})
	}
}

// Logging writes one entry per chain: the capabilities it invoked in order,
// its final state and depth. Aborted chains log at warn level, handler
// errors at error level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error) {
			start := time.Now()
			resp, err := next.Chat(ctx, req, w)

			session := req.SessionID
			if resp != nil && resp.SessionID != "" {
				session = resp.SessionID
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("session", session),
				slog.Bool("stream", w != nil),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat failed", attrs...)
			case resp != nil:
				attrs = append(attrs,
					slog.String("state", resp.State),
					slog.Int("depth", resp.Depth),
					slog.String("capabilities", invoked(resp.Steps)))
				if resp.State == "ABORTED" {
					attrs = append(attrs, slog.String("reason", resp.Error))
					logger.LogAttrs(ctx, slog.LevelWarn, "chat aborted", attrs...)
				} else {
					logger.LogAttrs(ctx, slog.LevelInfo, "chat completed", attrs...)
				}
			}
			return resp, err
		})
	}
}

func invoked(steps []api.ChatStep) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Capability
	}
	return strings.Join(names, ",")
}

// Admission caps the number of chains running at once. A request that
// arrives while the cap is reached is rejected with too_many_requests
// rather than queued. limit <= 0 disables the cap.
func Admission(limit int) Middleware {
	if limit <= 0 {
		return func(next ChatHandler) ChatHandler { return next }
	}
	sem := semaphore.NewWeighted(int64(limit))
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) (*api.ChatResponse, error) {
			if !sem.TryAcquire(1) {
				return nil, api.NewTooManyRequestsError(fmt.Sprintf("%d chat chains already running", limit))
			}
			defer sem.Release(1)
			return next.Chat(ctx, req, w)
		})
	}
}
