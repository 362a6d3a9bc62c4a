package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
)

// Transport names.
const (
	TransportStreamable = "streamable-http"
	TransportSSE        = "sse"
	TransportStdio      = "stdio"
)

// Config describes one MCP server.
type Config struct {
	Name string

	// Transport is TransportStreamable (default), TransportSSE or
	// TransportStdio.
	Transport string

	// URL is the endpoint of the HTTP transports.
	URL     string
	Headers map[string]string

	// Command and Args start the server for the stdio transport.
	Command string
	Args    []string

	// Auth, when set, adds OAuth client credentials to HTTP requests.
	Auth *ClientCredentials

	// Prefix is prepended to every tool name.
	Prefix string

	// Timeout is the budget of tools without an override (default:
	// capability.DefaultTimeout).
	Timeout time.Duration

	// Tools overrides budgets and categories by tool name (unprefixed).
	Tools map[string]capability.Override
}

// Source exposes the tools of one MCP server as capabilities.
type Source struct {
	cfg       Config
	transport mcp.Transport

	mu      sync.Mutex
	session *mcp.ClientSession
}

var _ capability.Source = (*Source)(nil)

// New creates a source for cfg. The connection is made by Capabilities.
func New(cfg Config) (*Source, error) {
	if cfg.Name == "" {
		return nil, errors.New("mcp: server name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = capability.DefaultTimeout
	}
	t, err := newTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", cfg.Name, err)
	}
	return &Source{cfg: cfg, transport: t}, nil
}

// NewWithTransport creates a source connected over t.
func NewWithTransport(cfg Config, t mcp.Transport) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = capability.DefaultTimeout
	}
	return &Source{cfg: cfg, transport: t}
}

func newTransport(cfg Config) (mcp.Transport, error) {
	switch cfg.Transport {
	case "", TransportStreamable:
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg)}, nil
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient(cfg)}, nil
	case TransportStdio:
		if cfg.Command == "" {
			return nil, errors.New("stdio transport needs a command")
		}
		return &mcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func httpClient(cfg Config) *http.Client {
	if len(cfg.Headers) == 0 && cfg.Auth == nil {
		return nil
	}
	return &http.Client{Transport: &headerTransport{
		base:    http.DefaultTransport,
		headers: cfg.Headers,
		tokens:  cfg.Auth,
	}}
}

// Name implements capability.Source.
func (s *Source) Name() string { return "mcp:" + s.cfg.Name }

// Capabilities connects to the server and maps its tools.
func (s *Source) Capabilities(ctx context.Context) ([]capability.Capability, error) {
	session, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	var caps []capability.Capability
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		c, err := s.toCapability(tool)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", tool.Name, err)
		}
		caps = append(caps, c)
	}
	debug.Log("mcp", "discovered tools", "server", s.cfg.Name, "count", len(caps))
	return caps, nil
}

func (s *Source) connect(ctx context.Context) (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "relay", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, s.transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s.session = session
	slog.Info("connected to MCP server", "server", s.cfg.Name, "transport", s.transportName())
	return session, nil
}

func (s *Source) transportName() string {
	if s.cfg.Transport == "" {
		return TransportStreamable
	}
	return s.cfg.Transport
}

// Close ends the session.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

func (s *Source) toCapability(t *mcp.Tool) (capability.Capability, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return capability.Capability{}, fmt.Errorf("marshal input schema: %w", err)
		}
		params = data
	}

	c := capability.Capability{
		Name:        s.cfg.Prefix + t.Name,
		Description: t.Description,
		Parameters:  params,
		Timeout:     s.cfg.Timeout,
		Category:    category(t),
		Handler:     capability.SuspendingFunc(s.caller(t.Name)),
	}
	if o, ok := s.cfg.Tools[t.Name]; ok {
		c = o.Apply(c)
	}
	return c, nil
}

// category prefers the read-only annotation over the name heuristic.
func category(t *mcp.Tool) capability.Category {
	if t.Annotations != nil && t.Annotations.ReadOnlyHint {
		return capability.CategoryQuery
	}
	return capability.InferCategory(t.Name)
}

// ToolError is a tool-level failure reported by the server.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tool %s failed", e.Tool)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

func (s *Source) caller(tool string) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		s.mu.Lock()
		session := s.session
		s.mu.Unlock()
		if session == nil {
			return nil, fmt.Errorf("mcp server %s is not connected", s.cfg.Name)
		}

		ctx, span := observability.StartClientSpan(ctx, "mcp.call_tool",
			observability.AttrMCPServer.String(s.cfg.Name),
			observability.AttrCapability.String(tool),
		)
		defer span.End()

		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("call %s on %s: %w", tool, s.cfg.Name, err)
		}
		out, err := convertResult(tool, res)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

// convertResult returns structured content when present, otherwise the
// joined text content. An empty structured object defers to the text.
func convertResult(tool string, res *mcp.CallToolResult) (any, error) {
	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")
	if res.IsError {
		return nil, &ToolError{Tool: tool, Message: text}
	}
	if sc := res.StructuredContent; sc != nil {
		if m, ok := sc.(map[string]any); !ok || len(m) > 0 || text == "" {
			return sc, nil
		}
	}
	return text, nil
}
