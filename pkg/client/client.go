// Package client is a Go client for the relay HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
)

// Client talks to a relay server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx answer from the server.
type Error struct {
	StatusCode int
	API        *api.APIError
}

func (e *Error) Error() string {
	if e.API == nil {
		return fmt.Sprintf("relay: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("relay: HTTP %d: %s", e.StatusCode, e.API.Error())
}

func (e *Error) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// Capabilities lists the catalog.
func (c *Client) Capabilities(ctx context.Context) ([]api.Capability, error) {
	var list api.CapabilityList
	if err := c.do(ctx, http.MethodGet, "/v1/capabilities", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// Capability returns one catalog entry.
func (c *Client) Capability(ctx context.Context, name string) (*api.Capability, error) {
	var out api.Capability
	if err := c.do(ctx, http.MethodGet, "/v1/capabilities/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoke calls a capability directly. A background invocation returns a
// response whose Async method reports true.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (*api.InvokeResponse, error) {
	var out api.InvokeResponse
	path := "/v1/capabilities/" + url.PathEscape(name) + "/invoke"
	if err := c.do(ctx, http.MethodPost, path, &api.InvokeRequest{Arguments: args}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Task returns a task snapshot.
func (c *Client) Task(ctx context.Context, id string) (*api.Task, error) {
	var out api.Task
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Status     string
	Capability string
	Limit      int
}

// Tasks lists tasks, newest first.
func (c *Client) Tasks(ctx context.Context, f TaskFilter) ([]api.Task, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Capability != "" {
		q.Set("capability", f.Capability)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list api.TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// WaitForCompletion polls a task every interval until it is terminal or
// ctx is done. When ctx ends first, the last snapshot received is returned
// along with ctx's error.
func (c *Client) WaitForCompletion(ctx context.Context, id string, interval time.Duration) (*api.Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last *api.Task
	for {
		t, err := c.Task(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return nil, err
		}
		last = t
		if t.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Chat runs the planner and waits for the reply.
func (c *Client) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	var out api.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatStream runs the planner with streamed events. fn sees every event in
// order; returning an error from fn stops reading. The response carried by
// the terminal event is returned.
func (c *Client) ChatStream(ctx context.Context, req *api.ChatRequest, fn func(api.ChatEvent) error) (*api.ChatResponse, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var ev api.ChatEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("relay: decode event: %w", err)
		}
		if fn != nil {
			if err := fn(ev); err != nil {
				return nil, err
			}
		}
		switch {
		case ev.Type == api.EventError && ev.Error != nil:
			return nil, &Error{StatusCode: http.StatusOK, API: ev.Error}
		case ev.Type.Terminal():
			return ev.Response, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("relay: read stream: %w", err)
	}
	return nil, errors.New("relay: stream ended without a terminal event")
}

// CancelChat stops the running chain of a session.
func (c *Client) CancelChat(ctx context.Context, session string) error {
	return c.do(ctx, http.MethodDelete, "/v1/chat/"+url.PathEscape(session), nil, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("relay: encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("relay: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{StatusCode: resp.StatusCode}
	var body api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(data, &body) == nil && body.Error != nil {
		e.API = body.Error
	}
	return e
}
