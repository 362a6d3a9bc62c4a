package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/client"
)

func TestHealthAndReadiness(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(testEnv.Relay.URL + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Generate at least one invocation so relay metrics are present.
	if _, err := newClient().Invoke(context.Background(), "search", map[string]any{"query": "metrics"}); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	resp, err := http.Get(testEnv.Relay.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "relay_") {
		t.Error("metrics output has no relay_ series")
	}
}

func TestAuthRequired(t *testing.T) {
	_, err := client.New(testEnv.Relay.URL).Capabilities(context.Background())
	var e *client.Error
	if !errors.As(err, &e) || e.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401", err)
	}
}

func TestCatalog(t *testing.T) {
	c := newClient()
	caps, err := c.Capabilities(context.Background())
	if err != nil {
		t.Fatalf("Capabilities() error: %v", err)
	}
	names := map[string]api.Capability{}
	for _, cp := range caps {
		names[cp.Name] = cp
	}
	for _, want := range []string{"search", "render", "explode"} {
		if _, ok := names[want]; !ok {
			t.Errorf("catalog lacks %q", want)
		}
	}
	if got := names["render"].Timeout; got != 10 {
		t.Errorf("render timeout = %v, want 10", got)
	}

	desc, err := c.Capability(context.Background(), "search")
	if err != nil {
		t.Fatalf("Capability() error: %v", err)
	}
	if desc.Category != "QUERY" {
		t.Errorf("Category = %q, want QUERY", desc.Category)
	}

	if _, err := c.Capability(context.Background(), "missing"); !client.IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestInvoke_Inline(t *testing.T) {
	resp, err := newClient().Invoke(context.Background(), "search", map[string]any{"query": "otters"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.Async() {
		t.Fatalf("inline invocation returned task %s", resp.TaskID)
	}
	if !resp.Success || string(resp.Result) != `"results for otters"` {
		t.Errorf("response = %+v", resp)
	}
}

func TestInvoke_Failures(t *testing.T) {
	c := newClient()
	ctx := context.Background()

	_, err := c.Invoke(ctx, "nope", nil)
	if !client.IsNotFound(err) {
		t.Errorf("unknown capability error = %v, want 404", err)
	}

	tests := []struct {
		name string
		cap  string
		args map[string]any
	}{
		{"schema violation", "search", map[string]any{"query": 7}},
		{"missing required", "search", map[string]any{}},
		{"handler panic", "explode", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Invoke(ctx, tt.cap, tt.args)
			if err != nil {
				t.Fatalf("Invoke() error: %v", err)
			}
			if resp.Success || resp.Error == "" || resp.Async() {
				t.Errorf("response = %+v, want failed inline outcome", resp)
			}
		})
	}
}

func TestInvoke_BackgroundTask(t *testing.T) {
	c := newClient()
	ctx := context.Background()

	resp, err := c.Invoke(ctx, "render", map[string]any{"script": "intro"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if !resp.Async() {
		t.Fatalf("render ran inline: %+v", resp)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	task, err := c.WaitForCompletion(waitCtx, resp.TaskID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion() error: %v", err)
	}
	if task.Status != "COMPLETED" || string(task.Result) != `"video.mp4"` {
		t.Errorf("task = %+v", task)
	}

	again, err := c.Task(ctx, resp.TaskID)
	if err != nil {
		t.Fatalf("Task() error: %v", err)
	}
	if again.Status != task.Status || string(again.Result) != string(task.Result) || !again.UpdatedAt.Equal(task.UpdatedAt) {
		t.Errorf("repeated poll differs: %+v vs %+v", again, task)
	}

	tasks, err := c.Tasks(ctx, client.TaskFilter{Status: "COMPLETED", Capability: "render"})
	if err != nil {
		t.Fatalf("Tasks() error: %v", err)
	}
	found := false
	for _, tk := range tasks {
		found = found || tk.TaskID == resp.TaskID
	}
	if !found {
		t.Errorf("task %s missing from listing", resp.TaskID)
	}

	if _, err := c.Task(ctx, "00000000-0000-4000-8000-000000000000"); !client.IsNotFound(err) {
		t.Errorf("unknown task error = %v, want not found", err)
	}
}
