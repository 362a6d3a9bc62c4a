package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUpdateApply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := &Task{ID: "t1", CapabilityName: "render", Status: StatusRunning, CreatedAt: created, UpdatedAt: created}
	now := created.Add(time.Minute)

	next, err := Update{Status: StatusCompleted, Result: json.RawMessage(`{"ok":true}`)}.Apply(base, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Status != StatusCompleted || string(next.Result) != `{"ok":true}` || !next.UpdatedAt.Equal(now) {
		t.Errorf("Apply = %+v", next)
	}
	if base.Status != StatusRunning {
		t.Error("Apply modified the input task")
	}

	if _, err := (Update{Status: StatusFailed}).Apply(next, now); !errors.Is(err, ErrTerminal) {
		t.Errorf("Apply on terminal = %v, want ErrTerminal", err)
	}

	pending := &Task{ID: "t2", Status: StatusPending}
	if _, err := (Update{Status: StatusCompleted}).Apply(pending, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Apply PENDING->COMPLETED = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateApply_RunningIgnoresPayload(t *testing.T) {
	pending := &Task{ID: "t3", Status: StatusPending}
	next, err := Update{Status: StatusRunning, Error: "ignored"}.Apply(pending, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if next.Error != "" {
		t.Errorf("Error = %q, want empty for non-terminal status", next.Error)
	}
}

func TestClone(t *testing.T) {
	orig := &Task{ID: "t", Arguments: map[string]any{"a": 1}, Result: json.RawMessage(`1`)}
	c := orig.Clone()
	c.Arguments["a"] = 2
	c.Result[0] = '2'
	if orig.Arguments["a"] != 1 || string(orig.Result) != "1" {
		t.Errorf("Clone shares state with original: %+v", orig)
	}
}

func TestClone_Nested(t *testing.T) {
	orig := &Task{ID: "t", Arguments: map[string]any{
		"scene": map[string]any{"shots": []any{map[string]any{"n": 1}}},
		"raw":   json.RawMessage(`{}`),
	}}
	c := orig.Clone()
	c.Arguments["scene"].(map[string]any)["shots"].([]any)[0].(map[string]any)["n"] = 2
	c.Arguments["raw"].(json.RawMessage)[0] = '['

	shot := orig.Arguments["scene"].(map[string]any)["shots"].([]any)[0].(map[string]any)
	if shot["n"] != 1 {
		t.Errorf("nested map shared with clone: n = %v", shot["n"])
	}
	if string(orig.Arguments["raw"].(json.RawMessage)) != "{}" {
		t.Errorf("raw argument shared with clone: %s", orig.Arguments["raw"])
	}
	if CloneArguments(nil) != nil {
		t.Error("CloneArguments(nil) should stay nil")
	}
}

func TestAllowedFrom(t *testing.T) {
	got := AllowedFrom(StatusFailed)
	if len(got) != 2 {
		t.Fatalf("AllowedFrom(FAILED) = %v, want PENDING and RUNNING", got)
	}
	if len(AllowedFrom(StatusPending)) != 0 {
		t.Error("PENDING must not be reachable")
	}
}
