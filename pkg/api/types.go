package api

import (
	"encoding/json"
	"time"
)

// ObjectList is the object tag of list envelopes.
const ObjectList = "list"

// Capability is a catalog entry. Timeout is in seconds.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Timeout     float64         `json:"timeout"`
	Category    string          `json:"category"`
}

// CapabilityList is the catalog envelope.
type CapabilityList struct {
	Object string       `json:"object"`
	Data   []Capability `json:"data"`
}

// InvokeRequest is the body of a direct invocation.
type InvokeRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// InvokeResponse reports an invocation. Inline invocations carry Success,
// Result or Error, and ExecutionTime in seconds. Background invocations
// carry only TaskID and Status.
type InvokeResponse struct {
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExecutionTime float64         `json:"execution_time,omitempty"`
	TaskID        string          `json:"task_id,omitempty"`
	Status        string          `json:"status,omitempty"`
}

// Async reports whether the response is a background task handle.
func (r *InvokeResponse) Async() bool { return r.TaskID != "" }

// Task is a background task snapshot.
type Task struct {
	TaskID         string          `json:"task_id"`
	CapabilityName string          `json:"capability_name"`
	Arguments      map[string]any  `json:"arguments,omitempty"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Terminal reports whether the task has finished.
func (t *Task) Terminal() bool {
	return t.Status == "COMPLETED" || t.Status == "FAILED"
}

// TaskList is the task listing envelope, newest first.
type TaskList struct {
	Object string `json:"object"`
	Data   []Task `json:"data"`
}

// ChatRequest asks the planner to handle a message. An empty SessionID
// starts a new session; the reply carries its id.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatStep is one invocation performed while handling a chat request.
type ChatStep struct {
	Capability string          `json:"capability"`
	Arguments  map[string]any  `json:"arguments,omitempty"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	TaskID     string          `json:"task_id,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Duration   float64         `json:"duration,omitempty"`
}

// ChatResponse is the outcome of a planner run. State is DONE or ABORTED;
// Error explains an ABORTED chain.
type ChatResponse struct {
	SessionID string     `json:"session_id"`
	Reply     string     `json:"reply"`
	State     string     `json:"state"`
	Depth     int        `json:"depth"`
	Steps     []ChatStep `json:"steps"`
	Error     string     `json:"error,omitempty"`
}
