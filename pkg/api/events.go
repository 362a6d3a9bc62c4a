package api

// ChatEventType identifies a streamed chain event.
type ChatEventType string

const (
	EventChainStarted      ChatEventType = "chain.started"
	EventChainDeciding     ChatEventType = "chain.deciding"
	EventChainDirectAnswer ChatEventType = "chain.direct_answer"
	EventChainInvoking     ChatEventType = "chain.invoking"
	EventChainAssessing    ChatEventType = "chain.assessing"
	EventChainDone         ChatEventType = "chain.done"
	EventChainAborted      ChatEventType = "chain.aborted"
	EventError             ChatEventType = "error"
)

// Terminal reports whether t ends a stream.
func (t ChatEventType) Terminal() bool {
	return t == EventChainDone || t == EventChainAborted || t == EventError
}

// ChatEvent is one server-sent event of a streamed chat request.
// SequenceNumber increases from 0 within a stream.
type ChatEvent struct {
	Type           ChatEventType  `json:"type"`
	SequenceNumber int            `json:"sequence_number"`
	SessionID      string         `json:"session_id,omitempty"`
	Depth          int            `json:"depth"`
	Capability     string         `json:"capability,omitempty"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
	Step           *ChatStep      `json:"step,omitempty"`
	Reply          string         `json:"reply,omitempty"`
	Response       *ChatResponse  `json:"response,omitempty"`
	Error          *APIError      `json:"error,omitempty"`
}
