package conversation

import (
	"context"
	"maps"
	"sync"

	"github.com/rhuss/relay/pkg/storage"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store keeping the last maxTurns turns per
// session. Sessions are scoped by the tenant in the context, so two tenants
// using the same session id never see each other's turns.
type Memory struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]Turn
}

// NewMemory creates a Memory. maxTurns <= 0 uses DefaultMaxTurns.
func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Memory{
		maxTurns: maxTurns,
		sessions: make(map[string][]Turn),
	}
}

func sessionKey(ctx context.Context, session string) string {
	return storage.GetTenant(ctx) + "\x00" + session
}

// Context returns a copy of the session's turns.
func (m *Memory) Context(ctx context.Context, session string) (History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := m.sessions[sessionKey(ctx, session)]
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = cloneTurn(t)
	}
	return History{Turns: out}, nil
}

// Append adds a turn, dropping the oldest once the window is full.
func (m *Memory) Append(ctx context.Context, session string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(ctx, session)
	turns := append(m.sessions[key], cloneTurn(turn))
	if len(turns) > m.maxTurns {
		turns = append([]Turn(nil), turns[len(turns)-m.maxTurns:]...)
	}
	m.sessions[key] = turns
	return nil
}

// Forget drops a session's memory.
func (m *Memory) Forget(ctx context.Context, session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(ctx, session))
}

func cloneTurn(t Turn) Turn {
	if t.Calls == nil {
		return t
	}
	calls := make([]Call, len(t.Calls))
	for i, c := range t.Calls {
		c.Arguments = maps.Clone(c.Arguments)
		calls[i] = c
	}
	t.Calls = calls
	return t
}
