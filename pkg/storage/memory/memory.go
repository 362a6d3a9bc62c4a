// Package memory provides an in-memory task.Store. Tasks are lost when the
// process restarts. The store is unbounded unless a maximum size is set, in
// which case only terminal tasks are evicted, oldest first.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/relay/pkg/storage"
	"github.com/rhuss/relay/pkg/task"
)

type entry struct {
	task *task.Task
	elem *list.Element // position in insertion order
}

// Store is an in-memory task store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // front = newest
	maxSize int        // 0 = unlimited

	now func() time.Time
}

var _ task.Store = (*Store)(nil)

// New creates an in-memory store. maxSize 0 means unbounded.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Create stores a copy of t stamped with the context tenant.
func (s *Store) Create(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[t.ID]; exists {
		return fmt.Errorf("%w: %s", task.ErrConflict, t.ID)
	}

	c := t.Clone()
	if c.TenantID == "" {
		c.TenantID = storage.GetTenant(ctx)
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictTerminal()
	}

	s.entries[c.ID] = &entry{task: c, elem: s.order.PushFront(c.ID)}
	return nil
}

// Get returns a snapshot of the task.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.task.TenantID) {
		return nil, task.ErrNotFound
	}
	return e.task.Clone(), nil
}

// Update applies u under the store lock, replacing the stored task in one
// step so readers never observe a partial write.
func (s *Store) Update(ctx context.Context, id string, u task.Update) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !storage.Visible(ctx, e.task.TenantID) {
		return nil, task.ErrNotFound
	}
	next, err := u.Apply(e.task, s.now())
	if err != nil {
		return nil, err
	}
	e.task = next
	return next.Clone(), nil
}

// List returns visible tasks matching f, newest first.
func (s *Store) List(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*task.Task
	for _, e := range s.entries {
		t := e.task
		if !storage.Visible(ctx, t.TenantID) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.CapabilityName != "" && t.CapabilityName != f.CapabilityName {
			continue
		}
		matches = append(matches, t)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = task.DefaultListLimit
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]*task.Task, len(matches))
	for i, t := range matches {
		out[i] = t.Clone()
	}
	return out, nil
}

// Len returns the number of stored tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictTerminal removes the oldest terminal task. Live tasks are never
// evicted, so the store may exceed maxSize while they are in flight.
// Must be called with s.mu held.
func (s *Store) evictTerminal() {
	for el := s.order.Back(); el != nil; el = el.Prev() {
		id := el.Value.(string)
		if s.entries[id].task.Status.Terminal() {
			s.order.Remove(el)
			delete(s.entries, id)
			return
		}
	}
}
