package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Source contributes capabilities during the build phase. Built-in
// providers and MCP servers are sources.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Capabilities returns the descriptors this source contributes.
	Capabilities(ctx context.Context) ([]Capability, error)
}

// CollectorSource is implemented by sources that expose their own
// Prometheus collectors.
type CollectorSource interface {
	Collectors() []prometheus.Collector
}

type entry struct {
	cap    Capability
	schema *jsonschema.Schema
	source string
}

// Builder collects capabilities before the Registry is constructed.
// A Builder is not safe for concurrent use.
type Builder struct {
	entries []*entry
	index   map[string]*entry
	closers []namedCloser
	built   bool
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]*entry)}
}

// Register adds a single capability. It fails with ErrDuplicateName when
// the name is taken, leaving the builder unchanged.
func (b *Builder) Register(c Capability) error {
	if b.built {
		return ErrBuilt
	}
	e, err := b.prepare(c, "")
	if err != nil {
		return err
	}
	b.add(e)
	return nil
}

// AddSource registers every capability of src. Registration is all or
// nothing: if any descriptor is invalid or conflicts with an existing name,
// none of the source's capabilities are added.
func (b *Builder) AddSource(ctx context.Context, src Source) error {
	if b.built {
		return ErrBuilt
	}
	caps, err := src.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}

	batch := make([]*entry, 0, len(caps))
	seen := make(map[string]bool, len(caps))
	for _, c := range caps {
		e, err := b.prepare(c, src.Name())
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name(), err)
		}
		if seen[c.Name] {
			return fmt.Errorf("source %s: %w: %q", src.Name(), ErrDuplicateName, c.Name)
		}
		seen[c.Name] = true
		batch = append(batch, e)
	}
	for _, e := range batch {
		b.add(e)
	}

	if cs, ok := src.(CollectorSource); ok {
		for _, col := range cs.Collectors() {
			if err := prometheus.Register(col); err != nil {
				slog.Debug("collector already registered", "source", src.Name(), "error", err)
			}
		}
	}
	if closer, ok := src.(io.Closer); ok {
		b.closers = append(b.closers, namedCloser{name: src.Name(), c: closer})
	}

	slog.Info("registered capability source", "source", src.Name(), "capabilities", len(batch))
	return nil
}

// Len returns the number of capabilities collected so far.
func (b *Builder) Len() int { return len(b.entries) }

// Build constructs the immutable Registry. The builder cannot be used
// afterwards.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, ErrBuilt
	}
	b.built = true
	r := &Registry{
		entries: b.entries,
		index:   b.index,
		closers: b.closers,
	}
	b.entries, b.index, b.closers = nil, nil, nil
	return r, nil
}

func (b *Builder) prepare(c Capability, source string) (*entry, error) {
	switch {
	case c.Name == "":
		return nil, fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	case c.Handler == nil:
		return nil, fmt.Errorf("%w: %q has no handler", ErrInvalidDescriptor, c.Name)
	case !c.Category.Valid():
		return nil, fmt.Errorf("%w: %q has unknown category %q", ErrInvalidDescriptor, c.Name, c.Category)
	case c.Timeout <= 0:
		return nil, fmt.Errorf("%w: %q has non-positive timeout", ErrInvalidDescriptor, c.Name)
	}
	if _, ok := b.index[c.Name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, c.Name)
	}
	schema, err := compileSchema(c.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDescriptor, c.Name, err)
	}
	return &entry{cap: c.clone(), schema: schema, source: source}, nil
}

func (b *Builder) add(e *entry) {
	b.entries = append(b.entries, e)
	b.index[e.cap.Name] = e
}

// Registry is the immutable capability catalog.
type Registry struct {
	entries []*entry
	index   map[string]*entry
	closers []namedCloser
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, error) {
	e, ok := r.index[name]
	if !ok {
		return Capability{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.cap.clone(), nil
}

// List returns all capabilities in registration order.
func (r *Registry) List() []Capability {
	out := make([]Capability, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.cap.clone()
	}
	return out
}

// Descriptors returns the catalog view in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.cap.clone().Descriptor()
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int { return len(r.entries) }

// ValidateArguments checks args against the parameter schema of the named
// capability.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	e, ok := r.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return validateArgs(e.schema, args)
}

// Close releases sources that hold resources (MCP sessions, clients).
func (r *Registry) Close() error {
	var errs []error
	for _, nc := range r.closers {
		if err := nc.c.Close(); err != nil {
			slog.Warn("failed to close capability source", "source", nc.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}
