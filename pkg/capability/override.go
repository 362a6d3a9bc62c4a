package capability

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Override replaces the budget or category of a capability. Zero fields
// keep the source's value.
type Override struct {
	Timeout  time.Duration
	Category Category
}

// Apply returns c with o applied.
func (o Override) Apply(c Capability) Capability {
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if o.Category != "" {
		c.Category = o.Category
	}
	return c
}

// WithOverrides wraps src so its capabilities get the matching override,
// and defaultTimeout when they declare no budget. The wrapper keeps the
// Close and Collectors behaviour of src.
func WithOverrides(src Source, overrides map[string]Override, defaultTimeout time.Duration) Source {
	return &overrideSource{Source: src, overrides: overrides, defaultTimeout: defaultTimeout}
}

type overrideSource struct {
	Source
	overrides      map[string]Override
	defaultTimeout time.Duration
}

func (s *overrideSource) Capabilities(ctx context.Context) ([]Capability, error) {
	caps, err := s.Source.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	for i, c := range caps {
		if c.Timeout <= 0 && s.defaultTimeout > 0 {
			c.Timeout = s.defaultTimeout
		}
		if o, ok := s.overrides[c.Name]; ok {
			c = o.Apply(c)
		}
		caps[i] = c
	}
	return caps, nil
}

func (s *overrideSource) Close() error {
	if c, ok := s.Source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *overrideSource) Collectors() []prometheus.Collector {
	if cs, ok := s.Source.(CollectorSource); ok {
		return cs.Collectors()
	}
	return nil
}
