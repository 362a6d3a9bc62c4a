package builtin

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/relay/pkg/capability"
)

// Config selects and configures the built-in capabilities.
type Config struct {
	Files     FilesConfig
	Command   CommandConfig
	WebSearch WebSearchConfig
}

// Source contributes the enabled built-in capabilities.
type Source struct {
	caps       []capability.Capability
	collectors []prometheus.Collector
	files      *fileTools
}

var (
	_ capability.Source          = (*Source)(nil)
	_ capability.CollectorSource = (*Source)(nil)
)

// New builds the source. Disabled tools are left out.
func New(cfg Config) (*Source, error) {
	s := &Source{}
	var errs []error

	if cfg.Files.Enabled {
		ft, err := newFileTools(cfg.Files)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.files = ft
			s.caps = append(s.caps, ft.capabilities()...)
		}
	}
	if cfg.Command.Enabled {
		s.caps = append(s.caps, newCommandRunner(cfg.Command).capability())
	}
	if cfg.WebSearch.Enabled {
		ws, err := newWebSearch(cfg.WebSearch)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.caps = append(s.caps, ws.capability())
			s.collectors = append(s.collectors, ws.queries, ws.results)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Name implements capability.Source.
func (s *Source) Name() string { return "builtin" }

// Capabilities implements capability.Source.
func (s *Source) Capabilities(context.Context) ([]capability.Capability, error) {
	return append([]capability.Capability(nil), s.caps...), nil
}

// Collectors implements capability.CollectorSource.
func (s *Source) Collectors() []prometheus.Collector { return s.collectors }

// Close releases the file root.
func (s *Source) Close() error {
	if s.files != nil {
		return s.files.root.Close()
	}
	return nil
}

// stringArg returns a required string argument. The registry validates
// arguments before dispatch; this guards direct handler use.
func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", errors.New(name + " must be a non-empty string")
	}
	return v, nil
}

const fileTimeout = 3 * time.Second
