package provider

import (
	"errors"
	"fmt"

	"github.com/txn2/drs-resolver/pkg/locator"
)

// ErrUnknownProvider is returned when no definition matches a locator's host.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry is an ordered, read-only list of definitions. It is safe for
// concurrent use.
type Registry struct {
	defs []*Definition
}

// NewRegistry creates a registry. Order is match priority.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("provider %d has no name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate provider %q", d.Name)
		}
		seen[d.Name] = true
		if d.HostPattern == nil {
			return nil, fmt.Errorf("provider %q has no host pattern", d.Name)
		}
	}
	return &Registry{defs: append([]*Definition(nil), defs...)}, nil
}

// Resolve returns the first definition whose host pattern fully matches
// loc's host.
func (r *Registry) Resolve(loc locator.Locator) (*Definition, error) {
	for _, d := range r.defs {
		if d.HostPattern.MatchString(loc.Host) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: could not determine DRS provider for id '%s'", ErrUnknownProvider, loc.String())
}

// Names returns definition names in match order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Definitions returns the definitions in match order.
func (r *Registry) Definitions() []*Definition {
	return append([]*Definition(nil), r.defs...)
}
