package agent

import (
	"fmt"
	"sort"
)

// Set is an immutable collection of engines addressed by name.
type Set struct {
	engines map[string]*Engine
}

// NewSet builds a Set. Engine names must be non-empty and unique.
func NewSet(engines ...*Engine) (*Set, error) {
	s := &Set{engines: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		if e.name == "" {
			return nil, fmt.Errorf("engine has no name")
		}
		if _, dup := s.engines[e.name]; dup {
			return nil, fmt.Errorf("duplicate engine name %q", e.name)
		}
		s.engines[e.name] = e
	}
	return s, nil
}

// Get returns the engine with the given name.
func (s *Set) Get(name string) (*Engine, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.engines[name]
	return e, ok
}

// Names returns the engine names in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
