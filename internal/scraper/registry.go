package scraper

import "github.com/rotisserie/eris"

// Registry maps source names to their adapters. It is constructed once at
// startup and passed to the coordinator; there is no package-level state.
type Registry struct {
	scrapers map[string]Scraper
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scrapers: make(map[string]Scraper),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(s Scraper) {
	name := s.Name()
	if _, exists := r.scrapers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.scrapers[name] = s
}

// Get returns an adapter by source name.
func (r *Registry) Get(name string) (Scraper, error) {
	s, ok := r.scrapers[name]
	if !ok {
		return nil, eris.Errorf("scraper: unknown source %q", name)
	}
	return s, nil
}

// All returns all adapters in registration order.
func (r *Registry) All() []Scraper {
	result := make([]Scraper, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.scrapers[name])
	}
	return result
}

// Names returns all registered source names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
