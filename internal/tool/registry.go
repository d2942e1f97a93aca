package tool

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages the catalog's tools with thread-safe access.
//
// A Registry is either a "root" (parent == nil) that owns its tools map, or
// a "view" (parent != nil) overlaying extra or restricted tools on top of a
// parent. Mode Policy masks are not views: WithSubset copies the tools a
// mode's mask allows into a new standalone registry (parent == nil), so an
// OBSERVATION-mode session can never see simulate_buy and the root catalog
// is never changed.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	parent *Registry
	log    zerolog.Logger
}

// NewRegistry creates an empty root tool registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log.With().Str("component", "tool_registry").Logger(),
	}
}

// Register adds a tool to the registry, overwriting any existing entry with
// the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.log.Warn().Str("tool", t.Name()).Msg("overwriting existing tool registration")
	}
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name. View registries check their own overlay
// first, then delegate to the parent.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// List returns all visible tools sorted by name.
func (r *Registry) List() []Tool {
	if r.parent != nil {
		return r.listView()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

func (r *Registry) listView() []Tool {
	parentTools := r.parent.List()

	r.mu.RLock()
	overlay := make(map[string]Tool, len(r.tools))
	for k, v := range r.tools {
		overlay[k] = v
	}
	r.mu.RUnlock()

	result := make([]Tool, 0, len(parentTools)+len(overlay))
	for _, t := range parentTools {
		if _, overridden := overlay[t.Name()]; !overridden {
			result = append(result, t)
		}
	}
	for _, t := range overlay {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Descriptors returns the JSON-schema tool descriptors for everything
// visible in this view, for handing to the reasoner.
func (r *Registry) Descriptors() []Descriptor {
	tools := r.List()
	descs := make([]Descriptor, len(tools))
	for i, t := range tools {
		descs[i] = Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			SideEffect:  t.SideEffect(),
			InputSchema: t.InputSchema(),
		}
	}
	return descs
}

// WithSubset returns a new standalone registry holding only the named tools
// from this registry. Unlike WithExtra-style overlays in the corpus this never
// adds tools, only restricts — the shape Mode Policy needs to mask the
// canonical TRADING superset down to OBSERVATION/STRATEGY_REVIEW/etc.
func (r *Registry) WithSubset(names map[string]bool) *Registry {
	overlay := make(map[string]Tool, len(names))
	for _, t := range r.List() {
		if names[t.Name()] {
			overlay[t.Name()] = t
		}
	}
	return &Registry{tools: overlay, log: r.log}
}
