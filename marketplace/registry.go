package marketplace

import (
	"sort"
	"strings"
	"sync"

	"github.com/mandubian/ccos-sub014/hosterr"
)

// Query filters Registry.ListByQuery results.
type Query struct {
	Agent *bool // nil: any; true: agents only; false: capabilities only
	Tags  []string
	Limit int
}

// Registry is the RWMutex-guarded capability manifest store. Capability
// lookups vastly outnumber registrations, so an RWMutex is used rather
// than a plain Mutex.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]*Manifest
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{manifests: make(map[string]*Manifest)}
}

// Register inserts or atomically replaces a manifest by id, after
// validating every refinement predicate in its schemas is applicable to
// its declared base type.
func (r *Registry) Register(m *Manifest) error {
	if m == nil || m.ID == "" {
		return hosterr.New(hosterr.SchemaError, "marketplace: manifest id is required")
	}
	if m.InputSchema != nil {
		if err := checkSchemaWellFormed(*m.InputSchema); err != nil {
			return err
		}
	}
	if m.OutputSchema != nil {
		if err := checkSchemaWellFormed(*m.OutputSchema); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.manifests[m.ID] = &cp
	return nil
}

// Get looks up a manifest by id.
func (r *Registry) Get(id string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.manifests[id]
	return ok
}

// List returns every registered manifest, defensively copied.
func (r *Registry) List() []*Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByQuery filters the registry by agent-ness and required tags, in
// deterministic id order, truncated to q.Limit when positive.
func (r *Registry) ListByQuery(q Query) []*Manifest {
	all := r.List()
	out := make([]*Manifest, 0, len(all))
	for _, m := range all {
		if q.Agent != nil && m.IsAgent() != *q.Agent {
			continue
		}
		if !hasAllTags(m.Tags, q.Tags) {
			continue
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// ListByPrefix returns every manifest whose id starts with prefix.
func (r *Registry) ListByPrefix(prefix string) []*Manifest {
	all := r.List()
	out := make([]*Manifest, 0)
	for _, m := range all {
		if strings.HasPrefix(m.ID, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// Unregister removes a manifest by id; reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.manifests[id]; !ok {
		return false
	}
	delete(r.manifests, id)
	return true
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
