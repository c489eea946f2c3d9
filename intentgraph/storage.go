package intentgraph

import (
	"sort"
	"sync"

	"github.com/mandubian/ccos-sub014/hosterr"
)

// Storage is the RWMutex-guarded intent store. Reads dominate writes in
// the expected workload (virtualization reads the whole neighborhood on
// every call), so an RWMutex is used rather than a plain Mutex.
type Storage struct {
	mu      sync.RWMutex
	intents map[string]StorableIntent
}

// NewStorage constructs an empty intent store.
func NewStorage() *Storage {
	return &Storage{intents: make(map[string]StorableIntent)}
}

// Put inserts or atomically replaces an intent by id.
func (s *Storage) Put(intent StorableIntent) error {
	if intent.IntentID == "" {
		return hosterr.New(hosterr.SchemaError, "intentgraph: intent id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[intent.IntentID] = cloneIntent(intent)
	return nil
}

// Get looks up an intent by id.
func (s *Storage) Get(id string) (StorableIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.intents[id]
	if !ok {
		return StorableIntent{}, false
	}
	return cloneIntent(i), true
}

// Delete removes an intent by id; reports whether it existed. Edges from
// other intents pointing at id are left in place, since terminal intents
// may still be pointed to.
func (s *Storage) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[id]; !ok {
		return false
	}
	delete(s.intents, id)
	return true
}

// All returns every intent, defensively copied, in deterministic id order.
func (s *Storage) All() []StorableIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StorableIntent, 0, len(s.intents))
	for _, i := range s.intents {
		out = append(out, cloneIntent(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].IntentID < out[b].IntentID })
	return out
}

// HasEdge reports whether a has a directed edge (of any kind) to b.
func (s *Storage) HasEdge(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[a]
	if !ok {
		return false
	}
	for _, e := range intent.Edges {
		if e.To == b {
			return true
		}
	}
	return false
}

// Neighbors returns the ids directly reachable from id via an outgoing
// edge.
func (s *Storage) Neighbors(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil
	}
	out := make([]string, len(intent.Edges))
	for i, e := range intent.Edges {
		out[i] = e.To
	}
	return out
}

// undirectedNeighbors returns ids connected to id by an edge in either
// direction, used for clustering where direction doesn't matter.
func (s *Storage) undirectedNeighbors(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	if intent, ok := s.intents[id]; ok {
		for _, e := range intent.Edges {
			out = append(out, e.To)
		}
	}
	for otherID, intent := range s.intents {
		if otherID == id {
			continue
		}
		for _, e := range intent.Edges {
			if e.To == id {
				out = append(out, otherID)
				break
			}
		}
	}
	return out
}
