package workingmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/mandubian/ccos-sub014/hosterr"
)

// InMemoryStore is the reference backend: three coherent indices (by_id: a
// hash map; by_time: entries kept sorted on read; by_tag: a multimap) plus
// an optional JSONL persistence sidecar. All mutation happens under a
// single write lock; reads defensively copy before returning.
type InMemoryStore struct {
	mu sync.RWMutex

	byID     map[string]Entry
	byTag    map[string]map[string]bool // tag -> set of entry ids
	totalTok int

	persist *jsonlSidecar
}

// NewInMemoryStore constructs an empty store. path, when non-empty,
// configures a JSONL persistence sidecar; callers invoke Load to replay it.
func NewInMemoryStore(path string) *InMemoryStore {
	s := &InMemoryStore{
		byID:  make(map[string]Entry),
		byTag: make(map[string]map[string]bool),
	}
	if path != "" {
		s.persist = newJSONLSidecar(path)
	}
	return s
}

func (s *InMemoryStore) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return hosterr.New(hosterr.InternalError, "workingmemory: entry id is required")
	}
	cp := cloneEntry(entry)

	s.mu.Lock()
	s.insertLocked(cp)
	s.mu.Unlock()

	if s.persist != nil {
		return s.persist.appendLine(cp)
	}
	return nil
}

// insertLocked must be called with s.mu held for writing.
func (s *InMemoryStore) insertLocked(entry Entry) {
	if old, ok := s.byID[entry.ID]; ok {
		s.removeFromTagIndexLocked(old)
		s.totalTok -= old.ApproxTokens
	}
	s.byID[entry.ID] = entry
	s.totalTok += entry.ApproxTokens
	for _, tag := range entry.Tags {
		ids := s.byTag[tag]
		if ids == nil {
			ids = make(map[string]bool)
			s.byTag[tag] = ids
		}
		ids[entry.ID] = true
	}
}

func (s *InMemoryStore) removeFromTagIndexLocked(entry Entry) {
	for _, tag := range entry.Tags {
		if ids, ok := s.byTag[tag]; ok {
			delete(ids, entry.ID)
			if len(ids) == 0 {
				delete(s.byTag, tag)
			}
		}
	}
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(e), true, nil
}

func (s *InMemoryStore) Query(ctx context.Context, params QueryParams) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidateIDs map[string]bool
	if len(params.TagsAny) > 0 {
		candidateIDs = make(map[string]bool)
		for _, tag := range params.TagsAny {
			for id := range s.byTag[tag] {
				candidateIDs[id] = true
			}
		}
	}

	var out []Entry
	for id, e := range s.byID {
		if candidateIDs != nil && !candidateIDs[id] {
			continue
		}
		if params.FromTS != 0 && e.TimestampS < params.FromTS {
			continue
		}
		if params.ToTS != 0 && e.TimestampS > params.ToTS {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sortByTimestampDesc(out)
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// Prune evicts oldest-first until both maxEntries and maxTokens are
// satisfied (0 means no ceiling for that dimension), updating all indices
// coherently.
func (s *InMemoryStore) Prune(ctx context.Context, maxEntries, maxTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (maxEntries <= 0 || len(s.byID) <= maxEntries) && (maxTokens <= 0 || s.totalTok <= maxTokens) {
		return nil
	}

	ordered := make([]Entry, 0, len(s.byID))
	for _, e := range s.byID {
		ordered = append(ordered, e)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TimestampS < ordered[j].TimestampS })

	for _, e := range ordered {
		overEntries := maxEntries > 0 && len(s.byID) > maxEntries
		overTokens := maxTokens > 0 && s.totalTok > maxTokens
		if !overEntries && !overTokens {
			break
		}
		s.removeFromTagIndexLocked(e)
		delete(s.byID, e.ID)
		s.totalTok -= e.ApproxTokens
	}
	return nil
}

// Load replays the JSONL sidecar in file order; the resulting in-memory
// state equals having applied every line's Append in sequence.
func (s *InMemoryStore) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	entries, err := s.persist.loadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.insertLocked(e)
	}
	return nil
}

// Flush rewrites the sidecar file from the current in-memory state,
// dropping any entries a prior Prune evicted.
func (s *InMemoryStore) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, cloneEntry(e))
	}
	s.mu.RUnlock()
	sortByTimestampDesc(entries)
	return s.persist.rewrite(entries)
}
