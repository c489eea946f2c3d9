// Package workingmemory implements a bounded, indexed context store: an
// append/get/query/prune backend contract with three coherent indices (by
// id, by time, by tag) plus a JSONL persistence sidecar, and an optional
// MongoDB-backed durable variant. The in-process store follows a
// defensive-copy-on-read, two-level-map discipline generalized from
// per-agent/per-run event logs to per-entry/per-index context entries.
package workingmemory

import "sort"

// Entry is one unit of stored context.
type Entry struct {
	ID           string
	Title        string
	Content      string
	Tags         []string
	TimestampS   int64
	ApproxTokens int
	Meta         map[string]string
}

func cloneEntry(e Entry) Entry {
	cp := e
	cp.Tags = append([]string(nil), e.Tags...)
	if e.Meta != nil {
		cp.Meta = make(map[string]string, len(e.Meta))
		for k, v := range e.Meta {
			cp.Meta[k] = v
		}
	}
	return cp
}

// QueryParams filters a Query call. TagsAny is OR-matched; the time window
// and Limit are applied after the tag filter.
type QueryParams struct {
	TagsAny []string
	FromTS  int64 // 0 = unbounded
	ToTS    int64 // 0 = unbounded
	Limit   int   // 0 = unbounded
}

func sortByTimestampDesc(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimestampS > entries[j].TimestampS
	})
}
