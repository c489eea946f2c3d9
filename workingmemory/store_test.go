package workingmemory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func mustEntry(id string, ts int64, tokens int, tags ...string) Entry {
	return Entry{ID: id, Title: id, Content: "content-" + id, Tags: tags, TimestampS: ts, ApproxTokens: tokens}
}

func TestAppendAndGetRoundTrips(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	if err := s.Append(ctx, mustEntry("a", 10, 5, "topic")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get: %v, ok=%v", err, ok)
	}
	if got.Content != "content-a" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
}

func TestAppendRejectsEmptyID(t *testing.T) {
	s := NewInMemoryStore("")
	if err := s.Append(context.Background(), Entry{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestQueryOrdersDescendingAndAppliesLimit(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	_ = s.Append(ctx, mustEntry("old", 1, 1, "topic"))
	_ = s.Append(ctx, mustEntry("mid", 5, 1, "topic"))
	_ = s.Append(ctx, mustEntry("new", 9, 1, "topic"))

	out, err := s.Query(ctx, QueryParams{TagsAny: []string{"topic"}, Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 2 || out[0].ID != "new" || out[1].ID != "mid" {
		t.Fatalf("unexpected order/limit: %+v", out)
	}
}

func TestQueryTagsAnyIsORSemantics(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	_ = s.Append(ctx, mustEntry("a", 1, 1, "red"))
	_ = s.Append(ctx, mustEntry("b", 2, 1, "blue"))
	_ = s.Append(ctx, mustEntry("c", 3, 1, "green"))

	out, err := s.Query(ctx, QueryParams{TagsAny: []string{"red", "blue"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries matching red or blue, got %d", len(out))
	}
}

func TestQueryTimeWindow(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	_ = s.Append(ctx, mustEntry("a", 1, 1))
	_ = s.Append(ctx, mustEntry("b", 5, 1))
	_ = s.Append(ctx, mustEntry("c", 10, 1))

	out, err := s.Query(ctx, QueryParams{FromTS: 2, ToTS: 9})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b" {
		t.Fatalf("expected only b in window, got %+v", out)
	}
}

func TestPruneEvictsOldestFirstByEntryCount(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	_ = s.Append(ctx, mustEntry("old", 1, 1))
	_ = s.Append(ctx, mustEntry("mid", 2, 1))
	_ = s.Append(ctx, mustEntry("new", 3, 1))

	if err := s.Prune(ctx, 2, 0); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	out, _ := s.Query(ctx, QueryParams{})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries remaining, got %d", len(out))
	}
	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
}

func TestPruneEvictsByTokenBudget(t *testing.T) {
	s := NewInMemoryStore("")
	ctx := context.Background()
	_ = s.Append(ctx, mustEntry("old", 1, 50))
	_ = s.Append(ctx, mustEntry("new", 2, 50))

	if err := s.Prune(ctx, 0, 60); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "old"); ok {
		t.Fatal("expected oldest entry to be evicted under token pressure")
	}
	if _, ok, _ := s.Get(ctx, "new"); !ok {
		t.Fatal("expected newest entry to survive")
	}
}

func TestJSONLSidecarPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	s := NewInMemoryStore(path)
	ctx := context.Background()
	if err := s.Append(ctx, mustEntry("a", 1, 1, "topic")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, mustEntry("b", 2, 1, "topic")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded := NewInMemoryStore(path)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := reloaded.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries replayed from journal, got %d", len(out))
	}
}

func TestJSONLSidecarToleratesBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	content := "{\"id\":\"a\",\"title\":\"a\",\"content\":\"c\",\"tags\":[],\"timestamp_s\":1,\"approx_tokens\":1}\n\n\n{\"id\":\"b\",\"title\":\"b\",\"content\":\"c\",\"tags\":[],\"timestamp_s\":2,\"approx_tokens\":1}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := NewInMemoryStore(path)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := s.Query(context.Background(), QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 entries despite blank lines, got %d", len(out))
	}
}

func TestFlushDropsPrunedEntriesFromJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	ctx := context.Background()

	s := NewInMemoryStore(path)
	_ = s.Append(ctx, mustEntry("old", 1, 1))
	_ = s.Append(ctx, mustEntry("new", 2, 1))
	if err := s.Prune(ctx, 1, 0); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded := NewInMemoryStore(path)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, _ := reloaded.Query(ctx, QueryParams{})
	if len(out) != 1 || out[0].ID != "new" {
		t.Fatalf("expected only surviving entry after flush, got %+v", out)
	}
}
