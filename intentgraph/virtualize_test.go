package intentgraph

import "testing"

func seedIntent(s *Storage, id string, status IntentStatus, createdAt int64, edgesTo ...string) {
	edges := make([]Edge, len(edgesTo))
	for i, to := range edgesTo {
		edges[i] = Edge{To: to, Kind: DependsOn}
	}
	_ = s.Put(StorableIntent{
		IntentID:   id,
		Goal:       "goal-" + id,
		Status:     status,
		CreatedAtS: createdAt,
		Edges:      edges,
	})
}

func TestStoragePutGetHasEdge(t *testing.T) {
	s := NewStorage()
	seedIntent(s, "a", Active, 100, "b")
	seedIntent(s, "b", Active, 100)

	got, ok := s.Get("a")
	if !ok || got.Goal != "goal-a" {
		t.Fatalf("Get: ok=%v got=%+v", ok, got)
	}
	if !s.HasEdge("a", "b") {
		t.Fatal("expected edge a->b")
	}
	if s.HasEdge("b", "a") {
		t.Fatal("did not expect edge b->a")
	}
}

func TestDeletePreservesDanglingEdges(t *testing.T) {
	s := NewStorage()
	seedIntent(s, "a", Active, 100, "b")
	seedIntent(s, "b", Completed, 100)

	if !s.Delete("b") {
		t.Fatal("expected b to be deleted")
	}
	if !s.HasEdge("a", "b") {
		t.Fatal("expected edge to a dangling target to remain")
	}
}

func TestCollectNeighborhoodRespectsDepth(t *testing.T) {
	s := NewStorage()
	seedIntent(s, "f", Active, 100, "n1")
	seedIntent(s, "n1", Active, 100, "n2")
	seedIntent(s, "n2", Active, 100, "n3")
	seedIntent(s, "n3", Active, 100)

	depth1 := collectNeighborhood([]string{"f"}, s, 1)
	if len(depth1) != 2 {
		t.Fatalf("expected 2 ids at depth 1, got %d: %v", len(depth1), depth1)
	}
	depth2 := collectNeighborhood([]string{"f"}, s, 2)
	if len(depth2) != 3 {
		t.Fatalf("expected 3 ids at depth 2, got %d: %v", len(depth2), depth2)
	}
}

func TestVirtualizationBoundsNodeCountUnderMax(t *testing.T) {
	s := NewStorage()
	for i := 0; i < 200; i++ {
		id := idFor(i)
		var edgesTo []string
		if i > 0 {
			edgesTo = []string{idFor(i - 1)}
		}
		seedIntent(s, id, Active, int64(i), edgesTo...)
	}

	cfg := DefaultConfig()
	cfg.MaxIntents = 50
	cfg.EnableSummarization = false

	view := CreateVirtualizedView([]string{idFor(0), idFor(50), idFor(100)}, s, cfg, 1000)
	if view.TotalNodeCount() > cfg.MaxIntents {
		t.Fatalf("expected at most %d nodes, got %d", cfg.MaxIntents, view.TotalNodeCount())
	}

	included := make(map[string]bool)
	for _, i := range view.Intents {
		included[i.IntentID] = true
	}
	for _, sum := range view.Summaries {
		for _, id := range sum.IntentIDs {
			included[id] = true
		}
	}
	for _, edge := range view.Edges {
		if !edge.From.IsSummary && !included[edge.From.ID] {
			t.Fatalf("edge references excluded node %q", edge.From.ID)
		}
		if !edge.To.IsSummary && !included[edge.To.ID] {
			t.Fatalf("edge references excluded node %q", edge.To.ID)
		}
	}
}

func TestSummarizationFoldsLargeClusters(t *testing.T) {
	s := NewStorage()
	seedIntent(s, "hub", Active, 1)
	ids := []string{"hub"}
	for i := 0; i < 10; i++ {
		id := idFor(i)
		seedIntent(s, id, Active, int64(i), "hub")
		ids = append(ids, id)
	}

	cfg := DefaultConfig()
	cfg.SummarizationThreshold = 3
	cfg.MaxTokens = 0

	view := CreateVirtualizedView([]string{"hub"}, s, cfg, 100)
	if len(view.Summaries) == 0 {
		t.Fatal("expected the large cluster to be summarized")
	}
	if view.Metadata.CompressionRatio >= 1.0 {
		t.Fatalf("expected compression ratio < 1, got %v", view.Metadata.CompressionRatio)
	}
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < 26 {
		return string(letters[i])
	}
	return string(letters[i%26]) + string(letters[(i/26)%26])
}
