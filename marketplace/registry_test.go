package marketplace

import "testing"

func TestRegisterReplacesAtomically(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Manifest{ID: "demo.echo", Name: "Echo", Version: "1.0.0"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Manifest{ID: "demo.echo", Name: "Echo v2", Version: "2.0.0"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m, ok := r.Get("demo.echo")
	if !ok || m.Version != "2.0.0" {
		t.Fatalf("expected the second registration to replace the first, got %+v", m)
	}
}

func TestRegisterRejectsMissingID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Manifest{Name: "no id"}); err == nil {
		t.Fatalf("expected registration without an id to fail")
	}
}

func TestListByQueryFiltersByTagsAndAgent(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Manifest{ID: "a.one", Tags: []string{"io", "file"}})
	_ = r.Register(&Manifest{ID: "a.two", Tags: []string{"io"}})
	_ = r.Register(&Manifest{ID: "a.three", Tags: []string{"net"}, Agent: &AgentMetadata{}})

	onlyIO := r.ListByQuery(Query{Tags: []string{"io"}})
	if len(onlyIO) != 2 {
		t.Fatalf("expected 2 results tagged io, got %d", len(onlyIO))
	}

	isAgent := true
	agents := r.ListByQuery(Query{Agent: &isAgent})
	if len(agents) != 1 || agents[0].ID != "a.three" {
		t.Fatalf("expected only a.three to be an agent, got %+v", agents)
	}
}

func TestListByPrefix(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Manifest{ID: "ccos.io.open-file"})
	_ = r.Register(&Manifest{ID: "ccos.io.read-line"})
	_ = r.Register(&Manifest{ID: "ccos.network.http-fetch"})

	ioOnly := r.ListByPrefix("ccos.io.")
	if len(ioOnly) != 2 {
		t.Fatalf("expected 2 io capabilities, got %d", len(ioOnly))
	}
}

func TestUnregisterReportsExistence(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Manifest{ID: "demo.once"})
	if !r.Unregister("demo.once") {
		t.Fatalf("expected Unregister to report true for an existing id")
	}
	if r.Unregister("demo.once") {
		t.Fatalf("expected Unregister to report false the second time")
	}
}
