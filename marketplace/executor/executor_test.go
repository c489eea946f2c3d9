package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

func TestLocalExecuteDispatchesRegisteredHandler(t *testing.T) {
	l := NewLocal()
	l.Register("double", func(ctx context.Context, args value.Value) (value.Value, error) {
		return value.Int(args.Vec()[0].Int() * 2), nil
	})
	m := &marketplace.Manifest{ID: "demo.double", Provider: marketplace.Provider{Kind: marketplace.ProviderLocal, HandlerName: "double"}}

	result, err := l.Execute(context.Background(), m, value.Vector([]value.Value{value.Int(21)}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Int() != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
}

func TestLocalExecuteMissingHandlerIsMissingCapability(t *testing.T) {
	l := NewLocal()
	m := &marketplace.Manifest{ID: "demo.nope", Provider: marketplace.Provider{Kind: marketplace.ProviderLocal, HandlerName: "absent"}}
	if _, err := l.Execute(context.Background(), m, value.Nil); hosterr.KindOf(err) != hosterr.MissingCapability {
		t.Fatalf("expected MissingCapability, got %v", err)
	}
}

func TestHTTPExecutePostsArgsAndDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token header, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ex := NewHTTP(nil)
	m := &marketplace.Manifest{
		ID: "demo.http",
		Provider: marketplace.Provider{
			Kind:        marketplace.ProviderHTTP,
			BaseURL:     srv.URL,
			BearerToken: "tok",
		},
	}
	result, err := ex.Execute(context.Background(), m, value.Nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	ok, found := result.MapGet(value.KeywordKey("ok"))
	if !found || !ok.Bool() {
		t.Fatalf("expected {ok: true}, got %v", result)
	}
}

func TestHTTPExecuteNonOKStatusIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	ex := NewHTTP(nil)
	m := &marketplace.Manifest{ID: "demo.http", Provider: marketplace.Provider{Kind: marketplace.ProviderHTTP, BaseURL: srv.URL}}
	if _, err := ex.Execute(context.Background(), m, value.Nil); hosterr.KindOf(err) != hosterr.ProviderError {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestHTTPExecuteMissingBaseURL(t *testing.T) {
	ex := NewHTTP(nil)
	m := &marketplace.Manifest{ID: "demo.http", Provider: marketplace.Provider{Kind: marketplace.ProviderHTTP}}
	if _, err := ex.Execute(context.Background(), m, value.Nil); hosterr.KindOf(err) != hosterr.ProviderError {
		t.Fatalf("expected ProviderError for missing base URL, got %v", err)
	}
}

func TestSandboxedExecuteRunsResolvedCommand(t *testing.T) {
	s := NewSandboxed(func(tag string) (string, []string, error) {
		return "/bin/echo", []string{`{"echoed":true}`}, nil
	})
	m := &marketplace.Manifest{ID: "demo.sandboxed", Provider: marketplace.Provider{Kind: marketplace.ProviderSandboxed, SandboxTag: "process"}}
	result, err := s.Execute(context.Background(), m, value.Nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	echoed, found := result.MapGet(value.KeywordKey("echoed"))
	if !found || !echoed.Bool() {
		t.Fatalf("expected {echoed: true}, got %v", result)
	}
}

func TestAdaptiveRateLimiterWrapsAndBacksOffOnProviderError(t *testing.T) {
	l := NewAdaptiveRateLimiter(600, 600)
	calls := 0
	inner := &fakeExecutor{fn: func() (value.Value, error) {
		calls++
		return value.Nil, hosterr.New(hosterr.ProviderError, "rate limited upstream")
	}}
	wrapped := l.Wrap(inner)

	if _, err := wrapped.Execute(context.Background(), &marketplace.Manifest{ID: "demo.rl"}, value.Nil); err == nil {
		t.Fatalf("expected the provider error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one dispatch to the wrapped executor, got %d", calls)
	}
	l.mu.Lock()
	current := l.currentCPM
	l.mu.Unlock()
	if current >= 600 {
		t.Fatalf("expected backoff to reduce the budget below the max, got %v", current)
	}
}

type fakeExecutor struct {
	fn func() (value.Value, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	return f.fn()
}
