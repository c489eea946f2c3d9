// Package executor implements the provider-kind-specific Executors behind
// marketplace.Executor: a process-local handler table, an HTTP client, a
// Pulse-backed MCP session dispatcher, a sandboxed subprocess runner, and a
// remote plan-language delegate, plus a rate-limited wrapper shared by the
// network-facing kinds, following a dispatch-table-of-executors shape. The
// process-local handler runs directly in the calling goroutine; there is no
// worker pool.
package executor

import (
	"context"
	"fmt"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

// LocalHandler is a process-registered function backing a Local-kind
// capability. It receives the already-normalized/validated argument map.
type LocalHandler func(ctx context.Context, args value.Value) (value.Value, error)

// Local dispatches to handlers registered in-process by name, looked up
// through manifest.Provider.HandlerName.
type Local struct {
	handlers map[string]LocalHandler
}

func NewLocal() *Local {
	return &Local{handlers: make(map[string]LocalHandler)}
}

// Register wires name to fn. Re-registering a name replaces the handler.
func (l *Local) Register(name string, fn LocalHandler) {
	l.handlers[name] = fn
}

func (l *Local) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	fn, ok := l.handlers[m.Provider.HandlerName]
	if !ok {
		return value.Nil, hosterr.Newf(hosterr.MissingCapability, "executor: no local handler registered for %q", m.Provider.HandlerName)
	}
	result, err := fn(ctx, args)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.ProviderError, fmt.Sprintf("local handler %q failed", m.Provider.HandlerName), err)
	}
	return result, nil
}
