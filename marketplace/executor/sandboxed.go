package executor

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

// CommandResolver maps a sandbox tag (for example "process", "firecracker")
// to the binary and base arguments used to launch a capability under it.
// The capability id is appended as the final argument of the resolved
// command; the JSON-encoded argument map is written to its stdin.
type CommandResolver func(sandboxTag string) (path string, baseArgs []string, err error)

// Sandboxed runs Sandboxed-kind capabilities as a one-shot subprocess,
// writing the JSON-encoded argument map to stdin and decoding the result
// from stdout. Grounded on the MCP stdio caller's pipe-and-wait shape,
// simplified to a single request/response exchange per call since a
// Sandboxed capability has no persistent session.
type Sandboxed struct {
	resolve        CommandResolver
	defaultTimeout time.Duration
}

func NewSandboxed(resolve CommandResolver) *Sandboxed {
	return &Sandboxed{resolve: resolve, defaultTimeout: 30 * time.Second}
}

func (s *Sandboxed) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	path, baseArgs, err := s.resolve(m.Provider.SandboxTag)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.SandboxError, "executor: failed to resolve sandbox command", err)
	}

	body, err := value.ToJSON(args)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to encode sandbox request", err)
	}

	timeout := s.defaultTimeout
	if m.Provider.TimeoutMs > 0 {
		timeout = time.Duration(m.Provider.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append(append([]string(nil), baseArgs...), m.ID)
	cmd := exec.CommandContext(ctx, path, cmdArgs...)
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return value.Nil, hosterr.Newf(hosterr.TimeoutError, "executor: sandboxed capability %q timed out", m.ID)
		}
		return value.Nil, hosterr.Newf(hosterr.SandboxError, "executor: sandboxed capability %q failed: %v: %s", m.ID, err, stderr.String())
	}

	if stdout.Len() == 0 {
		return value.Nil, nil
	}

	result, err := value.FromJSON(stdout.Bytes())
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to decode sandbox output", err)
	}
	return result, nil
}
