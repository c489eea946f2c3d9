package executor

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

// RemotePlan dispatches RemotePlan-kind capabilities: the manifest
// represents a whole plan hosted by a remote orchestrator rather than a
// single function, and invocation posts the call arguments to
// Provider.Endpoint as a delegation rather than a direct capability call.
// The wire shape otherwise matches the HTTP provider's JSON request/
// response contract.
type RemotePlan struct {
	client *http.Client
}

func NewRemotePlan(client *http.Client) *RemotePlan {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RemotePlan{client: client}
}

func (r *RemotePlan) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	if m.Provider.Endpoint == "" {
		return value.Nil, hosterr.New(hosterr.ProviderError, "executor: remote_plan provider has no endpoint")
	}

	envelope := value.NewMapBuilder().
		Set(value.KeywordKey("capability_id"), value.Str(m.ID)).
		Set(value.KeywordKey("args"), args).
		Build()

	body, err := value.ToJSON(envelope)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to encode remote plan delegation envelope", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Provider.Endpoint, bytes.NewReader(body))
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.ProviderError, "executor: failed to build remote plan delegation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return value.Nil, hosterr.Wrap(hosterr.TimeoutError, "executor: remote plan delegation timed out", err)
		}
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: remote plan delegation failed", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to read remote plan response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return value.Nil, hosterr.Newf(hosterr.ProviderError, "executor: remote plan endpoint returned status %d: %s", resp.StatusCode, buf.String())
	}

	if buf.Len() == 0 {
		return value.Nil, nil
	}

	result, err := value.FromJSON(buf.Bytes())
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to decode remote plan response", err)
	}
	return result, nil
}
