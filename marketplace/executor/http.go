package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

// HTTP dispatches HTTP-kind capabilities as a POST of the JSON-encoded
// argument map to manifest.Provider.BaseURL, decoding the JSON response body
// back into a Value.
type HTTP struct {
	client *http.Client
}

// NewHTTP constructs an HTTP executor. A nil client gets a default
// *http.Client with a generous fallback timeout; a positive per-manifest
// Provider.TimeoutMs adds a shorter per-call deadline but cannot extend a
// call past the client's own timeout.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{client: client}
}

func (h *HTTP) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	if m.Provider.BaseURL == "" {
		return value.Nil, hosterr.New(hosterr.ProviderError, "executor: http provider has no base URL")
	}

	body, err := value.ToJSON(args)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to encode HTTP request body", err)
	}

	if m.Provider.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.Provider.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Provider.BaseURL, bytes.NewReader(body))
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.ProviderError, "executor: failed to build HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Provider.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.Provider.BearerToken)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return value.Nil, hosterr.Wrap(hosterr.TimeoutError, "executor: HTTP request timed out", err)
		}
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: HTTP request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to read HTTP response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return value.Nil, hosterr.Newf(hosterr.ProviderError, "executor: HTTP provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return value.Nil, nil
	}

	result, err := value.FromJSON(respBody)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, fmt.Sprintf("executor: failed to decode HTTP response from %s", m.Provider.BaseURL), err)
	}
	return result, nil
}
