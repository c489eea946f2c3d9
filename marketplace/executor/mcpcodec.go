package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"goa.design/pulse/streaming"

	"github.com/mandubian/ccos-sub014/value"
)

func publishJSON(ctx context.Context, stream streaming.Stream, eventName string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventName, err)
	}
	_, err = stream.Add(ctx, eventName, payload)
	return err
}

func decodeJSONEvent(ev *streaming.Event, out any) error {
	return json.Unmarshal(ev.Payload, out)
}

// decodeJSONObject decodes an already-JSON-encoded argument map so it can
// travel inside another envelope (the MCP call message) rather than as the
// whole request body.
func decodeJSONObject(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func mapToValue(m map[string]any) (value.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return value.Nil, err
	}
	return value.FromJSON(raw)
}
