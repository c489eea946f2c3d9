package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/telemetry"
	"github.com/mandubian/ccos-sub014/value"
)

// PulseClient is the subset of goa.design/pulse's streaming client an MCP
// executor needs: opening a named stream for publish and subscribe.
type PulseClient interface {
	Stream(id string) (streaming.Stream, error)
}

// mcpCallMessage is the wire envelope published onto an MCP server's
// request stream.
type mcpCallMessage struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Args     map[string]any  `json:"args"`
}

// mcpResultMessage is the wire envelope a server publishes back on the
// per-call result stream.
type mcpResultMessage struct {
	CallID string         `json:"call_id"`
	Result map[string]any `json:"result"`
	Error  string         `json:"error,omitempty"`
}

// mcpRequestStreamID addresses a server's inbound request stream;
// mcpResultStreamID addresses the short-lived per-call result stream.
func mcpRequestStreamID(serverName string) string { return "mcp.server." + serverName + ".calls" }
func mcpResultStreamID(callID string) string      { return "mcp.call." + callID + ".result" }

// MCP dispatches MCP-kind capabilities by publishing a call envelope onto
// the target server's request stream and awaiting the matching result on a
// per-call result stream: a call is routed asynchronously and its result is
// recovered out-of-band rather than over a synchronous RPC.
type MCP struct {
	pulse    PulseClient
	sinkName string
	logger   telemetry.Logger
	tracer   telemetry.Tracer

	nextID uint64
	mu     sync.Mutex
}

// MCPOption configures an MCP executor.
type MCPOption func(*MCP)

func WithMCPSinkName(name string) MCPOption {
	return func(m *MCP) { m.sinkName = name }
}

func WithMCPLogger(logger telemetry.Logger) MCPOption {
	return func(m *MCP) { m.logger = logger }
}

func WithMCPTracer(tracer telemetry.Tracer) MCPOption {
	return func(m *MCP) { m.tracer = tracer }
}

func NewMCP(pulse PulseClient, opts ...MCPOption) *MCP {
	m := &MCP{
		pulse:    pulse,
		sinkName: "ccos-executor",
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		if o != nil {
			o(m)
		}
	}
	return m
}

func (m *MCP) nextCallID(serverName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("%s-%d-%d", serverName, time.Now().UnixNano(), m.nextID)
}

func (m *MCP) Execute(ctx context.Context, manifest *marketplace.Manifest, args value.Value) (value.Value, error) {
	if manifest.Provider.ServerName == "" || manifest.Provider.ToolName == "" {
		return value.Nil, hosterr.New(hosterr.ProviderError, "executor: mcp provider missing server or tool name")
	}

	ctx, span := m.tracer.Start(ctx, "executor.mcp.execute")
	defer span.End()

	argsJSON, err := value.ToJSON(args)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: failed to encode mcp call args", err)
	}
	argsMap, err := decodeJSONObject(argsJSON)
	if err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TypeMismatch, "executor: mcp call args must be a map", err)
	}

	callID := m.nextCallID(manifest.Provider.ServerName)
	requestStreamID := mcpRequestStreamID(manifest.Provider.ServerName)
	resultStreamID := mcpResultStreamID(callID)

	requestStream, err := m.pulse.Stream(requestStreamID)
	if err != nil {
		span.RecordError(err)
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to open mcp request stream", err)
	}

	resultStream, err := m.pulse.Stream(resultStreamID)
	if err != nil {
		span.RecordError(err)
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to open mcp result stream", err)
	}
	sink, err := resultStream.NewSink(ctx, m.sinkName, streamopts.WithSinkStartAtOldest())
	if err != nil {
		span.RecordError(err)
		m.logger.Error(ctx, "mcp result sink create failed", "server", manifest.Provider.ServerName, "tool", manifest.Provider.ToolName, "call_id", callID, "err", err)
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to create mcp result sink", err)
	}
	defer sink.Close(ctx)

	call := mcpCallMessage{CallID: callID, ToolName: manifest.Provider.ToolName, Args: argsMap}
	if err := publishJSON(ctx, requestStream, "call", call); err != nil {
		span.RecordError(err)
		return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to publish mcp call", err)
	}

	events := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return value.Nil, hosterr.Wrap(hosterr.TimeoutError, "executor: mcp call canceled while waiting for result", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return value.Nil, hosterr.New(hosterr.NetworkError, "executor: mcp result stream subscription closed")
			}
			var msg mcpResultMessage
			if err := decodeJSONEvent(ev, &msg); err != nil {
				_ = sink.Ack(ctx, ev)
				continue
			}
			if msg.CallID != callID {
				_ = sink.Ack(ctx, ev)
				continue
			}
			if err := sink.Ack(ctx, ev); err != nil {
				return value.Nil, hosterr.Wrap(hosterr.NetworkError, "executor: failed to ack mcp result", err)
			}
			if msg.Error != "" {
				return value.Nil, hosterr.New(hosterr.ProviderError, "executor: mcp server reported: "+msg.Error)
			}
			return mapToValue(msg.Result)
		}
	}
}
