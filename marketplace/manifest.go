// Package marketplace implements the capability marketplace: a
// registry of capability manifests, argument normalization for
// map-schema capabilities, and the execute/execute_with_validation_config
// contract that dispatches to a provider and validates at the boundary.
// Built around an RWMutex-guarded map with replace-not-mutate semantics
// and tag/query filtering, generalized from toolset registration to
// capability manifest registration.
package marketplace

import "github.com/mandubian/ccos-sub014/value"

// ProviderKind tags the variant of a capability's execution provider.
type ProviderKind int

const (
	ProviderLocal ProviderKind = iota
	ProviderHTTP
	ProviderMCP
	ProviderSandboxed
	ProviderRemotePlan
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderLocal:
		return "local"
	case ProviderHTTP:
		return "http"
	case ProviderMCP:
		return "mcp"
	case ProviderSandboxed:
		return "sandboxed"
	case ProviderRemotePlan:
		return "remote_plan"
	default:
		return "unknown"
	}
}

// Provider is the tagged descriptor of how a capability is executed. Only
// the fields relevant to Kind are populated; dispatch itself lives in the
// executor package, which implements the single Execute(ctx, manifest,
// args) contract against this descriptor.
type Provider struct {
	Kind ProviderKind

	// Local
	HandlerName string // looked up in a process-local handler table

	// HTTP
	BaseURL         string
	BearerToken     string
	TimeoutMs       uint64
	RequiresSession bool

	// MCP
	ServerName string
	ToolName   string

	// Sandboxed
	SandboxTag string // e.g. "process", "firecracker"

	// RemotePlan
	Endpoint string
}

// Attestation carries an optional signature over a manifest's content.
type Attestation struct {
	Algorithm string
	Signature []byte
}

// Provenance records where a manifest came from and how it was vetted.
type Provenance struct {
	Source      string
	ContentHash string
	Custody     []string
	RegisteredAtMs int64
}

// AutonomyLevel describes how independently an agent-backed capability may
// act without further approval.
type AutonomyLevel int

const (
	AutonomySupervised AutonomyLevel = iota
	AutonomySemiAutonomous
	AutonomyAutonomous
)

// AgentMetadata is present when a manifest represents an agent artifact
// rather than a plain function-shaped capability.
type AgentMetadata struct {
	Autonomy    AutonomyLevel
	Constraints []string
}

// Manifest is the immutable descriptor of a capability registered in the
// marketplace. Registration replaces atomically by Id.
type Manifest struct {
	ID          string
	Name        string
	Description string
	Version     string
	Provider    Provider

	InputSchema  *value.TypeExpr
	OutputSchema *value.TypeExpr

	Permissions []string
	Effects     []string
	Metadata    map[string]string

	Attestation *Attestation
	Provenance  *Provenance
	Agent       *AgentMetadata

	Tags []string
}

// IsAgent reports whether this manifest describes an agent artifact.
func (m *Manifest) IsAgent() bool { return m.Agent != nil }

// HasTag reports whether tag is present in m.Tags.
func (m *Manifest) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
