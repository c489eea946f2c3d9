// Package security implements the runtime security context and its
// validator: three named security levels, capability allow-listing,
// microVM/isolation policy, and context-exposure allow-lists. This is
// policy data plus pure predicates, so no ecosystem policy-as-code engine
// replaces it (see DESIGN.md).
package security

import (
	"strings"

	"github.com/mandubian/ccos-sub014/hosterr"
)

// Level is one of the three named security levels.
type Level int

const (
	// Pure allows no capability at all.
	Pure Level = iota
	// Controlled allows only capabilities on the allow-list.
	Controlled
	// Full allows every capability.
	Full
)

// IsolationLevel is the step-level isolation policy a plan may request.
type IsolationLevel int

const (
	IsolationInherit IsolationLevel = iota
	IsolationIsolated
	IsolationSandboxed
)

// dangerousCapabilities gates the microVM requirement under non-Full
// levels: the concrete file, network, and environment capabilities that
// touch the host outside the sandbox.
var dangerousCapabilities = map[string]bool{
	"ccos.io.open-file":        true,
	"ccos.io.read-line":        true,
	"ccos.io.write-line":       true,
	"ccos.io.close-file":       true,
	"ccos.network.http-fetch":  true,
	"ccos.system.get-env":      true,
}

// IsDangerous reports whether id is on the dangerous-capability list.
func IsDangerous(id string) bool { return dangerousCapabilities[id] }

// Context is the runtime security policy attached to a plan execution.
type Context struct {
	SecurityLevel         Level
	AllowedCapabilities   map[string]bool
	UseMicroVM            bool
	MaxExecutionTimeMs    uint64 // 0 = unset/unbounded
	MaxMemoryBytes        uint64 // 0 = unset/unbounded
	LogCapabilityCalls    bool
	AllowInheritIsolation bool
	AllowIsolatedIsolation bool
	AllowSandboxedIsolation bool

	ExposeReadonlyContext bool
	ExposedContextCaps    map[string]bool
	ExposedContextPrefixes []string
	ExposedContextTags    map[string]bool
}

// PureContext constructs the maximum-security context: 1s/16MB ceilings,
// no capability allowed.
func PureContext() *Context {
	return &Context{
		SecurityLevel:           Pure,
		AllowedCapabilities:     map[string]bool{},
		MaxExecutionTimeMs:      1000,
		MaxMemoryBytes:          16 * 1024 * 1024,
		LogCapabilityCalls:      true,
		AllowInheritIsolation:   true,
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: true,
		ExposedContextCaps:      map[string]bool{},
		ExposedContextTags:      map[string]bool{},
	}
}

// ControlledContext constructs a Controlled context with the given
// capability allow-list: 5s/64MB ceilings, microVM required.
func ControlledContext(allowed []string) *Context {
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	return &Context{
		SecurityLevel:           Controlled,
		AllowedCapabilities:     set,
		UseMicroVM:              true,
		MaxExecutionTimeMs:      5000,
		MaxMemoryBytes:          64 * 1024 * 1024,
		LogCapabilityCalls:      true,
		AllowInheritIsolation:   true,
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: true,
		ExposedContextCaps:      map[string]bool{},
		ExposedContextTags:      map[string]bool{},
	}
}

// FullContext constructs the unrestricted context: no ceilings, every
// capability allowed.
func FullContext() *Context {
	return &Context{
		SecurityLevel:           Full,
		AllowedCapabilities:     map[string]bool{},
		LogCapabilityCalls:      true,
		AllowInheritIsolation:   true,
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: true,
		ExposedContextCaps:      map[string]bool{},
		ExposedContextTags:      map[string]bool{},
	}
}

// IsCapabilityAllowed reports whether id may be dispatched under the
// current level: Pure allows nothing, Controlled checks the allow-list,
// Full allows everything.
func (c *Context) IsCapabilityAllowed(id string) bool {
	switch c.SecurityLevel {
	case Pure:
		return false
	case Controlled:
		return c.AllowedCapabilities[id]
	case Full:
		return true
	default:
		return false
	}
}

// RequiresMicroVM reports whether id must run isolated under the current
// policy: true only when UseMicroVM is set and id is on the dangerous list.
func (c *Context) RequiresMicroVM(id string) bool {
	return c.UseMicroVM && IsDangerous(id)
}

// IsIsolationAllowed reports whether the step isolation level is permitted.
func (c *Context) IsIsolationAllowed(level IsolationLevel) bool {
	switch level {
	case IsolationInherit:
		return c.AllowInheritIsolation
	case IsolationIsolated:
		return c.AllowIsolatedIsolation
	case IsolationSandboxed:
		return c.AllowSandboxedIsolation
	default:
		return false
	}
}

// IsContextExposureAllowed implements the dynamic exposure policy: exact id
// allow-list, prefix allow-list, or tag allow-list (matched against the
// capability's declared metadata tags).
func (c *Context) IsContextExposureAllowed(id string, tags []string) bool {
	if !c.ExposeReadonlyContext {
		return false
	}
	if c.ExposedContextCaps[id] {
		return true
	}
	for _, p := range c.ExposedContextPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	for _, t := range tags {
		if c.ExposedContextTags[t] {
			return true
		}
	}
	return false
}

// EnableContextExposureFor adds id to the exact exposure allow-list.
func (c *Context) EnableContextExposureFor(id string) {
	c.ExposeReadonlyContext = true
	if c.ExposedContextCaps == nil {
		c.ExposedContextCaps = map[string]bool{}
	}
	c.ExposedContextCaps[id] = true
}

// EnableContextExposurePrefix adds prefix to the prefix exposure allow-list.
func (c *Context) EnableContextExposurePrefix(prefix string) {
	c.ExposeReadonlyContext = true
	c.ExposedContextPrefixes = append(c.ExposedContextPrefixes, prefix)
}

// EnableContextExposureTag adds tag to the tag exposure allow-list.
func (c *Context) EnableContextExposureTag(tag string) {
	c.ExposeReadonlyContext = true
	if c.ExposedContextTags == nil {
		c.ExposedContextTags = map[string]bool{}
	}
	c.ExposedContextTags[tag] = true
}

// Validate rejects contexts with absurd limits or dangerous-without-microVM
// combinations.
func Validate(c *Context) error {
	if c.MaxExecutionTimeMs > 60_000 {
		return hosterr.New(hosterr.SecurityViolation, "execution time limit too high")
	}
	if c.MaxMemoryBytes > 512*1024*1024 {
		return hosterr.New(hosterr.SecurityViolation, "memory limit too high")
	}
	if c.SecurityLevel != Full {
		for id := range c.AllowedCapabilities {
			if IsDangerous(id) && !c.UseMicroVM {
				return hosterr.Newf(hosterr.SecurityViolation, "capability %q requires microVM execution", id)
			}
		}
	}
	return nil
}
