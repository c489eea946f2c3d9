// Package budget implements multi-dimensional budget tracking:
// limits/consumption/policy tracking with 50%/80% warning hysteresis,
// exhaustion, and extend-after-approval. Dimension check order, 0-means-
// unlimited semantics, scaled-integer cost tracking, and warning cleared
// on extend follow a context-budget checker's usual shape.
package budget

import (
	"sync"
	"time"
)

// ExhaustionPolicy controls what happens when a dimension is exhausted.
type ExhaustionPolicy int

const (
	HardFail ExhaustionPolicy = iota
	RequireApproval
	DowngradeAndContinue
)

// Dimension names, fixed and checked in this exact priority order by
// Check.
const (
	DimSteps         = "steps"
	DimWallClockMs   = "wall_clock"
	DimLLMTokens     = "llm_tokens"
	DimCostUSD       = "cost_usd"
	DimNetworkEgress = "network_egress"
	DimStorageWrite  = "storage_write"
	DimSandboxCPU    = "sandbox_cpu_ms"
	DimSandboxMemory = "sandbox_memory_peak_mb"
)

var dimensionOrder = []string{
	DimSteps, DimWallClockMs, DimLLMTokens, DimCostUSD,
	DimNetworkEgress, DimStorageWrite, DimSandboxCPU, DimSandboxMemory,
}

// Limits holds the immutable (until extended) per-dimension ceilings. A
// value of 0 means unlimited for that dimension. CostUSD is expressed as a
// float at the API boundary but tracked internally as a scaled integer
// (thousandths of a dollar) to avoid floating-point hysteresis drift.
type Limits struct {
	Steps                uint64
	WallClockMs          uint64
	LLMTokens            uint64
	CostUSD              float64
	NetworkEgressBytes   uint64
	StorageWriteBytes    uint64
	SandboxCPUMs         uint64
	SandboxMemoryPeakMB  uint64
}

// Policies holds the per-dimension ExhaustionPolicy.
type Policies struct {
	Steps         ExhaustionPolicy
	WallClockMs   ExhaustionPolicy
	LLMTokens     ExhaustionPolicy
	CostUSD       ExhaustionPolicy
	NetworkEgress ExhaustionPolicy
	StorageWrite  ExhaustionPolicy
	SandboxCPU    ExhaustionPolicy
	SandboxMemory ExhaustionPolicy
}

// StepConsumption is the per-call consumption delta recorded via
// RecordStep.
type StepConsumption struct {
	LLMInputTokens     uint64
	LLMOutputTokens    uint64
	CostUSD            float64
	NetworkEgressBytes uint64
	StorageWriteBytes  uint64
}

// SandboxMetrics is the resource usage reported by a sandboxed executor.
type SandboxMetrics struct {
	CPUTimeMs     uint64
	MemoryPeakMB  uint64
}

// consumed is the mutable running-total state.
type consumed struct {
	steps              uint64
	llmInputTokens     uint64
	llmOutputTokens    uint64
	costUSDScaled      uint64 // thousandths of a dollar
	networkEgressBytes uint64
	storageWriteBytes  uint64
	sandboxCPUMs       uint64
	sandboxMemoryPeakMB uint64
}

func (c *consumed) totalLLMTokens() uint64 { return c.llmInputTokens + c.llmOutputTokens }

// Remaining reports the remaining allowance per dimension at the moment it
// was computed.
type Remaining struct {
	Steps               uint64
	WallClockMs         uint64
	LLMTokens           uint64
	CostUSD             float64
	NetworkEgressBytes  uint64
	StorageWriteBytes   uint64
	SandboxCPUMs        uint64
	SandboxMemoryPeakMB uint64
}

// CheckStatus tags the result of Check.
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusExhausted
)

// CheckResult is the outcome of a Check call.
type CheckResult struct {
	Status    CheckStatus
	Dimension string
	Percent   int // meaningful for StatusWarning: 50 or 80
	Policy    ExhaustionPolicy // meaningful for StatusExhausted
}

// warnKey identifies one (dimension, threshold) pair for de-duplication.
type warnKey struct {
	dimension string
	threshold int
}

// Context is the runtime budget tracker for one plan execution, shared
// across tasks and protected by an internal lock. All methods are safe
// for concurrent use.
type Context struct {
	mu        sync.Mutex
	limits    Limits
	policies  Policies
	consumed  consumed
	startedAt time.Time
	warned    map[warnKey]bool
}

// New constructs a Context with the given limits and policies.
func New(limits Limits, policies Policies) *Context {
	return &Context{
		limits:    limits,
		policies:  policies,
		startedAt: time.Now(),
		warned:    make(map[warnKey]bool),
	}
}

// WithDefaults constructs a Context with zero (unlimited) limits and
// HardFail policies everywhere.
func WithDefaults() *Context {
	return New(Limits{}, Policies{})
}

// Limits returns a copy of the immutable limits.
func (c *Context) Limits() Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

// Consumed returns the current cost-USD-as-float and other raw counters for
// inspection/telemetry.
func (c *Context) Consumed() (steps, llmInputTokens, llmOutputTokens, networkEgressBytes, storageWriteBytes, sandboxCPUMs, sandboxMemoryPeakMB uint64, costUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumed.steps, c.consumed.llmInputTokens, c.consumed.llmOutputTokens,
		c.consumed.networkEgressBytes, c.consumed.storageWriteBytes,
		c.consumed.sandboxCPUMs, c.consumed.sandboxMemoryPeakMB,
		float64(c.consumed.costUSDScaled) / 1000.0
}

// Remaining computes the remaining allowance per dimension, saturating at
// zero rather than going negative.
func (c *Context) Remaining() Remaining {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsedMs := uint64(time.Since(c.startedAt).Milliseconds())
	return Remaining{
		Steps:               satSub(c.limits.Steps, c.consumed.steps),
		WallClockMs:         satSub(c.limits.WallClockMs, elapsedMs),
		LLMTokens:           satSub(c.limits.LLMTokens, c.consumed.totalLLMTokens()),
		CostUSD:             maxFloat(c.limits.CostUSD-float64(c.consumed.costUSDScaled)/1000.0, 0),
		NetworkEgressBytes:  satSub(c.limits.NetworkEgressBytes, c.consumed.networkEgressBytes),
		StorageWriteBytes:   satSub(c.limits.StorageWriteBytes, c.consumed.storageWriteBytes),
		SandboxCPUMs:        satSub(c.limits.SandboxCPUMs, c.consumed.sandboxCPUMs),
		SandboxMemoryPeakMB: satSub(c.limits.SandboxMemoryPeakMB, c.consumed.sandboxMemoryPeakMB),
	}
}

// Check evaluates every dimension in the fixed priority order and returns
// the first non-OK result. A given warning fires at most once per
// threshold per dimension until the corresponding Extend call resets it.
func (c *Context) Check() CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsedMs := uint64(time.Since(c.startedAt).Milliseconds())
	costConsumedScaled := c.consumed.costUSDScaled
	costLimitScaled := uint64(c.limits.CostUSD * 1000.0)

	type dim struct {
		name     string
		consumed uint64
		limit    uint64
		policy   ExhaustionPolicy
	}
	dims := []dim{
		{DimSteps, c.consumed.steps, c.limits.Steps, c.policies.Steps},
		{DimWallClockMs, elapsedMs, c.limits.WallClockMs, c.policies.WallClockMs},
		{DimLLMTokens, c.consumed.totalLLMTokens(), c.limits.LLMTokens, c.policies.LLMTokens},
		{DimCostUSD, costConsumedScaled, costLimitScaled, c.policies.CostUSD},
		{DimNetworkEgress, c.consumed.networkEgressBytes, c.limits.NetworkEgressBytes, c.policies.NetworkEgress},
		{DimStorageWrite, c.consumed.storageWriteBytes, c.limits.StorageWriteBytes, c.policies.StorageWrite},
		{DimSandboxCPU, c.consumed.sandboxCPUMs, c.limits.SandboxCPUMs, c.policies.SandboxCPU},
		{DimSandboxMemory, c.consumed.sandboxMemoryPeakMB, c.limits.SandboxMemoryPeakMB, c.policies.SandboxMemory},
	}

	for _, d := range dims {
		if result, ok := c.checkDimension(d.name, d.consumed, d.limit, d.policy); ok {
			return result
		}
	}
	return CheckResult{Status: StatusOK}
}

func (c *Context) checkDimension(name string, consumedV, limit uint64, policy ExhaustionPolicy) (CheckResult, bool) {
	if limit == 0 {
		return CheckResult{}, false // unlimited
	}
	if consumedV >= limit {
		return CheckResult{Status: StatusExhausted, Dimension: name, Policy: policy}, true
	}
	percent := int(float64(consumedV) / float64(limit) * 100.0)
	if percent >= 80 && !c.warned[warnKey{name, 80}] {
		c.warned[warnKey{name, 80}] = true
		return CheckResult{Status: StatusWarning, Dimension: name, Percent: 80}, true
	}
	if percent >= 50 && !c.warned[warnKey{name, 50}] {
		c.warned[warnKey{name, 50}] = true
		return CheckResult{Status: StatusWarning, Dimension: name, Percent: 50}, true
	}
	return CheckResult{}, false
}

// RecordStep increments the step counter and accumulates the supplied
// delta into the running totals.
func (c *Context) RecordStep(s StepConsumption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed.steps++
	c.consumed.llmInputTokens += s.LLMInputTokens
	c.consumed.llmOutputTokens += s.LLMOutputTokens
	c.consumed.costUSDScaled += uint64(s.CostUSD * 1000.0)
	c.consumed.networkEgressBytes += s.NetworkEgressBytes
	c.consumed.storageWriteBytes += s.StorageWriteBytes
}

// RecordSandbox adds sandbox CPU time and raises the recorded peak memory
// if the new sample exceeds it.
func (c *Context) RecordSandbox(m SandboxMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed.sandboxCPUMs += m.CPUTimeMs
	if m.MemoryPeakMB > c.consumed.sandboxMemoryPeakMB {
		c.consumed.sandboxMemoryPeakMB = m.MemoryPeakMB
	}
}

// ExtendSteps raises the step limit and clears that dimension's warnings.
func (c *Context) ExtendSteps(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.Steps += additional
	c.clearWarnings(DimSteps)
}

// ExtendWallClockMs raises the wall-clock limit and clears its warnings.
func (c *Context) ExtendWallClockMs(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.WallClockMs += additional
	c.clearWarnings(DimWallClockMs)
}

// ExtendLLMTokens raises the token limit and clears its warnings.
func (c *Context) ExtendLLMTokens(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.LLMTokens += additional
	c.clearWarnings(DimLLMTokens)
}

// ExtendCost raises the cost limit and clears its warnings.
func (c *Context) ExtendCost(additional float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.CostUSD += additional
	c.clearWarnings(DimCostUSD)
}

// ExtendNetworkEgressBytes raises the network egress limit and clears its
// warnings.
func (c *Context) ExtendNetworkEgressBytes(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.NetworkEgressBytes += additional
	c.clearWarnings(DimNetworkEgress)
}

// ExtendStorageWriteBytes raises the storage write limit and clears its
// warnings.
func (c *Context) ExtendStorageWriteBytes(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.StorageWriteBytes += additional
	c.clearWarnings(DimStorageWrite)
}

// ExtendSandboxCPUMs raises the sandbox CPU limit and clears its warnings.
func (c *Context) ExtendSandboxCPUMs(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.SandboxCPUMs += additional
	c.clearWarnings(DimSandboxCPU)
}

// ExtendSandboxMemoryPeakMB raises the sandbox memory limit and clears its
// warnings.
func (c *Context) ExtendSandboxMemoryPeakMB(additional uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.SandboxMemoryPeakMB += additional
	c.clearWarnings(DimSandboxMemory)
}

// clearWarnings removes both the 50% and 80% warning markers for dimension.
// Caller must hold c.mu.
func (c *Context) clearWarnings(dimension string) {
	delete(c.warned, warnKey{dimension, 50})
	delete(c.warned, warnKey{dimension, 80})
}

func satSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Dimensions returns the fixed check-priority order, exposed for tests and
// telemetry that need to enumerate dimensions deterministically.
func Dimensions() []string {
	out := make([]string, len(dimensionOrder))
	copy(out, dimensionOrder)
	return out
}
