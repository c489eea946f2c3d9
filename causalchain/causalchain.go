// Package causalchain implements the append-only, totally-ordered action
// ledger: parent linkage, a bounded ring-buffer of recent logs, and
// per-capability/per-function metrics. Generalized from a per-run event
// log (Append/List-with-cursor shape, per-scope monotonic sequence
// numbering, defensive-copy-on-read) to a single totally-ordered,
// cross-run action ledger.
package causalchain

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// Kind tags the variant of an Action.
type Kind int

const (
	PlanStepStarted Kind = iota
	PlanStepCompleted
	PlanStepFailed
	CapabilityCall
	CapabilityResult
	DelegationEvent
	Custom
)

// ExecutionResult is the outcome of a single action: a success flag, the
// resulting value, and optional structured metadata (e.g. an error kind).
type ExecutionResult struct {
	Success  bool
	Value    value.Value
	Metadata map[string]value.Value
}

// Action is a single, immutable ledger record.
type Action struct {
	ActionID       string
	ParentActionID string // empty means no parent
	PlanID         string
	IntentID       string
	Kind           Kind
	Name           string
	Arguments      value.Value
	Result         ExecutionResult
	StartedAtMs    int64
	DurationMs     int64
	Metadata       map[string]value.Value
}

// CapabilityMetrics aggregates CapabilityCall/CapabilityResult pairs for
// one capability id.
type CapabilityMetrics struct {
	Total          uint64
	Success        uint64
	Failure        uint64
	durationsMs    []int64
}

// FunctionMetrics aggregates pure-function call durations by name (reserved
// for evaluator-side instrumentation; populated via RecordFunctionResult,
// never by RecordResult).
type FunctionMetrics struct {
	Total       uint64
	Success     uint64
	Failure     uint64
	durationsMs []int64
}

// DurationPercentileMs returns the p-th percentile (0-100) duration in
// milliseconds across this capability's recorded samples, or 0 if none.
func (m CapabilityMetrics) DurationPercentileMs(p int) int64 {
	return percentile(m.durationsMs, p)
}

// DurationPercentileMs returns the p-th percentile (0-100) duration in
// milliseconds across this function's recorded samples, or 0 if none.
func (m FunctionMetrics) DurationPercentileMs(p int) int64 {
	return percentile(m.durationsMs, p)
}

// percentile returns the p-th percentile (0-100) of samples using
// nearest-rank interpolation over a sorted copy.
func percentile(samples []int64, p int) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (p * (len(sorted) - 1)) / 100
	return sorted[idx]
}

const ringBufferSize = 4096

// Chain is the append-only action ledger. Appends are serialized by a
// single mutex; a plain mutex suffices here since reads do not dominate
// the way registry reads do.
type Chain struct {
	mu              sync.Mutex
	actions         []*Action // full totally-ordered history
	ring            []*Action // bounded recent-logs buffer, oldest first
	capabilityStats map[string]*CapabilityMetrics
	functionStats   map[string]*FunctionMetrics
	pendingCalls    map[string]*Action // action_id -> CapabilityCall awaiting its Result
}

// New constructs an empty Chain.
func New() *Chain {
	return &Chain{
		ring:            make([]*Action, 0, ringBufferSize),
		capabilityStats: make(map[string]*CapabilityMetrics),
		functionStats:   make(map[string]*FunctionMetrics),
		pendingCalls:    make(map[string]*Action),
	}
}

// Append assigns an action id (if unset), validates parent-before-child
// ordering, appends the action, and registers a CapabilityCall as pending
// its result; metrics are updated by RecordResult. It never retries: a
// failure here is fatal to the current plan execution.
func (c *Chain) Append(a *Action) (string, error) {
	if a == nil {
		return "", hosterr.New(hosterr.InternalError, "causalchain: action is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.ActionID == "" {
		a.ActionID = uuid.NewString()
	}
	if a.ParentActionID != "" {
		if _, ok := c.findLocked(a.ParentActionID); !ok {
			return "", hosterr.Newf(hosterr.InternalError, "causalchain: parent action %q not found", a.ParentActionID)
		}
	}
	if a.StartedAtMs == 0 {
		a.StartedAtMs = time.Now().UnixMilli()
	}

	cp := *a
	c.actions = append(c.actions, &cp)
	c.pushRingLocked(&cp)

	if a.Kind == CapabilityCall {
		c.pendingCalls[cp.ActionID] = &cp
	}
	return cp.ActionID, nil
}

// RecordResult appends a CapabilityResult action whose ParentActionID is
// originalCallActionID and folds the outcome into capability metrics. Each
// pending call resolves at most once: a second RecordResult for the same
// id errors instead of appending a duplicate result.
func (c *Chain) RecordResult(originalCallActionID string, result ExecutionResult) (string, error) {
	c.mu.Lock()
	call, ok := c.pendingCalls[originalCallActionID]
	if !ok {
		c.mu.Unlock()
		return "", hosterr.Newf(hosterr.InternalError, "causalchain: no pending call for action %q", originalCallActionID)
	}
	delete(c.pendingCalls, originalCallActionID)
	duration := time.Now().UnixMilli() - call.StartedAtMs
	c.mu.Unlock()

	resultAction := &Action{
		ParentActionID: originalCallActionID,
		PlanID:         call.PlanID,
		IntentID:       call.IntentID,
		Kind:           CapabilityResult,
		Name:           call.Name,
		Result:         result,
		DurationMs:     duration,
	}
	id, err := c.Append(resultAction)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	m := c.capabilityStats[call.Name]
	if m == nil {
		m = &CapabilityMetrics{}
		c.capabilityStats[call.Name] = m
	}
	m.Total++
	if result.Success {
		m.Success++
	} else {
		m.Failure++
	}
	m.durationsMs = append(m.durationsMs, duration)
	c.mu.Unlock()

	return id, nil
}

// RecordFunctionResult folds a pure-function evaluation outcome into
// per-function metrics without appending a ledger action: pure-function
// evaluation never surfaces to the chain as an action.
func (c *Chain) RecordFunctionResult(name string, success bool, durationMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.functionStats[name]
	if m == nil {
		m = &FunctionMetrics{}
		c.functionStats[name] = m
	}
	m.Total++
	if success {
		m.Success++
	} else {
		m.Failure++
	}
	m.durationsMs = append(m.durationsMs, durationMs)
}

// RecordCapabilityOutcome folds a marketplace dispatch outcome into
// per-capability metrics without appending or pairing a ledger action. The
// host owns the CapabilityCall/CapabilityResult action pair (via Append and
// RecordResult); the marketplace calls this instead when it only needs to
// contribute timing and success/failure to the aggregate, e.g. when a
// caller invoked it directly without going through the host's action pair.
func (c *Chain) RecordCapabilityOutcome(id string, success bool, durationMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.capabilityStats[id]
	if m == nil {
		m = &CapabilityMetrics{}
		c.capabilityStats[id] = m
	}
	m.Total++
	if success {
		m.Success++
	} else {
		m.Failure++
	}
	m.durationsMs = append(m.durationsMs, durationMs)
}

// RecordDelegationEvent appends a DelegationEvent action for intentID.
func (c *Chain) RecordDelegationEvent(intentID string, kind string, metadata map[string]value.Value) (string, error) {
	meta := map[string]value.Value{"delegation_kind": value.Str(kind)}
	for k, v := range metadata {
		meta[k] = v
	}
	return c.Append(&Action{
		IntentID: intentID,
		Kind:     DelegationEvent,
		Name:     kind,
		Metadata: meta,
	})
}

// GetCapabilityMetrics returns a snapshot of the aggregate metrics for id,
// or false if no action for that capability has been recorded.
func (c *Chain) GetCapabilityMetrics(id string) (CapabilityMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.capabilityStats[id]
	if !ok {
		return CapabilityMetrics{}, false
	}
	return *m, true
}

// GetFunctionMetrics returns a snapshot of the aggregate metrics for a pure
// function name, or false if none recorded.
func (c *Chain) GetFunctionMetrics(name string) (FunctionMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.functionStats[name]
	if !ok {
		return FunctionMetrics{}, false
	}
	return *m, true
}

// RecentLogs returns the n most recently appended actions, oldest first,
// from the bounded recent-logs buffer.
func (c *Chain) RecentLogs(n int) []*Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.ring) {
		n = len(c.ring)
	}
	start := len(c.ring) - n
	out := make([]*Action, n)
	for i := 0; i < n; i++ {
		cp := *c.ring[start+i]
		out[i] = &cp
	}
	return out
}

// AllActionsSnapshot returns a defensive copy of the complete, totally
// ordered action history.
func (c *Chain) AllActionsSnapshot() []*Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Action, len(c.actions))
	for i, a := range c.actions {
		cp := *a
		out[i] = &cp
	}
	return out
}

func (c *Chain) findLocked(actionID string) (*Action, bool) {
	for _, a := range c.actions {
		if a.ActionID == actionID {
			return a, true
		}
	}
	return nil, false
}

func (c *Chain) pushRingLocked(a *Action) {
	c.ring = append(c.ring, a)
	if len(c.ring) > ringBufferSize {
		c.ring = c.ring[len(c.ring)-ringBufferSize:]
	}
}
