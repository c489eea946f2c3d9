// Package host implements the runtime host: the single bridge
// between a plan-language evaluator and the stateful Marketplace/Causal
// Chain/Security components. Generalized from an Arc<Mutex<...>>/block_on
// style bridge to a plain Go struct with a context.Context-carrying,
// directly-callable ExecuteCapability.
package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mandubian/ccos-sub014/causalchain"
	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/security"
	"github.com/mandubian/ccos-sub014/value"
)

// testFallbackContextEnv is the environment variable that, when set to a
// truthy value, lets a Host operate without an explicit execution context
// by synthesizing an empty one instead of failing. Intended for tests only.
const testFallbackContextEnv = "CCOS_TEST_FALLBACK_CONTEXT"

func testFallbackContextEnabled() bool {
	raw, ok := os.LookupEnv(testFallbackContextEnv)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

// planContext is the per-plan state a Host carries between capability
// calls: which plan/intents are executing and the parent action id new
// actions should link against.
type planContext struct {
	planID         string
	intentIDs      []string
	parentActionID string
}

// stepExposureOverride lets a nested step suppress context-snapshot
// exposure, or narrow it to a key allow-list. It never enables exposure
// that the capability-level security policy does not already allow.
type stepExposureOverride struct {
	expose      bool
	allowedKeys []string
}

// Host bridges the evaluator to the Marketplace, Causal Chain, and
// Security Context. It owns no domain data itself, referencing all three
// by shared handle; per-plan mutable state lives in execCtx.
type Host struct {
	Marketplace *marketplace.Marketplace
	Chain       *causalchain.Chain
	Security    *security.Context

	mu             sync.Mutex
	execCtx        *planContext
	stepOverrides  []stepExposureOverride
}

// New constructs a Host wired to the given shared components.
func New(mp *marketplace.Marketplace, chain *causalchain.Chain, sec *security.Context) *Host {
	return &Host{Marketplace: mp, Chain: chain, Security: sec}
}

// SetExecutionContext installs the plan/intent/parent-action state used by
// subsequent ExecuteCapability/NotifyStep* calls.
func (h *Host) SetExecutionContext(planID string, intentIDs []string, parentActionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := append([]string(nil), intentIDs...)
	h.execCtx = &planContext{planID: planID, intentIDs: ids, parentActionID: parentActionID}
}

// ClearExecutionContext drops the current plan context after a plan
// finishes.
func (h *Host) ClearExecutionContext() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execCtx = nil
}

// PushStepExposureOverride sets the context-snapshot exposure override for
// the duration of a nested step: expose=false suppresses the snapshot, and
// allowedKeys, when non-nil, filters it to those keys. expose=true does not
// attach a snapshot the security policy would otherwise withhold.
func (h *Host) PushStepExposureOverride(expose bool, allowedKeys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stepOverrides = append(h.stepOverrides, stepExposureOverride{expose: expose, allowedKeys: allowedKeys})
}

// PopStepExposureOverride removes the most recently pushed override.
func (h *Host) PopStepExposureOverride() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.stepOverrides); n > 0 {
		h.stepOverrides = h.stepOverrides[:n-1]
	}
}

func (h *Host) snapshotPlanContext() (*planContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.execCtx == nil {
		if testFallbackContextEnabled() {
			return &planContext{}, nil
		}
		return nil, hosterr.New(hosterr.InternalError, "host: method called without a valid execution context")
	}
	cp := *h.execCtx
	return &cp, nil
}

func (h *Host) currentStepOverride() (stepExposureOverride, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.stepOverrides); n > 0 {
		return h.stepOverrides[n-1], true
	}
	return stepExposureOverride{}, false
}

func primaryIntent(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// ExecuteCapability runs the execute_capability sequence: security gate,
// CapabilityCall action append, optional context snapshot, dispatch
// through the marketplace, CapabilityResult action append.
func (h *Host) ExecuteCapability(ctx context.Context, name string, args value.Value) (value.Value, error) {
	if !h.Security.IsCapabilityAllowed(name) {
		return value.Nil, hosterr.Newf(hosterr.SecurityViolation, "capability %q not allowed under current security context", name)
	}

	planCtx, err := h.snapshotPlanContext()
	if err != nil {
		return value.Nil, err
	}

	callArgs := h.buildCapabilityCallArgs(name, args, planCtx)

	callID, err := h.Chain.Append(&causalchain.Action{
		ParentActionID: planCtx.parentActionID,
		PlanID:         planCtx.planID,
		IntentID:       primaryIntent(planCtx.intentIDs),
		Kind:           causalchain.CapabilityCall,
		Name:           name,
		Arguments:      args,
	})
	if err != nil {
		return value.Nil, err
	}

	result, execErr := h.Marketplace.Dispatch(ctx, name, callArgs)

	execResult := causalchain.ExecutionResult{Success: execErr == nil, Value: result}
	if execErr != nil {
		execResult.Metadata = map[string]value.Value{
			"error_kind":    value.Str(string(hosterr.KindOf(execErr))),
			"error_message": value.Str(execErr.Error()),
		}
	}
	if _, err := h.Chain.RecordResult(callID, execResult); err != nil {
		return value.Nil, err
	}

	return result, execErr
}

// buildCapabilityCallArgs wraps args under :args and, when the exposure
// policy allows it, attaches a :context read-only snapshot, matching the
// "new calling convention" described in the grounding source.
func (h *Host) buildCapabilityCallArgs(name string, args value.Value, planCtx *planContext) value.Value {
	b := value.NewMapBuilder().Set(value.KeywordKey("args"), args)
	if snapshot, ok := h.buildContextSnapshot(name, args, planCtx); ok {
		b.Set(value.KeywordKey("context"), snapshot)
	}
	return b.Build()
}

// buildContextSnapshot builds the read-only context snapshot policy: a
// Map with plan_id/primary_intent/intent_ids/step/inputs_hash, attached iff
// exposure is allowed for this capability and the current step override
// (if any) doesn't suppress it.
func (h *Host) buildContextSnapshot(capabilityID string, args value.Value, planCtx *planContext) (value.Value, bool) {
	if override, ok := h.currentStepOverride(); ok && !override.expose {
		return value.Nil, false
	}

	tags := h.manifestTags(capabilityID)
	if !h.Security.IsContextExposureAllowed(capabilityID, tags) {
		return value.Nil, false
	}

	b := value.NewMapBuilder().
		Set(value.KeywordKey("plan_id"), value.Str(planCtx.planID)).
		Set(value.KeywordKey("primary_intent"), value.Str(primaryIntent(planCtx.intentIDs))).
		Set(value.KeywordKey("intent_ids"), stringsToVector(planCtx.intentIDs)).
		Set(value.KeywordKey("step"), value.Str(capabilityID)).
		Set(value.KeywordKey("inputs_hash"), value.Str(inputsHash(args)))
	snapshot := b.Build()

	if override, ok := h.currentStepOverride(); ok && override.allowedKeys != nil {
		snapshot = filterMapKeys(snapshot, override.allowedKeys)
	}
	return snapshot, true
}

func (h *Host) manifestTags(capabilityID string) []string {
	if h.Marketplace == nil || h.Marketplace.Registry == nil {
		return nil
	}
	m, ok := h.Marketplace.Registry.Get(capabilityID)
	if !ok {
		return nil
	}
	return m.Tags
}

func stringsToVector(ss []string) value.Value {
	items := make([]value.Value, len(ss))
	for i, s := range ss {
		items[i] = value.Str(s)
	}
	return value.Vector(items)
}

func filterMapKeys(m value.Value, allowed []string) value.Value {
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}
	b := value.NewMapBuilder()
	for _, k := range m.MapOrder() {
		if !allowedSet[k.Name()] {
			continue
		}
		v, ok := m.MapGet(k)
		if ok {
			b.Set(k, v)
		}
	}
	return b.Build()
}

// inputsHash returns the hex-encoded SHA-256 of args' canonical JSON
// encoding. value.ToJSON's object keys are rendered via encoding/json's
// alphabetical map-key ordering, making the hash deterministic independent
// of Map insertion order.
func inputsHash(args value.Value) string {
	raw, err := value.ToJSON(args)
	if err != nil {
		raw = []byte(args.String())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NotifyStepStarted appends a PlanStepStarted action and returns its id,
// to be passed to NotifyStepCompleted/NotifyStepFailed as the parent.
func (h *Host) NotifyStepStarted(stepName string) (string, error) {
	planCtx, err := h.snapshotPlanContext()
	if err != nil {
		return "", err
	}
	return h.Chain.Append(&causalchain.Action{
		ParentActionID: planCtx.parentActionID,
		PlanID:         planCtx.planID,
		IntentID:       primaryIntent(planCtx.intentIDs),
		Kind:           causalchain.PlanStepStarted,
		Name:           stepName,
		StartedAtMs:    time.Now().UnixMilli(),
	})
}

// NotifyStepCompleted appends a PlanStepCompleted action whose parent is
// stepActionID.
func (h *Host) NotifyStepCompleted(stepActionID string, result causalchain.ExecutionResult) error {
	planCtx, err := h.snapshotPlanContext()
	if err != nil {
		return err
	}
	_, err = h.Chain.Append(&causalchain.Action{
		ParentActionID: stepActionID,
		PlanID:         planCtx.planID,
		IntentID:       primaryIntent(planCtx.intentIDs),
		Kind:           causalchain.PlanStepCompleted,
		Result:         result,
	})
	return err
}

// NotifyStepFailed appends a PlanStepFailed action whose parent is
// stepActionID.
func (h *Host) NotifyStepFailed(stepActionID string, errMsg string) error {
	planCtx, err := h.snapshotPlanContext()
	if err != nil {
		return err
	}
	_, err = h.Chain.Append(&causalchain.Action{
		ParentActionID: stepActionID,
		PlanID:         planCtx.planID,
		IntentID:       primaryIntent(planCtx.intentIDs),
		Kind:           causalchain.PlanStepFailed,
		Result:         causalchain.ExecutionResult{Success: false, Metadata: map[string]value.Value{"error": value.Str(errMsg)}},
	})
	return err
}

// GetContextValue serves a well-known execution-context key: plan-id,
// intent-id (the primary intent), intent-ids, or parent-action-id.
func (h *Host) GetContextValue(key string) (value.Value, error) {
	planCtx, err := h.snapshotPlanContext()
	if err != nil {
		return value.Nil, err
	}
	switch key {
	case "plan-id":
		return value.Str(planCtx.planID), nil
	case "intent-id":
		return value.Str(primaryIntent(planCtx.intentIDs)), nil
	case "intent-ids":
		return stringsToVector(planCtx.intentIDs), nil
	case "parent-action-id":
		return value.Str(planCtx.parentActionID), nil
	default:
		return value.Nil, hosterr.Newf(hosterr.InternalError, "host: unknown context key %q", key)
	}
}

// NewActionID generates a standalone action id outside the Append path,
// for callers (e.g. an evaluator) that need to pre-allocate an id before
// constructing an Action.
func NewActionID() string { return uuid.NewString() }
