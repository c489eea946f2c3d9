package host

import (
	"context"
	"testing"

	"github.com/mandubian/ccos-sub014/causalchain"
	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/security"
	"github.com/mandubian/ccos-sub014/value"
)

type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	return args, nil
}

func newTestHost(t *testing.T, sec *security.Context) *Host {
	t.Helper()
	mp := marketplace.New()
	if err := mp.Registry.Register(&marketplace.Manifest{ID: "demo.echo", Provider: marketplace.Provider{Kind: marketplace.ProviderLocal}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	mp.RegisterExecutor(marketplace.ProviderLocal, echoExecutor{})
	mp.Chain = causalchain.New()
	h := New(mp, mp.Chain, sec)
	return h
}

func TestExecuteCapabilityRejectedWithoutAllowedCapability(t *testing.T) {
	h := newTestHost(t, security.PureContext())
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	_, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1))
	if hosterr.KindOf(err) != hosterr.SecurityViolation {
		t.Fatalf("expected SecurityViolation, got %v", err)
	}
}

func TestExecuteCapabilityAppendsCallAndResultActions(t *testing.T) {
	sec := security.ControlledContext([]string{"demo.echo"})
	h := newTestHost(t, sec)
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	result, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(42))
	if err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	got, ok := result.MapGet(value.KeywordKey("args"))
	if !ok || got.Int() != 42 {
		t.Fatalf("expected echoed args=42, got %+v", result)
	}

	all := h.Chain.AllActionsSnapshot()
	if len(all) != 2 || all[0].Kind != causalchain.CapabilityCall || all[1].Kind != causalchain.CapabilityResult {
		t.Fatalf("expected a CapabilityCall followed by a CapabilityResult, got %+v", all)
	}
	if all[1].ParentActionID != all[0].ActionID {
		t.Fatalf("expected the result to be parented to the call")
	}
}

func TestExecuteCapabilityWithoutExecutionContextFails(t *testing.T) {
	h := newTestHost(t, security.ControlledContext([]string{"demo.echo"}))
	if _, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1)); err == nil {
		t.Fatalf("expected an error when no execution context has been set")
	}
}

func TestContextSnapshotNotAttachedWithoutExposurePolicy(t *testing.T) {
	sec := security.ControlledContext([]string{"demo.echo"})
	h := newTestHost(t, sec)
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	result, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1))
	if err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	if _, ok := result.MapGet(value.KeywordKey("context")); ok {
		t.Fatalf("expected no context snapshot when exposure is disabled")
	}
}

func TestContextSnapshotAttachedWhenExposureAllowed(t *testing.T) {
	sec := security.ControlledContext([]string{"demo.echo"})
	sec.EnableContextExposureFor("demo.echo")
	h := newTestHost(t, sec)
	h.SetExecutionContext("plan-7", []string{"intent-7"}, "")

	result, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1))
	if err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	snapshot, ok := result.MapGet(value.KeywordKey("context"))
	if !ok {
		t.Fatalf("expected a context snapshot to be attached")
	}
	planID, ok := snapshot.MapGet(value.KeywordKey("plan_id"))
	if !ok || planID.Str() != "plan-7" {
		t.Fatalf("expected plan_id=plan-7 in the snapshot, got %+v", snapshot)
	}
	if _, ok := snapshot.MapGet(value.KeywordKey("inputs_hash")); !ok {
		t.Fatalf("expected an inputs_hash key in the snapshot")
	}
}

func TestStepExposureOverrideSuppressesSnapshot(t *testing.T) {
	sec := security.ControlledContext([]string{"demo.echo"})
	sec.EnableContextExposureFor("demo.echo")
	h := newTestHost(t, sec)
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")
	h.PushStepExposureOverride(false, nil)
	defer h.PopStepExposureOverride()

	result, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1))
	if err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	if _, ok := result.MapGet(value.KeywordKey("context")); ok {
		t.Fatalf("expected the step override to suppress the context snapshot")
	}
}

func TestGetContextValueServesWellKnownKeys(t *testing.T) {
	h := newTestHost(t, security.FullContext())
	h.SetExecutionContext("plan-1", []string{"intent-1", "intent-2"}, "parent-1")

	planID, err := h.GetContextValue("plan-id")
	if err != nil || planID.Str() != "plan-1" {
		t.Fatalf("expected plan-id=plan-1, got %+v, err=%v", planID, err)
	}
	intentID, err := h.GetContextValue("intent-id")
	if err != nil || intentID.Str() != "intent-1" {
		t.Fatalf("expected intent-id=intent-1, got %+v, err=%v", intentID, err)
	}
	intentIDs, err := h.GetContextValue("intent-ids")
	if err != nil || len(intentIDs.Vec()) != 2 {
		t.Fatalf("expected intent-ids with 2 entries, got %+v, err=%v", intentIDs, err)
	}
	parentActionID, err := h.GetContextValue("parent-action-id")
	if err != nil || parentActionID.Str() != "parent-1" {
		t.Fatalf("expected parent-action-id=parent-1, got %+v, err=%v", parentActionID, err)
	}
}

func TestGetContextValueRejectsUnknownKey(t *testing.T) {
	h := newTestHost(t, security.FullContext())
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	if _, err := h.GetContextValue("not-a-key"); hosterr.KindOf(err) != hosterr.InternalError {
		t.Fatalf("expected InternalError for an unknown context key, got %v", err)
	}
}

func TestGetContextValueWithoutExecutionContextFails(t *testing.T) {
	h := newTestHost(t, security.FullContext())
	if _, err := h.GetContextValue("plan-id"); err == nil {
		t.Fatalf("expected an error when no execution context has been set")
	}
}

func TestTestFallbackContextEnvAllowsMissingExecutionContext(t *testing.T) {
	t.Setenv(testFallbackContextEnv, "true")
	h := newTestHost(t, security.FullContext())

	planID, err := h.GetContextValue("plan-id")
	if err != nil {
		t.Fatalf("expected the fallback context to satisfy GetContextValue, got err=%v", err)
	}
	if planID.Str() != "" {
		t.Fatalf("expected an empty synthesized plan-id, got %q", planID.Str())
	}
}

func TestTestFallbackContextEnvFalsyStillFails(t *testing.T) {
	t.Setenv(testFallbackContextEnv, "false")
	h := newTestHost(t, security.FullContext())

	if _, err := h.GetContextValue("plan-id"); err == nil {
		t.Fatalf("expected a falsy CCOS_TEST_FALLBACK_CONTEXT to still require an execution context")
	}
}

func TestExecuteCapabilityRecordsMetricsExactlyOnce(t *testing.T) {
	sec := security.ControlledContext([]string{"demo.echo"})
	h := newTestHost(t, sec)
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	if _, err := h.ExecuteCapability(context.Background(), "demo.echo", value.Int(1)); err != nil {
		t.Fatalf("ExecuteCapability: %v", err)
	}
	metrics, ok := h.Chain.GetCapabilityMetrics("demo.echo")
	if !ok || metrics.Total != 1 {
		t.Fatalf("expected exactly one recorded call on the shared chain, got %+v", metrics)
	}
}

func TestNotifyStepLifecycle(t *testing.T) {
	h := newTestHost(t, security.FullContext())
	h.SetExecutionContext("plan-1", []string{"intent-1"}, "")

	stepID, err := h.NotifyStepStarted("step-one")
	if err != nil {
		t.Fatalf("NotifyStepStarted: %v", err)
	}
	if err := h.NotifyStepCompleted(stepID, causalchain.ExecutionResult{Success: true}); err != nil {
		t.Fatalf("NotifyStepCompleted: %v", err)
	}

	all := h.Chain.AllActionsSnapshot()
	if len(all) != 2 || all[1].ParentActionID != stepID {
		t.Fatalf("expected PlanStepCompleted parented to the started step, got %+v", all)
	}
}
