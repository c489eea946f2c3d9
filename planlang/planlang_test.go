package planlang

import (
	"context"
	"errors"
	"testing"

	"github.com/mandubian/ccos-sub014/causalchain"
	"github.com/mandubian/ccos-sub014/value"
)

type fakeHost struct {
	calls          []string
	executeFn      func(name string, args value.Value) (value.Value, error)
	started        []string
	completed      []string
	failed         []string
	exposureStack  []stepOverride
	exposureEvents []string
}

func (h *fakeHost) ExecuteCapability(ctx context.Context, name string, args value.Value) (value.Value, error) {
	h.calls = append(h.calls, name)
	if h.executeFn != nil {
		return h.executeFn(name, args)
	}
	return args, nil
}

func (h *fakeHost) NotifyStepStarted(stepName string) (string, error) {
	h.started = append(h.started, stepName)
	return "step-" + stepName, nil
}

func (h *fakeHost) NotifyStepCompleted(stepActionID string, result causalchain.ExecutionResult) error {
	h.completed = append(h.completed, stepActionID)
	return nil
}

func (h *fakeHost) NotifyStepFailed(stepActionID string, errMsg string) error {
	h.failed = append(h.failed, stepActionID)
	return nil
}

func (h *fakeHost) PushStepExposureOverride(expose bool, allowedKeys []string) {
	h.exposureStack = append(h.exposureStack, stepOverride{expose: expose, allowedKeys: allowedKeys})
	h.exposureEvents = append(h.exposureEvents, "push")
}

func (h *fakeHost) PopStepExposureOverride() {
	if n := len(h.exposureStack); n > 0 {
		h.exposureStack = h.exposureStack[:n-1]
	}
	h.exposureEvents = append(h.exposureEvents, "pop")
}

func evalSrc(t *testing.T, src string, host Host) value.Value {
	t.Helper()
	node, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	v, err := Eval(context.Background(), node, NewEnv(), host)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func TestParseLiteralsAndLists(t *testing.T) {
	node, err := Parse(`(+ 1 2.5 "x" :k true nil)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if node.Kind != NodeList || len(node.Items) != 7 {
		t.Fatalf("expected a 7-element list, got %+v", node)
	}
	if node.Items[0].Kind != NodeSymbol || node.Items[0].Sym != "+" {
		t.Fatalf("expected head symbol +, got %+v", node.Items[0])
	}
	if node.Items[1].Lit.Kind() != value.KindInteger || node.Items[1].Lit.Int() != 1 {
		t.Fatalf("expected integer literal 1, got %+v", node.Items[1])
	}
	if node.Items[2].Lit.Kind() != value.KindFloat {
		t.Fatalf("expected float literal, got %+v", node.Items[2])
	}
	if node.Items[3].Lit.Kind() != value.KindString || node.Items[3].Lit.Str() != "x" {
		t.Fatalf("expected string literal x, got %+v", node.Items[3])
	}
	if node.Items[4].Lit.Kind() != value.KindKeyword || node.Items[4].Lit.Str() != "k" {
		t.Fatalf("expected keyword literal k, got %+v", node.Items[4])
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := Parse(`(+ 1 2) garbage`); err == nil {
		t.Fatalf("expected trailing input to be rejected")
	}
}

func TestParseProgramReadsMultipleForms(t *testing.T) {
	nodes, err := ParseProgram(`(+ 1 1) (* 2 2)`)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 top-level forms, got %d", len(nodes))
	}
}

func TestEvalArithmeticKeepsIntegersExact(t *testing.T) {
	v := evalSrc(t, `(+ 1 2 3)`, &fakeHost{})
	if v.Kind() != value.KindInteger || v.Int() != 6 {
		t.Fatalf("expected integer 6, got %+v", v)
	}
}

func TestEvalArithmeticPromotesToFloat(t *testing.T) {
	v := evalSrc(t, `(+ 1 2.5)`, &fakeHost{})
	if v.Kind() != value.KindFloat || v.Float() != 3.5 {
		t.Fatalf("expected float 3.5, got %+v", v)
	}
}

func TestEvalDivisionByZeroIsPureError(t *testing.T) {
	v := evalSrc(t, `(/ 1 0)`, &fakeHost{})
	if !isErr(v) {
		t.Fatalf("expected a pure error value, got %+v", v)
	}
}

func TestEvalLetSequentialBindings(t *testing.T) {
	v := evalSrc(t, `(let (a 1 b (+ a 1)) (+ a b))`, &fakeHost{})
	if v.Kind() != value.KindInteger || v.Int() != 3 {
		t.Fatalf("expected integer 3, got %+v", v)
	}
}

func TestEvalIfBranches(t *testing.T) {
	if v := evalSrc(t, `(if true 1 2)`, &fakeHost{}); v.Int() != 1 {
		t.Fatalf("expected then-branch, got %+v", v)
	}
	if v := evalSrc(t, `(if false 1 2)`, &fakeHost{}); v.Int() != 2 {
		t.Fatalf("expected else-branch, got %+v", v)
	}
	if v := evalSrc(t, `(if false 1)`, &fakeHost{}); v.Kind() != value.KindNil {
		t.Fatalf("expected nil when else is absent, got %+v", v)
	}
}

func TestEvalFnClosureCapturesEnv(t *testing.T) {
	v := evalSrc(t, `(let (x 10 f (fn (y) (+ x y))) (f 5))`, &fakeHost{})
	if v.Kind() != value.KindInteger || v.Int() != 15 {
		t.Fatalf("expected closure to capture x=10, got %+v", v)
	}
}

func TestEvalErrorShortCircuitsArguments(t *testing.T) {
	v := evalSrc(t, `(+ (/ 1 0) 99)`, &fakeHost{})
	if !isErr(v) {
		t.Fatalf("expected the division error to propagate, got %+v", v)
	}
}

func TestEvalCallSuspendsToHost(t *testing.T) {
	h := &fakeHost{executeFn: func(name string, args value.Value) (value.Value, error) {
		return value.Int(int64(len(args.Vec()))), nil
	}}
	v := evalSrc(t, `(call "demo.echo" 1 2 3)`, h)
	if len(h.calls) != 1 || h.calls[0] != "demo.echo" {
		t.Fatalf("expected exactly one call to demo.echo, got %+v", h.calls)
	}
	if v.Int() != 3 {
		t.Fatalf("expected the host's echoed arg count 3, got %+v", v)
	}
}

func TestEvalCallTranslatesHostErrorToErrorValue(t *testing.T) {
	h := &fakeHost{executeFn: func(name string, args value.Value) (value.Value, error) {
		return value.Nil, errors.New("boom")
	}}
	v := evalSrc(t, `(call "demo.fail")`, h)
	if !isErr(v) {
		t.Fatalf("expected a host failure to surface as a pure error value, got %+v", v)
	}
}

func TestEvalStepLifecycleSuccess(t *testing.T) {
	h := &fakeHost{}
	v := evalSrc(t, `(step "do-thing" (+ 1 1))`, h)
	if v.Int() != 2 {
		t.Fatalf("expected step body result 2, got %+v", v)
	}
	if len(h.started) != 1 || len(h.completed) != 1 || len(h.failed) != 0 {
		t.Fatalf("expected one start and one completion, got started=%v completed=%v failed=%v", h.started, h.completed, h.failed)
	}
	if h.completed[0] != "step-do-thing" {
		t.Fatalf("expected completion parented to the started step id, got %v", h.completed)
	}
}

func TestEvalStepLifecycleFailureOnPureError(t *testing.T) {
	h := &fakeHost{}
	v := evalSrc(t, `(step "risky" (/ 1 0))`, h)
	if !isErr(v) {
		t.Fatalf("expected the pure error to propagate out of the step, got %+v", v)
	}
	if len(h.started) != 1 || len(h.completed) != 0 || len(h.failed) != 1 {
		t.Fatalf("expected one start and one failure notification, got started=%v completed=%v failed=%v", h.started, h.completed, h.failed)
	}
}

func TestEvalStepPushesAndPopsExposureOverride(t *testing.T) {
	h := &fakeHost{}
	evalSrc(t, `(step "s" :expose true :keys (vector "plan_id") (call "demo.echo"))`, h)
	if len(h.exposureEvents) != 2 || h.exposureEvents[0] != "push" || h.exposureEvents[1] != "pop" {
		t.Fatalf("expected a push followed by a pop, got %v", h.exposureEvents)
	}
}

func TestEvalMapFilterReduce(t *testing.T) {
	h := &fakeHost{}
	if v := evalSrc(t, `(map (fn (x) (* x 2)) (vector 1 2 3))`, h); len(v.Vec()) != 3 || v.Vec()[1].Int() != 4 {
		t.Fatalf("expected [2 4 6], got %+v", v)
	}
	if v := evalSrc(t, `(filter (fn (x) (> x 1)) (vector 1 2 3))`, h); len(v.Vec()) != 2 {
		t.Fatalf("expected 2 surviving elements, got %+v", v)
	}
	if v := evalSrc(t, `(reduce (fn (acc x) (+ acc x)) 0 (vector 1 2 3))`, h); v.Int() != 6 {
		t.Fatalf("expected sum 6, got %+v", v)
	}
}

func TestEvalHigherOrderThreadsHostThroughClosure(t *testing.T) {
	h := &fakeHost{executeFn: func(name string, args value.Value) (value.Value, error) {
		return value.Int(1), nil
	}}
	v := evalSrc(t, `(map (fn (x) (call "demo.echo")) (vector 1 2))`, h)
	if len(h.calls) != 2 {
		t.Fatalf("expected the mapped closure to reach the host twice, got %v", h.calls)
	}
	if v.Vec()[0].Int() != 1 || v.Vec()[1].Int() != 1 {
		t.Fatalf("expected both mapped results to be 1, got %+v", v)
	}
}

func TestTypePredicates(t *testing.T) {
	if v := evalSrc(t, `(nil? nil)`, &fakeHost{}); !v.Bool() {
		t.Fatalf("expected nil? nil to be true")
	}
	if v := evalSrc(t, `(int? 1)`, &fakeHost{}); !v.Bool() {
		t.Fatalf("expected int? 1 to be true")
	}
	if v := evalSrc(t, `(error? (/ 1 0))`, &fakeHost{}); !v.Bool() {
		t.Fatalf("expected error? applied to a division error to be true")
	}
}
