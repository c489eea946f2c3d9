package budget

import "testing"

func TestRemainingCalculation(t *testing.T) {
	ctx := New(Limits{Steps: 10, LLMTokens: 1000}, Policies{})
	ctx.RecordStep(StepConsumption{LLMInputTokens: 100, LLMOutputTokens: 50})

	r := ctx.Remaining()
	if r.Steps != 9 {
		t.Fatalf("expected 9 steps remaining, got %d", r.Steps)
	}
	if r.LLMTokens != 850 {
		t.Fatalf("expected 850 tokens remaining, got %d", r.LLMTokens)
	}
}

func TestWarningNotRepeated(t *testing.T) {
	ctx := New(Limits{Steps: 10}, Policies{})
	for i := 0; i < 5; i++ {
		ctx.RecordStep(StepConsumption{})
	}
	first := ctx.Check()
	if first.Status != StatusWarning || first.Percent != 50 {
		t.Fatalf("expected a 50%% warning on first check, got %+v", first)
	}
	second := ctx.Check()
	if second.Status != StatusOK {
		t.Fatalf("expected the repeated warning to be suppressed, got %+v", second)
	}
}

func TestExtendBudgetClearsWarningsAndExhaustion(t *testing.T) {
	ctx := New(Limits{Steps: 2}, Policies{Steps: HardFail})
	ctx.RecordStep(StepConsumption{})
	ctx.RecordStep(StepConsumption{})

	exhausted := ctx.Check()
	if exhausted.Status != StatusExhausted {
		t.Fatalf("expected exhaustion after 2/2 steps, got %+v", exhausted)
	}

	ctx.ExtendSteps(5)
	ok := ctx.Check()
	if ok.Status != StatusOK {
		t.Fatalf("expected Ok after extending steps, got %+v", ok)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	ctx := New(Limits{Steps: 0}, Policies{})
	for i := 0; i < 1000; i++ {
		ctx.RecordStep(StepConsumption{})
	}
	if result := ctx.Check(); result.Status != StatusOK {
		t.Fatalf("expected zero-limit dimension to never warn/exhaust, got %+v", result)
	}
}

func TestCostTrackedAsScaledInteger(t *testing.T) {
	ctx := New(Limits{CostUSD: 1.0}, Policies{})
	ctx.RecordStep(StepConsumption{CostUSD: 0.5})
	r := ctx.Remaining()
	if r.CostUSD < 0.49 || r.CostUSD > 0.51 {
		t.Fatalf("expected ~0.5 remaining cost, got %v", r.CostUSD)
	}
}

func TestCheckDimensionPriorityOrder(t *testing.T) {
	// Exhaust steps (priority 1) and wall-clock adjacent dimensions should
	// never be reached in the same Check call.
	ctx := New(Limits{Steps: 1, LLMTokens: 1}, Policies{})
	ctx.RecordStep(StepConsumption{LLMInputTokens: 1})
	result := ctx.Check()
	if result.Status != StatusExhausted || result.Dimension != DimSteps {
		t.Fatalf("expected steps to be reported first, got %+v", result)
	}
}
