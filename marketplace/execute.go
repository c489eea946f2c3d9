package marketplace

import (
	"context"
	"time"

	"github.com/mandubian/ccos-sub014/causalchain"
	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/validator"
	"github.com/mandubian/ccos-sub014/value"
)

// Executor dispatches a call to whatever backs a manifest's provider.
// Implemented per provider kind by the executor package and composed into
// a single dispatch table; marketplace only ever calls through this one
// execute(manifest, args, ctx) contract regardless of provider kind.
type Executor interface {
	Execute(ctx context.Context, m *Manifest, args value.Value) (value.Value, error)
}

// Marketplace couples a Registry with the provider dispatch table and an
// optional causal chain for metrics. It is the shared handle passed into
// host construction.
type Marketplace struct {
	Registry  *Registry
	Executors map[ProviderKind]Executor
	Chain     *causalchain.Chain
}

// New constructs a Marketplace with an empty registry and no executors
// wired; callers register executors per provider kind before first use.
func New() *Marketplace {
	return &Marketplace{
		Registry:  NewRegistry(),
		Executors: make(map[ProviderKind]Executor),
	}
}

// RegisterExecutor wires the Executor responsible for kind.
func (mp *Marketplace) RegisterExecutor(kind ProviderKind, ex Executor) {
	mp.Executors[kind] = ex
}

// Execute runs the execution contract below with the default validation
// policy, recording the outcome into the causal chain's capability
// metrics.
func (mp *Marketplace) Execute(ctx context.Context, id string, args value.Value) (value.Value, error) {
	return mp.ExecuteWithValidationConfig(ctx, id, args, validator.DefaultConfig())
}

// ExecuteWithValidationConfig implements:
//  1. fetch manifest (MissingCapability if absent)
//  2. normalize positional args to map when input_schema calls for it
//  3. validate args at the capability boundary
//  4. dispatch to the provider
//  5. validate the returned value against output_schema
//  6. record timing/success/failure into the causal chain's metrics
func (mp *Marketplace) ExecuteWithValidationConfig(ctx context.Context, id string, args value.Value, cfg validator.Config) (value.Value, error) {
	return mp.run(ctx, id, args, cfg, true)
}

// Dispatch runs the same sequence as Execute with the default validation
// policy but does not fold the outcome into the marketplace's own
// capability metrics. Callers that already record the outcome against the
// same causal chain by another path (the Host folds a CapabilityCall's
// paired CapabilityResult into the identical capability metrics map via
// Chain.RecordResult) use this to avoid a double count.
func (mp *Marketplace) Dispatch(ctx context.Context, id string, args value.Value) (value.Value, error) {
	return mp.DispatchWithValidationConfig(ctx, id, args, validator.DefaultConfig())
}

// DispatchWithValidationConfig is Dispatch with an explicit validation
// policy.
func (mp *Marketplace) DispatchWithValidationConfig(ctx context.Context, id string, args value.Value, cfg validator.Config) (value.Value, error) {
	return mp.run(ctx, id, args, cfg, false)
}

func (mp *Marketplace) run(ctx context.Context, id string, args value.Value, cfg validator.Config, recordMetrics bool) (value.Value, error) {
	manifest, ok := mp.Registry.Get(id)
	if !ok {
		return value.Nil, hosterr.Newf(hosterr.MissingCapability, "no capability registered with id %q", id)
	}

	record := func(success bool, durationMs int64) {
		if recordMetrics {
			mp.recordOutcome(id, success, durationMs)
		}
	}

	normalized, err := normalizeIfNeeded(args, manifest.InputSchema)
	if err != nil {
		return value.Nil, err
	}

	if manifest.InputSchema != nil {
		boundaryCtx := validator.Context{Origin: validator.OriginCapabilityBoundary, Label: id}
		if err := validator.Validate(normalized, *manifest.InputSchema, cfg, boundaryCtx); err != nil {
			record(false, 0)
			return value.Nil, err
		}
	}

	executor, ok := mp.Executors[manifest.Provider.Kind]
	if !ok {
		record(false, 0)
		return value.Nil, hosterr.Newf(hosterr.InternalError, "no executor registered for provider kind %s", manifest.Provider.Kind)
	}

	started := time.Now()
	result, execErr := executor.Execute(ctx, manifest, normalized)
	duration := time.Since(started).Milliseconds()
	if execErr != nil {
		record(false, duration)
		return value.Nil, execErr
	}

	if manifest.OutputSchema != nil {
		boundaryCtx := validator.Context{Origin: validator.OriginCapabilityBoundary, Label: id}
		if err := validator.Validate(result, *manifest.OutputSchema, cfg, boundaryCtx); err != nil {
			record(false, duration)
			return value.Nil, err
		}
	}

	record(true, duration)
	return result, nil
}

func (mp *Marketplace) recordOutcome(id string, success bool, durationMs int64) {
	if mp.Chain == nil {
		return
	}
	mp.Chain.RecordCapabilityOutcome(id, success, durationMs)
}

func normalizeIfNeeded(args value.Value, schema *value.TypeExpr) (value.Value, error) {
	if schema == nil {
		return args, nil
	}
	if schema.Kind() != value.TypeMap {
		return args, nil
	}
	switch args.Kind() {
	case value.KindVector, value.KindList:
		return NormalizeArgsToMap(args.Vec(), *schema)
	case value.KindNil:
		return NormalizeArgsToMap(nil, *schema)
	default:
		return NormalizeArgsToMap([]value.Value{args}, *schema)
	}
}
