package planlang

import (
	"context"
	"fmt"
	"sync"

	"github.com/mandubian/ccos-sub014/causalchain"
	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// Host is the subset of host.Host an evaluator needs. It is expressed as an
// interface so the pure evaluation core can be tested without a real
// Marketplace/Causal Chain/Security wiring behind it.
type Host interface {
	ExecuteCapability(ctx context.Context, name string, args value.Value) (value.Value, error)
	NotifyStepStarted(stepName string) (string, error)
	NotifyStepCompleted(stepActionID string, result causalchain.ExecutionResult) error
	NotifyStepFailed(stepActionID string, errMsg string) error
	PushStepExposureOverride(expose bool, allowedKeys []string)
	PopStepExposureOverride()
}

// Env is a lexical scope: a frame of bindings plus an optional parent to
// walk for names this frame doesn't hold.
type Env struct {
	parent *Env
	vars   map[string]value.Value
}

// NewEnv returns an empty root environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]value.Value)}
}

// Child returns a new scope nested under e.
func (e *Env) Child() *Env {
	return &Env{parent: e, vars: make(map[string]value.Value)}
}

// Define binds name in this frame, shadowing any outer binding.
func (e *Env) Define(name string, v value.Value) {
	e.vars[name] = v
}

// Lookup walks the scope chain for name.
func (e *Env) Lookup(name string) (value.Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return value.Nil, false
}

// closure is the evaluator's own Function.Call implementation for a fn
// literal: it captures its defining environment and re-enters Eval on apply.
type closure struct {
	params   []string
	variadic bool
	body     []*Node
	env      *Env
}

// isErr reports whether v is a pure-side error value: pure subset failures
// surface as tagged Error values rather than Go errors, so they can be
// matched with (if (error? expr) ...) instead of unwinding.
func isErr(v value.Value) bool { return v.Kind() == value.KindError }

// Eval walks a single node to a Value. Special forms (let/if/do/fn/call/
// step/quote) are handled directly; everything else is a function
// application, where the head is evaluated and dispatched through its
// Function payload.
func Eval(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	switch node.Kind {
	case NodeLiteral:
		return node.Lit, nil
	case NodeSymbol:
		if v, ok := env.Lookup(node.Sym); ok {
			return v, nil
		}
		return value.Nil, hosterr.Newf(hosterr.SchemaError, "planlang: unbound symbol %q", node.Sym)
	case NodeList:
		return evalList(ctx, node, env, host)
	default:
		return value.Nil, hosterr.Newf(hosterr.InternalError, "planlang: unknown node kind %d", node.Kind)
	}
}

func evalList(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	if len(node.Items) == 0 {
		return value.Nil, hosterr.New(hosterr.SchemaError, "planlang: empty application")
	}
	head := node.Items[0]
	if head.Kind == NodeSymbol {
		switch head.Sym {
		case "quote":
			return evalQuote(node)
		case "let":
			return evalLet(ctx, node, env, host)
		case "if":
			return evalIf(ctx, node, env, host)
		case "do":
			return evalDo(ctx, node, env, host)
		case "fn":
			return evalFn(node, env)
		case "call":
			return evalCall(ctx, node, env, host)
		case "step":
			return evalStep(ctx, node, env, host)
		case "map", "filter", "reduce":
			return evalHigherOrder(ctx, head.Sym, node, env, host)
		}
		if builtin, ok := builtins[head.Sym]; ok {
			args, err := evalArgs(ctx, node.Items[1:], env, host)
			if err != nil {
				return value.Nil, err
			}
			// The error-inspection builtins take the error value itself as
			// their argument; every other builtin short-circuits on it.
			inspectsErrors := head.Sym == "error?" || head.Sym == "error-kind" || head.Sym == "error-message"
			if errVal, ok := firstError(args); ok && !inspectsErrors {
				return errVal, nil
			}
			return builtin(args)
		}
	}

	fnVal, err := Eval(ctx, head, env, host)
	if err != nil {
		return value.Nil, err
	}
	if isErr(fnVal) {
		return fnVal, nil
	}
	args, err := evalArgs(ctx, node.Items[1:], env, host)
	if err != nil {
		return value.Nil, err
	}
	if errVal, ok := firstError(args); ok {
		return errVal, nil
	}
	return callFunction(ctx, host, fnVal, args)
}

// evalHigherOrder implements (map fn coll), (filter fn coll), and
// (reduce fn init coll): the element function may itself call a
// capability, so these dispatch through callFunction with the live
// ctx/host rather than going through the pure builtins table.
func evalHigherOrder(ctx context.Context, op string, node *Node, env *Env, host Host) (value.Value, error) {
	args, err := evalArgs(ctx, node.Items[1:], env, host)
	if err != nil {
		return value.Nil, err
	}
	if errVal, ok := firstError(args); ok {
		return errVal, nil
	}
	switch op {
	case "map":
		if len(args) != 2 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: map requires a function and a collection")
		}
		return mapBuiltin(ctx, host, args[0], args[1])
	case "filter":
		if len(args) != 2 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: filter requires a function and a collection")
		}
		return filterBuiltin(ctx, host, args[0], args[1])
	case "reduce":
		if len(args) != 3 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: reduce requires a function, an initial value, and a collection")
		}
		return reduceBuiltin(ctx, host, args[0], args[1], args[2])
	default:
		return value.Nil, hosterr.Newf(hosterr.InternalError, "planlang: unknown higher-order form %q", op)
	}
}

// closureRegistry maps a closure's *value.Function identity back to the
// closure that produced it, so applying a function from inside the
// evaluator (as opposed to a foreign Go caller holding a bare Value) can
// thread the live ctx/host through to any (call ...)/(step ...) forms in
// its body instead of falling back to unavailableHost.
var closureRegistry sync.Map // map[*value.Function]*closure

// callFunction applies fnVal to args, threading ctx/host through when fnVal
// is a planlang closure so its body can still suspend to the host.
func callFunction(ctx context.Context, host Host, fnVal value.Value, args []value.Value) (value.Value, error) {
	fn := fnVal.Fn()
	if fn == nil {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: attempted to call a non-function value")
	}
	if !fn.Variadic && len(args) != fn.Arity {
		return value.Nil, hosterr.Newf(hosterr.ArityMismatch, "planlang: %s expects %d args, got %d", fn.Name, fn.Arity, len(args))
	}
	if fn.Variadic && len(args) < fn.Arity {
		return value.Nil, hosterr.Newf(hosterr.ArityMismatch, "planlang: %s expects at least %d args, got %d", fn.Name, fn.Arity, len(args))
	}
	if cl, ok := closureRegistry.Load(fn); ok {
		return cl.(*closure).apply(ctx, host, args)
	}
	return fn.Call(args)
}

func evalArgs(ctx context.Context, nodes []*Node, env *Env, host Host) ([]value.Value, error) {
	out := make([]value.Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := Eval(ctx, n, env, host)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if isErr(v) {
			// Short-circuit: later args still need to type-check as nodes,
			// but there's no point evaluating further once one has failed.
			return out, nil
		}
	}
	return out, nil
}

func firstError(vals []value.Value) (value.Value, bool) {
	for _, v := range vals {
		if isErr(v) {
			return v, true
		}
	}
	return value.Nil, false
}

func evalQuote(node *Node) (value.Value, error) {
	if len(node.Items) != 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: quote expects exactly one argument")
	}
	return nodeToValue(node.Items[1]), nil
}

func nodeToValue(n *Node) value.Value {
	switch n.Kind {
	case NodeLiteral:
		return n.Lit
	case NodeSymbol:
		return value.Symbol(n.Sym)
	case NodeList:
		items := make([]value.Value, len(n.Items))
		for i, it := range n.Items {
			items[i] = nodeToValue(it)
		}
		return value.List(items)
	default:
		return value.Nil
	}
}

// evalLet implements (let (a 1 b 2) body...): a flat binding list evaluated
// left to right in a single new child scope, each binding visible to the
// ones after it, followed by an implicit do over the body forms.
func evalLet(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	if len(node.Items) < 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: let requires a binding list")
	}
	bindings := node.Items[1]
	if bindings.Kind != NodeList || len(bindings.Items)%2 != 0 {
		return value.Nil, hosterr.New(hosterr.SchemaError, "planlang: let bindings must be an even-length list of name/expr pairs")
	}
	child := env.Child()
	for i := 0; i < len(bindings.Items); i += 2 {
		nameNode := bindings.Items[i]
		if nameNode.Kind != NodeSymbol {
			return value.Nil, hosterr.New(hosterr.SchemaError, "planlang: let binding name must be a symbol")
		}
		v, err := Eval(ctx, bindings.Items[i+1], child, host)
		if err != nil {
			return value.Nil, err
		}
		if isErr(v) {
			return v, nil
		}
		child.Define(nameNode.Sym, v)
	}
	return evalBody(ctx, node.Items[2:], child, host)
}

func evalIf(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	if len(node.Items) < 3 || len(node.Items) > 4 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: if takes a condition, a then-branch, and an optional else-branch")
	}
	cond, err := Eval(ctx, node.Items[1], env, host)
	if err != nil {
		return value.Nil, err
	}
	if isErr(cond) {
		return cond, nil
	}
	if truthy(cond) {
		return Eval(ctx, node.Items[2], env, host)
	}
	if len(node.Items) == 4 {
		return Eval(ctx, node.Items[3], env, host)
	}
	return value.Nil, nil
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindNil:
		return false
	case value.KindBool:
		return v.Bool()
	default:
		return true
	}
}

func evalDo(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	return evalBody(ctx, node.Items[1:], env, host)
}

func evalBody(ctx context.Context, nodes []*Node, env *Env, host Host) (value.Value, error) {
	if len(nodes) == 0 {
		return value.Nil, nil
	}
	var result value.Value
	for _, n := range nodes {
		v, err := Eval(ctx, n, env, host)
		if err != nil {
			return value.Nil, err
		}
		if isErr(v) {
			return v, nil
		}
		result = v
	}
	return result, nil
}

// evalFn implements (fn (a b) body...), producing a closure Value that
// captures env at definition time.
func evalFn(node *Node, env *Env) (value.Value, error) {
	if len(node.Items) < 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: fn requires a parameter list")
	}
	paramsNode := node.Items[1]
	if paramsNode.Kind != NodeList {
		return value.Nil, hosterr.New(hosterr.SchemaError, "planlang: fn parameter list must be a list of symbols")
	}
	var params []string
	variadic := false
	for i, p := range paramsNode.Items {
		if p.Kind != NodeSymbol {
			return value.Nil, hosterr.New(hosterr.SchemaError, "planlang: fn parameter must be a symbol")
		}
		if p.Sym == "&" {
			variadic = true
			continue
		}
		if variadic && i == len(paramsNode.Items)-1 {
			params = append(params, p.Sym)
			break
		}
		params = append(params, p.Sym)
	}
	cl := &closure{params: params, variadic: variadic, body: node.Items[2:], env: env}
	arity := len(params)
	if variadic {
		arity--
	}
	fn := &value.Function{
		Name:     "fn",
		Arity:    arity,
		Variadic: variadic,
		Call: func(args []value.Value) (value.Value, error) {
			return cl.apply(context.Background(), unavailableHost{}, args)
		},
	}
	closureRegistry.Store(fn, cl)
	return value.Func(fn), nil
}

// apply runs the closure body in a fresh scope nested under its defining
// environment. ctx/host are the live values at the application site when
// reached through callFunction; a bare fn.Call from outside the evaluator
// falls back to context.Background()/unavailableHost.
func (c *closure) apply(ctx context.Context, host Host, args []value.Value) (value.Value, error) {
	child := c.env.Child()
	fixed := c.params
	if c.variadic {
		fixed = c.params[:len(c.params)-1]
	}
	for i, name := range fixed {
		if i < len(args) {
			child.Define(name, args[i])
		} else {
			child.Define(name, value.Nil)
		}
	}
	if c.variadic {
		rest := args[len(fixed):]
		child.Define(c.params[len(c.params)-1], value.Vector(rest))
	}
	return evalBody(ctx, c.body, child, host)
}

// unavailableHost backs a closure invoked through its bare value.Function.Call
// field rather than through callFunction, e.g. by a foreign caller holding
// only the Value. Pure bodies work fine against it; a body that reaches
// (call ...) this way gets a security-violation error value rather than
// panicking on a nil host, and (step ...) boundaries run without recording
// any step notification.
type unavailableHost struct{}

func (unavailableHost) ExecuteCapability(ctx context.Context, name string, args value.Value) (value.Value, error) {
	return value.Nil, hosterr.New(hosterr.SecurityViolation, "planlang: call not permitted from this evaluation context")
}
func (unavailableHost) NotifyStepStarted(stepName string) (string, error) { return "", nil }
func (unavailableHost) NotifyStepCompleted(stepActionID string, result causalchain.ExecutionResult) error {
	return nil
}
func (unavailableHost) NotifyStepFailed(stepActionID string, errMsg string) error { return nil }
func (unavailableHost) PushStepExposureOverride(expose bool, allowedKeys []string) {}
func (unavailableHost) PopStepExposureOverride()                                  {}

// evalCall implements (call "cap.id" args...): the only point where
// evaluation suspends out to the host.
func evalCall(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	if len(node.Items) < 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: call requires a capability id")
	}
	idVal, err := Eval(ctx, node.Items[1], env, host)
	if err != nil {
		return value.Nil, err
	}
	if isErr(idVal) {
		return idVal, nil
	}
	if idVal.Kind() != value.KindString {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: call's capability id must be a string")
	}
	args, err := evalArgs(ctx, node.Items[2:], env, host)
	if err != nil {
		return value.Nil, err
	}
	if errVal, ok := firstError(args); ok {
		return errVal, nil
	}
	result, execErr := host.ExecuteCapability(ctx, idVal.Str(), value.Vector(args))
	if execErr != nil {
		return value.Err(string(hosterr.KindOf(execErr)), execErr.Error()), nil
	}
	return result, nil
}

type stepOverride struct {
	expose      bool
	allowedKeys []string
}

// parseStepOverride recognizes an optional leading `:expose <bool>` and/or
// `:keys <vector-of-strings>` keyword pair before the step body, e.g.
// (step "name" :expose true :keys (vector "plan_id") body...). Returns the
// remaining body nodes and whether an override was specified at all.
func parseStepOverride(ctx context.Context, nodes []*Node, env *Env, host Host) ([]*Node, stepOverride, bool, error) {
	var override stepOverride
	found := false
	i := 0
	for i+1 < len(nodes) {
		kwNode := nodes[i]
		if kwNode.Kind != NodeLiteral || kwNode.Lit.Kind() != value.KindKeyword {
			break
		}
		switch kwNode.Lit.Str() {
		case "expose":
			v, err := Eval(ctx, nodes[i+1], env, host)
			if err != nil {
				return nil, override, false, err
			}
			override.expose = truthy(v)
			found = true
			i += 2
		case "keys":
			v, err := Eval(ctx, nodes[i+1], env, host)
			if err != nil {
				return nil, override, false, err
			}
			for _, k := range v.Vec() {
				override.allowedKeys = append(override.allowedKeys, k.Str())
			}
			found = true
			i += 2
		default:
			return nodes[i:], override, found, nil
		}
	}
	return nodes[i:], override, found, nil
}

// evalStep implements (step "name" body...): not a function, a boundary
// that emits notify_step_started/completed/failed on every exit path,
// regardless of whether body succeeds, fails, or produces a pure error.
func evalStep(ctx context.Context, node *Node, env *Env, host Host) (value.Value, error) {
	if len(node.Items) < 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: step requires a name")
	}
	nameVal, err := Eval(ctx, node.Items[1], env, host)
	if err != nil {
		return value.Nil, err
	}
	name := nameVal.Str()
	if nameVal.Kind() != value.KindString {
		name = fmt.Sprintf("%v", nameVal)
	}

	body, override, hasOverride, err := parseStepOverride(ctx, node.Items[2:], env, host)
	if err != nil {
		return value.Nil, err
	}

	stepID, err := host.NotifyStepStarted(name)
	if err != nil {
		return value.Nil, err
	}
	if hasOverride {
		host.PushStepExposureOverride(override.expose, override.allowedKeys)
		defer host.PopStepExposureOverride()
	}

	result, evalErr := evalBody(ctx, body, env, host)
	if evalErr != nil {
		_ = host.NotifyStepFailed(stepID, evalErr.Error())
		return value.Nil, evalErr
	}
	if isErr(result) {
		payload := result.ErrorPayload()
		msg := ""
		if payload != nil {
			msg = payload.Message
		}
		_ = host.NotifyStepFailed(stepID, msg)
		return result, nil
	}

	if err := host.NotifyStepCompleted(stepID, causalchain.ExecutionResult{Success: true, Value: result}); err != nil {
		return value.Nil, err
	}
	return result, nil
}
