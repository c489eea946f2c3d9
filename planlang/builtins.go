package planlang

import (
	"context"
	"strings"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// builtin is a pure function over already-evaluated, already-error-checked
// arguments. It never touches ctx/host: the pure subset of the language
// never surfaces to the host.
type builtin func(args []value.Value) (value.Value, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"+":          arith(func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b }),
		"-":          arith(func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b }),
		"*":          arith(func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b }),
		"/":          divide,
		"mod":        modulo,
		"=":          equalBuiltin,
		"!=":         notEqualBuiltin,
		"<":          compare(func(a, b float64) bool { return a < b }),
		"<=":         compare(func(a, b float64) bool { return a <= b }),
		">":          compare(func(a, b float64) bool { return a > b }),
		">=":         compare(func(a, b float64) bool { return a >= b }),
		"and":        andBuiltin,
		"or":         orBuiltin,
		"not":        notBuiltin,
		"str-concat": strConcat,
		"str-upper":  strUpper,
		"str-lower":  strLower,
		"str-len":    strLen,
		"str-split":  strSplit,
		"vector":     vectorBuiltin,
		"count":      countBuiltin,
		"nth":        nthBuiltin,
		"conj":       conjBuiltin,
		"first":      firstBuiltin,
		"rest":       restBuiltin,
		"empty?":     emptyBuiltin,
		"nil?":       isKind(value.KindNil),
		"bool?":      isKind(value.KindBool),
		"int?":       isKind(value.KindInteger),
		"float?":     isKind(value.KindFloat),
		"string?":    isKind(value.KindString),
		"keyword?":   isKind(value.KindKeyword),
		"vector?":    isKind(value.KindVector),
		"map?":       isKind(value.KindMap),
		"fn?":        isKind(value.KindFunction),
		"error?":        isKind(value.KindError),
		"error-kind":    errorKindBuiltin,
		"error-message": errorMessageBuiltin,
	}
}

func numErr(op string) error {
	return hosterr.Newf(hosterr.TypeMismatch, "planlang: %s requires numeric arguments", op)
}

func arith(floatOp func(a, b float64) float64, intOp func(a, b int64) int64) builtin {
	return func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: arithmetic operator requires at least one argument")
		}
		for _, a := range args {
			if !a.IsNumeric() {
				return value.Nil, numErr("arithmetic operator")
			}
		}
		allInt := true
		for _, a := range args {
			if a.Kind() != value.KindInteger {
				allInt = false
				break
			}
		}
		if allInt {
			acc := args[0].Int()
			for _, a := range args[1:] {
				acc = intOp(acc, a.Int())
			}
			return value.Int(acc), nil
		}
		acc := args[0].Float()
		for _, a := range args[1:] {
			acc = floatOp(acc, a.Float())
		}
		return value.Float(acc), nil
	}
}

func divide(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: / requires exactly two arguments")
	}
	if !args[0].IsNumeric() || !args[1].IsNumeric() {
		return value.Nil, numErr("/")
	}
	if args[1].Float() == 0 {
		return value.Err(string(hosterr.InternalError), "division by zero"), nil
	}
	if args[0].Kind() == value.KindInteger && args[1].Kind() == value.KindInteger && args[0].Int()%args[1].Int() == 0 {
		return value.Int(args[0].Int() / args[1].Int()), nil
	}
	return value.Float(args[0].Float() / args[1].Float()), nil
}

func modulo(args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind() != value.KindInteger || args[1].Kind() != value.KindInteger {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: mod requires two integer arguments")
	}
	if args[1].Int() == 0 {
		return value.Err(string(hosterr.InternalError), "division by zero"), nil
	}
	return value.Int(args[0].Int() % args[1].Int()), nil
}

func equalBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: = requires exactly two arguments")
	}
	return value.Bool(value.Equal(args[0], args[1])), nil
}

func notEqualBuiltin(args []value.Value) (value.Value, error) {
	v, err := equalBuiltin(args)
	if err != nil {
		return value.Nil, err
	}
	return value.Bool(!v.Bool()), nil
}

func compare(cmp func(a, b float64) bool) builtin {
	return func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: comparison requires exactly two arguments")
		}
		if !args[0].IsNumeric() || !args[1].IsNumeric() {
			return value.Nil, numErr("comparison")
		}
		return value.Bool(cmp(args[0].Float(), args[1].Float())), nil
	}
}

func andBuiltin(args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !truthy(a) {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

func orBuiltin(args []value.Value) (value.Value, error) {
	for _, a := range args {
		if truthy(a) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func notBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: not requires exactly one argument")
	}
	return value.Bool(!truthy(args[0])), nil
}

func strConcat(args []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, a := range args {
		if a.Kind() == value.KindString || a.Kind() == value.KindKeyword || a.Kind() == value.KindSymbol {
			b.WriteString(a.Str())
		} else {
			b.WriteString(a.String())
		}
	}
	return value.Str(b.String()), nil
}

func requireString(args []value.Value, op string) (string, error) {
	if len(args) != 1 || args[0].Kind() != value.KindString {
		return "", hosterr.Newf(hosterr.TypeMismatch, "planlang: %s requires exactly one string argument", op)
	}
	return args[0].Str(), nil
}

func strUpper(args []value.Value) (value.Value, error) {
	s, err := requireString(args, "str-upper")
	if err != nil {
		return value.Nil, err
	}
	return value.Str(strings.ToUpper(s)), nil
}

func strLower(args []value.Value) (value.Value, error) {
	s, err := requireString(args, "str-lower")
	if err != nil {
		return value.Nil, err
	}
	return value.Str(strings.ToLower(s)), nil
}

func strLen(args []value.Value) (value.Value, error) {
	s, err := requireString(args, "str-len")
	if err != nil {
		return value.Nil, err
	}
	return value.Int(int64(len(s))), nil
}

func strSplit(args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind() != value.KindString || args[1].Kind() != value.KindString {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: str-split requires two string arguments")
	}
	parts := strings.Split(args[0].Str(), args[1].Str())
	items := make([]value.Value, len(parts))
	for i, p := range parts {
		items[i] = value.Str(p)
	}
	return value.Vector(items), nil
}

func vectorBuiltin(args []value.Value) (value.Value, error) {
	return value.Vector(args), nil
}

func countBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: count requires exactly one argument")
	}
	switch args[0].Kind() {
	case value.KindVector, value.KindList:
		return value.Int(int64(len(args[0].Vec()))), nil
	case value.KindMap:
		return value.Int(int64(len(args[0].MapOrder()))), nil
	case value.KindString:
		return value.Int(int64(len(args[0].Str()))), nil
	case value.KindNil:
		return value.Int(0), nil
	default:
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: count requires a collection, string, or nil")
	}
}

func nthBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[1].Kind() != value.KindInteger {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: nth requires a collection and an integer index")
	}
	items := args[0].Vec()
	idx := args[1].Int()
	if idx < 0 || idx >= int64(len(items)) {
		return value.Err(string(hosterr.SchemaError), "nth index out of range"), nil
	}
	return items[idx], nil
}

func conjBuiltin(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: conj requires a collection argument")
	}
	base := args[0].Vec()
	out := make([]value.Value, 0, len(base)+len(args)-1)
	out = append(out, base...)
	out = append(out, args[1:]...)
	return value.Vector(out), nil
}

func firstBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: first requires exactly one argument")
	}
	items := args[0].Vec()
	if len(items) == 0 {
		return value.Nil, nil
	}
	return items[0], nil
}

func restBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: rest requires exactly one argument")
	}
	items := args[0].Vec()
	if len(items) <= 1 {
		return value.Vector(nil), nil
	}
	return value.Vector(items[1:]), nil
}

func emptyBuiltin(args []value.Value) (value.Value, error) {
	v, err := countBuiltin(args)
	if err != nil {
		return value.Nil, err
	}
	return value.Bool(v.Int() == 0), nil
}

func isKind(k value.Kind) builtin {
	return func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Nil, hosterr.New(hosterr.ArityMismatch, "planlang: type predicate requires exactly one argument")
		}
		return value.Bool(args[0].Kind() == k), nil
	}
}

func errorKindBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind() != value.KindError {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: error-kind requires an error value")
	}
	return value.Str(args[0].ErrorPayload().Kind), nil
}

func errorMessageBuiltin(args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind() != value.KindError {
		return value.Nil, hosterr.New(hosterr.TypeMismatch, "planlang: error-message requires an error value")
	}
	return value.Str(args[0].ErrorPayload().Message), nil
}

// mapBuiltin, filterBuiltin and reduceBuiltin are the higher-order
// collection operations that need live ctx/host access (their element
// function may itself invoke (call ...)), so they aren't registered in the
// builtins table; evalHigherOrder dispatches to them by symbol name.
func mapBuiltin(ctx context.Context, host Host, fnVal value.Value, coll value.Value) (value.Value, error) {
	items := coll.Vec()
	out := make([]value.Value, len(items))
	for i, it := range items {
		v, err := callFunction(ctx, host, fnVal, []value.Value{it})
		if err != nil {
			return value.Nil, err
		}
		if isErr(v) {
			return v, nil
		}
		out[i] = v
	}
	return value.Vector(out), nil
}

func filterBuiltin(ctx context.Context, host Host, fnVal value.Value, coll value.Value) (value.Value, error) {
	items := coll.Vec()
	var out []value.Value
	for _, it := range items {
		v, err := callFunction(ctx, host, fnVal, []value.Value{it})
		if err != nil {
			return value.Nil, err
		}
		if isErr(v) {
			return v, nil
		}
		if truthy(v) {
			out = append(out, it)
		}
	}
	return value.Vector(out), nil
}

func reduceBuiltin(ctx context.Context, host Host, fnVal value.Value, init value.Value, coll value.Value) (value.Value, error) {
	acc := init
	for _, it := range coll.Vec() {
		v, err := callFunction(ctx, host, fnVal, []value.Value{acc, it})
		if err != nil {
			return value.Nil, err
		}
		if isErr(v) {
			return v, nil
		}
		acc = v
	}
	return acc, nil
}
