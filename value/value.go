// Package value defines the universal runtime datum (Value) and the schema
// description language (TypeExpr) shared by every CCOS component. Values are
// immutable from the evaluator's perspective: every operation that appears to
// "mutate" a Value instead produces a new one.
package value

import "fmt"

// Kind tags the variant carried by a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindKeyword
	KindSymbol
	KindVector
	KindList
	KindMap
	KindFunction
	KindError
	KindResourceHandle
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindKeyword:
		return "keyword"
	case KindSymbol:
		return "symbol"
	case KindVector:
		return "vector"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindFunction:
		return "function"
	case KindError:
		return "error"
	case KindResourceHandle:
		return "resource-handle"
	default:
		return "unknown"
	}
}

// MapKey is the restricted key type accepted by Value maps: Keyword, String,
// or Integer. A plain Value cannot be a Go map key because it carries slice
// and map fields; MapKey is the small comparable struct used instead, and it
// makes the key restriction explicit in the type system.
type MapKey struct {
	kind Kind
	s    string
	i    int64
}

// KeywordKey constructs a map key from an interned keyword name.
func KeywordKey(name string) MapKey { return MapKey{kind: KindKeyword, s: name} }

// StringKey constructs a map key from a string.
func StringKey(s string) MapKey { return MapKey{kind: KindString, s: s} }

// IntKey constructs a map key from an integer.
func IntKey(i int64) MapKey { return MapKey{kind: KindInteger, i: i} }

// Kind reports which variant this key holds.
func (k MapKey) Kind() Kind { return k.kind }

// Name returns the keyword or string payload; empty for integer keys.
func (k MapKey) Name() string { return k.s }

// Int returns the integer payload; zero for non-integer keys.
func (k MapKey) Int() int64 { return k.i }

// String renders the key using the same textual convention as the JSON wire
// mapping (§4.6): keywords as ":name", strings raw, integers as decimal text.
func (k MapKey) String() string {
	switch k.kind {
	case KindKeyword:
		return ":" + k.s
	case KindInteger:
		return fmt.Sprintf("%d", k.i)
	default:
		return k.s
	}
}

// Function is the opaque callable variant. Arity is the fixed parameter
// count; Variadic indicates the function accepts a trailing variable-length
// argument. Call is supplied by whatever evaluator constructed the value (the
// planlang interpreter for plan-language closures, or a host-native wrapper).
type Function struct {
	Name     string
	Arity    int
	Variadic bool
	Call     func(args []Value) (Value, error)
}

// ErrorValue is the tagged failure payload carried by Value's Error variant.
type ErrorValue struct {
	Kind    string
	Message string
	Data    Value
}

func (e *ErrorValue) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// ResourceHandle is an opaque reference to a host-managed resource (a file
// descriptor, a sandbox session, ...). The runtime never interprets Data; it
// is meaningful only to the provider that produced it.
type ResourceHandle struct {
	Type string
	ID   string
	Data any
}

// Value is the tagged union runtime datum shared across evaluation, the
// causal chain, and the marketplace boundary. Zero value is Nil.
type Value struct {
	kind    Kind
	b       bool
	i       int64
	f       float64
	s       string
	vec     []Value
	m       map[MapKey]Value
	mOrder  []MapKey
	fn      *Function
	err     *ErrorValue
	handle  *ResourceHandle
}

// Nil is the canonical Nil value.
var Nil = Value{kind: KindNil}

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs an Integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float constructs a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Str constructs a String value.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// Keyword constructs a Keyword value.
func Keyword(name string) Value { return Value{kind: KindKeyword, s: name} }

// Symbol constructs a Symbol value.
func Symbol(name string) Value { return Value{kind: KindSymbol, s: name} }

// Vector constructs a Vector value. The slice is copied defensively.
func Vector(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindVector, vec: cp}
}

// List constructs a List value, semantically identical to Vector for host
// purposes but tagged separately so printers can distinguish literal forms.
func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, vec: cp}
}

// NewMap constructs a Map value from key/value pairs, preserving the order
// entries were supplied in (insertion order need not be preserved per spec,
// but preserving it makes printers and JSON export deterministic).
func NewMap(pairs map[MapKey]Value, order []MapKey) Value {
	cp := make(map[MapKey]Value, len(pairs))
	for k, v := range pairs {
		cp[k] = v
	}
	ord := make([]MapKey, len(order))
	copy(ord, order)
	return Value{kind: KindMap, m: cp, mOrder: ord}
}

// MapBuilder accumulates key/value pairs preserving insertion order, then
// yields an immutable Map value.
type MapBuilder struct {
	m     map[MapKey]Value
	order []MapKey
}

// NewMapBuilder returns an empty builder.
func NewMapBuilder() *MapBuilder {
	return &MapBuilder{m: make(map[MapKey]Value)}
}

// Set inserts or overwrites key with v, tracking first-insertion order.
func (b *MapBuilder) Set(key MapKey, v Value) *MapBuilder {
	if _, exists := b.m[key]; !exists {
		b.order = append(b.order, key)
	}
	b.m[key] = v
	return b
}

// Build finalizes the map.
func (b *MapBuilder) Build() Value { return NewMap(b.m, b.order) }

// Func constructs a Function value.
func Func(fn *Function) Value { return Value{kind: KindFunction, fn: fn} }

// Err constructs an Error value.
func Err(kind, message string) Value {
	return Value{kind: KindError, err: &ErrorValue{Kind: kind, Message: message}}
}

// ErrWithData constructs an Error value carrying structured payload data.
func ErrWithData(kind, message string, data Value) Value {
	return Value{kind: KindError, err: &ErrorValue{Kind: kind, Message: message, Data: data}}
}

// Handle constructs a ResourceHandle value.
func Handle(h *ResourceHandle) Value { return Value{kind: KindResourceHandle, handle: h} }

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the Nil variant.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean payload; false if v is not a Bool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload; zero if v is not an Integer.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. If v is an Integer, it is promoted to
// float64 so mixed int/float comparisons in numeric predicates work without
// a separate branch.
func (v Value) Float() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// IsNumeric reports whether v is an Integer or Float.
func (v Value) IsNumeric() bool { return v.kind == KindInteger || v.kind == KindFloat }

// Str returns the string/keyword/symbol payload; empty otherwise.
func (v Value) Str() string { return v.s }

// Vec returns the vector/list elements; nil otherwise. The returned slice
// must not be mutated by callers.
func (v Value) Vec() []Value { return v.vec }

// MapEntries returns the map's key/value pairs; nil if v is not a Map.
func (v Value) MapEntries() map[MapKey]Value { return v.m }

// MapOrder returns the map's insertion-order key sequence.
func (v Value) MapOrder() []MapKey { return v.mOrder }

// MapGet looks up key in a Map value.
func (v Value) MapGet(key MapKey) (Value, bool) {
	if v.m == nil {
		return Nil, false
	}
	val, ok := v.m[key]
	return val, ok
}

// Fn returns the function payload; nil otherwise.
func (v Value) Fn() *Function { return v.fn }

// ErrorPayload returns the error payload; nil otherwise.
func (v Value) ErrorPayload() *ErrorValue { return v.err }

// ResourceHandlePayload returns the resource handle payload; nil otherwise.
func (v Value) ResourceHandlePayload() *ResourceHandle { return v.handle }

// Equal reports structural equality. Functions and resource handles compare
// by identity of their payload pointers; they are opaque by design.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		if a.IsNumeric() && b.IsNumeric() {
			return a.Float() == b.Float()
		}
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindInteger:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString, KindKeyword, KindSymbol:
		return a.s == b.s
	case KindVector, KindList:
		if len(a.vec) != len(b.vec) {
			return false
		}
		for i := range a.vec {
			if !Equal(a.vec[i], b.vec[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.fn == b.fn
	case KindError:
		return a.err == b.err
	case KindResourceHandle:
		return a.handle == b.handle
	default:
		return false
	}
}

// String renders v for debugging/logging. It is not a wire format; use
// ToJSON and FromJSON for the canonical Value<->JSON mapping.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindKeyword:
		return ":" + v.s
	case KindSymbol:
		return v.s
	case KindVector:
		return fmt.Sprintf("%v", v.vec)
	case KindList:
		return fmt.Sprintf("(%v)", v.vec)
	case KindMap:
		return fmt.Sprintf("{map of %d}", len(v.m))
	case KindFunction:
		if v.fn != nil {
			return "#<fn:" + v.fn.Name + ">"
		}
		return "#<fn>"
	case KindError:
		if v.err != nil {
			return "#<error:" + v.err.Kind + ">"
		}
		return "#<error>"
	case KindResourceHandle:
		if v.handle != nil {
			return "#<resource:" + v.handle.Type + ">"
		}
		return "#<resource>"
	default:
		return "#<unknown>"
	}
}
