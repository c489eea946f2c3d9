package value

import "regexp"

// TypeExprKind tags the variant carried by a TypeExpr.
type TypeExprKind int

const (
	TypeAny TypeExprKind = iota
	TypePrimitive
	TypeVector
	TypeMap
	TypeUnion
	TypeIntersection
	TypeOptional
	TypeFunction
	TypeRefined
	TypeLiteral
)

// Primitive enumerates the primitive base types.
type Primitive int

const (
	PrimInt Primitive = iota
	PrimFloat
	PrimBool
	PrimString
	PrimKeyword
	PrimNil
)

func (p Primitive) String() string {
	switch p {
	case PrimInt:
		return "Int"
	case PrimFloat:
		return "Float"
	case PrimBool:
		return "Bool"
	case PrimString:
		return "String"
	case PrimKeyword:
		return "Keyword"
	case PrimNil:
		return "Nil"
	default:
		return "?"
	}
}

// MapEntry describes one declared field of a Map TypeExpr.
type MapEntry struct {
	Key      string
	ValType  TypeExpr
	Optional bool
}

// ParamType describes one positional parameter of a Function TypeExpr.
type ParamType struct {
	Name string
	Type TypeExpr
}

// PredicateKind tags the comparison a TypePredicate performs.
type PredicateKind int

const (
	PredGT PredicateKind = iota
	PredGTE
	PredLT
	PredLTE
	PredStringMinLen
	PredStringMaxLen
	PredMatchesRegex
	PredOneOf
)

// TypePredicate is a single refinement constraint. Exactly one of Number,
// Regex, or Set is meaningful depending on Kind; the comparison and
// string-length predicates all read Number.
//
// MatchesRegex uses Go's regexp package (RE2 syntax: no backreferences, no
// lookaround), close enough to a PCRE-like, no-lookbehind flavor for every
// pattern a capability schema is expected to declare.
type TypePredicate struct {
	Kind    PredicateKind
	Number  float64
	Regex   string
	Set     []Value
	compiled *regexp.Regexp
}

// Compile pre-compiles the predicate's regex, if any, caching the result so
// repeated validations against the same predicate do not recompile. It is
// safe to call multiple times.
func (p *TypePredicate) Compile() error {
	if p.Kind != PredMatchesRegex || p.compiled != nil {
		return nil
	}
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return err
	}
	p.compiled = re
	return nil
}

// Regexp returns the compiled regex, compiling it on first use if needed.
func (p *TypePredicate) Regexp() (*regexp.Regexp, error) {
	if p.compiled != nil {
		return p.compiled, nil
	}
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return p.compiled, nil
}

// Literal is the payload of a Literal TypeExpr: a type that matches exactly
// one concrete Value.
type Literal struct {
	V Value
}

// TypeExpr is the schema description language used for capability
// input/output schemas and refinement predicates. The zero value is Any.
type TypeExpr struct {
	kind       TypeExprKind
	primitive  Primitive
	elem       *TypeExpr   // Vector element type
	entries    []MapEntry  // Map
	wildcard   *TypeExpr   // Map wildcard value type
	arms       []TypeExpr  // Union / Intersection
	inner      *TypeExpr   // Optional
	params     []ParamType // Function
	variadic   *TypeExpr   // Function variadic tail type
	ret        *TypeExpr   // Function return type
	base       *TypeExpr   // Refined base
	predicates []TypePredicate
	lit        *Literal
}

// Any is the universal type matching every Value.
func Any() TypeExpr { return TypeExpr{kind: TypeAny} }

// Prim constructs a Primitive TypeExpr.
func Prim(p Primitive) TypeExpr { return TypeExpr{kind: TypePrimitive, primitive: p} }

// VectorOf constructs a Vector(elem) TypeExpr.
func VectorOf(elem TypeExpr) TypeExpr { return TypeExpr{kind: TypeVector, elem: &elem} }

// MapOf constructs a Map TypeExpr. wildcard is nil when the map has no
// wildcard entry type.
func MapOf(entries []MapEntry, wildcard *TypeExpr) TypeExpr {
	return TypeExpr{kind: TypeMap, entries: entries, wildcard: wildcard}
}

// UnionOf constructs a Union TypeExpr.
func UnionOf(arms ...TypeExpr) TypeExpr { return TypeExpr{kind: TypeUnion, arms: arms} }

// IntersectionOf constructs an Intersection TypeExpr.
func IntersectionOf(arms ...TypeExpr) TypeExpr {
	return TypeExpr{kind: TypeIntersection, arms: arms}
}

// OptionalOf constructs an Optional(inner) TypeExpr.
func OptionalOf(inner TypeExpr) TypeExpr { return TypeExpr{kind: TypeOptional, inner: &inner} }

// FunctionType constructs a Function TypeExpr. variadic is nil for
// fixed-arity functions.
func FunctionType(params []ParamType, variadic *TypeExpr, ret TypeExpr) TypeExpr {
	return TypeExpr{kind: TypeFunction, params: params, variadic: variadic, ret: &ret}
}

// Refine constructs a Refined(base, predicates) TypeExpr. Every predicate
// must be applicable to base; RefinedApplicable checks this.
func Refine(base TypeExpr, predicates ...TypePredicate) TypeExpr {
	return TypeExpr{kind: TypeRefined, base: &base, predicates: predicates}
}

// LiteralType constructs a Literal TypeExpr matching exactly lit.
func LiteralType(lit Value) TypeExpr {
	return TypeExpr{kind: TypeLiteral, lit: &Literal{V: lit}}
}

// Kind reports the variant tag.
func (t TypeExpr) Kind() TypeExprKind { return t.kind }

// Primitive returns the primitive payload.
func (t TypeExpr) Primitive() Primitive { return t.primitive }

// Elem returns the Vector element type.
func (t TypeExpr) Elem() *TypeExpr { return t.elem }

// Entries returns the Map's declared entries.
func (t TypeExpr) Entries() []MapEntry { return t.entries }

// Wildcard returns the Map's wildcard value type, if any.
func (t TypeExpr) Wildcard() *TypeExpr { return t.wildcard }

// Arms returns the Union/Intersection arms.
func (t TypeExpr) Arms() []TypeExpr { return t.arms }

// Inner returns the Optional's inner type.
func (t TypeExpr) Inner() *TypeExpr { return t.inner }

// Params returns the Function's parameter types.
func (t TypeExpr) Params() []ParamType { return t.params }

// Variadic returns the Function's variadic tail type, if any.
func (t TypeExpr) Variadic() *TypeExpr { return t.variadic }

// Return returns the Function's return type.
func (t TypeExpr) Return() *TypeExpr { return t.ret }

// Base returns the Refined type's base.
func (t TypeExpr) Base() *TypeExpr { return t.base }

// Predicates returns the Refined type's predicate list.
func (t TypeExpr) Predicates() []TypePredicate { return t.predicates }

// PredicatesMut returns a mutable view of the predicate list so callers can
// pre-compile regexes in place.
func (t *TypeExpr) PredicatesMut() []TypePredicate { return t.predicates }

// LiteralValue returns the Literal type's matched value.
func (t TypeExpr) LiteralValue() Value {
	if t.lit == nil {
		return Nil
	}
	return t.lit.V
}

// ContainsRefined reports whether t or any of its descendants is a Refined
// node. Used by the validator to decide whether a compile-time-verified
// value may still require revalidation (§4.1: "a Refined type always
// revalidates").
func (t TypeExpr) ContainsRefined() bool {
	switch t.kind {
	case TypeRefined:
		return true
	case TypeVector:
		return t.elem != nil && t.elem.ContainsRefined()
	case TypeOptional:
		return t.inner != nil && t.inner.ContainsRefined()
	case TypeMap:
		if t.wildcard != nil && t.wildcard.ContainsRefined() {
			return true
		}
		for _, e := range t.entries {
			if e.ValType.ContainsRefined() {
				return true
			}
		}
		return false
	case TypeUnion, TypeIntersection:
		for _, a := range t.arms {
			if a.ContainsRefined() {
				return true
			}
		}
		return false
	case TypeFunction:
		if t.ret != nil && t.ret.ContainsRefined() {
			return true
		}
		if t.variadic != nil && t.variadic.ContainsRefined() {
			return true
		}
		for _, p := range t.params {
			if p.Type.ContainsRefined() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RefinedApplicable reports whether every predicate in predicates is
// syntactically applicable to base (numeric predicates need a numeric base,
// string predicates need a string base, membership needs any base). This
// enforces the §3 invariant at manifest/schema registration time.
func RefinedApplicable(base TypeExpr, predicates []TypePredicate) bool {
	isNumeric := base.kind == TypePrimitive && (base.primitive == PrimInt || base.primitive == PrimFloat)
	isString := base.kind == TypePrimitive && base.primitive == PrimString
	for _, p := range predicates {
		switch p.Kind {
		case PredGT, PredGTE, PredLT, PredLTE:
			if !isNumeric {
				return false
			}
		case PredStringMinLen, PredStringMaxLen, PredMatchesRegex:
			if !isString {
				return false
			}
		case PredOneOf:
			// membership applies to any base
		default:
			return false
		}
	}
	return true
}
