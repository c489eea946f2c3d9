// Package validator implements a hybrid type validator: a
// recursive structural checker over value.TypeExpr with configurable
// strictness and origin-aware skip rules. It is hand-rolled rather than
// built on a generic JSON-Schema engine because TypeExpr's Union,
// Intersection, Refined and Function variants, plus the
// compile-time-verified/capability-boundary/external-data origin matrix,
// have no direct JSON-Schema equivalent (see DESIGN.md).
package validator

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// Level controls how much of a TypeExpr's structure is enforced.
type Level int

const (
	// Basic checks only structural/primitive shape.
	Basic Level = iota
	// Standard additionally enforces map key presence/optionality and
	// vector element types.
	Standard
	// Strict additionally enforces every refinement predicate.
	Strict
)

// Origin tags where a value being validated came from.
type Origin int

const (
	OriginOther Origin = iota
	OriginCompileTimeVerified
	OriginCapabilityBoundary
	OriginExternalData
)

// Context carries the origin of the value under validation plus, for
// CapabilityBoundary and ExternalData, an identifying label used only in
// error messages (capability id or external source name).
type Context struct {
	Origin Origin
	Label  string
}

// Config is the validate(...) tuning parameter.
type Config struct {
	SkipCompileTimeVerified     bool
	EnforceCapabilityBoundaries bool
	ValidateExternalData        bool
	Level Level
}

// DefaultConfig matches the marketplace's default execution policy (§4.5
// step 3): enforce capability boundaries, skip compile-time verification
// for unrefined types, Standard level.
func DefaultConfig() Config {
	return Config{
		SkipCompileTimeVerified:     true,
		EnforceCapabilityBoundaries: true,
		ValidateExternalData:       true,
		Level:                      Standard,
	}
}

// regexCache memoizes compiled predicate regexes by pattern, shared across
// every Validate call in the process so a hot regex predicate only
// compiles once.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// Validate checks v against t under cfg and ctx. A nil error means
// success.
func Validate(v value.Value, t value.TypeExpr, cfg Config, ctx Context) error {
	if shouldSkip(t, cfg, ctx) {
		return nil
	}
	return validateAt(v, t, cfg, "")
}

// shouldSkip implements the origin/skip rule: only CompileTimeVerified
// values with skip enabled and no Refined node anywhere in t are
// no-op successes; CapabilityBoundary/ExternalData origins always
// validate when their respective config flag is true (both default true).
func shouldSkip(t value.TypeExpr, cfg Config, ctx Context) bool {
	switch ctx.Origin {
	case OriginCapabilityBoundary:
		return !cfg.EnforceCapabilityBoundaries
	case OriginExternalData:
		return !cfg.ValidateExternalData
	case OriginCompileTimeVerified:
		return cfg.SkipCompileTimeVerified && !t.ContainsRefined()
	default:
		return false
	}
}

func validateAt(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	switch t.Kind() {
	case value.TypeAny:
		return nil
	case value.TypePrimitive:
		return validatePrimitive(v, t.Primitive(), path)
	case value.TypeVector:
		return validateVector(v, t, cfg, path)
	case value.TypeMap:
		return validateMap(v, t, cfg, path)
	case value.TypeUnion:
		return validateUnion(v, t, cfg, path)
	case value.TypeIntersection:
		return validateIntersection(v, t, cfg, path)
	case value.TypeOptional:
		if v.IsNil() {
			return nil
		}
		return validateAt(v, *t.Inner(), cfg, path)
	case value.TypeFunction:
		return validateFunction(v, path)
	case value.TypeRefined:
		return validateRefined(v, t, cfg, path)
	case value.TypeLiteral:
		if !value.Equal(v, t.LiteralValue()) {
			return schemaErr(path, t.LiteralValue().String(), v.String())
		}
		return nil
	default:
		return hosterr.Newf(hosterr.InternalError, "validator: unknown TypeExpr kind %v", t.Kind())
	}
}

func validatePrimitive(v value.Value, p value.Primitive, path string) error {
	switch p {
	case value.PrimInt:
		if v.Kind() != value.KindInteger {
			return schemaErr(path, "Int", v.Kind().String())
		}
	case value.PrimFloat:
		if v.Kind() != value.KindFloat && v.Kind() != value.KindInteger {
			return schemaErr(path, "Float", v.Kind().String())
		}
	case value.PrimBool:
		if v.Kind() != value.KindBool {
			return schemaErr(path, "Bool", v.Kind().String())
		}
	case value.PrimString:
		if v.Kind() != value.KindString {
			return schemaErr(path, "String", v.Kind().String())
		}
	case value.PrimKeyword:
		if v.Kind() != value.KindKeyword {
			return schemaErr(path, "Keyword", v.Kind().String())
		}
	case value.PrimNil:
		if v.Kind() != value.KindNil {
			return schemaErr(path, "Nil", v.Kind().String())
		}
	default:
		return hosterr.Newf(hosterr.InternalError, "validator: unknown primitive %v", p)
	}
	return nil
}

func validateVector(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	if v.Kind() != value.KindVector && v.Kind() != value.KindList {
		return schemaErr(path, "Vector", v.Kind().String())
	}
	if cfg.Level == Basic {
		return nil
	}
	elem := t.Elem()
	for i, item := range v.Vec() {
		if err := validateAt(item, *elem, cfg, indexPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateMap(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	if v.Kind() != value.KindMap {
		return schemaErr(path, "Map", v.Kind().String())
	}
	if cfg.Level < Standard {
		return nil
	}
	entries := v.MapEntries()
	for _, e := range t.Entries() {
		key := value.KeywordKey(e.Key)
		val, present := entries[key]
		if !present {
			if !e.Optional {
				return schemaErr(fieldPath(path, e.Key), "present", "missing")
			}
			continue
		}
		if err := validateAt(val, e.ValType, cfg, fieldPath(path, e.Key)); err != nil {
			return err
		}
	}
	declared := make(map[value.MapKey]bool, len(t.Entries()))
	for _, e := range t.Entries() {
		declared[value.KeywordKey(e.Key)] = true
	}
	for k, val := range entries {
		if declared[k] {
			continue
		}
		if t.Wildcard() == nil {
			return hosterr.Newf(hosterr.SchemaError, "unexpected key %q", k.String()).WithPath(path)
		}
		if err := validateAt(val, *t.Wildcard(), cfg, fieldPath(path, k.String())); err != nil {
			return err
		}
	}
	return nil
}

func validateUnion(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	var lastErr error
	for _, arm := range t.Arms() {
		if err := validateAt(v, arm, cfg, path); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		return schemaErr(path, "Union", v.Kind().String())
	}
	return hosterr.Newf(hosterr.SchemaError, "value matches no arm of union").WithPath(path)
}

func validateIntersection(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	for _, arm := range t.Arms() {
		if err := validateAt(v, arm, cfg, path); err != nil {
			return err
		}
	}
	return nil
}

func validateFunction(v value.Value, path string) error {
	if v.Kind() != value.KindFunction {
		return schemaErr(path, "Function", v.Kind().String())
	}
	return nil
}

func validateRefined(v value.Value, t value.TypeExpr, cfg Config, path string) error {
	base := *t.Base()
	if err := validateAt(v, base, cfg, path); err != nil {
		return err
	}
	if cfg.Level < Strict {
		return nil
	}
	for i := range t.PredicatesMut() {
		pred := &t.PredicatesMut()[i]
		if err := checkPredicate(v, pred, path); err != nil {
			return err
		}
	}
	return nil
}

func checkPredicate(v value.Value, p *value.TypePredicate, path string) error {
	switch p.Kind {
	case value.PredGT:
		if !(v.Float() > p.Number) {
			return predicateErr(path, "> ", p.Number)
		}
	case value.PredGTE:
		if !(v.Float() >= p.Number) {
			return predicateErr(path, ">= ", p.Number)
		}
	case value.PredLT:
		if !(v.Float() < p.Number) {
			return predicateErr(path, "< ", p.Number)
		}
	case value.PredLTE:
		if !(v.Float() <= p.Number) {
			return predicateErr(path, "<= ", p.Number)
		}
	case value.PredStringMinLen:
		if len(v.Str()) < int(p.Number) {
			return predicateErr(path, "min length ", p.Number)
		}
	case value.PredStringMaxLen:
		if len(v.Str()) > int(p.Number) {
			return predicateErr(path, "max length ", p.Number)
		}
	case value.PredMatchesRegex:
		re, err := compileRegex(p.Regex)
		if err != nil {
			return hosterr.Wrap(hosterr.SchemaError, "invalid regex predicate", err).WithPath(path)
		}
		if !re.MatchString(v.Str()) {
			return hosterr.Newf(hosterr.SchemaError, "value does not match pattern %q", p.Regex).WithPath(path)
		}
	case value.PredOneOf:
		for _, candidate := range p.Set {
			if value.Equal(v, candidate) {
				return nil
			}
		}
		return hosterr.New(hosterr.SchemaError, "value not in allowed set").WithPath(path)
	default:
		return hosterr.Newf(hosterr.InternalError, "validator: unknown predicate kind %v", p.Kind)
	}
	return nil
}

func predicateErr(path, op string, number float64) error {
	return hosterr.Newf(hosterr.SchemaError, "value fails predicate %s%v", op, number).WithPath(path)
}

func schemaErr(path, expected, actual string) error {
	return hosterr.Newf(hosterr.SchemaError, "expected %s, got %s", expected, actual).WithPath(path)
}

func fieldPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
