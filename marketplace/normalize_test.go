package marketplace

import (
	"testing"

	"github.com/mandubian/ccos-sub014/value"
)

func mapSchema(fields []value.MapEntry, wildcard *value.TypeExpr) value.TypeExpr {
	return value.MapOf(fields, wildcard)
}

func entry(name string, optional bool) value.MapEntry {
	return value.MapEntry{Key: name, ValType: value.Prim(value.PrimString), Optional: optional}
}

func TestNormalizePositionalToMapTwoFields(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("handle", false), entry("line", false)}, nil)
	args := []value.Value{value.Int(1), value.Str("hello")}

	result, err := NormalizeArgsToMap(args, schema)
	if err != nil {
		t.Fatalf("NormalizeArgsToMap: %v", err)
	}
	got, ok := result.MapGet(value.KeywordKey("handle"))
	if !ok || got.Int() != 1 {
		t.Fatalf("expected handle=1, got %+v", got)
	}
	got, ok = result.MapGet(value.KeywordKey("line"))
	if !ok || got.Str() != "hello" {
		t.Fatalf("expected line=hello, got %+v", got)
	}
}

func TestNormalizeMapPassthrough(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("handle", false), entry("line", false)}, nil)
	m := value.NewMapBuilder().
		Set(value.KeywordKey("handle"), value.Int(1)).
		Set(value.KeywordKey("line"), value.Str("hello")).
		Build()

	result, err := NormalizeArgsToMap([]value.Value{m}, schema)
	if err != nil {
		t.Fatalf("NormalizeArgsToMap: %v", err)
	}
	if len(result.MapEntries()) != 2 {
		t.Fatalf("expected passthrough map unchanged, got %+v", result)
	}
}

func TestNormalizeSingleArgSingleFieldDisambiguation(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("path", false)}, nil)
	args := []value.Value{value.Str("/tmp/foo.txt")}

	result, err := NormalizeArgsToMap(args, schema)
	if err != nil {
		t.Fatalf("NormalizeArgsToMap: %v", err)
	}
	got, ok := result.MapGet(value.KeywordKey("path"))
	if !ok || got.Str() != "/tmp/foo.txt" {
		t.Fatalf("expected path=/tmp/foo.txt, got %+v", got)
	}
}

func TestNormalizeWrongArgCountErrors(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("handle", false), entry("line", false)}, nil)
	if _, err := NormalizeArgsToMap([]value.Value{value.Int(1)}, schema); err == nil {
		t.Fatalf("expected an error for wrong positional arg count")
	}
}

func TestNormalizeWildcardSchemaRejected(t *testing.T) {
	anyType := value.Any()
	schema := mapSchema([]value.MapEntry{entry("id", false)}, &anyType)
	if _, err := NormalizeArgsToMap([]value.Value{value.Int(1)}, schema); err == nil {
		t.Fatalf("expected wildcard schema to be rejected for positional normalization")
	}
}

func TestNormalizeOptionalOnlyZeroArgsYieldsEmptyMap(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("timeout", true), entry("retries", true)}, nil)
	result, err := NormalizeArgsToMap(nil, schema)
	if err != nil {
		t.Fatalf("NormalizeArgsToMap: %v", err)
	}
	if len(result.MapEntries()) != 0 {
		t.Fatalf("expected an empty map, got %+v", result)
	}
}

func TestNormalizeOptionalOnlyWithPositionalErrors(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("timeout", true)}, nil)
	if _, err := NormalizeArgsToMap([]value.Value{value.Int(5)}, schema); err == nil {
		t.Fatalf("expected positional args against an optional-only schema to error")
	}
}

func TestNormalizeMixedOptionalRejected(t *testing.T) {
	schema := mapSchema([]value.MapEntry{entry("a", false), entry("b", true), entry("c", false)}, nil)
	if _, err := NormalizeArgsToMap([]value.Value{value.Int(1), value.Int(2)}, schema); err == nil {
		t.Fatalf("expected a required field after an optional field to be rejected")
	}
}

func TestNormalizeUnionSchemaRejected(t *testing.T) {
	schema := value.UnionOf(value.Prim(value.PrimInt), value.Prim(value.PrimString))
	if _, err := NormalizeArgsToMap([]value.Value{value.Int(1)}, schema); err == nil {
		t.Fatalf("expected union schema to be rejected for positional normalization")
	}
}

func TestNormalizeNonMapSchemaPassesThroughAsVector(t *testing.T) {
	schema := value.Prim(value.PrimInt)
	result, err := NormalizeArgsToMap([]value.Value{value.Int(1), value.Int(2)}, schema)
	if err != nil {
		t.Fatalf("NormalizeArgsToMap: %v", err)
	}
	if result.Kind() != value.KindVector || len(result.Vec()) != 2 {
		t.Fatalf("expected a passthrough vector, got %+v", result)
	}
}
