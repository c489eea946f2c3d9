package value

import (
	"encoding/json"
	"testing"
)

func TestToJSONRoundTrip(t *testing.T) {
	b := NewMapBuilder()
	b.Set(KeywordKey("name"), Str("fetch"))
	b.Set(KeywordKey("count"), Int(3))
	b.Set(IntKey(7), Bool(true))
	original := b.Build()

	raw, err := ToJSON(original)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	back, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !Equal(original, back) {
		t.Fatalf("round trip mismatch: %v != %v", original, back)
	}
}

func TestToJSONKeywordConvention(t *testing.T) {
	raw, err := ToJSON(Keyword("active"))
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != ":active" {
		t.Fatalf("expected wire form \":active\", got %q", s)
	}
}

func TestToJSONRejectsFunction(t *testing.T) {
	fn := Func(&Function{Name: "f", Arity: 0})
	if _, err := ToJSON(fn); err == nil {
		t.Fatalf("expected error serializing a Function value")
	}
}

func TestFromJSONIntegerVsFloat(t *testing.T) {
	v, err := FromJSON([]byte(`{":a": 3, ":b": 3.5}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	a, ok := v.MapGet(KeywordKey("a"))
	if !ok || a.Kind() != KindInteger || a.Int() != 3 {
		t.Fatalf("expected integer 3 for key a, got %v", a)
	}
	bv, ok := v.MapGet(KeywordKey("b"))
	if !ok || bv.Kind() != KindFloat || bv.Float() != 3.5 {
		t.Fatalf("expected float 3.5 for key b, got %v", bv)
	}
}

func TestFromJSONMapKeyKinds(t *testing.T) {
	v, err := FromJSON([]byte(`{":kw": 1, "42": 2, "plain": 3}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if _, ok := v.MapGet(KeywordKey("kw")); !ok {
		t.Fatalf("expected a keyword key \"kw\"")
	}
	if _, ok := v.MapGet(IntKey(42)); !ok {
		t.Fatalf("expected an integer key 42")
	}
	if _, ok := v.MapGet(StringKey("plain")); !ok {
		t.Fatalf("expected a string key \"plain\"")
	}
}

func TestToJSONArray(t *testing.T) {
	raw, err := ToJSON(Vector([]Value{Int(1), Int(2), Int(3)}))
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var nums []int64
	if err := json.Unmarshal(raw, &nums); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(nums) != 3 || nums[1] != 2 {
		t.Fatalf("unexpected array contents: %v", nums)
	}
}
