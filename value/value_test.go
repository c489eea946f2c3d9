package value

import "testing"

func TestEqualNumericPromotion(t *testing.T) {
	if !Equal(Int(3), Float(3.0)) {
		t.Fatalf("expected Int(3) == Float(3.0)")
	}
	if Equal(Int(3), Float(3.1)) {
		t.Fatalf("expected Int(3) != Float(3.1)")
	}
}

func TestEqualVector(t *testing.T) {
	a := Vector([]Value{Int(1), Str("x")})
	b := Vector([]Value{Int(1), Str("x")})
	c := Vector([]Value{Int(1), Str("y")})
	if !Equal(a, b) {
		t.Fatalf("expected equal vectors to compare equal")
	}
	if Equal(a, c) {
		t.Fatalf("expected differing vectors to compare unequal")
	}
}

func TestVectorDefensiveCopy(t *testing.T) {
	items := []Value{Int(1), Int(2)}
	v := Vector(items)
	items[0] = Int(99)
	if v.Vec()[0].Int() != 1 {
		t.Fatalf("Vector should defensively copy its backing slice")
	}
}

func TestMapBuilderOrderPreserved(t *testing.T) {
	b := NewMapBuilder()
	b.Set(KeywordKey("b"), Int(2))
	b.Set(KeywordKey("a"), Int(1))
	b.Set(KeywordKey("b"), Int(20))
	m := b.Build()
	order := m.MapOrder()
	if len(order) != 2 || order[0].Name() != "b" || order[1].Name() != "a" {
		t.Fatalf("expected first-insertion order [b a], got %v", order)
	}
	v, ok := m.MapGet(KeywordKey("b"))
	if !ok || v.Int() != 20 {
		t.Fatalf("expected overwritten value 20 for key b")
	}
}

func TestMapKeyString(t *testing.T) {
	cases := []struct {
		key  MapKey
		want string
	}{
		{KeywordKey("name"), ":name"},
		{StringKey("name"), "name"},
		{IntKey(42), "42"},
	}
	for _, c := range cases {
		if got := c.key.String(); got != c.want {
			t.Fatalf("MapKey.String() = %q, want %q", got, c.want)
		}
	}
}
