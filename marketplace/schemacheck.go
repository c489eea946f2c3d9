package marketplace

import (
	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// checkSchemaWellFormed walks t recursively and rejects any Refined node
// whose predicates aren't applicable to its base type, so registration
// never admits a schema that could never validate anything.
func checkSchemaWellFormed(t value.TypeExpr) error {
	switch t.Kind() {
	case value.TypeRefined:
		base := t.Base()
		if base == nil {
			return hosterr.New(hosterr.SchemaError, "marketplace: refined type has no base")
		}
		if !value.RefinedApplicable(*base, t.Predicates()) {
			return hosterr.New(hosterr.SchemaError, "marketplace: refinement predicate not applicable to base type")
		}
		return checkSchemaWellFormed(*base)
	case value.TypeVector:
		if e := t.Elem(); e != nil {
			return checkSchemaWellFormed(*e)
		}
		return nil
	case value.TypeOptional:
		if i := t.Inner(); i != nil {
			return checkSchemaWellFormed(*i)
		}
		return nil
	case value.TypeMap:
		for _, e := range t.Entries() {
			if err := checkSchemaWellFormed(e.ValType); err != nil {
				return err
			}
		}
		if w := t.Wildcard(); w != nil {
			return checkSchemaWellFormed(*w)
		}
		return nil
	case value.TypeUnion, value.TypeIntersection:
		for _, a := range t.Arms() {
			if err := checkSchemaWellFormed(a); err != nil {
				return err
			}
		}
		return nil
	case value.TypeFunction:
		for _, p := range t.Params() {
			if err := checkSchemaWellFormed(p.Type); err != nil {
				return err
			}
		}
		if v := t.Variadic(); v != nil {
			if err := checkSchemaWellFormed(*v); err != nil {
				return err
			}
		}
		if r := t.Return(); r != nil {
			return checkSchemaWellFormed(*r)
		}
		return nil
	default:
		return nil
	}
}
