package marketplace

import (
	"strings"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// NormalizeArgsToMap normalizes positional arguments into a Map against a
// Map-shaped input schema, including the single-required-field
// disambiguation edge case for a lone Map argument that doesn't carry any
// of the schema's required keys.
func NormalizeArgsToMap(args []value.Value, schema value.TypeExpr) (value.Value, error) {
	if schema.Kind() == value.TypeUnion {
		return value.Nil, hosterr.New(hosterr.SchemaError, "cannot normalize positional args to union schema; use explicit map syntax")
	}
	if schema.Kind() != value.TypeMap {
		return value.Vector(args), nil
	}

	entries := schema.Entries()
	if schema.Wildcard() != nil {
		return value.Nil, hosterr.New(hosterr.SchemaError, "cannot normalize positional args to map schema with wildcard entries")
	}
	if !trailingOptionalsOnly(entries) {
		return value.Nil, hosterr.New(hosterr.SchemaError, "cannot normalize: optional fields must be trailing (after all required fields)")
	}

	required := make([]value.MapEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Optional {
			required = append(required, e)
		}
	}
	requiredCount := len(required)

	if len(args) == 1 && args[0].Kind() == value.KindMap {
		m := args[0]
		if isPassthroughMap(m, entries) {
			return m, nil
		}
		if requiredCount == 1 {
			return positionalToMap(args, required)
		}
		return value.Nil, hosterr.Newf(hosterr.SchemaError, "map argument missing required fields. Expected keys: [%s]", fieldNames(required))
	}

	if len(args) == 0 && requiredCount == 0 {
		return value.NewMapBuilder().Build(), nil
	}
	if len(args) == 0 && requiredCount > 0 {
		return value.Nil, hosterr.Newf(hosterr.SchemaError, "missing required arguments. Expected %d positional args for fields: [%s]", requiredCount, fieldNames(required))
	}
	if len(args) > 0 && requiredCount == 0 {
		return value.Nil, hosterr.New(hosterr.SchemaError, "schema has only optional fields; positional args not supported. Use map syntax")
	}
	if len(args) == requiredCount {
		return positionalToMap(args, required)
	}

	return value.Nil, hosterr.Newf(hosterr.SchemaError, "expected %d positional args for fields [%s], or a map with those keys. Got %d args", requiredCount, fieldNames(required), len(args))
}

func trailingOptionalsOnly(entries []value.MapEntry) bool {
	seenOptional := false
	for _, e := range entries {
		if e.Optional {
			seenOptional = true
		} else if seenOptional {
			return false
		}
	}
	return true
}

func isPassthroughMap(m value.Value, entries []value.MapEntry) bool {
	hasRequired := false
	for _, e := range entries {
		if !e.Optional {
			hasRequired = true
			break
		}
	}
	if !hasRequired {
		return true
	}
	for _, e := range entries {
		if e.Optional {
			continue
		}
		if _, ok := m.MapGet(value.KeywordKey(e.Key)); ok {
			return true
		}
	}
	return false
}

func positionalToMap(args []value.Value, required []value.MapEntry) (value.Value, error) {
	b := value.NewMapBuilder()
	for i, e := range required {
		if i >= len(args) {
			return value.Nil, hosterr.Newf(hosterr.SchemaError, "missing positional argument for field :%s", e.Key)
		}
		b.Set(value.KeywordKey(e.Key), args[i])
	}
	return b.Build(), nil
}

func fieldNames(entries []value.MapEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = ":" + e.Key
	}
	return strings.Join(names, " ")
}
