package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ToJSON renders v using the canonical wire mapping:
// Nil -> null, Bool -> bool, Integer/Float -> JSON number, String -> string,
// Vector/List -> array, Map -> object (keys rendered with MapKey.String:
// ":name" for Keyword, decimal text for Integer, raw for String), Keyword ->
// ":name", Symbol -> name. Function, ResourceHandle and Error values have no
// wire form and cause an error.
func ToJSON(v Value) ([]byte, error) {
	raw, err := toRaw(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func toRaw(v Value) (any, error) {
	switch v.Kind() {
	case KindNil:
		return nil, nil
	case KindBool:
		return v.Bool(), nil
	case KindInteger:
		return v.Int(), nil
	case KindFloat:
		return v.Float(), nil
	case KindString:
		return v.Str(), nil
	case KindKeyword:
		return ":" + v.Str(), nil
	case KindSymbol:
		return v.Str(), nil
	case KindVector, KindList:
		items := v.Vec()
		out := make([]any, len(items))
		for i, it := range items {
			r, err := toRaw(it)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case KindMap:
		order := v.MapOrder()
		entries := v.MapEntries()
		out := make(map[string]any, len(entries))
		for _, k := range order {
			val, ok := entries[k]
			if !ok {
				continue
			}
			r, err := toRaw(val)
			if err != nil {
				return nil, err
			}
			out[k.String()] = r
		}
		return out, nil
	case KindFunction:
		return nil, fmt.Errorf("value: function values have no JSON wire form")
	case KindError:
		return nil, fmt.Errorf("value: error values have no JSON wire form")
	case KindResourceHandle:
		return nil, fmt.Errorf("value: resource-handle values have no JSON wire form")
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.Kind())
	}
}

// FromJSON parses raw JSON into a Value using the inverse of ToJSON's
// mapping. JSON objects become Map values whose keys are parsed back through
// the same ":name"/decimal/raw convention: a key starting with ":" becomes a
// Keyword key, a key parsing as a base-10 integer becomes an Integer key,
// anything else becomes a String key. JSON numbers that round-trip exactly
// through an int64 become Integer values; all other numbers become Float.
func FromJSON(raw []byte) (Value, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Nil, err
	}
	return fromRaw(decoded)
}

func fromRaw(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Nil, nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Nil, fmt.Errorf("value: invalid JSON number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case string:
		return parseStringLiteral(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, it := range x {
			v, err := fromRaw(it)
			if err != nil {
				return Nil, err
			}
			items[i] = v
		}
		return Vector(items), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := NewMapBuilder()
		for _, k := range keys {
			v, err := fromRaw(x[k])
			if err != nil {
				return Nil, err
			}
			b.Set(parseMapKey(k), v)
		}
		return b.Build(), nil
	default:
		return Nil, fmt.Errorf("value: cannot convert %T from JSON", raw)
	}
}

// parseStringLiteral mirrors ToJSON's String/Keyword encoding: a leading ":"
// marks a keyword, everything else is a plain string. Symbols have no
// distinct JSON form and decode as String, matching the wire format's
// documented lossiness for Symbol.
func parseStringLiteral(s string) Value {
	if len(s) > 1 && s[0] == ':' {
		return Keyword(s[1:])
	}
	return Str(s)
}

func parseMapKey(k string) MapKey {
	if len(k) > 1 && k[0] == ':' {
		return KeywordKey(k[1:])
	}
	if i, err := strconv.ParseInt(k, 10, 64); err == nil && strconv.FormatInt(i, 10) == k {
		return IntKey(i)
	}
	return StringKey(k)
}
