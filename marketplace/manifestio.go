package marketplace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// manifestDoc is the on-disk shape of a capability manifest file (spec
// §6): required id/name/version/description/provider, everything else
// optional. Schemas are carried as a generic JSON tree and converted to
// value.TypeExpr by decodeTypeExpr.
type manifestDoc struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description" yaml:"description"`
	Provider    providerDoc       `json:"provider" yaml:"provider"`
	InputSchema json.RawMessage   `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema json.RawMessage  `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Permissions []string          `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Effects     []string          `json:"effects,omitempty" yaml:"effects,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type providerDoc struct {
	Kind            string `json:"kind" yaml:"kind"`
	HandlerName     string `json:"handler_name,omitempty" yaml:"handler_name,omitempty"`
	BaseURL         string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	BearerToken     string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	TimeoutMs       uint64 `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	RequiresSession bool   `json:"requires_session,omitempty" yaml:"requires_session,omitempty"`
	ServerName      string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	ToolName        string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	SandboxTag      string `json:"sandbox_tag,omitempty" yaml:"sandbox_tag,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

var manifestSchemaDoc = map[string]any{
	"type":     "object",
	"required": []any{"id", "name", "version", "description", "provider"},
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "minLength": 1},
		"name":        map[string]any{"type": "string", "minLength": 1},
		"version":     map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"provider":    map[string]any{"type": "object"},
	},
}

var compiledManifestSchema *jsonschema.Schema

func manifestSchema() (*jsonschema.Schema, error) {
	if compiledManifestSchema != nil {
		return compiledManifestSchema, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", manifestSchemaDoc); err != nil {
		return nil, hosterr.Wrap(hosterr.InternalError, "marketplace: add manifest schema resource", err)
	}
	schema, err := c.Compile("manifest.json")
	if err != nil {
		return nil, hosterr.Wrap(hosterr.InternalError, "marketplace: compile manifest schema", err)
	}
	compiledManifestSchema = schema
	return schema, nil
}

// ParseManifestJSON validates and decodes a single manifest document
// encoded as JSON, checking required-field shape with
// santhosh-tekuri/jsonschema before building a Manifest.
func ParseManifestJSON(raw []byte) (*Manifest, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, hosterr.Wrap(hosterr.SchemaError, "marketplace: unmarshal manifest document", err)
	}
	schema, err := manifestSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(generic); err != nil {
		return nil, hosterr.Wrap(hosterr.SchemaError, "marketplace: manifest document failed shape validation", err)
	}

	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, hosterr.Wrap(hosterr.SchemaError, "marketplace: unmarshal manifest fields", err)
	}
	return docToManifest(doc, raw)
}

// ParseManifestYAML decodes a single manifest document encoded as YAML.
func ParseManifestYAML(raw []byte) (*Manifest, error) {
	var doc manifestDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, hosterr.Wrap(hosterr.SchemaError, "marketplace: unmarshal yaml manifest", err)
	}
	if doc.ID == "" || doc.Name == "" || doc.Version == "" || doc.Description == "" {
		return nil, hosterr.New(hosterr.SchemaError, "marketplace: yaml manifest missing a required field")
	}
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.InternalError, "marketplace: re-encode yaml manifest", err)
	}
	return docToManifest(doc, canonical)
}

func docToManifest(doc manifestDoc, raw []byte) (*Manifest, error) {
	kind, err := parseProviderKind(doc.Provider.Kind)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Provider: Provider{
			Kind:            kind,
			HandlerName:     doc.Provider.HandlerName,
			BaseURL:         doc.Provider.BaseURL,
			BearerToken:     doc.Provider.BearerToken,
			TimeoutMs:       doc.Provider.TimeoutMs,
			RequiresSession: doc.Provider.RequiresSession,
			ServerName:      doc.Provider.ServerName,
			ToolName:        doc.Provider.ToolName,
			SandboxTag:      doc.Provider.SandboxTag,
			Endpoint:        doc.Provider.Endpoint,
		},
		Metadata:    doc.Metadata,
		Permissions: doc.Permissions,
		Effects:     doc.Effects,
		Tags:        doc.Tags,
		Provenance: &Provenance{
			ContentHash: ContentHash(raw),
		},
	}

	if len(doc.InputSchema) > 0 {
		t, err := decodeTypeExpr(doc.InputSchema)
		if err != nil {
			return nil, err
		}
		m.InputSchema = &t
	}
	if len(doc.OutputSchema) > 0 {
		t, err := decodeTypeExpr(doc.OutputSchema)
		if err != nil {
			return nil, err
		}
		m.OutputSchema = &t
	}
	return m, nil
}

func parseProviderKind(kind string) (ProviderKind, error) {
	switch kind {
	case "local":
		return ProviderLocal, nil
	case "http":
		return ProviderHTTP, nil
	case "mcp":
		return ProviderMCP, nil
	case "sandboxed":
		return ProviderSandboxed, nil
	case "remote_plan":
		return ProviderRemotePlan, nil
	default:
		return 0, hosterr.Newf(hosterr.SchemaError, "marketplace: unknown provider kind %q", kind)
	}
}

// ContentHash returns the hex-encoded SHA-256 digest of raw, used both for
// manifest import idempotence (id, version, content_hash) and causal chain
// export provenance.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ImportManifest registers the manifest encoded in raw (JSON) into r,
// skipping re-registration when an identical (id, version, content_hash)
// has already been imported.
func ImportManifest(r *Registry, raw []byte) (*Manifest, bool, error) {
	m, err := ParseManifestJSON(raw)
	if err != nil {
		return nil, false, err
	}
	if existing, ok := r.Get(m.ID); ok {
		if existing.Version == m.Version && existing.Provenance != nil && m.Provenance != nil &&
			existing.Provenance.ContentHash == m.Provenance.ContentHash {
			return existing, false, nil
		}
	}
	if err := r.Register(m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// typeExprDoc is the JSON tree shape used for TypeExpr encode/decode (spec
// §6: "TypeExpr encoded as JSON; Refined types carry a predicates array").
type typeExprDoc struct {
	Kind       string            `json:"kind"`
	Primitive  string            `json:"primitive,omitempty"`
	Elem       *typeExprDoc      `json:"elem,omitempty"`
	Entries    []mapEntryDoc     `json:"entries,omitempty"`
	Wildcard   *typeExprDoc      `json:"wildcard,omitempty"`
	Arms       []typeExprDoc     `json:"arms,omitempty"`
	Inner      *typeExprDoc      `json:"inner,omitempty"`
	Params     []paramDoc        `json:"params,omitempty"`
	Variadic   *typeExprDoc      `json:"variadic,omitempty"`
	Return     *typeExprDoc      `json:"return,omitempty"`
	Base       *typeExprDoc      `json:"base,omitempty"`
	Predicates []predicateDoc    `json:"predicates,omitempty"`
	Literal    json.RawMessage   `json:"literal,omitempty"`
}

type mapEntryDoc struct {
	Key      string      `json:"key"`
	Type     typeExprDoc `json:"type"`
	Optional bool        `json:"optional,omitempty"`
}

type paramDoc struct {
	Name string      `json:"name"`
	Type typeExprDoc `json:"type"`
}

type predicateDoc struct {
	Kind   string            `json:"kind"`
	Number float64           `json:"number,omitempty"`
	Regex  string            `json:"regex,omitempty"`
	Set    []json.RawMessage `json:"set,omitempty"`
}

func decodeTypeExpr(raw []byte) (value.TypeExpr, error) {
	var doc typeExprDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return value.TypeExpr{}, hosterr.Wrap(hosterr.SchemaError, "marketplace: unmarshal type expression", err)
	}
	return docToTypeExpr(doc)
}

func docToTypeExpr(doc typeExprDoc) (value.TypeExpr, error) {
	switch doc.Kind {
	case "any":
		return value.Any(), nil
	case "primitive":
		p, err := parsePrimitive(doc.Primitive)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.Prim(p), nil
	case "vector":
		if doc.Elem == nil {
			return value.TypeExpr{}, hosterr.New(hosterr.SchemaError, "marketplace: vector type missing elem")
		}
		elem, err := docToTypeExpr(*doc.Elem)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.VectorOf(elem), nil
	case "map":
		entries := make([]value.MapEntry, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			t, err := docToTypeExpr(e.Type)
			if err != nil {
				return value.TypeExpr{}, err
			}
			entries = append(entries, value.MapEntry{Key: e.Key, ValType: t, Optional: e.Optional})
		}
		var wildcard *value.TypeExpr
		if doc.Wildcard != nil {
			w, err := docToTypeExpr(*doc.Wildcard)
			if err != nil {
				return value.TypeExpr{}, err
			}
			wildcard = &w
		}
		return value.MapOf(entries, wildcard), nil
	case "union":
		arms, err := docsToTypeExprs(doc.Arms)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.UnionOf(arms...), nil
	case "intersection":
		arms, err := docsToTypeExprs(doc.Arms)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.IntersectionOf(arms...), nil
	case "optional":
		if doc.Inner == nil {
			return value.TypeExpr{}, hosterr.New(hosterr.SchemaError, "marketplace: optional type missing inner")
		}
		inner, err := docToTypeExpr(*doc.Inner)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.OptionalOf(inner), nil
	case "function":
		params := make([]value.ParamType, 0, len(doc.Params))
		for _, p := range doc.Params {
			t, err := docToTypeExpr(p.Type)
			if err != nil {
				return value.TypeExpr{}, err
			}
			params = append(params, value.ParamType{Name: p.Name, Type: t})
		}
		var variadic *value.TypeExpr
		if doc.Variadic != nil {
			v, err := docToTypeExpr(*doc.Variadic)
			if err != nil {
				return value.TypeExpr{}, err
			}
			variadic = &v
		}
		var ret value.TypeExpr
		if doc.Return != nil {
			r, err := docToTypeExpr(*doc.Return)
			if err != nil {
				return value.TypeExpr{}, err
			}
			ret = r
		} else {
			ret = value.Any()
		}
		return value.FunctionType(params, variadic, ret), nil
	case "refined":
		if doc.Base == nil {
			return value.TypeExpr{}, hosterr.New(hosterr.SchemaError, "marketplace: refined type missing base")
		}
		base, err := docToTypeExpr(*doc.Base)
		if err != nil {
			return value.TypeExpr{}, err
		}
		preds, err := docsToPredicates(doc.Predicates)
		if err != nil {
			return value.TypeExpr{}, err
		}
		return value.Refine(base, preds...), nil
	case "literal":
		lit, err := value.FromJSON(doc.Literal)
		if err != nil {
			return value.TypeExpr{}, hosterr.Wrap(hosterr.SchemaError, "marketplace: decode literal type value", err)
		}
		return value.LiteralType(lit), nil
	default:
		return value.TypeExpr{}, hosterr.Newf(hosterr.SchemaError, "marketplace: unknown TypeExpr kind %q", doc.Kind)
	}
}

func docsToTypeExprs(docs []typeExprDoc) ([]value.TypeExpr, error) {
	out := make([]value.TypeExpr, 0, len(docs))
	for _, d := range docs {
		t, err := docToTypeExpr(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func docsToPredicates(docs []predicateDoc) ([]value.TypePredicate, error) {
	out := make([]value.TypePredicate, 0, len(docs))
	for _, d := range docs {
		kind, err := parsePredicateKind(d.Kind)
		if err != nil {
			return nil, err
		}
		pred := value.TypePredicate{Kind: kind, Number: d.Number, Regex: d.Regex}
		if len(d.Set) > 0 {
			set := make([]value.Value, 0, len(d.Set))
			for _, raw := range d.Set {
				v, err := value.FromJSON(raw)
				if err != nil {
					return nil, hosterr.Wrap(hosterr.SchemaError, "marketplace: decode predicate set member", err)
				}
				set = append(set, v)
			}
			pred.Set = set
		}
		out = append(out, pred)
	}
	return out, nil
}

func parsePrimitive(name string) (value.Primitive, error) {
	switch name {
	case "int":
		return value.PrimInt, nil
	case "float":
		return value.PrimFloat, nil
	case "bool":
		return value.PrimBool, nil
	case "string":
		return value.PrimString, nil
	case "keyword":
		return value.PrimKeyword, nil
	case "nil":
		return value.PrimNil, nil
	default:
		return 0, hosterr.Newf(hosterr.SchemaError, "marketplace: unknown primitive %q", name)
	}
}

func parsePredicateKind(name string) (value.PredicateKind, error) {
	switch name {
	case "gt":
		return value.PredGT, nil
	case "gte":
		return value.PredGTE, nil
	case "lt":
		return value.PredLT, nil
	case "lte":
		return value.PredLTE, nil
	case "string_min_len":
		return value.PredStringMinLen, nil
	case "string_max_len":
		return value.PredStringMaxLen, nil
	case "matches_regex":
		return value.PredMatchesRegex, nil
	case "one_of":
		return value.PredOneOf, nil
	default:
		return 0, hosterr.Newf(hosterr.SchemaError, "marketplace: unknown predicate kind %q", name)
	}
}
