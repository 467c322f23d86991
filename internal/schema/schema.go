// Package schema validates documents against a small JSON Schema subset.
//
// Supported keywords: type (string, number, integer, boolean, object, array,
// null, or a list of them), required, properties, additionalProperties,
// items, enum, minimum, maximum, minLength, maxLength, minItems, maxItems.
// Unlike a fail-fast validator, every problem in a document is reported.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/regro/regolith/internal/store"
)

//go:embed schemas.json
var builtin []byte

// FieldError is one validation problem at a path such as "$.todos[0].status".
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) Error() string {
	return e.Path + ": " + e.Message
}

// Schemas maps collection names to their schema.
type Schemas map[string]map[string]any

// Builtin returns the schemas shipped with regolith.
func Builtin() Schemas {
	s, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("builtin schemas: %v", err))
	}

	return s
}

// Parse reads a JSONC object mapping collection names to schemas.
func Parse(data []byte) (Schemas, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	var out Schemas
	if err := json.Unmarshal(std, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	return out, nil
}

// Collections returns the names of collections with a schema, sorted.
func (s Schemas) Collections() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ValidateDocument checks doc against the schema of coll. Collections
// without a schema only have their _id checked.
func (s Schemas) ValidateDocument(coll string, doc map[string]any) []FieldError {
	var errs []FieldError

	if _, err := store.NormalizeID(doc[store.IDKey]); err != nil {
		errs = append(errs, FieldError{Path: "$._id", Message: err.Error()})
	}

	if sch, ok := s[coll]; ok {
		v := validator{}
		v.value(sch, doc, "$")
		errs = append(errs, v.errs...)
	}

	return errs
}

type validator struct {
	errs []FieldError
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) value(sch map[string]any, val any, path string) {
	if !v.checkType(sch["type"], val, path) {
		return
	}

	if allowed, ok := sch["enum"].([]any); ok && !inEnum(allowed, val) {
		v.fail(path, "value %v not in %v", val, allowed)
	}

	switch t := val.(type) {
	case map[string]any:
		v.object(sch, t, path)
	case store.Document:
		v.object(sch, t, path)
	case []any:
		v.array(sch, t, path)
	case string:
		v.length(sch, len([]rune(t)), "string length", "minLength", "maxLength", path)
	default:
		if n, ok := toFloat(val); ok {
			v.number(sch, n, path)
		}
	}
}

// checkType reports whether val matches the type keyword. Nested keywords
// are not checked on a type mismatch.
func (v *validator) checkType(raw any, val any, path string) bool {
	var want []string

	switch t := raw.(type) {
	case nil:
		return true
	case string:
		want = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				want = append(want, s)
			}
		}
	}

	got := typeOf(val)

	for _, w := range want {
		if w == got || (w == "number" && got == "integer") {
			return true
		}
	}

	v.fail(path, "expected %s, got %s", strings.Join(want, " or "), got)

	return false
}

func (v *validator) object(sch map[string]any, obj map[string]any, path string) {
	if req, ok := sch["required"].([]any); ok {
		for _, r := range req {
			field, _ := r.(string)
			if _, exists := obj[field]; field != "" && !exists {
				v.fail(path, "missing required field %q", field)
			}
		}
	}

	props, _ := sch["properties"].(map[string]any)

	for _, field := range sortedKeys(props) {
		val, exists := obj[field]
		if !exists {
			continue
		}

		if ps, ok := props[field].(map[string]any); ok {
			v.value(ps, val, path+"."+field)
		}
	}

	if ap, ok := sch["additionalProperties"].(bool); ok && !ap {
		for _, field := range sortedKeys(obj) {
			if _, defined := props[field]; !defined && field != store.IDKey {
				v.fail(path, "additional property %q not allowed", field)
			}
		}
	}
}

func (v *validator) array(sch map[string]any, arr []any, path string) {
	v.length(sch, len(arr), "array length", "minItems", "maxItems", path)

	items, ok := sch["items"].(map[string]any)
	if !ok {
		return
	}

	for i, elem := range arr {
		v.value(items, elem, fmt.Sprintf("%s[%d]", path, i))
	}
}

func (v *validator) length(sch map[string]any, n int, what, minKey, maxKey, path string) {
	if lo, ok := toFloat(sch[minKey]); ok && float64(n) < lo {
		v.fail(path, "%s %d is less than %s %v", what, n, minKey, lo)
	}

	if hi, ok := toFloat(sch[maxKey]); ok && float64(n) > hi {
		v.fail(path, "%s %d is greater than %s %v", what, n, maxKey, hi)
	}
}

func (v *validator) number(sch map[string]any, n float64, path string) {
	if lo, ok := toFloat(sch["minimum"]); ok && n < lo {
		v.fail(path, "%v is less than minimum %v", n, lo)
	}

	if hi, ok := toFloat(sch["maximum"]); ok && n > hi {
		v.fail(path, "%v is greater than maximum %v", n, hi)
	}
}

func typeOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case map[string]any, store.Document:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64:
		return "integer"
	case float64:
		if t == float64(int64(t)) {
			return "integer"
		}

		return "number"
	case float32:
		return "number"
	}

	return fmt.Sprintf("%T", v)
}

func inEnum(allowed []any, val any) bool {
	for _, a := range allowed {
		if store.ValuesEqual(a, val) {
			return true
		}
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}

	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
