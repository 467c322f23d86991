package chain

import "reflect"

// Kind is the shape of a value as far as merging is concerned.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	}

	return "unknown"
}

var plainMapType = reflect.TypeOf(map[string]any(nil))

// KindOf classifies v. [Mapping] implementations and maps convertible to
// map[string]any are mappings; slices other than []byte are sequences;
// everything else, including nil, is a scalar.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil, string, []byte:
		return KindScalar
	case Mapping, map[string]any:
		return KindMapping
	case []any:
		return KindSequence
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().ConvertibleTo(plainMapType) {
			return KindMapping
		}
	case reflect.Slice, reflect.Array:
		return KindSequence
	default:
	}

	return KindScalar
}

// AsMapping returns v as a [Mapping] if KindOf(v) is KindMapping.
func AsMapping(v any) (Mapping, bool) {
	switch m := v.(type) {
	case Mapping:
		return m, true
	case map[string]any:
		return Map(m), true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().ConvertibleTo(plainMapType) {
		return Map(rv.Convert(plainMapType).Interface().(map[string]any)), true
	}

	return nil, false
}

// AsSequence returns the elements of a sequence value, or nil.
func AsSequence(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}

	if KindOf(v) != KindSequence {
		return nil
	}

	rv := reflect.ValueOf(v)

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out
}

// isNil reports whether m is nil or wraps a nil map or pointer.
func isNil(m Mapping) bool {
	if m == nil {
		return true
	}

	rv := reflect.ValueOf(m)

	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		return rv.IsNil()
	default:
	}

	return false
}
