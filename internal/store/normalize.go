package store

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/regro/regolith/internal/chain"
)

// NormalizeDocument returns a deep copy of doc in canonical form. Every
// backend runs it before a write, so all of them accept and reject the same
// documents:
//
//   - _id must be present; numbers are formatted as strings
//   - _id must not contain '.' (a Mongo path separator) or start with '$'
//   - maps with non-string keys (YAML) become map[string]any
//   - bson containers become plain maps and slices, bson dates time.Time
func NormalizeDocument(doc map[string]any) (Document, error) {
	if doc == nil {
		return nil, ErrMissingID
	}

	out, err := normalizeMap(doc)
	if err != nil {
		return nil, err
	}

	raw, ok := out[IDKey]
	if !ok {
		return nil, ErrMissingID
	}

	id, err := NormalizeID(raw)
	if err != nil {
		return nil, err
	}

	out[IDKey] = id

	return Document(out), nil
}

// NormalizeID validates and canonicalizes a document identifier.
func NormalizeID(raw any) (string, error) {
	var id string

	switch v := raw.(type) {
	case string:
		id = v
	case int, int32, int64, uint, uint32, uint64:
		id = fmt.Sprint(v)
	case float64:
		if v != math.Trunc(v) {
			return "", fmt.Errorf("%w: %v", ErrDottedID, v)
		}

		id = strconv.FormatFloat(v, 'f', -1, 64)
	case primitive.ObjectID:
		id = v.Hex()
	default:
		return "", fmt.Errorf("%w: %v (%T)", ErrInvalidID, raw, raw)
	}

	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}

	if strings.Contains(id, ".") {
		return "", fmt.Errorf("%w: %s", ErrDottedID, id)
	}

	if strings.HasPrefix(id, "$") {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	return id, nil
}

// NormalizeValue converts v to plain map[string]any / []any containers.
func NormalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, float64, time.Time:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), nil
		}

		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", t, err)
		}

		return f, nil
	case map[string]any:
		return normalizeMap(t)
	case Document:
		return normalizeMap(t)
	case primitive.M:
		return normalizeMap(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = val
		}

		return normalizeMap(m)
	case primitive.D:
		return normalizeMap(t.Map())
	case []any:
		return normalizeSlice(t)
	case primitive.A:
		return normalizeSlice(t)
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case *chain.Chain:
		return NormalizeValue(t.Plain())
	}

	switch chain.KindOf(v) {
	case chain.KindMapping:
		m, _ := chain.AsMapping(v)

		return NormalizeValue(chain.ToPlain(m))
	case chain.KindSequence:
		return normalizeSlice(chain.AsSequence(v))
	case chain.KindScalar:
	}

	return v, nil
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))

	for k, v := range m {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}

		out[k] = nv
	}

	return out, nil
}

func normalizeSlice(s []any) ([]any, error) {
	out := make([]any, len(s))

	for i, v := range s {
		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}

		out[i] = nv
	}

	return out, nil
}

// fromBSON converts a decoded bson document into a normalized Document.
func fromBSON(raw bson.M) (Document, error) {
	return NormalizeDocument(raw)
}

// Filter is an exact-match conjunction over top-level document keys.
type Filter map[string]any

// ByID returns a filter matching one document id.
func ByID(id string) Filter {
	return Filter{IDKey: id}
}

// normalizeFilter returns a copy of f with values normalized the way writes
// normalize them, so a numeric _id matches the string id it was stored under.
func normalizeFilter(f Filter) (Filter, error) {
	out := make(Filter, len(f))

	for k, v := range f {
		if k == IDKey {
			id, err := NormalizeID(v)
			if err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}

			out[k] = id

			continue
		}

		nv, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("filter: %s: %w", k, err)
		}

		out[k] = nv
	}

	return out, nil
}

// Matches reports whether every filter key is present in doc with an equal value.
func (f Filter) Matches(doc Document) bool {
	for k, want := range f {
		got, ok := doc[k]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}

	return true
}

// onlyID returns the id when f filters on _id alone.
func (f Filter) onlyID() (string, bool) {
	if len(f) != 1 {
		return "", false
	}

	id, ok := f[IDKey].(string)

	return id, ok
}

// ValuesEqual compares document values. Numbers compare numerically across
// Go types; mappings and sequences compare element by element.
func ValuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)

		return ok && fa == fb
	}

	switch chain.KindOf(a) {
	case chain.KindMapping:
		if chain.KindOf(b) != chain.KindMapping {
			return false
		}

		ma, _ := chain.AsMapping(a)
		mb, _ := chain.AsMapping(b)

		ka, kb := ma.Keys(), mb.Keys()
		if len(ka) != len(kb) {
			return false
		}

		for _, k := range ka {
			va, _ := ma.Get(k)

			vb, ok := mb.Get(k)
			if !ok || !ValuesEqual(va, vb) {
				return false
			}
		}

		return true
	case chain.KindSequence:
		if chain.KindOf(b) != chain.KindSequence {
			return false
		}

		sa, sb := chain.AsSequence(a), chain.AsSequence(b)
		if len(sa) != len(sb) {
			return false
		}

		for i := range sa {
			if !ValuesEqual(sa[i], sb[i]) {
				return false
			}
		}

		return true
	case chain.KindScalar:
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)

		return ok && ta.Equal(tb)
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	return 0, false
}

// mergeTopLevel copies the normalized keys of update into doc.
func mergeTopLevel(doc Document, update Document) error {
	if raw, ok := update[IDKey]; ok {
		id, err := NormalizeID(raw)
		if err != nil {
			return err
		}

		if id != doc.ID() {
			return fmt.Errorf("%w: %s -> %s", ErrIDChange, doc.ID(), id)
		}
	}

	for k, v := range update {
		if k == IDKey {
			continue
		}

		nv, err := NormalizeValue(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}

		doc[k] = nv
	}

	return nil
}

// upsertDocument builds the document an upsert creates: filter ∪ update,
// update winning on overlap.
func upsertDocument(filter Filter, update Document) (Document, error) {
	merged := make(map[string]any, len(filter)+len(update))

	for k, v := range filter {
		merged[k] = v
	}

	for k, v := range update {
		merged[k] = v
	}

	return NormalizeDocument(merged)
}

// findIn returns the first document, in id order, matching filter.
func findIn(docs Collection, filter Filter) (Document, bool) {
	if id, ok := filter.onlyID(); ok {
		doc, found := docs[id]

		return doc, found
	}

	for _, id := range docs.Keys() {
		if filter.Matches(docs[id]) {
			return docs[id], true
		}
	}

	return nil, false
}
