// Package chain overlays ordered mappings into one logical mapping.
//
// A [Chain] holds mappings from lowest to highest priority. Looking up a key
// merges the values the mappings hold for it instead of simply shadowing:
//
//   - all values are mappings: a new [Chain] over them, same order
//   - all values are sequences: their concatenation, lowest priority first
//   - anything else: the value from the highest-priority mapping
//
// The merge recurses lazily, one level per lookup, so chains nest to any depth.
// Use [ToPlain] to flatten a chain back into plain maps and slices.
package chain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrKeyNotFound is returned when no mapping in a chain defines a key.
var ErrKeyNotFound = errors.New("key not found")

// Mapping is a keyed container a [Chain] can overlay.
type Mapping interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Keys() []string
}

// Map adapts a plain map to [Mapping]. It shares storage with the map it
// wraps, so Set writes through.
type Map map[string]any

// Get returns the value stored under key.
func (m Map) Get(key string) (any, bool) {
	v, ok := m[key]

	return v, ok
}

// Set stores value under key.
func (m Map) Set(key string, value any) {
	m[key] = value
}

// Keys returns the keys of m in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Chain is an ordered overlay of mappings, lowest priority first.
type Chain struct {
	maps []Mapping
}

// New returns a chain over maps. maps[0] has the lowest priority and the last
// element the highest. Nil mappings, including typed nil maps such as
// Map(nil), are dropped.
func New(maps ...Mapping) *Chain {
	kept := make([]Mapping, 0, len(maps))

	for _, m := range maps {
		if !isNil(m) {
			kept = append(kept, m)
		}
	}

	return &Chain{maps: kept}
}

// Maps returns the underlying mappings, lowest priority first.
func (c *Chain) Maps() []Mapping {
	return slices.Clone(c.maps)
}

// Get returns the merged value for key across every mapping.
func (c *Chain) Get(key string) (any, bool) {
	present := make([]any, 0, len(c.maps))

	for _, m := range c.maps {
		if v, ok := m.Get(key); ok {
			present = append(present, v)
		}
	}

	if len(present) == 0 {
		return nil, false
	}

	return merge(present), true
}

// GetErr is Get with an error for missing keys.
func (c *Chain) GetErr(key string) (any, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return v, nil
}

// Lookup follows path through nested mappings. It reports false as soon as a
// segment is missing or the value at a segment is not a mapping.
func (c *Chain) Lookup(path ...string) (any, bool) {
	var cur any = c

	for _, key := range path {
		m, ok := AsMapping(cur)
		if !ok {
			return nil, false
		}

		cur, ok = m.Get(key)
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// Set stores value in the highest-priority mapping that already defines key.
// If none does, the value goes to the lowest-priority mapping.
func (c *Chain) Set(key string, value any) {
	if len(c.maps) == 0 {
		return
	}

	for i := len(c.maps) - 1; i >= 0; i-- {
		if _, ok := c.maps[i].Get(key); ok {
			c.maps[i].Set(key, value)

			return
		}
	}

	c.maps[0].Set(key, value)
}

// Keys returns the sorted union of keys defined by any mapping.
func (c *Chain) Keys() []string {
	seen := make(map[string]struct{})

	for _, m := range c.maps {
		for _, k := range m.Keys() {
			seen[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Len returns the number of distinct keys.
func (c *Chain) Len() int {
	return len(c.Keys())
}

// Plain flattens c into a plain nested map.
func (c *Chain) Plain() map[string]any {
	out := make(map[string]any)

	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		out[k] = ToPlain(v)
	}

	return out
}

// merge combines the present values for one key, lowest priority first.
func merge(values []any) any {
	switch uniformKind(values) {
	case KindMapping:
		maps := make([]Mapping, len(values))
		for i, v := range values {
			maps[i], _ = AsMapping(v)
		}

		return New(maps...)
	case KindSequence:
		var out []any
		for _, v := range values {
			out = append(out, AsSequence(v)...)
		}

		if out == nil {
			out = []any{}
		}

		return out
	case KindScalar:
		return values[len(values)-1]
	}

	return values[len(values)-1]
}

// uniformKind returns the shared kind of values, or KindScalar when kinds differ.
func uniformKind(values []any) Kind {
	kind := KindOf(values[0])

	for _, v := range values[1:] {
		if KindOf(v) != kind {
			return KindScalar
		}
	}

	return kind
}

// Compile-time interface checks.
var (
	_ Mapping = Map(nil)
	_ Mapping = (*Chain)(nil)
)
