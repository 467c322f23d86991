package chain

// ToPlain flattens v into plain map[string]any and []any values, recursing
// through chains, mappings and sequences at any depth. Containers are always
// copied; scalars are returned as is.
func ToPlain(v any) any {
	switch KindOf(v) {
	case KindMapping:
		m, _ := AsMapping(v)

		out := make(map[string]any)
		for _, k := range m.Keys() {
			child, _ := m.Get(k)
			out[k] = ToPlain(child)
		}

		return out
	case KindSequence:
		items := AsSequence(v)

		out := make([]any, len(items))
		for i, item := range items {
			out[i] = ToPlain(item)
		}

		return out
	case KindScalar:
		return v
	}

	return v
}
