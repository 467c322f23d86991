package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a collection file.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}

	return "yaml"
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}

	return ".yaml"
}

// FormatFromPath returns the format implied by a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}

	return 0, false
}

// DecodeCollection parses a collection file. The file is a mapping from
// document id to document body; the _id is re-attached to each body. A
// sequence of documents carrying their own _id is accepted too.
func DecodeCollection(data []byte, format Format) (Collection, error) {
	var raw any

	switch format {
	case FormatJSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return Collection{}, nil
		}

		if err := decodeJSON(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
		}
	default:
		return nil, ErrUnknownFormat
	}

	normalized, err := NormalizeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
	}

	coll := Collection{}

	switch top := normalized.(type) {
	case nil:
		return coll, nil
	case map[string]any:
		for id, body := range top {
			if body == nil {
				body = map[string]any{}
			}

			m, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: document %q is %T, not a mapping", ErrMalformedCollection, id, body)
			}

			m[IDKey] = id

			doc, err := NormalizeDocument(m)
			if err != nil {
				return nil, fmt.Errorf("%w: document %q: %w", ErrMalformedCollection, id, err)
			}

			coll[doc.ID()] = doc
		}
	case []any:
		for i, item := range top {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T, not a mapping", ErrMalformedCollection, i, item)
			}

			doc, err := NormalizeDocument(m)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %w", ErrMalformedCollection, i, err)
			}

			coll[doc.ID()] = doc
		}
	default:
		return nil, fmt.Errorf("%w: top level is %T", ErrMalformedCollection, normalized)
	}

	return coll, nil
}

// decodeJSON unmarshals data keeping integers as integers.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	return dec.Decode(v)
}

// EncodeCollection renders a collection file: a mapping from id to body with
// the _id stripped from each body. Keys are sorted.
func EncodeCollection(coll Collection, format Format) ([]byte, error) {
	out := make(map[string]map[string]any, len(coll))

	for id, doc := range coll {
		body := make(map[string]any, len(doc))

		for k, v := range doc {
			if k != IDKey {
				body[k] = v
			}
		}

		out[id] = body
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}

		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		if err := enc.Encode(out); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}

		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}

		return buf.Bytes(), nil
	}

	return nil, ErrUnknownFormat
}
