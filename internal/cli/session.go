package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/schema"
	"github.com/regro/regolith/internal/store"
)

var (
	errArgsRequired = errors.New("missing arguments")
	errNotDocument  = errors.New("not a document")
)

// withStore opens every configured database, runs fn and closes the
// session again; filesystem changes are written back on close.
func withStore(ctx context.Context, cfg *rc.Config, fn func(c *store.Client) error) (err error) {
	c, err := store.Open(ctx, *cfg, store.Options{})
	if err != nil {
		return err
	}

	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(c)
}

// parseDocuments reads YAML or JSON holding one document, a list of
// documents, or an id -> body mapping. A mapping whose values are all
// mappings is read as the latter. Documents without an _id get a random one.
func parseDocuments(data []byte) ([]store.Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}

	v, err := store.NormalizeValue(raw)
	if err != nil {
		return nil, err
	}

	var bodies []map[string]any

	switch t := v.(type) {
	case map[string]any:
		if !isIDMap(t) {
			bodies = append(bodies, t)

			break
		}

		for _, id := range sortedKeys(t) {
			body, _ := t[id].(map[string]any)
			if body == nil {
				body = map[string]any{}
			}

			body[store.IDKey] = id
			bodies = append(bodies, body)
		}
	case []any:
		for i, item := range t {
			body, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T", errNotDocument, i, item)
			}

			bodies = append(bodies, body)
		}
	default:
		return nil, fmt.Errorf("%w: %T", errNotDocument, v)
	}

	docs := make([]store.Document, 0, len(bodies))

	for _, body := range bodies {
		if _, ok := body[store.IDKey]; !ok {
			body[store.IDKey] = uuid.NewString()
		}

		doc, err := store.NormalizeDocument(body)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// isIDMap reports whether m maps ids to document bodies rather than being a
// single document: it has no _id and every value is a mapping or null.
func isIDMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}

	if _, ok := m[store.IDKey]; ok {
		return false
	}

	for _, v := range m {
		if _, ok := v.(map[string]any); !ok && v != nil {
			return false
		}
	}

	return true
}

// insertValidated validates docs against coll's schema and inserts them
// into the target database. Nothing is inserted if any document is invalid.
func insertValidated(ctx context.Context, o *IO, c *store.Client, db, coll string, docs []store.Document) error {
	report := schema.Builtin().ValidateCollections(map[string][]store.Document{coll: docs})
	if !report.OK() {
		_, _ = report.WriteTo(o.Stderr().Writer())

		return report.Err()
	}

	target, err := c.TargetDatabase(ctx, coll, db)
	if err != nil {
		return err
	}

	if err := c.InsertMany(ctx, target, coll, docs); err != nil {
		return err
	}

	for _, doc := range docs {
		o.Printf("%s/%s/%s\n", target, coll, doc.ID())
	}

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
