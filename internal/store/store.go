// Package store presents regolith databases through one document-store
// contract, whatever backend holds them.
//
// A database lives in exactly one [Backend]: flat YAML/JSON collection files
// ([FilesystemBackend]), a MongoDB server ([MongoBackend]) or a SQLite file
// ([SQLiteBackend]). A [Client] is the session object for one command: it
// opens every configured database, routes writes to the database they name
// and overlays all databases into a read-only chained view.
package store

import (
	"context"
	"sort"

	"github.com/regro/regolith/internal/chain"
	"github.com/regro/regolith/internal/rc"
)

// IDKey is the document identifier field.
const IDKey = "_id"

// Document is a single record: an arbitrary nested mapping keyed by "_id".
type Document map[string]any

// ID returns the document identifier, or "" if it has none.
func (d Document) ID() string {
	id, _ := d[IDKey].(string)

	return id
}

// Get returns the value stored under key.
func (d Document) Get(key string) (any, bool) {
	v, ok := d[key]

	return v, ok
}

// Set stores value under key.
func (d Document) Set(key string, value any) {
	d[key] = value
}

// Keys returns the document keys in sorted order.
func (d Document) Keys() []string {
	return sortedKeys(d)
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	return Document(chain.ToPlain(d).(map[string]any))
}

// Collection maps document ids to documents.
type Collection map[string]Document

// Get returns the document stored under id.
func (c Collection) Get(id string) (any, bool) {
	d, ok := c[id]
	if !ok {
		return nil, false
	}

	return d, true
}

// Set stores a document under id. Values that are not mappings are ignored.
func (c Collection) Set(id string, value any) {
	m, ok := chain.AsMapping(value)
	if !ok {
		return
	}

	if d, isDoc := m.(Document); isDoc {
		c[id] = d

		return
	}

	c[id] = Document(chain.ToPlain(m).(map[string]any))
}

// Keys returns the document ids in sorted order.
func (c Collection) Keys() []string {
	return sortedKeys(c)
}

// DocumentStore is the uniform CRUD contract over every configured database.
type DocumentStore interface {
	// ListDatabases returns database names in priority order, lowest first.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListCollections returns the collection names of one database.
	ListCollections(ctx context.Context, db string) ([]string, error)

	// AllDocuments returns the merged documents of a collection across all
	// databases, sorted by id. With copy set every document is a deep copy;
	// without it documents defined by a single database are returned as is
	// and must not be mutated.
	AllDocuments(ctx context.Context, coll string, copy bool) ([]Document, error)

	// FindOne returns the first document, in id order, matching filter.
	FindOne(ctx context.Context, db, coll string, filter Filter) (Document, bool, error)

	InsertOne(ctx context.Context, db, coll string, doc Document) error
	InsertMany(ctx context.Context, db, coll string, docs []Document) error

	// UpdateOne merges the top-level keys of update into the document
	// matching filter. With upsert, a missing document is created from
	// filter and update; without it ErrDocumentNotFound is returned.
	UpdateOne(ctx context.Context, db, coll string, filter Filter, update Document, upsert bool) error

	// DeleteOne removes the document with doc's id.
	DeleteOne(ctx context.Context, db, coll string, doc Document) error
}

// Backend is one storage mechanism holding one or more databases.
type Backend interface {
	// Name returns the backend name, one of the rc.Backend* constants.
	Name() string

	// OpenDatabase makes a configured database available to the backend.
	OpenDatabase(ctx context.Context, db rc.Database) error

	ListCollections(ctx context.Context, db string) ([]string, error)

	// Collection returns every document of a collection. A missing
	// collection yields an empty result, not an error.
	Collection(ctx context.Context, db, coll string) (Collection, error)

	FindOne(ctx context.Context, db, coll string, filter Filter) (Document, bool, error)
	InsertOne(ctx context.Context, db, coll string, doc Document) error
	InsertMany(ctx context.Context, db, coll string, docs []Document) error
	UpdateOne(ctx context.Context, db, coll string, filter Filter, update Document, upsert bool) error
	DeleteOne(ctx context.Context, db, coll string, doc Document) error

	// Close releases the backend, persisting pending writes first.
	Close() error
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Compile-time interface checks.
var (
	_ chain.Mapping = Document(nil)
	_ chain.Mapping = Collection(nil)
)
