package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"go.mongodb.org/mongo-driver/bson"

	"github.com/regro/regolith/internal/rc"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

// SQLiteBackend keeps each database in one SQLite file with a single
// documents table. Bodies are stored without their _id as relaxed MongoDB
// extended JSON, so dates survive as {"$date": ...} and load as time.Time.
type SQLiteBackend struct {
	cwd      string
	buildDir string
	dbs      map[string]sqliteDatabase
}

type sqliteDatabase struct {
	cfg rc.Database
	sql *sql.DB
}

// NewSQLiteBackend returns a backend resolving database files against cwd;
// databases without a url live in buildDir/_dbs/<name>.sqlite.
func NewSQLiteBackend(cwd, buildDir string) *SQLiteBackend {
	return &SQLiteBackend{cwd: cwd, buildDir: buildDir, dbs: make(map[string]sqliteDatabase)}
}

// Name returns rc.BackendSQLite.
func (b *SQLiteBackend) Name() string {
	return rc.BackendSQLite
}

// SQLitePath returns the database file for db.
func SQLitePath(db rc.Database, cwd, buildDir string) string {
	switch {
	case db.URL == "":
		return filepath.Join(buildDir, "_dbs", db.Name+".sqlite")
	case filepath.IsAbs(db.URL):
		return db.URL
	default:
		return filepath.Join(cwd, db.URL)
	}
}

// OpenDatabase opens (creating if needed) the database file.
func (b *SQLiteBackend) OpenDatabase(ctx context.Context, db rc.Database) error {
	path := SQLitePath(db, b.cwd, b.buildDir)

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("open database %s: %w", db.Name, err)
	}

	conn, err := openSQLite(ctx, path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", db.Name, err)
	}

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()

		return fmt.Errorf("open database %s: create schema: %w", db.Name, err)
	}

	glog.V(1).Infof("database %s: opened sqlite file %s", db.Name, path)

	b.dbs[db.Name] = sqliteDatabase{cfg: db, sql: conn}

	return nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return db, nil
}

func (b *SQLiteBackend) database(name, coll string) (sqliteDatabase, error) {
	db, ok := b.dbs[name]
	if !ok {
		return sqliteDatabase{}, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}

	if coll != "" && !db.cfg.Allows(coll) {
		return sqliteDatabase{}, fmt.Errorf("%w: %s in %s", ErrCollectionNotAllowed, coll, name)
	}

	return db, nil
}

// ListCollections returns the allowed collection names in sorted order.
func (b *SQLiteBackend) ListCollections(ctx context.Context, dbName string) ([]string, error) {
	db, err := b.database(dbName, "")
	if err != nil {
		return nil, err
	}

	rows, err := db.sql.QueryContext(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", dbName, err)
	}

	defer func() { _ = rows.Close() }()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list collections of %s: %w", dbName, err)
		}

		if db.cfg.Allows(name) {
			names = append(names, name)
		}
	}

	return names, rows.Err()
}

// Collection reads every document of a collection.
func (b *SQLiteBackend) Collection(ctx context.Context, dbName, coll string) (Collection, error) {
	db, err := b.database(dbName, coll)
	if errors.Is(err, ErrCollectionNotAllowed) {
		return Collection{}, nil
	}

	if err != nil {
		return nil, err
	}

	rows, err := db.sql.QueryContext(ctx, `SELECT id, body FROM documents WHERE collection = ?`, coll)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
	}

	defer func() { _ = rows.Close() }()

	out := Collection{}

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
		}

		doc, err := decodeBody(id, body)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
		}

		out[id] = doc
	}

	return out, rows.Err()
}

func decodeBody(id, body string) (Document, error) {
	var m bson.M
	if err := bson.UnmarshalExtJSON([]byte(body), false, &m); err != nil {
		return nil, fmt.Errorf("%w: document %q: %w", ErrMalformedCollection, id, err)
	}

	if m == nil {
		m = bson.M{}
	}

	m[IDKey] = id

	return fromBSON(m)
}

// FindOne returns the first document, in id order, matching filter.
func (b *SQLiteBackend) FindOne(ctx context.Context, dbName, coll string, filter Filter) (Document, bool, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, false, err
	}

	if id, ok := filter.onlyID(); ok {
		db, err := b.database(dbName, coll)
		if err != nil {
			return nil, false, err
		}

		var body string

		err = db.sql.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection = ? AND id = ?`, coll, id).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		if err != nil {
			return nil, false, fmt.Errorf("find in %s.%s: %w", dbName, coll, err)
		}

		doc, err := decodeBody(id, body)

		return doc, err == nil, err
	}

	docs, err := b.Collection(ctx, dbName, coll)
	if err != nil {
		return nil, false, err
	}

	doc, ok := findIn(docs, filter)

	return doc, ok, nil
}

// InsertOne stores doc, overwriting any document with the same id.
func (b *SQLiteBackend) InsertOne(ctx context.Context, dbName, coll string, doc Document) error {
	return b.InsertMany(ctx, dbName, coll, []Document{doc})
}

// InsertMany stores docs in one transaction.
func (b *SQLiteBackend) InsertMany(ctx context.Context, dbName, coll string, docs []Document) error {
	db, err := b.database(dbName, coll)
	if err != nil {
		return err
	}

	rows := make([][2]string, len(docs))

	for i, doc := range docs {
		n, err := NormalizeDocument(doc)
		if err != nil {
			return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
		}

		body, err := encodeBody(n)
		if err != nil {
			return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
		}

		rows[i] = [2]string{n.ID(), body}
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
	}

	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO documents (collection, id, body) VALUES (?, ?, ?)`,
			coll, row[0], row[1])
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
	}

	return nil
}

func encodeBody(doc Document) (string, error) {
	body := make(bson.M, len(doc))

	for k, v := range doc {
		if k != IDKey {
			body[k] = v
		}
	}

	data, err := bson.MarshalExtJSON(body, false, false)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// UpdateOne merges update into the matching document at the top level.
func (b *SQLiteBackend) UpdateOne(ctx context.Context, dbName, coll string, filter Filter, update Document, upsert bool) error {
	doc, found, err := b.FindOne(ctx, dbName, coll, filter)
	if err != nil {
		return err
	}

	if !found {
		if !upsert {
			return fmt.Errorf("%w: %s.%s %v", ErrDocumentNotFound, dbName, coll, map[string]any(filter))
		}

		created, err := upsertDocument(filter, update)
		if err != nil {
			return fmt.Errorf("upsert into %s.%s: %w", dbName, coll, err)
		}

		return b.InsertOne(ctx, dbName, coll, created)
	}

	if err := mergeTopLevel(doc, update); err != nil {
		return fmt.Errorf("update %s.%s: %w", dbName, coll, err)
	}

	return b.InsertOne(ctx, dbName, coll, doc)
}

// DeleteOne removes the document with doc's id.
func (b *SQLiteBackend) DeleteOne(ctx context.Context, dbName, coll string, doc Document) error {
	id, err := NormalizeID(doc[IDKey])
	if err != nil {
		return err
	}

	db, err := b.database(dbName, coll)
	if err != nil {
		return err
	}

	res, err := db.sql.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, coll, id)
	if err != nil {
		return fmt.Errorf("delete from %s.%s: %w", dbName, coll, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s.%s %s", ErrDocumentNotFound, dbName, coll, id)
	}

	return nil
}

// Close closes every database file.
func (b *SQLiteBackend) Close() error {
	var errs []error

	for name, db := range b.dbs {
		if err := db.sql.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	b.dbs = make(map[string]sqliteDatabase)

	return errors.Join(errs...)
}

// Compile-time interface check.
var _ Backend = (*SQLiteBackend)(nil)
