package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/rc"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// CloneFunc fetches a remote database repository into dir.
type CloneFunc func(ctx context.Context, url, dir string) error

// GitClone clones url into dir with the git binary.
func GitClone(ctx context.Context, url, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dir)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w: %s", url, err, strings.TrimSpace(string(out)))
	}

	return nil
}

// FilesystemBackend keeps databases as directories of YAML/JSON collection
// files. Every collection is loaded into memory when its database opens;
// writes mark the collection dirty and Flush rewrites each dirty collection
// file whole. There is no locking: concurrent writers to the same files
// clobber each other.
type FilesystemBackend struct {
	fs       fs.FS
	cwd      string
	buildDir string
	clone    CloneFunc
	dbs      map[string]*fsDatabase
}

type fsDatabase struct {
	cfg   rc.Database
	dir   string
	colls map[string]*fsCollection
}

type fsCollection struct {
	path   string
	format Format
	docs   Collection
	dirty  bool
}

// NewFilesystemBackend returns a backend resolving local database urls
// against cwd and cloning remote ones under buildDir/_dbs.
// A nil clone disables cloning.
func NewFilesystemBackend(fsys fs.FS, cwd, buildDir string, clone CloneFunc) *FilesystemBackend {
	if fsys == nil {
		fsys = fs.NewReal()
	}

	return &FilesystemBackend{
		fs:       fsys,
		cwd:      cwd,
		buildDir: buildDir,
		clone:    clone,
		dbs:      make(map[string]*fsDatabase),
	}
}

// Name returns rc.BackendFilesystem.
func (b *FilesystemBackend) Name() string {
	return rc.BackendFilesystem
}

// DatabaseDir returns the directory holding a database checkout: the url
// itself for local databases, buildDir/_dbs/<name> otherwise.
func DatabaseDir(db rc.Database, cwd, buildDir string) string {
	if db.Local {
		if filepath.IsAbs(db.URL) {
			return db.URL
		}

		return filepath.Join(cwd, db.URL)
	}

	return filepath.Join(buildDir, "_dbs", db.Name)
}

// OpenDatabase loads every collection file of db. Malformed files fail the open.
func (b *FilesystemBackend) OpenDatabase(ctx context.Context, db rc.Database) error {
	dir := DatabaseDir(db, b.cwd, b.buildDir)

	exists, err := b.fs.Exists(dir)
	if err != nil {
		return fmt.Errorf("open database %s: %w", db.Name, err)
	}

	if !exists && !db.Local && db.URL != "" && b.clone != nil {
		glog.V(1).Infof("cloning database %s from %s into %s", db.Name, db.URL, dir)

		if err := b.fs.MkdirAll(filepath.Dir(dir), dirPerms); err != nil {
			return fmt.Errorf("open database %s: %w", db.Name, err)
		}

		if err := b.clone(ctx, db.URL, dir); err != nil {
			return fmt.Errorf("open database %s: %w", db.Name, err)
		}
	}

	fsdb := &fsDatabase{
		cfg:   db,
		dir:   filepath.Join(dir, db.Path),
		colls: make(map[string]*fsCollection),
	}

	entries, err := b.fs.ReadDir(fsdb.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("open database %s: %w", db.Name, err)
	}

	if err != nil {
		glog.Warningf("database %s: %s does not exist, starting empty", db.Name, fsdb.dir)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		format, ok := FormatFromPath(entry.Name())
		if !ok {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !db.Allows(name) {
			continue
		}

		if prev, dup := fsdb.colls[name]; dup {
			return fmt.Errorf("open database %s: %w: %s and %s", db.Name, ErrDuplicateCollection, prev.path, entry.Name())
		}

		path := filepath.Join(fsdb.dir, entry.Name())

		data, err := b.fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("open database %s: %w", db.Name, err)
		}

		docs, err := DecodeCollection(data, format)
		if err != nil {
			return fmt.Errorf("open database %s: %s: %w", db.Name, path, err)
		}

		glog.V(2).Infof("database %s: loaded %d documents from %s", db.Name, len(docs), path)

		fsdb.colls[name] = &fsCollection{path: path, format: format, docs: docs}
	}

	b.dbs[db.Name] = fsdb

	return nil
}

func (b *FilesystemBackend) database(name string) (*fsDatabase, error) {
	db, ok := b.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}

	return db, nil
}

// collection returns the named collection, creating an empty YAML one when
// create is set.
func (b *FilesystemBackend) collection(dbName, coll string, create bool) (*fsCollection, error) {
	db, err := b.database(dbName)
	if err != nil {
		return nil, err
	}

	if c, ok := db.colls[coll]; ok {
		return c, nil
	}

	if !create {
		return nil, nil
	}

	if !db.cfg.Allows(coll) {
		return nil, fmt.Errorf("%w: %s in %s", ErrCollectionNotAllowed, coll, dbName)
	}

	c := &fsCollection{
		path:   filepath.Join(db.dir, coll+FormatYAML.Ext()),
		format: FormatYAML,
		docs:   Collection{},
	}
	db.colls[coll] = c

	return c, nil
}

// ListCollections returns the loaded collection names in sorted order.
func (b *FilesystemBackend) ListCollections(_ context.Context, dbName string) ([]string, error) {
	db, err := b.database(dbName)
	if err != nil {
		return nil, err
	}

	return sortedKeys(db.colls), nil
}

// Collection returns the in-memory collection itself; the chained view reads
// through it so later writes are visible without reloading.
func (b *FilesystemBackend) Collection(_ context.Context, dbName, coll string) (Collection, error) {
	c, err := b.collection(dbName, coll, false)
	if err != nil || c == nil {
		return Collection{}, err
	}

	return c.docs, nil
}

// FindOne returns a copy of the first matching document.
func (b *FilesystemBackend) FindOne(_ context.Context, dbName, coll string, filter Filter) (Document, bool, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, false, err
	}

	c, err := b.collection(dbName, coll, false)
	if err != nil || c == nil {
		return nil, false, err
	}

	doc, ok := findIn(c.docs, filter)
	if !ok {
		return nil, false, nil
	}

	return doc.Clone(), true, nil
}

// InsertOne stores doc, overwriting any document with the same id.
func (b *FilesystemBackend) InsertOne(ctx context.Context, dbName, coll string, doc Document) error {
	return b.InsertMany(ctx, dbName, coll, []Document{doc})
}

// InsertMany stores docs. Every document is validated before any is stored.
func (b *FilesystemBackend) InsertMany(_ context.Context, dbName, coll string, docs []Document) error {
	normalized := make([]Document, len(docs))

	for i, doc := range docs {
		n, err := NormalizeDocument(doc)
		if err != nil {
			return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
		}

		normalized[i] = n
	}

	c, err := b.collection(dbName, coll, true)
	if err != nil {
		return err
	}

	for _, doc := range normalized {
		c.docs[doc.ID()] = doc
	}

	c.dirty = true

	return nil
}

// UpdateOne merges update into the matching document at the top level.
func (b *FilesystemBackend) UpdateOne(_ context.Context, dbName, coll string, filter Filter, update Document, upsert bool) error {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return err
	}

	c, err := b.collection(dbName, coll, upsert)
	if err != nil {
		return err
	}

	var doc Document

	if c != nil {
		doc, _ = findIn(c.docs, filter)
	}

	if doc == nil {
		if !upsert {
			return fmt.Errorf("%w: %s.%s %v", ErrDocumentNotFound, dbName, coll, map[string]any(filter))
		}

		created, err := upsertDocument(filter, update)
		if err != nil {
			return fmt.Errorf("upsert into %s.%s: %w", dbName, coll, err)
		}

		c.docs[created.ID()] = created
		c.dirty = true

		return nil
	}

	updated := doc.Clone()

	if err := mergeTopLevel(updated, update); err != nil {
		return fmt.Errorf("update %s.%s: %w", dbName, coll, err)
	}

	c.docs[updated.ID()] = updated
	c.dirty = true

	return nil
}

// DeleteOne removes the document with doc's id.
func (b *FilesystemBackend) DeleteOne(_ context.Context, dbName, coll string, doc Document) error {
	id, err := NormalizeID(doc[IDKey])
	if err != nil {
		return err
	}

	c, err := b.collection(dbName, coll, false)
	if err != nil {
		return err
	}

	if c == nil {
		return fmt.Errorf("%w: %s.%s %s", ErrDocumentNotFound, dbName, coll, id)
	}

	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s.%s %s", ErrDocumentNotFound, dbName, coll, id)
	}

	delete(c.docs, id)
	c.dirty = true

	return nil
}

// Flush rewrites every dirty collection file in full.
func (b *FilesystemBackend) Flush() error {
	var errs []error

	for _, dbName := range sortedKeys(b.dbs) {
		db := b.dbs[dbName]

		for _, name := range sortedKeys(db.colls) {
			c := db.colls[name]
			if !c.dirty {
				continue
			}

			if err := b.writeCollection(c); err != nil {
				errs = append(errs, fmt.Errorf("write %s.%s: %w", dbName, name, err))

				continue
			}

			glog.V(1).Infof("database %s: wrote %d documents to %s", dbName, len(c.docs), c.path)

			c.dirty = false
		}
	}

	return errors.Join(errs...)
}

func (b *FilesystemBackend) writeCollection(c *fsCollection) error {
	data, err := EncodeCollection(c.docs, c.format)
	if err != nil {
		return err
	}

	if err := b.fs.MkdirAll(filepath.Dir(c.path), dirPerms); err != nil {
		return err
	}

	return b.fs.WriteFileAtomic(c.path, data, filePerms)
}

// Close flushes pending writes and forgets every database.
func (b *FilesystemBackend) Close() error {
	err := b.Flush()
	b.dbs = make(map[string]*fsDatabase)

	return err
}

// Compile-time interface check.
var _ Backend = (*FilesystemBackend)(nil)
