package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang/glog"

	"github.com/regro/regolith/internal/chain"
	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/rc"
)

// Options configures [Open].
type Options struct {
	// FS is the filesystem used by the filesystem backend. Nil means the real one.
	FS fs.FS

	// Clone fetches remote filesystem databases. Nil means [GitClone].
	Clone CloneFunc

	// Backends overrides the backend used for a backend name.
	Backends map[string]Backend
}

// Client is the session for one command: every configured database opened
// in its backend, in rc priority order.
type Client struct {
	cfg      rc.Config
	order    []string
	owners   map[string]Backend // by database name
	backends []Backend          // open backends, in first-use order
	closed   bool
}

// Open opens every database of cfg. On failure the databases opened so far
// are closed again.
func Open(ctx context.Context, cfg rc.Config, opts Options) (*Client, error) {
	if len(cfg.Databases) == 0 {
		return nil, ErrNoDatabases
	}

	clone := opts.Clone
	if clone == nil {
		clone = GitClone
	}

	c := &Client{
		cfg:    cfg,
		owners: make(map[string]Backend, len(cfg.Databases)),
	}

	byName := make(map[string]Backend)

	for _, db := range cfg.Databases {
		b, ok := byName[db.Backend]
		if !ok {
			var err error

			b, err = newBackend(db.Backend, cfg, opts, clone)
			if err != nil {
				_ = c.Close()

				return nil, fmt.Errorf("open database %s: %w", db.Name, err)
			}

			byName[db.Backend] = b
			c.backends = append(c.backends, b)
		}

		if err := b.OpenDatabase(ctx, db); err != nil {
			_ = c.Close()

			return nil, err
		}

		glog.V(1).Infof("opened database %s (%s)", db.Name, b.Name())

		c.owners[db.Name] = b
		c.order = append(c.order, db.Name)
	}

	return c, nil
}

func newBackend(name string, cfg rc.Config, opts Options, clone CloneFunc) (Backend, error) {
	if b, ok := opts.Backends[name]; ok {
		return b, nil
	}

	switch name {
	case rc.BackendFilesystem:
		return NewFilesystemBackend(opts.FS, cfg.Cwd, cfg.BuildDirAbs, clone), nil
	case rc.BackendMongoDB:
		return NewMongoBackend(cfg.Resolve(cfg.MongoDBPath)), nil
	case rc.BackendSQLite:
		return NewSQLiteBackend(cfg.Cwd, cfg.BuildDirAbs), nil
	}

	return nil, fmt.Errorf("%w: %s", rc.ErrUnknownBackend, name)
}

// Config returns the configuration the client was opened with.
func (c *Client) Config() rc.Config {
	return c.cfg
}

// Close closes every backend. Filesystem backends write pending changes first.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	var errs []error

	for _, b := range c.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s backend: %w", b.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (c *Client) backend(db string) (Backend, error) {
	if c.closed {
		return nil, ErrClosed
	}

	b, ok := c.owners[db]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, db)
	}

	return b, nil
}

// ListDatabases returns database names in priority order, lowest first.
func (c *Client) ListDatabases(_ context.Context) ([]string, error) {
	if c.closed {
		return nil, ErrClosed
	}

	return slices.Clone(c.order), nil
}

// ListCollections returns the collection names of one database.
func (c *Client) ListCollections(ctx context.Context, db string) ([]string, error) {
	b, err := c.backend(db)
	if err != nil {
		return nil, err
	}

	return b.ListCollections(ctx, db)
}

// Collections returns the sorted union of collection names over all databases.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var names []string

	for _, db := range c.order {
		colls, err := c.ListCollections(ctx, db)
		if err != nil {
			return nil, err
		}

		for _, name := range colls {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}

	slices.Sort(names)

	return names, nil
}

// ChainDB returns the chained view of every database: collection name to
// document id to document, later databases winning on scalar conflicts.
// The collections themselves are read now; merging happens per lookup.
func (c *Client) ChainDB(ctx context.Context) (*chain.Chain, error) {
	maps := make([]chain.Mapping, 0, len(c.order))

	for _, db := range c.order {
		b, err := c.backend(db)
		if err != nil {
			return nil, err
		}

		colls, err := b.ListCollections(ctx, db)
		if err != nil {
			return nil, err
		}

		m := chain.Map{}

		for _, name := range colls {
			docs, err := b.Collection(ctx, db, name)
			if err != nil {
				return nil, err
			}

			m[name] = docs
		}

		maps = append(maps, m)
	}

	return chain.New(maps...), nil
}

// ChainCollection returns the chained view of one collection across databases.
func (c *Client) ChainCollection(ctx context.Context, coll string) (*chain.Chain, error) {
	maps := make([]chain.Mapping, 0, len(c.order))

	for _, db := range c.order {
		b, err := c.backend(db)
		if err != nil {
			return nil, err
		}

		docs, err := b.Collection(ctx, db, coll)
		if err != nil {
			return nil, err
		}

		maps = append(maps, docs)
	}

	return chain.New(maps...), nil
}

// AllDocuments returns the merged documents of coll sorted by id.
func (c *Client) AllDocuments(ctx context.Context, coll string, copy bool) ([]Document, error) {
	view, err := c.ChainCollection(ctx, coll)
	if err != nil {
		return nil, err
	}

	ids := view.Keys()
	out := make([]Document, 0, len(ids))

	for _, id := range ids {
		var defining []Document

		for _, m := range view.Maps() {
			if v, ok := m.Get(id); ok {
				defining = append(defining, v.(Document))
			}
		}

		switch {
		case len(defining) == 1 && !copy:
			out = append(out, defining[0])
		case len(defining) == 1:
			out = append(out, defining[0].Clone())
		default:
			merged, _ := view.Get(id)
			out = append(out, Document(chain.ToPlain(merged).(map[string]any)))
		}
	}

	return out, nil
}

// FindOne returns the first document, in id order, matching filter in db.
func (c *Client) FindOne(ctx context.Context, db, coll string, filter Filter) (Document, bool, error) {
	b, err := c.backend(db)
	if err != nil {
		return nil, false, err
	}

	return b.FindOne(ctx, db, coll, filter)
}

// Collection returns the documents of coll held by db alone.
func (c *Client) Collection(ctx context.Context, db, coll string) (Collection, error) {
	b, err := c.backend(db)
	if err != nil {
		return nil, err
	}

	return b.Collection(ctx, db, coll)
}

// InsertOne stores doc in db.
func (c *Client) InsertOne(ctx context.Context, db, coll string, doc Document) error {
	b, err := c.backend(db)
	if err != nil {
		return err
	}

	return b.InsertOne(ctx, db, coll, doc)
}

// InsertMany stores docs in db.
func (c *Client) InsertMany(ctx context.Context, db, coll string, docs []Document) error {
	b, err := c.backend(db)
	if err != nil {
		return err
	}

	return b.InsertMany(ctx, db, coll, docs)
}

// UpdateOne merges update into the document of db matching filter.
func (c *Client) UpdateOne(ctx context.Context, db, coll string, filter Filter, update Document, upsert bool) error {
	b, err := c.backend(db)
	if err != nil {
		return err
	}

	return b.UpdateOne(ctx, db, coll, filter, update, upsert)
}

// DeleteOne removes doc from db.
func (c *Client) DeleteOne(ctx context.Context, db, coll string, doc Document) error {
	b, err := c.backend(db)
	if err != nil {
		return err
	}

	return b.DeleteOne(ctx, db, coll, doc)
}

// TargetDatabase picks the database a write to coll goes to. An explicit
// name must be configured and allow coll. Otherwise the single database that
// already holds coll is chosen, or the single database allowing it when none
// holds it yet.
func (c *Client) TargetDatabase(ctx context.Context, coll, explicit string) (string, error) {
	if explicit != "" {
		if _, err := c.backend(explicit); err != nil {
			return "", err
		}

		db, _ := c.cfg.Database(explicit)
		if !db.Allows(coll) {
			return "", fmt.Errorf("%w: %s in %s", ErrCollectionNotAllowed, coll, explicit)
		}

		return explicit, nil
	}

	var holding, allowing []string

	for _, name := range c.order {
		db, _ := c.cfg.Database(name)
		if !db.Allows(coll) {
			continue
		}

		allowing = append(allowing, name)

		colls, err := c.ListCollections(ctx, name)
		if err != nil {
			return "", err
		}

		if slices.Contains(colls, coll) {
			holding = append(holding, name)
		}
	}

	switch {
	case len(holding) == 1:
		return holding[0], nil
	case len(holding) > 1:
		return "", fmt.Errorf("%w: %s is in %v, pick one with --db", ErrAmbiguousDatabase, coll, holding)
	case len(allowing) == 1:
		return allowing[0], nil
	case len(allowing) > 1:
		return "", fmt.Errorf("%w: %s could go to %v, pick one with --db", ErrAmbiguousDatabase, coll, allowing)
	}

	return "", fmt.Errorf("%w: no database accepts %s", ErrUnknownDatabase, coll)
}

// DatabaseOf returns the highest-priority database whose coll holds id.
func (c *Client) DatabaseOf(ctx context.Context, coll, id string) (string, bool, error) {
	for i := len(c.order) - 1; i >= 0; i-- {
		name := c.order[i]

		_, found, err := c.FindOne(ctx, name, coll, ByID(id))
		if errors.Is(err, ErrCollectionNotAllowed) {
			continue
		}

		if err != nil {
			return "", false, err
		}

		if found {
			return name, true, nil
		}
	}

	return "", false, nil
}

// Compile-time interface check.
var _ DocumentStore = (*Client)(nil)
