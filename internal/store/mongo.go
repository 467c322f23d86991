package store

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/regro/regolith/internal/rc"
)

const (
	// pingBackoff is the fixed pause between liveness probes.
	pingBackoff = 100 * time.Millisecond

	// pingTimeout bounds one probe, not the wait as a whole.
	pingTimeout = 2 * time.Second

	defaultMongoURL = "mongodb://localhost:27017"
)

// MongoBackend keeps each database in a MongoDB database of the same name.
// Every operation is one blocking round trip; there is no retry.
type MongoBackend struct {
	dbPath  string
	clients map[string]*mongo.Client // by url
	dbs     map[string]mongoDatabase
	mongod  *exec.Cmd
}

type mongoDatabase struct {
	cfg rc.Database
	db  *mongo.Database
}

// NewMongoBackend returns a backend. When dbPath is set, opening a local
// database first spawns "mongod --dbpath dbPath".
func NewMongoBackend(dbPath string) *MongoBackend {
	return &MongoBackend{
		dbPath:  dbPath,
		clients: make(map[string]*mongo.Client),
		dbs:     make(map[string]mongoDatabase),
	}
}

// Name returns rc.BackendMongoDB.
func (b *MongoBackend) Name() string {
	return rc.BackendMongoDB
}

// MongoURL turns a database url into a connection string.
func MongoURL(url string) string {
	switch {
	case url == "":
		return defaultMongoURL
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return url
	default:
		return "mongodb://" + url
	}
}

// OpenDatabase connects to the server behind db.URL and waits until it answers.
func (b *MongoBackend) OpenDatabase(ctx context.Context, db rc.Database) error {
	url := MongoURL(db.URL)

	client, ok := b.clients[url]
	if !ok {
		if db.Local && b.dbPath != "" && b.mongod == nil {
			if err := b.spawn(ctx); err != nil {
				return fmt.Errorf("open database %s: %w", db.Name, err)
			}
		}

		opts := options.Client().ApplyURI(url).SetServerSelectionTimeout(pingTimeout)

		var err error

		client, err = mongo.Connect(ctx, opts)
		if err != nil {
			return fmt.Errorf("open database %s: %w: %w", db.Name, ErrBackendUnavailable, err)
		}

		if err := waitForServer(ctx, client, url); err != nil {
			_ = client.Disconnect(context.Background())

			return fmt.Errorf("open database %s: %w: %w", db.Name, ErrBackendUnavailable, err)
		}

		b.clients[url] = client
	}

	b.dbs[db.Name] = mongoDatabase{cfg: db, db: client.Database(db.Name)}

	return nil
}

// waitForServer pings until the server answers, pausing pingBackoff between
// attempts. It gives up only when ctx is done.
func waitForServer(ctx context.Context, client *mongo.Client, url string) error {
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx, readpref.Primary())
		if err == nil {
			glog.V(1).Infof("mongo %s: alive after %d attempt(s)", url, attempt)

			return nil
		}

		glog.V(2).Infof("mongo %s: ping attempt %d: %v", url, attempt, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pingBackoff):
		}
	}
}

func (b *MongoBackend) spawn(ctx context.Context) error {
	logPath := filepath.Join(b.dbPath, "mongod.log")

	cmd := exec.CommandContext(ctx, "mongod", "--dbpath", b.dbPath, "--logpath", logPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn mongod: %w", err)
	}

	glog.V(1).Infof("spawned mongod (pid %d) on %s", cmd.Process.Pid, b.dbPath)

	b.mongod = cmd

	return nil
}

func (b *MongoBackend) collection(dbName, coll string) (*mongo.Collection, error) {
	db, ok := b.dbs[dbName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, dbName)
	}

	if !db.cfg.Allows(coll) {
		return nil, fmt.Errorf("%w: %s in %s", ErrCollectionNotAllowed, coll, dbName)
	}

	return db.db.Collection(coll), nil
}

// ListCollections returns the allowed collection names in sorted order.
func (b *MongoBackend) ListCollections(ctx context.Context, dbName string) ([]string, error) {
	db, ok := b.dbs[dbName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, dbName)
	}

	names, err := db.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", dbName, err)
	}

	kept := names[:0]

	for _, name := range names {
		if db.cfg.Allows(name) {
			kept = append(kept, name)
		}
	}

	sort.Strings(kept)

	return kept, nil
}

// Collection fetches every document of a collection.
func (b *MongoBackend) Collection(ctx context.Context, dbName, coll string) (Collection, error) {
	c, err := b.collection(dbName, coll)
	if errors.Is(err, ErrCollectionNotAllowed) {
		return Collection{}, nil
	}

	if err != nil {
		return nil, err
	}

	cur, err := c.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
	}

	defer func() { _ = cur.Close(ctx) }()

	out := Collection{}

	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
		}

		doc, err := fromBSON(raw)
		if err != nil {
			return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
		}

		out[doc.ID()] = doc
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", dbName, coll, err)
	}

	return out, nil
}

// FindOne returns the first document, in id order, matching filter.
func (b *MongoBackend) FindOne(ctx context.Context, dbName, coll string, filter Filter) (Document, bool, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, false, err
	}

	c, err := b.collection(dbName, coll)
	if err != nil {
		return nil, false, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: IDKey, Value: 1}})

	var raw bson.M

	err = c.FindOne(ctx, bson.M(filter), opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("find in %s.%s: %w", dbName, coll, err)
	}

	doc, err := fromBSON(raw)
	if err != nil {
		return nil, false, err
	}

	return doc, true, nil
}

// InsertOne stores doc. An existing id is an ErrDuplicateID error.
func (b *MongoBackend) InsertOne(ctx context.Context, dbName, coll string, doc Document) error {
	return b.InsertMany(ctx, dbName, coll, []Document{doc})
}

// InsertMany stores docs in order, stopping at the first failure.
func (b *MongoBackend) InsertMany(ctx context.Context, dbName, coll string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	c, err := b.collection(dbName, coll)
	if err != nil {
		return err
	}

	payload := make([]any, len(docs))

	for i, doc := range docs {
		n, err := NormalizeDocument(doc)
		if err != nil {
			return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
		}

		payload[i] = map[string]any(n)
	}

	_, err = c.InsertMany(ctx, payload, options.InsertMany().SetOrdered(true))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert into %s.%s: %w: %w", dbName, coll, ErrDuplicateID, err)
	}

	if err != nil {
		return fmt.Errorf("insert into %s.%s: %w", dbName, coll, err)
	}

	return nil
}

// UpdateOne applies update with $set, which replaces whole top-level fields:
// the same merge the other backends perform.
func (b *MongoBackend) UpdateOne(ctx context.Context, dbName, coll string, filter Filter, update Document, upsert bool) error {
	c, err := b.collection(dbName, coll)
	if err != nil {
		return err
	}

	set := make(bson.M, len(update))

	for k, v := range update {
		if k == IDKey {
			continue
		}

		nv, err := NormalizeValue(v)
		if err != nil {
			return fmt.Errorf("update %s.%s: %s: %w", dbName, coll, k, err)
		}

		set[k] = nv
	}

	existing, found, err := b.FindOne(ctx, dbName, coll, filter)
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

	if raw, ok := update[IDKey]; ok {
		id, err := NormalizeID(raw)
		if err != nil {
			return err
		}

		if id != existing.ID() {
			return fmt.Errorf("update %s.%s: %w: %s -> %s", dbName, coll, ErrIDChange, existing.ID(), id)
		}
	}

	if len(set) == 0 {
		return nil
	}

	_, err = c.UpdateOne(ctx, bson.M{IDKey: existing.ID()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s.%s: %w", dbName, coll, err)
	}

	return nil
}

// DeleteOne removes the document with doc's id.
func (b *MongoBackend) DeleteOne(ctx context.Context, dbName, coll string, doc Document) error {
	id, err := NormalizeID(doc[IDKey])
	if err != nil {
		return err
	}

	c, err := b.collection(dbName, coll)
	if err != nil {
		return err
	}

	res, err := c.DeleteOne(ctx, bson.M{IDKey: id})
	if err != nil {
		return fmt.Errorf("delete from %s.%s: %w", dbName, coll, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s.%s %s", ErrDocumentNotFound, dbName, coll, id)
	}

	return nil
}

// Close disconnects every client and stops a spawned mongod.
func (b *MongoBackend) Close() error {
	var errs []error

	for url, client := range b.clients {
		if err := client.Disconnect(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", url, err))
		}
	}

	b.clients = make(map[string]*mongo.Client)
	b.dbs = make(map[string]mongoDatabase)

	if b.mongod != nil && b.mongod.Process != nil {
		_ = b.mongod.Process.Kill()
		_ = b.mongod.Wait()
		b.mongod = nil
	}

	return errors.Join(errs...)
}

// Compile-time interface check.
var _ Backend = (*MongoBackend)(nil)
