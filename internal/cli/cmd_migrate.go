package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

var errWrongBackend = errors.New("database has the wrong backend")

// FSToMongoCmd returns the fs-to-mongo command.
func FSToMongoCmd(cfg *rc.Config) *Command {
	return migrateCmd(cfg, "fs-to-mongo", rc.BackendFilesystem, rc.BackendMongoDB)
}

// MongoToFSCmd returns the mongo-to-fs command.
func MongoToFSCmd(cfg *rc.Config) *Command {
	return migrateCmd(cfg, "mongo-to-fs", rc.BackendMongoDB, rc.BackendFilesystem)
}

func migrateCmd(cfg *rc.Config, name, from, to string) *Command {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.String("src", "", "Source database (default: the only "+from+" database)")
	flags.String("dst", "", "Destination database (default: the only "+to+" database)")

	return &Command{
		Flags:   flags,
		Usage:   name + " [--src <db>] [--dst <db>]",
		Short:   fmt.Sprintf("Copy every collection from a %s database to a %s one", from, to),
		NeedsRC: true,
		Long: fmt.Sprintf(`Copy every document of the %s database --src into the %s database
--dst. Existing destination documents are updated key by key; collections the
destination excludes by whitelist or blacklist are skipped.`, from, to),
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			srcName, _ := flags.GetString("src")
			dstName, _ := flags.GetString("dst")

			src, err := pickDatabase(cfg, srcName, from)
			if err != nil {
				return fmt.Errorf("--src: %w", err)
			}

			dst, err := pickDatabase(cfg, dstName, to)
			if err != nil {
				return fmt.Errorf("--dst: %w", err)
			}

			return withStore(ctx, cfg, func(c *store.Client) error {
				return copyDatabase(ctx, io, c, src, dst)
			})
		},
	}
}

// pickDatabase returns the named database, or the only one with backend.
func pickDatabase(cfg *rc.Config, name, backend string) (rc.Database, error) {
	if name != "" {
		db, ok := cfg.Database(name)
		if !ok {
			return rc.Database{}, fmt.Errorf("%w: %s", store.ErrUnknownDatabase, name)
		}

		if db.Backend != backend {
			return rc.Database{}, fmt.Errorf("%w: %s is %s, want %s", errWrongBackend, name, db.Backend, backend)
		}

		return db, nil
	}

	var found []rc.Database

	for _, db := range cfg.Databases {
		if db.Backend == backend {
			found = append(found, db)
		}
	}

	switch len(found) {
	case 0:
		return rc.Database{}, fmt.Errorf("%w: no %s database", store.ErrUnknownDatabase, backend)
	case 1:
		return found[0], nil
	}

	return rc.Database{}, fmt.Errorf("%w: %d %s databases", store.ErrAmbiguousDatabase, len(found), backend)
}

func copyDatabase(ctx context.Context, io *IO, c *store.Client, src, dst rc.Database) error {
	colls, err := c.ListCollections(ctx, src.Name)
	if err != nil {
		return err
	}

	for _, coll := range colls {
		if !dst.Allows(coll) {
			glog.V(1).Infof("skip %s: excluded by %s", coll, dst.Name)

			continue
		}

		docs, err := c.Collection(ctx, src.Name, coll)
		if err != nil {
			return err
		}

		for _, id := range docs.Keys() {
			if err := c.UpdateOne(ctx, dst.Name, coll, store.ByID(id), docs[id], true); err != nil {
				return fmt.Errorf("%s/%s: %w", coll, id, err)
			}
		}

		io.Printf("%s/%s -> %s/%s (%d documents)\n", src.Name, coll, dst.Name, coll, len(docs))
	}

	return nil
}
