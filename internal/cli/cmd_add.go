package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

// AddCmd returns the add command.
func AddCmd(cfg *rc.Config) *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.String("to", "", "Database to write to (default: the one holding the collection)")

	return &Command{
		Flags:   fs,
		Usage:   "add <coll> <doc>...",
		Short:   "Add documents to a collection",
		NeedsRC: true,
		Long: `Add documents given as YAML or JSON literals, e.g.

  regolith add people '{_id: aeinstein, name: Albert Einstein}'

Documents are validated first; nothing is written if any is invalid.
A document without an _id gets a random one.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: add <coll> <doc>...", errArgsRequired)
			}

			var docs []store.Document

			for _, arg := range args[1:] {
				parsed, err := parseDocuments([]byte(arg))
				if err != nil {
					return err
				}

				docs = append(docs, parsed...)
			}

			to, _ := fs.GetString("to")

			return withStore(ctx, cfg, func(c *store.Client) error {
				return insertValidated(ctx, io, c, to, args[0], docs)
			})
		},
	}
}

// IngestCmd returns the ingest command.
func IngestCmd(cfg *rc.Config) *Command {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.String("coll", "", "Collection to ingest into (default: file base name)")
	fs.String("to", "", "Database to write to (default: the one holding the collection)")

	return &Command{
		Flags:   fs,
		Usage:   "ingest <file>",
		Short:   "Ingest a YAML/JSON file of documents",
		NeedsRC: true,
		Long: `Ingest every document of a YAML or JSON file: an _id -> document mapping,
or a list of documents. Documents without an _id get a random one.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: ingest <file>", errArgsRequired)
			}

			path := cfg.Resolve(args[0])

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			docs, err := parseDocuments(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			coll, _ := fs.GetString("coll")
			if coll == "" {
				coll = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			to, _ := fs.GetString("to")

			return withStore(ctx, cfg, func(c *store.Client) error {
				return insertValidated(ctx, io, c, to, coll, docs)
			})
		},
	}
}
