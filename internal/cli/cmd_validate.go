package cli

import (
	"context"
	"fmt"
	"maps"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/schema"
	"github.com/regro/regolith/internal/store"
)

// ValidateCmd returns the validate command.
func ValidateCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("validate", flag.ContinueOnError)
	flags.StringSlice("coll", nil, "Only validate this collection (repeatable)")
	flags.String("schemas", "", "JSON file of extra collection schemas, replacing built-ins of the same name")

	return &Command{
		Flags:   flags,
		Usage:   "validate [--coll <name>]",
		Short:   "Validate the chained view against collection schemas",
		NeedsRC: true,
		Long: `Validate every merged document and print one line per problem:

  <coll>/<id> <path>: <message>

Exits 1 if any document is invalid.`,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			colls, _ := flags.GetStringSlice("coll")
			extra, _ := flags.GetString("schemas")

			schemas, err := loadSchemas(cfg, extra)
			if err != nil {
				return err
			}

			return withStore(ctx, cfg, func(c *store.Client) error {
				if len(colls) == 0 {
					if colls, err = c.Collections(ctx); err != nil {
						return err
					}
				}

				docs := make(map[string][]store.Document, len(colls))

				for _, coll := range colls {
					if docs[coll], err = c.AllDocuments(ctx, coll, false); err != nil {
						return err
					}
				}

				report := schemas.ValidateCollections(docs)
				if _, err := report.WriteTo(io.Writer()); err != nil {
					return err
				}

				if report.OK() {
					io.Printf("%d documents in %d collections OK\n", report.Checked, len(colls))
				}

				return report.Err()
			})
		},
	}
}

func loadSchemas(cfg *rc.Config, path string) (schema.Schemas, error) {
	schemas := schema.Builtin()
	if path == "" {
		return schemas, nil
	}

	data, err := os.ReadFile(cfg.Resolve(path))
	if err != nil {
		return nil, err
	}

	extra, err := schema.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	merged := make(schema.Schemas, len(schemas)+len(extra))
	maps.Copy(merged, schemas)
	maps.Copy(merged, extra)

	return merged, nil
}
