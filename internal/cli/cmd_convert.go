package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

// JSONToYAMLCmd returns the json-to-yaml command.
func JSONToYAMLCmd(cfg *rc.Config) *Command {
	return convertCmd(cfg, "json-to-yaml", store.FormatJSON, store.FormatYAML)
}

// YAMLToJSONCmd returns the yaml-to-json command.
func YAMLToJSONCmd(cfg *rc.Config) *Command {
	return convertCmd(cfg, "yaml-to-json", store.FormatYAML, store.FormatJSON)
}

func convertCmd(cfg *rc.Config, name string, from, to store.Format) *Command {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.Bool("rm", false, "Remove each source file after converting")

	return &Command{
		Flags: flags,
		Usage: name + " <file>...",
		Short: fmt.Sprintf("Convert %s collection files to %s", from, to),
		Long: fmt.Sprintf(`Convert %s collection files to %s. Each <name>%s is written next to
the source as <name>%s; document ids and contents are preserved.`, from, to, from.Ext(), to.Ext()),
		Exec: func(_ context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: %s <file>...", errArgsRequired, name)
			}

			rm, _ := flags.GetBool("rm")
			fsys := fs.NewReal()

			for _, arg := range args {
				src := cfg.Resolve(arg)

				dst, err := convertFile(fsys, src, from, to)
				if err != nil {
					return err
				}

				if rm {
					if err := fsys.Remove(src); err != nil {
						return err
					}
				}

				io.Println(dst)
			}

			return nil
		},
	}
}

func convertFile(fsys fs.FS, src string, from, to store.Format) (string, error) {
	data, err := fsys.ReadFile(src)
	if err != nil {
		return "", err
	}

	coll, err := store.DecodeCollection(data, from)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}

	out, err := store.EncodeCollection(coll, to)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}

	dst := strings.TrimSuffix(src, filepath.Ext(src)) + to.Ext()

	if err := fsys.WriteFileAtomic(dst, out, 0o644); err != nil {
		return "", err
	}

	return dst, nil
}
