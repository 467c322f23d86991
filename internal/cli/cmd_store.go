package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

var errUnknownStore = errors.New("unknown store")

// StoreCmd returns the store command.
func StoreCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("store", flag.ContinueOnError)
	flags.String("dest", "", "Subdirectory inside the store")

	return &Command{
		Flags:   flags,
		Usage:   "store <storename> <file>...",
		Short:   "Copy files into a file store",
		NeedsRC: true,
		Long: `Copy files into a store from the rc "stores" list. Local stores are
directories; remote ones are cloned under <builddir>/_stores/<name> first.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: store <storename> <file>...", errArgsRequired)
			}

			s, ok := cfg.Store(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", errUnknownStore, args[0])
			}

			dest, _ := flags.GetString("dest")

			return execStore(ctx, io, cfg, fs.NewReal(), s, dest, args[1:])
		},
	}
}

// storeDir returns the checkout directory of a store.
func storeDir(cfg *rc.Config, s rc.Store) string {
	if s.Local {
		return cfg.Resolve(s.URL)
	}

	return filepath.Join(cfg.BuildDirAbs, "_stores", s.Name)
}

func execStore(ctx context.Context, io *IO, cfg *rc.Config, fsys fs.FS, s rc.Store, dest string, files []string) error {
	root := storeDir(cfg, s)

	exists, err := fsys.Exists(root)
	if err != nil {
		return err
	}

	if !exists && !s.Local && s.URL != "" {
		if err := fsys.MkdirAll(filepath.Dir(root), 0o755); err != nil {
			return err
		}

		if err := store.GitClone(ctx, s.URL, root); err != nil {
			return err
		}
	}

	dir := filepath.Join(root, s.Path, dest)

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, file := range files {
		src := cfg.Resolve(file)

		data, err := fsys.ReadFile(src)
		if err != nil {
			return err
		}

		info, err := fsys.Stat(src)
		if err != nil {
			return err
		}

		dst := filepath.Join(dir, filepath.Base(src))

		if err := fsys.WriteFileAtomic(dst, data, info.Mode().Perm()|os.FileMode(0o200)); err != nil {
			return err
		}

		io.Println(dst)
	}

	return nil
}
