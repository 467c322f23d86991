// Package builder renders documents from the chained view into files under
// <builddir>/<target>/.
package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/golang/glog"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/store"
)

const dirPerms = 0o755

// ErrUnknownTarget is returned for a target name with no builder.
var ErrUnknownTarget = errors.New("unknown build target")

// Source is the read side of a document store that builders need.
type Source interface {
	Collections(ctx context.Context) ([]string, error)
	AllDocuments(ctx context.Context, coll string, copy bool) ([]store.Document, error)
}

// Env is everything a builder gets.
type Env struct {
	Source   Source
	FS       fs.FS
	BuildDir string // absolute
	Format   store.Format
	Person   string
}

// Dir returns the output directory of target.
func (e Env) Dir(target string) string {
	return filepath.Join(e.BuildDir, target)
}

func (e Env) write(target, name string, data []byte) error {
	dir := e.Dir(target)

	if err := e.FS.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}

	path := filepath.Join(dir, name)

	if err := e.FS.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}

	glog.V(1).Infof("%s: wrote %s", target, path)

	return nil
}

// Builder produces one build target.
type Builder struct {
	Short string
	Build func(ctx context.Context, env Env) error
}

var registry = map[string]Builder{
	"export": {
		Short: "every collection of the chained view as a YAML or JSON file",
		Build: buildExport,
	},
	"publist": {
		Short: "citations as an HTML publication list, newest first",
		Build: buildPublist,
	},
	"preslist": {
		Short: "presentations as an HTML list, optionally for one --person",
		Build: buildPreslist,
	},
}

// Names returns the registered targets in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Lookup returns the builder registered for target.
func Lookup(target string) (Builder, bool) {
	b, ok := registry[target]

	return b, ok
}

// Run builds each target in order, stopping at the first failure.
func Run(ctx context.Context, env Env, targets ...string) error {
	if env.FS == nil {
		env.FS = fs.NewReal()
	}

	for _, target := range targets {
		b, ok := Lookup(target)
		if !ok {
			return fmt.Errorf("%w: %s (have %v)", ErrUnknownTarget, target, Names())
		}

		if err := b.Build(ctx, env); err != nil {
			return fmt.Errorf("build %s: %w", target, err)
		}
	}

	return nil
}

func buildExport(ctx context.Context, env Env) error {
	colls, err := env.Source.Collections(ctx)
	if err != nil {
		return err
	}

	for _, name := range colls {
		docs, err := env.Source.AllDocuments(ctx, name, false)
		if err != nil {
			return err
		}

		coll := make(store.Collection, len(docs))
		for _, doc := range docs {
			coll[doc.ID()] = doc
		}

		data, err := store.EncodeCollection(coll, env.Format)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if err := env.write("export", name+env.Format.Ext(), data); err != nil {
			return err
		}
	}

	return nil
}
