// Package main provides regolith-seed, a tool to seed demo databases.
//
// It writes a public and a private filesystem database plus a
// regolithrc.json into the target directory, sized for exercising the
// chained view with realistic amounts of data.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/store"
)

const rcTemplate = `{
  "databases": [
    {"name": "public", "url": "public", "local": true, "public": true},
    {"name": "private", "url": "private", "local": true, "blacklist": ["citations"]},
  ],
  "default_user_id": "p000001",
}
`

func main() {
	flags := flag.NewFlagSet("regolith-seed", flag.ExitOnError)
	people := flags.Int("people", 1000, "Number of people")
	dir := flags.String("dir", filepath.Join(os.TempDir(), "regolith-seed"), "Output project directory")

	_ = flags.Parse(os.Args[1:])

	start := time.Now()

	if err := seed(fs.NewReal(), *dir, *people); err != nil {
		fmt.Fprintf(os.Stderr, "error seeding %s: %v\n", *dir, err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d people in %s -> %s\n", *people, time.Since(start), *dir)
}

type collectionFile struct {
	path string
	coll store.Collection
}

func seed(fsys fs.FS, dir string, n int) error {
	_ = os.RemoveAll(dir)

	files := []collectionFile{
		{filepath.Join(dir, "public", "db", "people.yaml"), publicPeople(n)},
		{filepath.Join(dir, "private", "db", "people.yaml"), privatePeople(n)},
		{filepath.Join(dir, "public", "db", "citations.yaml"), citations(n)},
		{filepath.Join(dir, "public", "db", "grants.json"), grants(n / 10)},
	}

	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	if err := fsys.WriteFileAtomic(filepath.Join(dir, "regolithrc.json"), []byte(rcTemplate), 0o644); err != nil {
		return err
	}

	// Encode and write files in parallel; YAML encoding dominates.
	numWorkers := min(runtime.NumCPU(), len(files))
	work := make(chan collectionFile, len(files))
	errs := make(chan error, len(files))

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Go(func() {
			for f := range work {
				errs <- writeCollection(fsys, f)
			}
		})
	}

	for _, f := range files {
		work <- f
	}

	close(work)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func writeCollection(fsys fs.FS, f collectionFile) error {
	format, _ := store.FormatFromPath(f.path)

	data, err := store.EncodeCollection(f.coll, format)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}

	if err := fsys.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return err
	}

	return fsys.WriteFileAtomic(f.path, data, 0o644)
}

func personID(i int) string {
	return fmt.Sprintf("p%06d", i)
}

func publicPeople(n int) store.Collection {
	positions := []string{"professor", "postdoc", "graduate student", "undergraduate", "staff"}
	coll := make(store.Collection, n)

	for i := 1; i <= n; i++ {
		begin := 2000 + i%25
		job := map[string]any{"organization": "Uni", "position": positions[i%len(positions)], "begin_year": begin}

		// Vary tenure for realistic current/former split
		if i%3 == 0 {
			job["end_year"] = begin + 1 + i%5
		}

		coll[personID(i)] = store.Document{
			store.IDKey:  personID(i),
			"name":       "Person " + strconv.Itoa(i),
			"position":   positions[i%len(positions)],
			"employment": []any{job},
		}
	}

	return coll
}

func privatePeople(n int) store.Collection {
	coll := make(store.Collection, n/2)

	for i := 1; i <= n; i += 2 {
		coll[personID(i)] = store.Document{
			store.IDKey: personID(i),
			"email":     personID(i) + "@uni.edu",
			"todos": []any{map[string]any{
				"description":   "review draft " + strconv.Itoa(i),
				"running_index": 1,
				"status":        "started",
				"due_date":      "2026-01-04",
			}},
		}
	}

	return coll
}

func citations(n int) store.Collection {
	coll := make(store.Collection, n)

	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("c%06d", i)
		coll[id] = store.Document{
			store.IDKey: id,
			"title":     "Findings " + strconv.Itoa(i),
			"author":    []any{"Person " + strconv.Itoa(i), "Person " + strconv.Itoa(i%n+1)},
			"year":      2000 + i%25,
			"journal":   "Journal of Seeds",
		}
	}

	return coll
}

func grants(n int) store.Collection {
	coll := make(store.Collection, n)

	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("g%04d", i)
		coll[id] = store.Document{
			store.IDKey:  id,
			"title":      "Grant " + strconv.Itoa(i),
			"funder":     "NSF",
			"amount":     10000 * (i%9 + 1),
			"begin_year": 2015 + i%10,
			"end_year":   2018 + i%10,
			"team":       []any{map[string]any{"name": "Person " + strconv.Itoa(i), "position": "pi"}},
		}
	}

	return coll
}
