package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/schema"
	"github.com/regro/regolith/internal/store"
)

var errBadClasslist = errors.New("bad classlist")

// ClasslistCmd returns the classlist command.
func ClasslistCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("classlist", flag.ContinueOnError)

	return &Command{
		Flags:   flags,
		Usage:   "classlist add <csv> <course>",
		Short:   "Add students from a CSV file to a course",
		NeedsRC: true,
		Long: `Read a CSV file with a header row naming the columns: name, email,
university_id and optionally id. Students missing an id are keyed by the
local part of their email. Every student is upserted into "students" and
added to the course's students list.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) != 3 || args[0] != "add" {
				return fmt.Errorf("%w: classlist add <csv> <course>", errArgsRequired)
			}

			f, err := os.Open(cfg.Resolve(args[1]))
			if err != nil {
				return err
			}
			defer f.Close()

			students, err := readClasslist(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			report := schema.Builtin().ValidateCollections(map[string][]store.Document{"students": students})
			if !report.OK() {
				_, _ = report.WriteTo(io.Stderr().Writer())

				return report.Err()
			}

			return withStore(ctx, cfg, func(c *store.Client) error {
				return addToCourse(ctx, io, c, args[2], students)
			})
		},
	}
}

func readClasslist(r io.Reader) ([]store.Document, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", errBadClasslist, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("%w: no name column", errBadClasslist)
	}

	field := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(rec) && rec[i] != "" {
				return strings.TrimSpace(rec[i])
			}
		}

		return ""
	}

	var students []store.Document

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadClasslist, err)
		}

		email := field(rec, "email")

		id := field(rec, "id", "_id")
		if id == "" {
			local, _, _ := strings.Cut(email, "@")
			id = strings.ReplaceAll(local, ".", "_")
		}

		if id == "" {
			return nil, fmt.Errorf("%w: line %d: no id or email", errBadClasslist, line)
		}

		doc := store.Document{store.IDKey: id, "name": field(rec, "name")}

		if email != "" {
			doc["email"] = email
		}

		if uid := field(rec, "university_id", "uid"); uid != "" {
			doc["university_id"] = uid
		}

		students = append(students, doc)
	}

	return students, nil
}

// addToCourse upserts students and unions their ids into the course.
func addToCourse(ctx context.Context, io *IO, c *store.Client, course string, students []store.Document) error {
	studentsDB, err := c.TargetDatabase(ctx, "students", "")
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(students))

	for _, s := range students {
		if err := c.UpdateOne(ctx, studentsDB, "students", store.ByID(s.ID()), s, true); err != nil {
			return err
		}

		ids = append(ids, s.ID())
	}

	courseDB, found, err := c.DatabaseOf(ctx, "courses", course)
	if err != nil {
		return err
	}

	if !found {
		if courseDB, err = c.TargetDatabase(ctx, "courses", ""); err != nil {
			return err
		}
	}

	var enrolled []any

	if doc, ok, err := c.FindOne(ctx, courseDB, "courses", store.ByID(course)); err != nil {
		return err
	} else if ok {
		enrolled, _ = doc["students"].([]any)
	}

	added := 0

	for _, id := range ids {
		if !slices.Contains(enrolled, any(id)) {
			enrolled = append(enrolled, id)
			added++
		}
	}

	update := store.Document{"students": enrolled}
	if err := c.UpdateOne(ctx, courseDB, "courses", store.ByID(course), update, true); err != nil {
		return err
	}

	io.Printf("%d students in %s/students, %d added to %s/courses/%s\n", len(ids), studentsDB, added, courseDB, course)

	return nil
}
