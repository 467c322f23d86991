package helper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/store"
)

func newTable(env Env, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(env.Out)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row(header))

	return t
}

func listMembers(ctx context.Context, env Env, fs *flag.FlagSet, _ []string) error {
	current, _ := fs.GetBool("current")

	people, err := env.Store.AllDocuments(ctx, "people", false)
	if err != nil {
		return err
	}

	year := env.today().Year()

	t := newTable(env, "id", "name", "position", "email")

	for _, p := range people {
		if current && !isCurrentMember(p, year) {
			continue
		}

		t.AppendRow(table.Row{p.ID(), str(p["name"]), str(p["position"]), str(p["email"])})
	}

	t.Render()

	return nil
}

// isCurrentMember: not marked inactive, and either marked active or holding
// an employment entry that has not ended before year.
func isCurrentMember(p store.Document, year int) bool {
	active, hasActive := p["active"].(bool)
	if hasActive && !active {
		return false
	}

	if active {
		return true
	}

	jobs, _ := p["employment"].([]any)

	for _, j := range jobs {
		job, ok := j.(map[string]any)
		if !ok {
			continue
		}

		if end, ok := yearOf(job["end_year"]); !ok || end >= year {
			return true
		}
	}

	return false
}

func listGrants(ctx context.Context, env Env, fs *flag.FlagSet, _ []string) error {
	current, _ := fs.GetBool("current")

	grants, err := env.Store.AllDocuments(ctx, "grants", false)
	if err != nil {
		return err
	}

	year := env.today().Year()

	t := newTable(env, "id", "title", "funder", "amount", "begin", "end")

	for _, g := range grants {
		if current && !isCurrentGrant(g, year) {
			continue
		}

		t.AppendRow(table.Row{g.ID(), str(g["title"]), str(g["funder"]), str(g["amount"]), str(g["begin_year"]), str(g["end_year"])})
	}

	t.Render()

	return nil
}

func isCurrentGrant(g store.Document, year int) bool {
	if g["status"] == "declined" {
		return false
	}

	if begin, ok := yearOf(g["begin_year"]); ok && begin > year {
		return false
	}

	end, ok := yearOf(g["end_year"])

	return !ok || end >= year
}

// yearOf reads a year stored as a number or numeric string.
func yearOf(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)

		return n, err == nil
	}

	return 0, false
}

func str(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}
