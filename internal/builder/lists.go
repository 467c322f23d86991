package builder

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/regro/regolith/internal/store"
)

var publistTmpl = template.Must(template.New("publist").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Publications</title></head>
<body>
<h1>Publications</h1>
{{- range .}}
<h2>{{.Year}}</h2>
<ol>
{{- range .Entries}}
  <li id="{{.ID}}">{{.Authors}}. <em>{{.Title}}</em>{{if .Venue}}. {{.Venue}}{{end}}{{if .DOI}}. <a href="https://doi.org/{{.DOI}}">doi:{{.DOI}}</a>{{end}}</li>
{{- end}}
</ol>
{{- end}}
</body>
</html>
`))

var preslistTmpl = template.Must(template.New("preslist").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Presentations{{if .Person}} by {{.Person}}{{end}}</title></head>
<body>
<h1>Presentations{{if .Person}} by {{.Person}}{{end}}</h1>
<ul>
{{- range .Entries}}
  <li id="{{.ID}}">{{.Year}}: <em>{{.Title}}</em>{{if .Kind}} ({{.Kind}}){{end}}{{if .Venue}}, {{.Venue}}{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

type entry struct {
	ID      string
	Year    int
	Title   string
	Authors string
	Venue   string
	DOI     string
	Kind    string
}

type yearGroup struct {
	Year    int
	Entries []entry
}

// byYearDesc orders entries newest first, then by id.
func byYearDesc(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Year != entries[j].Year {
			return entries[i].Year > entries[j].Year
		}

		return entries[i].ID < entries[j].ID
	})
}

func buildPublist(ctx context.Context, env Env) error {
	docs, err := env.Source.AllDocuments(ctx, "citations", false)
	if err != nil {
		return err
	}

	entries := make([]entry, 0, len(docs))

	for _, doc := range docs {
		entries = append(entries, entry{
			ID:      doc.ID(),
			Year:    intField(doc, "year"),
			Title:   stringField(doc, "title"),
			Authors: strings.Join(names(doc["author"]), ", "),
			Venue:   stringField(doc, "journal"),
			DOI:     stringField(doc, "doi"),
		})
	}

	byYearDesc(entries)

	var groups []yearGroup

	for _, e := range entries {
		if n := len(groups); n == 0 || groups[n-1].Year != e.Year {
			groups = append(groups, yearGroup{Year: e.Year})
		}

		last := &groups[len(groups)-1]
		last.Entries = append(last.Entries, e)
	}

	var buf bytes.Buffer
	if err := publistTmpl.Execute(&buf, groups); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	return env.write("publist", "publist.html", buf.Bytes())
}

func buildPreslist(ctx context.Context, env Env) error {
	docs, err := env.Source.AllDocuments(ctx, "presentations", false)
	if err != nil {
		return err
	}

	var entries []entry

	for _, doc := range docs {
		if env.Person != "" && !slices.Contains(names(doc["authors"]), env.Person) {
			continue
		}

		entries = append(entries, entry{
			ID:    doc.ID(),
			Year:  intField(doc, "begin_year"),
			Title: stringField(doc, "title"),
			Venue: stringField(doc, "location"),
			Kind:  stringField(doc, "type"),
		})
	}

	byYearDesc(entries)

	data := struct {
		Person  string
		Entries []entry
	}{env.Person, entries}

	var buf bytes.Buffer
	if err := preslistTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	return env.write("preslist", "preslist.html", buf.Bytes())
}

func stringField(doc store.Document, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// intField reads integers stored as numbers or numeric strings; anything
// else is 0.
func intField(doc store.Document, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))

		return n
	}

	return 0
}

// names accepts a list of names or a single comma-separated string.
func names(v any) []string {
	switch t := v.(type) {
	case string:
		var out []string

		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}

		return out
	case []any:
		out := make([]string, 0, len(t))

		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}

		return out
	}

	return nil
}
