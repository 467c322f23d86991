package schema

import (
	"fmt"
	"io"
	"sort"

	"github.com/regro/regolith/internal/store"
)

// Problem is a FieldError located in one document.
type Problem struct {
	Collection string
	ID         string
	FieldError
}

func (p Problem) String() string {
	return fmt.Sprintf("%s/%s %s: %s", p.Collection, p.ID, p.Path, p.Message)
}

// Report accumulates problems over many documents.
type Report struct {
	Checked  int
	Problems []Problem
}

// OK reports whether no problems were found.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Err returns nil for a clean report, otherwise an ErrInvalid error
// carrying the problem count.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}

	return fmt.Errorf("%w: %d problem(s) in %d document(s)", ErrInvalid, len(r.Problems), r.documents())
}

func (r *Report) documents() int {
	seen := make(map[string]struct{})
	for _, p := range r.Problems {
		seen[p.Collection+"/"+p.ID] = struct{}{}
	}

	return len(seen)
}

// WriteTo prints one problem per line.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64

	for _, p := range r.Problems {
		n, err := fmt.Fprintln(w, p.String())
		total += int64(n)

		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// ValidateCollections validates every document of every collection, in
// collection then id order.
func (s Schemas) ValidateCollections(docs map[string][]store.Document) Report {
	var r Report

	colls := make([]string, 0, len(docs))
	for coll := range docs {
		colls = append(colls, coll)
	}

	sort.Strings(colls)

	for _, coll := range colls {
		for _, doc := range docs[coll] {
			r.Checked++

			for _, fe := range s.ValidateDocument(coll, doc) {
				r.Problems = append(r.Problems, Problem{Collection: coll, ID: doc.ID(), FieldError: fe})
			}
		}
	}

	return r
}
