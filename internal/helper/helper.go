// Package helper implements the small listing and updating tasks behind
// "regolith helper <target>".
package helper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/store"
)

const dateLayout = "2006-01-02"

// Error variables for helpers.
var (
	ErrUnknownHelper  = errors.New("unknown helper")
	ErrUsage          = errors.New("wrong number of arguments")
	ErrPersonNotFound = errors.New("person not found")
	ErrTodoNotFound   = errors.New("todo not found")
	ErrInvalidDate    = errors.New("invalid date (want YYYY-MM-DD)")
)

// Store is the part of a document store helpers use.
type Store interface {
	AllDocuments(ctx context.Context, coll string, copy bool) ([]store.Document, error)
	FindOne(ctx context.Context, db, coll string, filter store.Filter) (store.Document, bool, error)
	UpdateOne(ctx context.Context, db, coll string, filter store.Filter, update store.Document, upsert bool) error
	DatabaseOf(ctx context.Context, coll, id string) (string, bool, error)
}

// Env is everything a helper gets.
type Env struct {
	Store Store
	Out   io.Writer

	// DB forces the database updating helpers write to.
	DB string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e Env) today() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	y, m, d := now().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Helper is one helper target.
type Helper struct {
	Usage string // arguments after the target name
	Short string

	// Flags declares the helper's flags on fs.
	Flags func(fs *flag.FlagSet)

	Run func(ctx context.Context, env Env, fs *flag.FlagSet, args []string) error
}

var registry = map[string]Helper{
	"l_members": {
		Short: "list group members",
		Flags: func(fs *flag.FlagSet) {
			fs.Bool("current", false, "Only current members")
		},
		Run: listMembers,
	},
	"l_grants": {
		Short: "list grants",
		Flags: func(fs *flag.FlagSet) {
			fs.Bool("current", false, "Only grants running today")
		},
		Run: listGrants,
	},
	"a_todo": {
		Usage: "<person> <description>",
		Short: "add a todo to a person",
		Flags: func(fs *flag.FlagSet) {
			fs.String("due", "", "Due date YYYY-MM-DD (default: today)")
			fs.Float64("duration", 0, "Expected duration in minutes")
			fs.Int("importance", 1, "Importance 0-3")
		},
		Run: addTodo,
	},
	"u_finishtodo": {
		Usage: "<person> <index>",
		Short: "mark a todo finished",
		Flags: func(fs *flag.FlagSet) {
			fs.String("end-date", "", "Finish date YYYY-MM-DD (default: today)")
		},
		Run: finishTodo,
	},
}

// Names returns the registered helpers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Lookup returns the helper registered under name.
func Lookup(name string) (Helper, bool) {
	h, ok := registry[name]

	return h, ok
}

// FlagSet returns a fresh flag set for helper name.
func (h Helper) FlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	if h.Flags != nil {
		h.Flags(fs)
	}

	return fs
}

// Run parses args for helper name and runs it.
func Run(ctx context.Context, env Env, name string, args []string) error {
	h, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s (have %s)", ErrUnknownHelper, name, strings.Join(Names(), ", "))
	}

	fs := h.FlagSet(name)

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return h.Run(ctx, env, fs, fs.Args())
}

func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}

	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}

	return t, nil
}
