package helper

import (
	"context"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/chain"
	"github.com/regro/regolith/internal/store"
)

const (
	statusStarted  = "started"
	statusFinished = "finished"
)

// personDatabase returns the database a person's todos are written to and
// that database's copy of the person.
func personDatabase(ctx context.Context, env Env, person string) (string, store.Document, error) {
	db := env.DB

	if db == "" {
		found, ok, err := env.Store.DatabaseOf(ctx, "people", person)
		if err != nil {
			return "", nil, err
		}

		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrPersonNotFound, person)
		}

		db = found
	}

	doc, ok, err := env.Store.FindOne(ctx, db, "people", store.ByID(person))
	if err != nil {
		return "", nil, err
	}

	if ok {
		return db, doc, nil
	}

	// A forced database may not hold the person yet; it gets a new entry
	// as long as some database knows them.
	_, known, err := env.Store.DatabaseOf(ctx, "people", person)
	if err != nil {
		return "", nil, err
	}

	if !known || env.DB == "" {
		return "", nil, fmt.Errorf("%w: %s in %s", ErrPersonNotFound, person, db)
	}

	return db, store.Document{}, nil
}

// mergedTodos returns the person's todos across every database.
func mergedTodos(ctx context.Context, env Env, person string) ([]any, error) {
	people, err := env.Store.AllDocuments(ctx, "people", false)
	if err != nil {
		return nil, err
	}

	for _, p := range people {
		if p.ID() == person {
			return chain.AsSequence(p["todos"]), nil
		}
	}

	return nil, nil
}

func runningIndex(todo any) int {
	m, ok := todo.(map[string]any)
	if !ok {
		return 0
	}

	n, _ := yearOf(m["running_index"])

	return n
}

func addTodo(ctx context.Context, env Env, fs *flag.FlagSet, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: a_todo <person> <description>", ErrUsage)
	}

	person, description := args[0], args[1]
	today := env.today()

	dueFlag, _ := fs.GetString("due")

	due, err := parseDate(dueFlag, today)
	if err != nil {
		return err
	}

	importance, _ := fs.GetInt("importance")
	if importance < 0 || importance > 3 {
		return fmt.Errorf("importance %d: must be 0-3", importance)
	}

	duration, _ := fs.GetFloat64("duration")

	db, doc, err := personDatabase(ctx, env, person)
	if err != nil {
		return err
	}

	all, err := mergedTodos(ctx, env, person)
	if err != nil {
		return err
	}

	next := 1
	for _, todo := range all {
		if idx := runningIndex(todo); idx >= next {
			next = idx + 1
		}
	}

	todo := map[string]any{
		"description":   description,
		"begin_date":    today.Format(dateLayout),
		"due_date":      due.Format(dateLayout),
		"importance":    importance,
		"status":        statusStarted,
		"running_index": next,
	}

	if duration > 0 {
		todo["duration"] = duration
	}

	todos := append(chain.AsSequence(doc["todos"]), todo)

	if err := env.Store.UpdateOne(ctx, db, "people", store.ByID(person), store.Document{"todos": todos}, true); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(env.Out, "added todo %d for %s in %s: %s\n", next, person, db, description)

	return nil
}

func finishTodo(ctx context.Context, env Env, fs *flag.FlagSet, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: u_finishtodo <person> <index>", ErrUsage)
	}

	person := args[0]

	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: index %q", ErrUsage, args[1])
	}

	endFlag, _ := fs.GetString("end-date")

	end, err := parseDate(endFlag, env.today())
	if err != nil {
		return err
	}

	db, doc, err := personDatabase(ctx, env, person)
	if err != nil {
		return err
	}

	todos := chain.AsSequence(doc["todos"])

	for _, t := range todos {
		if runningIndex(t) != index {
			continue
		}

		todo := t.(map[string]any)
		todo["status"] = statusFinished
		todo["end_date"] = end.Format(dateLayout)

		if err := env.Store.UpdateOne(ctx, db, "people", store.ByID(person), store.Document{"todos": todos}, false); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(env.Out, "finished todo %d for %s: %v\n", index, person, todo["description"])

		return nil
	}

	return fmt.Errorf("%w: %s #%d in %s", ErrTodoNotFound, person, index, db)
}
