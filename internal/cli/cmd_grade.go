package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/schema"
	"github.com/regro/regolith/internal/store"
)

var errInvalidScore = errors.New("invalid score")

// GradeCmd returns the grade command.
func GradeCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("grade", flag.ContinueOnError)
	flags.String("to", "", "Database to write to (default: the one holding grades)")

	return &Command{
		Flags:   flags,
		Usage:   "grade <course> <student> <assignment> <score>...",
		Short:   "Record assignment scores",
		NeedsRC: true,
		Long: `Record the per-question scores of one student's assignment. The grade
document "<course>-<student>-<assignment>" is created or its scores replaced.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) < 4 {
				return fmt.Errorf("%w: grade <course> <student> <assignment> <score>...", errArgsRequired)
			}

			scores, err := parseScores(args[3:])
			if err != nil {
				return err
			}

			to, _ := flags.GetString("to")
			course, student, assignment := args[0], args[1], args[2]

			doc := store.Document{
				store.IDKey:  course + "-" + student + "-" + assignment,
				"course":     course,
				"student":    student,
				"assignment": assignment,
				"scores":     scores,
			}

			if errs := schema.Builtin().ValidateDocument("grades", doc); len(errs) > 0 {
				return fmt.Errorf("%w: %s", schema.ErrInvalid, errs[0])
			}

			return withStore(ctx, cfg, func(c *store.Client) error {
				db, err := c.TargetDatabase(ctx, "grades", to)
				if err != nil {
					return err
				}

				if err := c.UpdateOne(ctx, db, "grades", store.ByID(doc.ID()), doc, true); err != nil {
					return err
				}

				io.Printf("%s/grades/%s\n", db, doc.ID())

				return nil
			})
		},
	}
}

// parseScores parses numeric scores; whole numbers stay integers.
func parseScores(args []string) ([]any, error) {
	scores := make([]any, 0, len(args))

	for _, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %q", errInvalidScore, arg)
		}

		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			scores = append(scores, int(f))

			continue
		}

		scores = append(scores, f)
	}

	return scores, nil
}
