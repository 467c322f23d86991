package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang/glog"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/regro/regolith/internal/chain"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

const shellPrompt = "regolith> "

var shellCommands = []string{"dbs", "colls", "ls", "get", "keys", "help", "exit", "quit"}

// ShellCmd returns the shell command.
func ShellCmd(cfg *rc.Config, env map[string]string) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage:   "shell",
		Short:   "Browse the chained view interactively",
		NeedsRC: true,
		Long: `Browse the merged view of every database. On a terminal this is a line
editor with history and tab completion; otherwise commands are read one per
line from stdin.

  dbs                       list databases in priority order
  colls                     list collections
  ls <coll>                 list document ids
  get <coll> <id> [key...]  print a merged document or a value inside it
  keys <coll> <id> [key...] list the keys of a merged mapping
  exit                      leave the shell`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return withStore(ctx, cfg, func(c *store.Client) error {
				view, err := c.ChainDB(ctx)
				if err != nil {
					return err
				}

				dbs, err := c.ListDatabases(ctx)
				if err != nil {
					return err
				}

				sh := &shell{out: o, view: view, dbs: dbs}

				if f, ok := o.Stdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
					return sh.interactive(ctx, historyPath(env))
				}

				return sh.script(ctx, o.Stdin())
			})
		},
	}
}

func historyPath(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".regolith_history")
}

type shell struct {
	out  *IO
	view *chain.Chain
	dbs  []string
}

var errShellExit = errors.New("exit")

func (s *shell) script(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)

	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.exec(sc.Text()); errors.Is(err, errShellExit) {
			return nil
		}
	}

	return sc.Err()
}

func (s *shell) interactive(ctx context.Context, history string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.complete)

	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if history == "" {
			return
		}

		f, err := os.Create(history)
		if err != nil {
			glog.Warningf("shell: save history: %v", err)

			return
		}

		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}()

	for ctx.Err() == nil {
		input, err := line.Prompt(shellPrompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			s.out.Println()

			return nil
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if err := s.exec(input); errors.Is(err, errShellExit) {
			return nil
		}
	}

	return ctx.Err()
}

// exec runs one shell line. Problems are reported as warnings so a script
// keeps going but the command still exits 1.
func (s *shell) exec(input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit", "q":
		return errShellExit
	case "help", "?":
		s.out.Println("commands: " + strings.Join(shellCommands, ", "))
	case "dbs":
		for _, db := range s.dbs {
			s.out.Println(db)
		}
	case "colls":
		for _, coll := range s.view.Keys() {
			s.out.Println(coll)
		}
	case "ls":
		if len(args) != 1 {
			s.out.Warn(input, "usage: ls <coll>")

			return nil
		}

		coll, ok := s.lookup(input, args[0])
		if !ok {
			return nil
		}

		m, _ := chain.AsMapping(coll)
		for _, id := range m.Keys() {
			s.out.Println(id)
		}
	case "get", "keys":
		if len(args) < 2 {
			s.out.Warn(input, "usage: "+cmd+" <coll> <id> [key...]")

			return nil
		}

		v, ok := s.lookup(input, args...)
		if !ok {
			return nil
		}

		if cmd == "keys" {
			m, isMap := chain.AsMapping(v)
			if !isMap {
				s.out.Warn(input, "not a mapping")

				return nil
			}

			for _, k := range m.Keys() {
				s.out.Println(k)
			}

			return nil
		}

		data, err := yaml.Marshal(chain.ToPlain(v))
		if err != nil {
			s.out.Warn(input, err.Error())

			return nil
		}

		s.out.Printf("%s", data)
	default:
		s.out.Warn(input, "unknown command (try help)")
	}

	return nil
}

func (s *shell) lookup(input string, path ...string) (any, bool) {
	v, ok := s.view.Lookup(path...)
	if !ok {
		s.out.Warn(input, "not found: "+strings.Join(path, " "))
	}

	return v, ok
}

func (s *shell) complete(line string) []string {
	fields := strings.Fields(line)
	trailing := strings.HasSuffix(line, " ")

	var candidates []string

	prefix := ""

	switch {
	case len(fields) == 0 || (len(fields) == 1 && !trailing):
		candidates = shellCommands
	case slices.Contains([]string{"ls", "get", "keys"}, fields[0]) && (len(fields) == 1 || (len(fields) == 2 && !trailing)):
		candidates = s.view.Keys()
		prefix = fields[0] + " "
	default:
		return nil
	}

	partial := ""
	if !trailing && len(fields) > 0 {
		partial = fields[len(fields)-1]
	}

	var out []string

	for _, c := range candidates {
		if strings.HasPrefix(c, partial) {
			out = append(out, prefix+c)
		}
	}

	return out
}
