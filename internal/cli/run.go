package cli

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/regro/regolith/internal/rc"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

var glogOnce sync.Once

// Run is the main entry point. Returns exit code.
// SIGINT/SIGTERM on sigCh cancel the command context; blocking operations
// such as waiting for a database server give up when it is canceled.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	glogOnce.Do(func() {
		_ = goflag.Set("logtostderr", "true")
	})

	if len(args) < minArgs {
		printUsage(out, nil)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, nil)

		return 1
	}

	if flags.verbosity > 0 {
		_ = goflag.Set("v", strconv.Itoa(flags.verbosity))
	}

	var cfg rc.Config

	commands := allCommands(&cfg, env)

	if len(flags.remaining) == 0 || flags.remaining[0] == helpFlag {
		printUsage(out, commands)

		return 0
	}

	name := flags.remaining[0]

	cmd := findCommand(commands, name)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut, commands)

		return 1
	}

	cfg, err = rc.Load(rc.LoadInput{
		WorkDirOverride:  flags.workDir,
		ConfigPath:       flags.configPath,
		BuildDirOverride: flags.buildDir,
		Databases:        flags.databases,
		RequireProject:   cmd.NeedsRC && !hasHelpFlag(flags.remaining[1:]),
		Env:              env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				glog.V(1).Infof("received %v, canceling", sig)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	code := cmd.Run(ctx, NewIO(stdin, out, errOut), flags.remaining[1:])

	glog.Flush()

	return code
}

func allCommands(cfg *rc.Config, env map[string]string) []*Command {
	return []*Command{
		RCCmd(cfg),
		AddCmd(cfg),
		IngestCmd(cfg),
		StoreCmd(cfg),
		AppCmd(cfg),
		GradeCmd(cfg),
		BuildCmd(cfg),
		HelperCmd(cfg),
		DeployCmd(cfg),
		EmailCmd(cfg),
		ClasslistCmd(cfg),
		JSONToYAMLCmd(cfg),
		YAMLToJSONCmd(cfg),
		ValidateCmd(cfg),
		FSToMongoCmd(cfg),
		MongoToFSCmd(cfg),
		GHExtractorCmd(cfg),
		ShellCmd(cfg, env),
	}
}

func findCommand(commands []*Command, name string) *Command {
	for _, c := range commands {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

type globalFlags struct {
	workDir    string
	configPath string
	buildDir   string
	databases  []string
	verbosity  int
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// valueFlag matches "--name value", "--name=value" and, when short is set,
// "-s value" and "-svalue". It returns the value and the args consumed.
func valueFlag(args []string, idx int, long, short string) (string, int, error) {
	arg := args[idx]

	if arg == long || (short != "" && arg == short) {
		if idx+1 >= len(args) {
			return "", consumedNone, fmt.Errorf("%w: %s", rc.ErrFlagRequiresArg, arg)
		}

		return args[idx+1], consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, long+"="); ok {
		return after, consumedOne, nil
	}

	if short != "" && len(arg) > len(short) {
		if after, ok := strings.CutPrefix(arg, short); ok {
			return after, consumedOne, nil
		}
	}

	return "", consumedNone, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	targets := []struct {
		long, short string
		set         func(string)
	}{
		{"--cwd", "-C", func(v string) { flags.workDir = v }},
		{"--config", "-c", func(v string) { flags.configPath = v }},
		{"--builddir", "", func(v string) { flags.buildDir = v }},
		{"--db", "", func(v string) { flags.databases = append(flags.databases, v) }},
	}

	for _, target := range targets {
		value, consumed, err := valueFlag(args, idx, target.long, target.short)
		if err != nil {
			return consumedNone, err
		}

		if consumed > 0 {
			if value == "" {
				return consumedNone, fmt.Errorf("%w: %s", rc.ErrFlagRequiresArg, target.long)
			}

			target.set(value)

			return consumed, nil
		}
	}

	switch {
	case arg == "-v" || arg == "--verbose":
		flags.verbosity++

		return consumedOne, nil
	case strings.HasPrefix(arg, "-vv") && strings.Trim(arg[1:], "v") == "":
		flags.verbosity += len(arg) - 1

		return consumedOne, nil
	case strings.HasPrefix(arg, "--verbose="):
		n, err := strconv.Atoi(strings.TrimPrefix(arg, "--verbose="))
		if err != nil || n < 0 {
			return consumedNone, fmt.Errorf("%w: %s", rc.ErrUnknownFlag, arg)
		}

		flags.verbosity = n

		return consumedOne, nil
	case arg == "-h" || arg == helpFlag:
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	case strings.HasPrefix(arg, "-") && arg != "-":
		return consumedNone, fmt.Errorf("%w: %s", rc.ErrUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-h" || arg == helpFlag {
			return true
		}
	}

	return false
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, `regolith - research group content management over chained databases

Usage: regolith [global flags] <command> [args]

Global flags:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified rc file instead of ./regolithrc.json
      --builddir <dir>   Override the build directory
      --db <name>        Only use this database (repeatable)
  -v, --verbose          Log progress to stderr (-vv for more)
  -h, --help             Show help`)

	if len(commands) == 0 {
		commands = allCommands(&rc.Config{}, nil)
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}
