package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/builder"
	"github.com/regro/regolith/internal/helper"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

// BuildCmd returns the build command.
func BuildCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("build", flag.ContinueOnError)
	flags.String("format", "yaml", "Export format: yaml or json")
	flags.String("person", "", "Person the lists are built for (default: rc default_user_id)")

	return &Command{
		Flags:   flags,
		Usage:   "build <target>...",
		Short:   "Build targets into the build directory",
		NeedsRC: true,
		Long:    "Build each target under <builddir>/<target>/.\n\nTargets:\n" + builderTargets(),
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: build <target>...", errArgsRequired)
			}

			formatName, _ := flags.GetString("format")

			var format store.Format

			switch formatName {
			case "yaml", "yml":
				format = store.FormatYAML
			case "json":
				format = store.FormatJSON
			default:
				return fmt.Errorf("%w: %s", store.ErrUnknownFormat, formatName)
			}

			person, _ := flags.GetString("person")
			if person == "" {
				person = cfg.DefaultUserID
			}

			return withStore(ctx, cfg, func(c *store.Client) error {
				env := builder.Env{
					Source:   c,
					BuildDir: cfg.BuildDirAbs,
					Format:   format,
					Person:   person,
				}

				if err := builder.Run(ctx, env, args...); err != nil {
					return err
				}

				for _, target := range args {
					io.Println(env.Dir(target))
				}

				return nil
			})
		},
	}
}

func builderTargets() string {
	var b strings.Builder

	for _, name := range builder.Names() {
		t, _ := builder.Lookup(name)
		fmt.Fprintf(&b, "  %-10s %s\n", name, t.Short)
	}

	return strings.TrimRight(b.String(), "\n")
}

// HelperCmd returns the helper command.
func HelperCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("helper", flag.ContinueOnError)
	flags.String("to", "", "Database updating helpers write to")
	flags.SetInterspersed(false)

	return &Command{
		Flags:   flags,
		Usage:   "helper <target> [args]",
		Short:   "Run a helper",
		NeedsRC: true,
		Long:    "Run a helper against the chained view. Flags after the target go to the helper.\n\nHelpers:\n" + helperTargets(),
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: helper <target> [args]", errArgsRequired)
			}

			to, _ := flags.GetString("to")

			return withStore(ctx, cfg, func(c *store.Client) error {
				env := helper.Env{Store: c, Out: io.Writer(), DB: to}

				return helper.Run(ctx, env, args[0], args[1:])
			})
		},
	}
}

func helperTargets() string {
	var b strings.Builder

	for _, name := range helper.Names() {
		h, _ := helper.Lookup(name)
		fmt.Fprintf(&b, "  %-34s %s\n", strings.TrimSpace(name+" "+h.Usage), h.Short)
	}

	return strings.TrimRight(b.String(), "\n")
}
