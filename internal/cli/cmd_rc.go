package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/rc"
)

const masked = "********"

// RCCmd returns the rc command.
func RCCmd(cfg *rc.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rc", flag.ContinueOnError),
		Usage: "rc",
		Short: "Show resolved run control",
		Long:  "Display the effective run control and which files it was loaded from. Secrets are masked.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execRC(io, cfg)
		},
	}
}

func execRC(io *IO, cfg *rc.Config) error {
	shown := *cfg
	if shown.Email.Password != "" {
		shown.Email.Password = masked
	}

	if shown.GithubToken != "" {
		shown.GithubToken = masked
	}

	data, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return fmt.Errorf("format rc: %w", err)
	}

	io.Println(string(data))
	io.Println("")
	io.Println("# sources")
	io.Println("cwd=" + cfg.Cwd)
	io.Println("builddir=" + cfg.BuildDirAbs)

	if cfg.Sources.User == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	}

	if cfg.Sources.User != "" {
		io.Println("user_config=" + cfg.Sources.User)
	}

	if cfg.Sources.Project != "" {
		io.Println("project_rc=" + cfg.Sources.Project)
	}

	return nil
}
