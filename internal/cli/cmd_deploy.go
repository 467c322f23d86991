package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/fs"
	"github.com/regro/regolith/internal/rc"
)

const (
	deployLocal = "local"
	deployGit   = "git"
)

var (
	errNoDeployTargets     = errors.New("no deploy targets in rc")
	errUnknownDeployMethod = errors.New("unknown deploy method")
)

// DeployCmd returns the deploy command.
func DeployCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("deploy", flag.ContinueOnError)
	flags.String("message", "regolith deploy", "Commit message for git targets")

	return &Command{
		Flags:   flags,
		Usage:   "deploy",
		Short:   "Publish build output",
		NeedsRC: true,
		Long: `Copy <builddir>/<src> of every rc deploy target to its dst.

Method "local" (default) copies into the dst directory. Method "git" treats
dst as a git checkout: the files are copied in, committed and pushed.`,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			if len(cfg.Deploy) == 0 {
				return errNoDeployTargets
			}

			msg, _ := flags.GetString("message")
			fsys := fs.NewReal()

			for _, target := range cfg.Deploy {
				src := filepath.Join(cfg.BuildDirAbs, target.Src)
				dst := cfg.Resolve(target.Dst)

				method := target.Method
				if method == "" {
					method = deployLocal
				}

				switch method {
				case deployLocal:
				case deployGit:
				default:
					return fmt.Errorf("%w: %s", errUnknownDeployMethod, method)
				}

				n, err := copyTree(fsys, src, dst)
				if err != nil {
					return fmt.Errorf("deploy %s: %w", target.Src, err)
				}

				if method == deployGit {
					if err := gitPublish(ctx, dst, msg); err != nil {
						return fmt.Errorf("deploy %s: %w", target.Src, err)
					}
				}

				io.Printf("%s -> %s (%s, %d files)\n", target.Src, dst, method, n)
			}

			return nil
		},
	}
}

// copyTree copies every regular file below src into dst and returns the
// number of files copied.
func copyTree(fsys fs.FS, src, dst string) (int, error) {
	entries, err := fsys.ReadDir(src)
	if err != nil {
		return 0, err
	}

	if err := fsys.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}

	n := 0

	for _, e := range entries {
		from, to := filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())

		if e.IsDir() {
			if e.Name() == ".git" {
				continue
			}

			m, err := copyTree(fsys, from, to)
			if err != nil {
				return n, err
			}

			n += m

			continue
		}

		if !e.Type().IsRegular() {
			continue
		}

		data, err := fsys.ReadFile(from)
		if err != nil {
			return n, err
		}

		if err := fsys.WriteFileAtomic(to, data, 0o644); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}

func gitPublish(ctx context.Context, dir, msg string) error {
	if err := git(ctx, dir, "add", "-A"); err != nil {
		return err
	}

	// Nothing staged means nothing to publish.
	if err := git(ctx, dir, "diff", "--cached", "--quiet"); err == nil {
		glog.V(1).Infof("deploy: %s unchanged", dir)

		return nil
	}

	if err := git(ctx, dir, "commit", "-m", msg); err != nil {
		return err
	}

	return git(ctx, dir, "push")
}

func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}

	return nil
}
