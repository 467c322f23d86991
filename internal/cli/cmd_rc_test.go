package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/regro/regolith/internal/cli"
)

func Test_RC_Shows_Databases_And_Sources_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("rc")

	cli.AssertContains(t, stdout, `"name": "main"`)
	cli.AssertContains(t, stdout, `"backend": "filesystem"`)
	cli.AssertContains(t, stdout, "project_rc="+filepath.Join(c.Dir, "regolithrc.json"))
	cli.AssertContains(t, stdout, "builddir="+filepath.Join(c.Dir, "_build"))
}

func Test_RC_Masks_Secrets_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRC(`{
  "databases": [{"name": "main", "url": "main", "local": true}],
  "email": {"from": "me@uni.edu", "url": "smtp.uni.edu", "password": "hunter2"},
  "github_token": "ghp_secret",
}`)

	stdout := c.MustRun("rc")

	cli.AssertContains(t, stdout, "********")
	cli.AssertNotContains(t, stdout, "hunter2")
	cli.AssertNotContains(t, stdout, "ghp_secret")
}

func Test_RC_Merges_User_Config_When_Present(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Env["XDG_CONFIG_HOME"], "regolith", "user.json"), `{
  "default_user_id": "alice",
  "databases": [{"name": "mine", "url": "/data/mine", "local": true}],
}`)

	stdout := c.MustRun("rc")

	cli.AssertContains(t, stdout, `"default_user_id": "alice"`)
	cli.AssertContains(t, stdout, `"name": "mine"`)
	cli.AssertContains(t, stdout, `"name": "main"`)
	cli.AssertContains(t, stdout, "user_config=")
}

func Test_RC_Builddir_Flag_Overrides_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--builddir", "out", "rc")

	cli.AssertContains(t, stdout, "builddir="+filepath.Join(c.Dir, "out"))
}
