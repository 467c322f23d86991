package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/regro/regolith/internal/cli"
)

func Test_Deploy_Copies_Build_Output_When_Method_Local(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRC(`{
  "databases": [{"name": "main", "url": "main", "local": true}],
  "deploy": [{"src": "export", "dst": "site/data"}],
}`)
	c.WriteCollection("main", "people.yaml", "alice:\n  name: Alice\n")

	c.MustRun("build", "export")

	stdout := c.MustRun("deploy")
	cli.AssertContains(t, stdout, "export -> "+filepath.Join(c.Dir, "site", "data")+" (local, 1 files)")

	got := parseYAML(t, c.ReadFile(filepath.Join("site", "data", "people.yaml")))
	if _, ok := got["alice"]; !ok {
		t.Errorf("deployed people.yaml missing alice: %v", got)
	}
}

func Test_Deploy_Fails_When_No_Targets(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("deploy")

	cli.AssertContains(t, stderr, "no deploy targets")
}

func Test_Deploy_Fails_When_Method_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRC(`{
  "databases": [{"name": "main", "url": "main", "local": true}],
  "deploy": [{"src": "export", "dst": "site", "method": "ftp"}],
}`)

	stderr := c.MustFail("deploy")
	cli.AssertContains(t, stderr, "unknown deploy method: ftp")
}

func Test_Deploy_Fails_When_Build_Output_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRC(`{
  "databases": [{"name": "main", "url": "main", "local": true}],
  "deploy": [{"src": "export", "dst": "site"}],
}`)

	stderr := c.MustFail("deploy")
	cli.AssertContains(t, stderr, "deploy export")
}
