package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DefaultRC is the regolithrc.json NewCLI writes: one local filesystem
// database "main" stored under <Dir>/main/db.
const DefaultRC = `{
  // test project
  "databases": [
    {"name": "main", "url": "main", "local": true},
  ],
}
`

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp project directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a test CLI with a temp project holding DefaultRC. HOME and
// XDG_CONFIG_HOME point into a separate temp dir so no user config leaks in.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	home := t.TempDir()

	c := &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{
			"HOME":            home,
			"XDG_CONFIG_HOME": filepath.Join(home, ".config"),
		},
	}

	c.WriteRC(DefaultRC)

	return c
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "regolith" or "--cwd" - those are added automatically.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput("", args...)
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
// stdin must be a string or io.Reader; panics otherwise.
func (r *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader
	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"regolith", "--cwd", r.Dir}, args...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Also fails if stdout is not empty. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		r.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteRC replaces the project regolithrc.json.
func (r *CLI) WriteRC(content string) {
	r.t.Helper()

	r.WriteFile("regolithrc.json", content)
}

// DBDir returns the collection directory of a database created with
// "url": name and the default path.
func (r *CLI) DBDir(name string) string {
	return filepath.Join(r.Dir, name, "db")
}

// WriteCollection writes a collection file of database db. The extension
// of file selects the format.
func (r *CLI) WriteCollection(db, file, content string) {
	r.t.Helper()

	r.WriteFile(filepath.Join(db, "db", file), content)
}

// ReadCollection returns the content of a collection file of database db.
func (r *CLI) ReadCollection(db, file string) string {
	r.t.Helper()

	return r.ReadFile(filepath.Join(db, "db", file))
}

// WriteFile writes content to a path relative to Dir, creating parents.
func (r *CLI) WriteFile(rel, content string) {
	r.t.Helper()

	path := filepath.Join(r.Dir, rel)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("failed to create dir for %s: %v", rel, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		r.t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// ReadFile reads a file relative to Dir.
func (r *CLI) ReadFile(rel string) string {
	r.t.Helper()

	content, err := os.ReadFile(filepath.Join(r.Dir, rel))
	if err != nil {
		r.t.Fatalf("failed to read %s: %v", rel, err)
	}

	return string(content)
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
