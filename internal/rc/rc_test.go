package rc_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regro/regolith/internal/rc"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func Test_Load_Uses_Defaults_When_No_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := rc.Load(rc.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got, want := cfg.BuildDirAbs, filepath.Join(dir, "_build"); got != want {
		t.Errorf("BuildDirAbs=%q, want=%q", got, want)
	}

	if len(cfg.Databases) != 0 {
		t.Errorf("Databases=%v, want none", cfg.Databases)
	}
}

func Test_Load_Fails_When_Project_Required_And_Missing(t *testing.T) {
	t.Parallel()

	_, err := rc.Load(rc.LoadInput{WorkDirOverride: t.TempDir(), RequireProject: true})
	if !errors.Is(err, rc.ErrRCNotFound) {
		t.Fatalf("err=%v, want ErrRCNotFound", err)
	}
}

func Test_Load_Accepts_Comments_And_Normalizes_Backends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, rc.FileName), `{
		// databases, lowest priority first
		"databases": [
			{"name": "public", "url": ".", "local": true},
			{"name": "group", "url": "mongodb://localhost", "backend": "mongo"},
		],
		"builddir": "out",
	}`)

	cfg, err := rc.Load(rc.LoadInput{WorkDirOverride: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []rc.Database{
		{Name: "public", URL: ".", Local: true, Backend: rc.BackendFilesystem, Path: "db"},
		{Name: "group", URL: "mongodb://localhost", Backend: rc.BackendMongoDB},
	}

	if diff := cmp.Diff(want, cfg.Databases); diff != "" {
		t.Errorf("databases mismatch (-want +got):\n%s", diff)
	}

	if got, want := cfg.BuildDirAbs, filepath.Join(dir, "out"); got != want {
		t.Errorf("BuildDirAbs=%q, want=%q", got, want)
	}

	if got, want := cfg.Sources.Project, filepath.Join(dir, rc.FileName); got != want {
		t.Errorf("Sources.Project=%q, want=%q", got, want)
	}
}

func Test_Load_Unions_Databases_Across_Layers(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	dir := t.TempDir()

	writeFile(t, filepath.Join(home, "regolith", "user.json"), `{
		"databases": [{"name": "personal", "url": "/p", "local": true}, {"name": "group", "url": "/old"}],
		"default_user_id": "sbillinge"
	}`)
	writeFile(t, filepath.Join(dir, rc.FileName), `{
		"databases": [{"name": "group", "url": "/new"}, {"name": "public", "url": "/pub"}]
	}`)

	cfg, err := rc.Load(rc.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": home},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if diff := cmp.Diff([]string{"personal", "group", "public"}, cfg.DatabaseNames()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	group, _ := cfg.Database("group")
	if got, want := group.URL, "/new"; got != want {
		t.Errorf("group.URL=%q, want=%q", got, want)
	}

	if got, want := cfg.DefaultUserID, "sbillinge"; got != want {
		t.Errorf("DefaultUserID=%q, want=%q", got, want)
	}

	if cfg.Sources.User == "" {
		t.Error("Sources.User should be set")
	}
}

func Test_Load_Narrows_Databases_When_Filter_Given(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, rc.FileName), `{
		"databases": [{"name": "a"}, {"name": "b"}, {"name": "c"}]
	}`)

	cfg, err := rc.Load(rc.LoadInput{WorkDirOverride: dir, Databases: []string{"c", "a"}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if diff := cmp.Diff([]string{"a", "c"}, cfg.DatabaseNames()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	_, err = rc.Load(rc.LoadInput{WorkDirOverride: dir, Databases: []string{"nope"}})
	if !errors.Is(err, rc.ErrUnknownDatabase) {
		t.Fatalf("err=%v, want ErrUnknownDatabase", err)
	}
}

func Test_Load_Rejects_Invalid_Configs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad json", `{nope`, rc.ErrConfigInvalid},
		{"duplicate db", `{"databases": [{"name": "a"}, {"name": "a"}]}`, rc.ErrDuplicateDatabase},
		{"duplicate db among others", `{"databases": [{"name": "a"}, {"name": "b"}, {"name": "a", "url": "y"}]}`, rc.ErrDuplicateDatabase},
		{"duplicate store", `{"stores": [{"name": "s", "url": "x"}, {"name": "s", "url": "y"}]}`, rc.ErrDuplicateStore},
		{"empty name", `{"databases": [{"url": "x"}]}`, rc.ErrDatabaseNameEmpty},
		{"bad backend", `{"databases": [{"name": "a", "backend": "redis"}]}`, rc.ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, rc.FileName), tt.content)

			_, err := rc.Load(rc.LoadInput{WorkDirOverride: dir})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func Test_Load_Rejects_Duplicate_Database_When_Repeated_In_User_Config(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "regolith", "user.json"), `{"databases": [{"name": "mine"}, {"name": "mine"}]}`)
	writeFile(t, filepath.Join(dir, rc.FileName), `{"databases": [{"name": "main"}]}`)

	_, err := rc.Load(rc.LoadInput{WorkDirOverride: dir, Env: map[string]string{"XDG_CONFIG_HOME": xdg}})
	if !errors.Is(err, rc.ErrDuplicateDatabase) {
		t.Fatalf("err=%v, want %v", err, rc.ErrDuplicateDatabase)
	}
}

func Test_Load_Fails_When_Explicit_Config_Missing(t *testing.T) {
	t.Parallel()

	_, err := rc.Load(rc.LoadInput{WorkDirOverride: t.TempDir(), ConfigPath: "missing.json"})
	if !errors.Is(err, rc.ErrConfigFileNotFound) {
		t.Fatalf("err=%v, want ErrConfigFileNotFound", err)
	}
}

func Test_Load_Applies_BuildDir_Override(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "custom.json"), `{"builddir": "from-file"}`)

	cfg, err := rc.Load(rc.LoadInput{WorkDirOverride: dir, ConfigPath: "custom.json", BuildDirOverride: "/abs/out"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got, want := cfg.BuildDirAbs, "/abs/out"; got != want {
		t.Errorf("BuildDirAbs=%q, want=%q", got, want)
	}
}

func Test_Database_Allows_Respects_White_And_Blacklist(t *testing.T) {
	t.Parallel()

	db := rc.Database{Whitelist: []string{"people", "grants"}, Blacklist: []string{"grants"}}

	if !db.Allows("people") {
		t.Error("people should be allowed")
	}

	if db.Allows("grants") {
		t.Error("grants is blacklisted")
	}

	if db.Allows("projects") {
		t.Error("projects is not whitelisted")
	}

	if !(rc.Database{}).Allows("anything") {
		t.Error("empty lists allow everything")
	}
}
