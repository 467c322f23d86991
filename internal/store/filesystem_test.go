package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}

	return out
}

func localDB(name, dir string) rc.Database {
	return rc.Database{Name: name, URL: dir, Local: true, Path: "db", Backend: rc.BackendFilesystem}
}

func openFS(t *testing.T, dbs ...rc.Database) *store.FilesystemBackend {
	t.Helper()

	b := store.NewFilesystemBackend(nil, t.TempDir(), t.TempDir(), nil)

	for _, db := range dbs {
		if err := b.OpenDatabase(t.Context(), db); err != nil {
			t.Fatalf("open %s: %v", db.Name, err)
		}
	}

	return b
}

func Test_FilesystemBackend_Loads_Every_Collection_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "people.yaml"), "alice:\n  name: Alice\n")
	writeFile(t, filepath.Join(dir, "db", "grants.json"), `{"nsf": {"amount": 10}}`)
	writeFile(t, filepath.Join(dir, "db", "notes.txt"), "ignored")

	b := openFS(t, localDB("main", dir))

	got, err := b.ListCollections(t.Context(), "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if diff := cmp.Diff([]string{"grants", "people"}, got); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}

	doc, ok, err := b.FindOne(t.Context(), "main", "grants", store.ByID("nsf"))
	if err != nil || !ok {
		t.Fatalf("find nsf: ok=%v err=%v", ok, err)
	}

	if got, want := doc["amount"], 10; got != want {
		t.Errorf("amount=%v, want=%v", got, want)
	}
}

func Test_FilesystemBackend_Writes_Back_Dirty_Collections_On_Close(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "people.yaml"), "alice:\n  name: Alice\n  age: 30\n")
	writeFile(t, filepath.Join(dir, "db", "grants.yaml"), "# untouched\nnsf: {}\n")

	b := openFS(t, localDB("main", dir))

	if err := b.InsertOne(ctx, "main", "people", store.Document{"_id": "bob", "name": "Bob"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := b.UpdateOne(ctx, "main", "people", store.ByID("alice"), store.Document{"age": 31}, false); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := b.InsertOne(ctx, "main", "projects", store.Document{"_id": "regolith"}); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := map[string]any{
		"alice": map[string]any{"name": "Alice", "age": 31},
		"bob":   map[string]any{"name": "Bob"},
	}

	if diff := cmp.Diff(want, readYAML(t, filepath.Join(dir, "db", "people.yaml"))); diff != "" {
		t.Errorf("people.yaml mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(dir, "db", "projects.yaml")); err != nil {
		t.Errorf("new collection not written as yaml: %v", err)
	}

	grants, err := os.ReadFile(filepath.Join(dir, "db", "grants.yaml"))
	if err != nil {
		t.Fatalf("read grants: %v", err)
	}

	if got, want := string(grants), "# untouched\nnsf: {}\n"; got != want {
		t.Errorf("clean collection rewritten: %q, want=%q", got, want)
	}
}

func Test_FilesystemBackend_Keeps_JSON_Format_When_Rewriting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db", "people.json")
	writeFile(t, path, `{"alice": {"name": "Alice"}}`)

	b := openFS(t, localDB("main", dir))

	if err := b.DeleteOne(t.Context(), "main", "people", store.Document{"_id": "alice"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got, want := string(data), "{}\n"; got != want {
		t.Errorf("people.json=%q, want=%q", got, want)
	}
}

func Test_FilesystemBackend_UpdateOne_Upserts_Filter_And_Update(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := openFS(t, localDB("main", t.TempDir()))

	err := b.UpdateOne(ctx, "main", "grades", store.Filter{"_id": "s1-hw1", "student": "s1"}, store.Document{"score": 9, "student": "s2"}, true)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	doc, ok, err := b.FindOne(ctx, "main", "grades", store.ByID("s1-hw1"))
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}

	want := store.Document{"_id": "s1-hw1", "student": "s2", "score": 9}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("upserted mismatch (-want +got):\n%s", diff)
	}
}

// checkNumericID inserts a document with a numeric _id and expects reads,
// updates and upserts through a numeric filter to reach the stored string id.
func checkNumericID(t *testing.T, b store.Backend, db string) {
	t.Helper()

	ctx := t.Context()

	if err := b.InsertOne(ctx, db, "grants", store.Document{"_id": 7, "amount": 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	doc, ok, err := b.FindOne(ctx, db, "grants", store.Filter{"_id": 7})
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}

	if got, want := doc.ID(), "7"; got != want {
		t.Errorf("id=%q, want=%q", got, want)
	}

	if err := b.UpdateOne(ctx, db, "grants", store.Filter{"_id": 7}, store.Document{"amount": 20}, true); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	coll, err := b.Collection(ctx, db, "grants")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}

	want := store.Collection{"7": {"_id": "7", "amount": 20}}
	if diff := cmp.Diff(want, coll); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func Test_FilesystemBackend_Finds_Numeric_ID_Stored_As_String(t *testing.T) {
	t.Parallel()

	checkNumericID(t, openFS(t, localDB("main", t.TempDir())), "main")
}

func Test_FilesystemBackend_UpdateOne_Fails_When_No_Match_Without_Upsert(t *testing.T) {
	t.Parallel()

	b := openFS(t, localDB("main", t.TempDir()))

	err := b.UpdateOne(t.Context(), "main", "people", store.ByID("ghost"), store.Document{"x": 1}, false)
	if !errors.Is(err, store.ErrDocumentNotFound) {
		t.Errorf("err=%v, want ErrDocumentNotFound", err)
	}
}

func Test_FilesystemBackend_UpdateOne_Replaces_Top_Level_Fields_Only(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "people.yaml"), "alice:\n  address: {city: A, zip: 1}\n  name: Alice\n")

	b := openFS(t, localDB("main", dir))

	err := b.UpdateOne(ctx, "main", "people", store.Filter{"name": "Alice"}, store.Document{"address": map[string]any{"city": "B"}}, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, _, _ := b.FindOne(ctx, "main", "people", store.ByID("alice"))

	want := store.Document{"_id": "alice", "name": "Alice", "address": map[string]any{"city": "B"}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
}

func Test_FilesystemBackend_Rejects_Invalid_Documents(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b := openFS(t, localDB("main", t.TempDir()))

	tests := []struct {
		doc  store.Document
		want error
	}{
		{store.Document{"name": "x"}, store.ErrMissingID},
		{store.Document{"_id": "a.b"}, store.ErrDottedID},
	}

	for _, tt := range tests {
		if err := b.InsertOne(ctx, "main", "people", tt.doc); !errors.Is(err, tt.want) {
			t.Errorf("InsertOne(%v) err=%v, want=%v", tt.doc, err, tt.want)
		}
	}

	err := b.UpdateOne(ctx, "main", "people", store.ByID("a"), store.Document{"_id": "b"}, true)
	if err != nil {
		t.Fatalf("upsert a: %v", err)
	}

	got, _, _ := b.FindOne(ctx, "main", "people", store.ByID("b"))
	if got == nil {
		t.Fatal("upsert with _id in update: document b not created")
	}

	err = b.UpdateOne(ctx, "main", "people", store.ByID("b"), store.Document{"_id": "c"}, false)
	if !errors.Is(err, store.ErrIDChange) {
		t.Errorf("id change err=%v, want ErrIDChange", err)
	}
}

func Test_FilesystemBackend_DeleteOne_Fails_When_Missing(t *testing.T) {
	t.Parallel()

	b := openFS(t, localDB("main", t.TempDir()))

	err := b.DeleteOne(t.Context(), "main", "people", store.Document{"_id": "ghost"})
	if !errors.Is(err, store.ErrDocumentNotFound) {
		t.Errorf("err=%v, want ErrDocumentNotFound", err)
	}
}

func Test_FilesystemBackend_Open_Fails_When_File_Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "people.yaml"), "- not\n- docs\n")

	b := store.NewFilesystemBackend(nil, dir, t.TempDir(), nil)

	err := b.OpenDatabase(t.Context(), localDB("main", dir))
	if !errors.Is(err, store.ErrMalformedCollection) {
		t.Errorf("err=%v, want ErrMalformedCollection", err)
	}
}

func Test_FilesystemBackend_Open_Fails_When_Collection_Has_Two_Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db", "people.yaml"), "a: {}\n")
	writeFile(t, filepath.Join(dir, "db", "people.json"), "{}")

	b := store.NewFilesystemBackend(nil, dir, t.TempDir(), nil)

	err := b.OpenDatabase(t.Context(), localDB("main", dir))
	if !errors.Is(err, store.ErrDuplicateCollection) {
		t.Errorf("err=%v, want ErrDuplicateCollection", err)
	}
}

func Test_FilesystemBackend_Filters_Collections_By_Whitelist_And_Blacklist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"people", "grants", "projects"} {
		writeFile(t, filepath.Join(dir, "db", name+".yaml"), "x: {}\n")
	}

	white := localDB("white", dir)
	white.Whitelist = []string{"people", "grants"}
	white.Blacklist = []string{"grants"}

	b := openFS(t, white)

	got, err := b.ListCollections(t.Context(), "white")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if diff := cmp.Diff([]string{"people"}, got); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}

	err = b.InsertOne(t.Context(), "white", "projects", store.Document{"_id": "p"})
	if !errors.Is(err, store.ErrCollectionNotAllowed) {
		t.Errorf("insert into excluded: err=%v, want ErrCollectionNotAllowed", err)
	}
}

func Test_FilesystemBackend_Clones_Remote_Database_When_Checkout_Missing(t *testing.T) {
	t.Parallel()

	buildDir := t.TempDir()

	var cloned []string

	clone := func(_ context.Context, url, dir string) error {
		cloned = append(cloned, url+" -> "+dir)
		writeFile(t, filepath.Join(dir, "db", "people.yaml"), "alice: {}\n")

		return nil
	}

	b := store.NewFilesystemBackend(nil, t.TempDir(), buildDir, clone)

	db := rc.Database{Name: "remote", URL: "https://example.org/db.git", Path: "db", Backend: rc.BackendFilesystem}
	if err := b.OpenDatabase(t.Context(), db); err != nil {
		t.Fatalf("open: %v", err)
	}

	want := []string{"https://example.org/db.git -> " + filepath.Join(buildDir, "_dbs", "remote")}
	if diff := cmp.Diff(want, cloned); diff != "" {
		t.Errorf("clone calls mismatch (-want +got):\n%s", diff)
	}

	if _, ok, _ := b.FindOne(t.Context(), "remote", "people", store.ByID("alice")); !ok {
		t.Error("alice not loaded from clone")
	}
}

func Test_FilesystemBackend_Starts_Empty_When_Directory_Missing(t *testing.T) {
	t.Parallel()

	b := openFS(t, localDB("main", filepath.Join(t.TempDir(), "nope")))

	got, err := b.ListCollections(t.Context(), "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("collections=%v, want none", got)
	}
}
