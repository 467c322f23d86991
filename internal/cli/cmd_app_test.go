package cli_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/regro/regolith/internal/cli"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

func openAppStore(t *testing.T) *store.Client {
	t.Helper()

	public, private := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(public, "db", "people.yaml"), "alice:\n  name: Alice\n  aka: [Al]\n")
	writeFile(t, filepath.Join(private, "db", "people.yaml"), "alice:\n  email: alice@uni.edu\n  aka: [Ali]\n")
	writeFile(t, filepath.Join(private, "db", "grants.yaml"), "nsf:\n  title: NSF\n")

	cfg := rc.Config{
		Cwd:         t.TempDir(),
		BuildDirAbs: t.TempDir(),
		Databases: []rc.Database{
			{Name: "public", URL: public, Local: true, Path: "db", Backend: rc.BackendFilesystem},
			{Name: "private", URL: private, Local: true, Path: "db", Backend: rc.BackendFilesystem},
		},
	}

	c, err := store.Open(t.Context(), cfg, store.Options{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func getJSON(t *testing.T, srv *httptest.Server, path string, wantStatus int) any {
	t.Helper()

	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode, "GET %s", path)

	if wantStatus != http.StatusOK {
		return nil
	}

	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func Test_AppHandler_Serves_Chained_View_When_Requested(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(cli.AppHandler(openAppStore(t)))
	t.Cleanup(srv.Close)

	if diff := cmp.Diff([]any{"public", "private"}, getJSON(t, srv, "/api/databases", http.StatusOK)); diff != "" {
		t.Errorf("databases mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]any{"grants", "people"}, getJSON(t, srv, "/api/collections", http.StatusOK)); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}

	wantAlice := map[string]any{
		"_id":   "alice",
		"name":  "Alice",
		"email": "alice@uni.edu",
		"aka":   []any{"Al", "Ali"},
	}

	if diff := cmp.Diff(wantAlice, getJSON(t, srv, "/api/collections/people/alice", http.StatusOK)); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]any{wantAlice}, getJSON(t, srv, "/api/collections/people", http.StatusOK)); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func Test_AppHandler_Returns_404_When_Document_Missing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(cli.AppHandler(openAppStore(t)))
	t.Cleanup(srv.Close)

	getJSON(t, srv, "/api/collections/people/zed", http.StatusNotFound)
	getJSON(t, srv, "/nope", http.StatusNotFound)
}

func Test_AppHandler_Rejects_Writes_When_Requested(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(cli.AppHandler(openAppStore(t)))
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Post(srv.URL+"/api/collections/people", "application/json", nil)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
