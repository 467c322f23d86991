package cli_test

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/regro/regolith/internal/cli"
)

func Test_FSToMongo_Fails_When_No_Mongo_Database(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("fs-to-mongo")

	cli.AssertContains(t, stderr, "--dst")
	cli.AssertContains(t, stderr, "no mongodb database")
}

func Test_MongoToFS_Fails_When_Src_Has_Wrong_Backend(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("mongo-to-fs", "--src", "main")

	cli.AssertContains(t, stderr, "wrong backend")
}

func Test_FSToMongo_Fails_When_Filesystem_Database_Ambiguous(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteRC(twoDatabasesRC)

	stderr := c.MustFail("fs-to-mongo")
	cli.AssertContains(t, stderr, "ambiguous database")
}

func Test_FSToMongo_And_Back_Round_Trips_When_Mongo_Available(t *testing.T) {
	t.Parallel()

	url := os.Getenv("REGOLITH_TEST_MONGO_URL")
	if url == "" {
		t.Skip("REGOLITH_TEST_MONGO_URL not set")
	}

	name := "rt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	c := cli.NewCLI(t)
	c.WriteRC(`{"databases": [
  {"name": "src", "url": "src", "local": true},
  {"name": "dst", "url": "dst", "local": true},
  {"name": "` + name + `", "url": "` + url + `", "backend": "mongo"},
]}`)
	c.WriteCollection("src", "people.yaml", "alice:\n  name: Alice\n  aka: [Al]\n")

	stdout := c.MustRun("fs-to-mongo", "--src", "src")
	cli.AssertContains(t, stdout, "src/people -> "+name+"/people (1 documents)")

	c.MustRun("mongo-to-fs", "--dst", "dst")

	want := map[string]any{"alice": map[string]any{"name": "Alice", "aka": []any{"Al"}}}
	if diff := cmp.Diff(want, parseYAML(t, c.ReadCollection("dst", "people.yaml"))); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
