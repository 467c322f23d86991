package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
	flag "github.com/spf13/pflag"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/regro/regolith/internal/rc"
)

const githubAPI = "https://api.github.com"

var (
	errBadRepo   = errors.New("want <owner>/<repo>")
	errGitHubAPI = errors.New("github api")
)

// GHExtractorCmd returns the gh-extractor command.
func GHExtractorCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("gh-extractor", flag.ContinueOnError)
	flags.String("api", githubAPI, "GitHub API base URL")

	return &Command{
		Flags: flags,
		Usage: "gh-extractor <owner/repo>",
		Short: "Print repository contributors as people stubs",
		Long: `Fetch the contributors of a GitHub repository and print them as a YAML
people collection, ready for "regolith ingest". The rc github_token is used
when set.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: gh-extractor <owner/repo>", errArgsRequired)
			}

			owner, repo, ok := strings.Cut(args[0], "/")
			if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
				return fmt.Errorf("%w: %q", errBadRepo, args[0])
			}

			api, _ := flags.GetString("api")
			gh := newGitHub(ctx, api, cfg.GithubToken)

			people, err := gh.contributorPeople(ctx, owner, repo)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(people)
			if err != nil {
				return err
			}

			_, err = io.Writer().Write(data)

			return err
		},
	}
}

type gitHub struct {
	base   string
	client *http.Client
}

func newGitHub(ctx context.Context, base, token string) *gitHub {
	client := http.DefaultClient
	if token != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	return &gitHub{base: strings.TrimRight(base, "/"), client: client}
}

type ghContributor struct {
	Login         string `json:"login"`
	Type          string `json:"type"`
	Contributions int    `json:"contributions"`
}

type ghUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Blog  string `json:"blog"`
}

// contributorPeople returns login -> people stub for every human contributor.
func (g *gitHub) contributorPeople(ctx context.Context, owner, repo string) (map[string]map[string]any, error) {
	var contributors []ghContributor

	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/contributors?per_page=100"
	if err := g.get(ctx, path, &contributors); err != nil {
		return nil, err
	}

	people := make(map[string]map[string]any, len(contributors))

	for _, c := range contributors {
		if c.Type == "Bot" {
			continue
		}

		var u ghUser
		if err := g.get(ctx, "/users/"+url.PathEscape(c.Login), &u); err != nil {
			return nil, err
		}

		p := map[string]any{"github_id": u.Login}

		if u.Name != "" {
			p["name"] = u.Name
		} else {
			p["name"] = u.Login
		}

		if u.Email != "" {
			p["email"] = u.Email
		}

		if u.Blog != "" {
			p["website"] = u.Blog
		}

		people[strings.ReplaceAll(c.Login, ".", "_")] = p
	}

	return people, nil
}

func (g *gitHub) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+path, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	glog.V(1).Infof("GET %s", req.URL)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: %s", errGitHubAPI, path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: GET %s: %w", errGitHubAPI, path, err)
	}

	return nil
}
