package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	mu       sync.Mutex
	calls    []string
	bodies   map[string]map[string]any
	conflict bool
	query    string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	f.calls = append(f.calls, key)
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[key] = body

	switch key {
	case "GET /repos/acme/widgets":
		fmt.Fprint(w, `{"default_branch":"develop"}`)
	case "POST /repos/acme/widgets/pulls":
		if f.conflict {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message":"A pull request already exists"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number":7,"html_url":"https://github.com/acme/widgets/pull/7"}`)
	case "GET /repos/acme/widgets/pulls":
		if r.URL.Query().Get("head") != "acme:feature" || r.URL.Query().Get("state") != "open" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"number":3,"html_url":"https://github.com/acme/widgets/pull/3"}]`)
	case "PATCH /repos/acme/widgets/pulls/3":
		fmt.Fprint(w, `{"number":3,"html_url":"https://github.com/acme/widgets/pull/3"}`)
	case "GET /search/issues":
		f.query = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"total_count":1,"items":[{"title":"Crash on start","html_url":"https://github.com/acme/widgets/issues/1","state":"open"}]}`)
	default:
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	}
}

func newPRWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, repo := newGitWorkspace(t)
	writeFile(t, ws, "a.txt", "a\n")
	r := NewRegistry()
	r.MustRegister(NewGitCommitTool(ws, GitAuthor{}), NewGitBranchTool(ws))
	require.True(t, r.Invoke(context.Background(), "git_commit", `{"message":"base"}`).OK)
	require.True(t, r.Invoke(context.Background(), "git_branch", `{"name":"feature"}`).OK)
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:acme/widgets.git"},
	})
	require.NoError(t, err)
	return ws
}

func TestCreatePR_Created(t *testing.T) {
	fake := &fakeGitHub{bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ws := newPRWorkspace(t)
	r := NewRegistry()
	r.MustRegister(NewCreatePRTool(ws, NewGitHubClient(srv.URL, nil)))

	res := r.Invoke(context.Background(), "create_pr",
		`{"title":"Agent: implement changes","body":"auto","labels":["agent"],"reviewers":["octocat"]}`)
	require.True(t, res.OK, res.Output)

	out := decodeOutput(t, res)
	assert.EqualValues(t, 7, out["number"])
	assert.Equal(t, "develop", out["base"])
	assert.Equal(t, "feature", out["head"])

	create := fake.bodies["POST /repos/acme/widgets/pulls"]
	assert.Equal(t, "feature", create["head"])
	assert.Equal(t, "develop", create["base"])
	assert.Equal(t, false, create["draft"])
	assert.Contains(t, fake.calls, "POST /repos/acme/widgets/issues/7/labels")
	assert.Contains(t, fake.calls, "POST /repos/acme/widgets/pulls/7/requested_reviewers")
	assert.NotContains(t, fake.calls, "POST /repos/acme/widgets/issues/7/assignees")
}

func TestCreatePR_UpdatesExistingOnConflict(t *testing.T) {
	fake := &fakeGitHub{bodies: map[string]map[string]any{}, conflict: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ws := newPRWorkspace(t)
	r := NewRegistry()
	r.MustRegister(NewCreatePRTool(ws, NewGitHubClient(srv.URL, nil)))

	res := r.Invoke(context.Background(), "create_pr", `{"title":"New title","body":"New body","base":"main"}`)
	require.True(t, res.OK, res.Output)
	out := decodeOutput(t, res)
	assert.Equal(t, true, out["updated"])
	assert.EqualValues(t, 3, out["number"])
	assert.Equal(t, "New title", fake.bodies["PATCH /repos/acme/widgets/pulls/3"]["title"])
	assert.NotContains(t, fake.calls, "GET /repos/acme/widgets", "explicit base skips the default branch lookup")

	res = r.Invoke(context.Background(), "create_pr", `{"title":"t","allow_update":false}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "GitHub REST error 422")
}

func TestCreatePR_NoOrigin(t *testing.T) {
	ws, _ := newGitWorkspace(t)
	r := NewRegistry()
	r.MustRegister(NewCreatePRTool(ws, NewGitHubClient("http://127.0.0.1:9", nil)))

	res := r.Invoke(context.Background(), "create_pr", `{"title":"t"}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "remote origin")
}

func TestGitHubSearch(t *testing.T) {
	fake := &fakeGitHub{bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var gotAuth string
	token := func() string { return "ghp_test" }
	gh := NewGitHubClient(srv.URL, token)
	gh.HTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotAuth = req.Header.Get("Authorization")
		return http.DefaultTransport.RoundTrip(req)
	})}

	r := NewRegistry()
	r.MustRegister(NewGitHubSearchTool(gh))
	res := r.Invoke(context.Background(), "github_search", `{"query":"is:open compose"}`)
	require.True(t, res.OK, res.Output)
	assert.Equal(t, "Bearer ghp_test", gotAuth)
	assert.Equal(t, "is:open compose", fake.query)
	assert.Contains(t, res.Summary, "GitHub issues search: 1 total")
	assert.Contains(t, res.Summary, "• Crash on start")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
