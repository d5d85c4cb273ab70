package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/neboloop/architect/internal/logging"
)

// DefaultGitHubAPI is the public GitHub REST endpoint
const DefaultGitHubAPI = "https://api.github.com"

// GitHubClient is a minimal GitHub REST client. Token is read lazily so a
// key stored after startup is picked up.
type GitHubClient struct {
	BaseURL string
	Token   func() string
	HTTP    *http.Client
}

// NewGitHubClient creates a client. An empty baseURL means api.github.com.
func NewGitHubClient(baseURL string, token func() string) *GitHubClient {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &GitHubClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type githubResponse struct {
	Status int
	Body   []byte
}

func (c *GitHubClient) do(ctx context.Context, method, path string, payload any) (githubResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return githubResponse{}, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return githubResponse{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return githubResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return githubResponse{}, err
	}
	return githubResponse{Status: resp.StatusCode, Body: data}, nil
}

// parseOwnerRepo extracts owner/repo from an https or ssh GitHub remote URL
func parseOwnerRepo(remote string) (owner, repo string, ok bool) {
	cleaned := strings.TrimSuffix(strings.TrimSpace(remote), ".git")
	var path string
	switch {
	case strings.HasPrefix(cleaned, "http://"), strings.HasPrefix(cleaned, "https://"):
		u, err := url.Parse(cleaned)
		if err != nil {
			return "", "", false
		}
		path = strings.Trim(u.Path, "/")
	case strings.HasPrefix(cleaned, "git@"):
		_, after, found := strings.Cut(cleaned, ":")
		if !found {
			return "", "", false
		}
		path = after
	default:
		return "", "", false
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// GitHubSearchTool queries the GitHub search API
type GitHubSearchTool struct {
	gh *GitHubClient
}

// NewGitHubSearchTool creates the github_search tool
func NewGitHubSearchTool(gh *GitHubClient) *GitHubSearchTool {
	return &GitHubSearchTool{gh: gh}
}

// Name returns the tool name
func (t *GitHubSearchTool) Name() string { return "github_search" }

// Description returns the tool description
func (t *GitHubSearchTool) Description() string {
	return "GitHub Search API for issues/PRs, code or repositories. A GitHub token raises the rate limit."
}

// Schema returns the JSON schema
func (t *GitHubSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["issues", "code", "repos"], "default": "issues"},
			"query": {"type": "string", "minLength": 1},
			"per_page": {"type": "integer", "minimum": 1, "maximum": 100, "default": 10}
		},
		"required": ["query"]
	}`)
}

type githubSearchInput struct {
	Mode    string `json:"mode"`
	Query   string `json:"query"`
	PerPage int    `json:"per_page"`
}

// Execute runs the search
func (t *GitHubSearchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[githubSearchInput](input)
	if err != nil {
		return nil, err
	}
	if in.PerPage <= 0 {
		in.PerPage = 10
	}
	endpoint := "/search/issues"
	switch in.Mode {
	case "code":
		endpoint = "/search/code"
	case "repos":
		endpoint = "/search/repositories"
	default:
		in.Mode = "issues"
	}

	path := fmt.Sprintf("%s?q=%s&per_page=%d", endpoint, url.QueryEscape(in.Query), in.PerPage)
	resp, err := t.gh.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ErrorResult("GitHub search failed: %v", err), nil
	}
	if resp.Status != http.StatusOK {
		return ErrorResult("GitHub search error %d: %s", resp.Status, truncate(string(resp.Body), 2000)), nil
	}

	var data struct {
		TotalCount int `json:"total_count"`
		Items      []struct {
			Name     string `json:"name"`
			FullName string `json:"full_name"`
			Title    string `json:"title"`
			Path     string `json:"path"`
			HTMLURL  string `json:"html_url"`
			State    string `json:"state"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return ErrorResult("decode GitHub response: %v", err), nil
	}

	type item struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		State string `json:"state,omitempty"`
	}
	items := make([]item, 0, len(data.Items))
	var sb strings.Builder
	fmt.Fprintf(&sb, "GitHub %s search: %d total", in.Mode, data.TotalCount)
	for _, it := range data.Items {
		title := it.Title
		if title == "" {
			title = it.FullName
		}
		if title == "" {
			title = it.Path
		}
		items = append(items, item{Title: title, URL: it.HTMLURL, State: it.State})
		fmt.Fprintf(&sb, "\n• %s\n  %s", title, it.HTMLURL)
	}
	return JSONResult(true, sb.String(), map[string]any{
		"ok":          true,
		"mode":        in.Mode,
		"total_count": data.TotalCount,
		"items":       items,
	}), nil
}

// CreatePRTool creates or updates a pull request for the current branch
type CreatePRTool struct {
	ws *Workspace
	gh *GitHubClient
}

// NewCreatePRTool creates the create_pr tool
func NewCreatePRTool(ws *Workspace, gh *GitHubClient) *CreatePRTool {
	return &CreatePRTool{ws: ws, gh: gh}
}

// Name returns the tool name
func (t *CreatePRTool) Name() string { return "create_pr" }

// Description returns the tool description
func (t *CreatePRTool) Description() string {
	return "Create a GitHub pull request from the current branch, or update the open one for that branch when allow_update is set."
}

// Schema returns the JSON schema
func (t *CreatePRTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"body": {"type": "string"},
			"base": {"type": "string", "description": "Target branch, default is the repository default branch"},
			"head": {"type": "string", "description": "Source branch, default is the current branch"},
			"draft": {"type": "boolean", "default": false},
			"labels": {"type": "array", "items": {"type": "string"}},
			"assignees": {"type": "array", "items": {"type": "string"}},
			"reviewers": {"type": "array", "items": {"type": "string"}},
			"allow_update": {"type": "boolean", "default": true}
		},
		"required": ["title"]
	}`)
}

type createPRInput struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Base        string   `json:"base"`
	Head        string   `json:"head"`
	Draft       bool     `json:"draft"`
	Labels      []string `json:"labels"`
	Assignees   []string `json:"assignees"`
	Reviewers   []string `json:"reviewers"`
	AllowUpdate *bool    `json:"allow_update"`
}

type pullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// Execute pushes the branch when possible and opens or updates the PR
func (t *CreatePRTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[createPRInput](input)
	if err != nil {
		return nil, err
	}

	repo, err := openRepo(t.ws)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	remote, err := originURL(repo)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	owner, name, ok := parseOwnerRepo(remote)
	if !ok {
		return ErrorResult("cannot parse owner/repo from origin %s", remote), nil
	}

	head := in.Head
	if head == "" {
		if head, err = currentBranch(repo); err != nil {
			return ErrorResult("cannot determine head branch: %v", err), nil
		}
	}
	if err := pushBranch(ctx, repo, head, t.gh.Token()); err != nil {
		logging.Warnf("[create_pr] %v", err)
	}

	repoPath := fmt.Sprintf("/repos/%s/%s", owner, name)
	base := in.Base
	if base == "" {
		base = t.defaultBranch(ctx, repoPath)
	}

	create, err := t.gh.do(ctx, http.MethodPost, repoPath+"/pulls", map[string]any{
		"title": in.Title,
		"head":  head,
		"base":  base,
		"body":  in.Body,
		"draft": in.Draft,
	})
	if err != nil {
		return ErrorResult("GitHub request failed: %v", err), nil
	}

	if create.Status == http.StatusCreated {
		var pr pullRequest
		_ = json.Unmarshal(create.Body, &pr)
		t.decorate(ctx, repoPath, pr.Number, in)
		return JSONResult(true, fmt.Sprintf("PR created: %s (#%d)\nbase=%s, head=%s", pr.HTMLURL, pr.Number, base, head), map[string]any{
			"ok":     true,
			"url":    pr.HTMLURL,
			"number": pr.Number,
			"base":   base,
			"head":   head,
		}), nil
	}

	allowUpdate := in.AllowUpdate == nil || *in.AllowUpdate
	if allowUpdate && create.Status == http.StatusUnprocessableEntity {
		if pr, ok := t.updateExisting(ctx, repoPath, owner, head, in); ok {
			return JSONResult(true, fmt.Sprintf("PR updated: %s (#%d)\nbase=%s, head=%s", pr.HTMLURL, pr.Number, base, head), map[string]any{
				"ok":      true,
				"updated": true,
				"url":     pr.HTMLURL,
				"number":  pr.Number,
			}), nil
		}
	}

	return ErrorResult("GitHub REST error %d: %s", create.Status, truncate(string(create.Body), 4000)), nil
}

func (t *CreatePRTool) defaultBranch(ctx context.Context, repoPath string) string {
	resp, err := t.gh.do(ctx, http.MethodGet, repoPath, nil)
	if err == nil && resp.Status == http.StatusOK {
		var info struct {
			DefaultBranch string `json:"default_branch"`
		}
		if json.Unmarshal(resp.Body, &info) == nil && info.DefaultBranch != "" {
			return info.DefaultBranch
		}
	}
	return "main"
}

func (t *CreatePRTool) updateExisting(ctx context.Context, repoPath, owner, head string, in createPRInput) (pullRequest, bool) {
	list, err := t.gh.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/pulls?state=open&head=%s", repoPath, url.QueryEscape(owner+":"+head)), nil)
	if err != nil || list.Status != http.StatusOK {
		return pullRequest{}, false
	}
	var open []pullRequest
	if err := json.Unmarshal(list.Body, &open); err != nil || len(open) == 0 {
		return pullRequest{}, false
	}

	patch := map[string]any{"title": in.Title}
	if in.Body != "" {
		patch["body"] = in.Body
	}
	upd, err := t.gh.do(ctx, http.MethodPatch, fmt.Sprintf("%s/pulls/%d", repoPath, open[0].Number), patch)
	if err != nil || upd.Status != http.StatusOK {
		return pullRequest{}, false
	}
	var pr pullRequest
	if err := json.Unmarshal(upd.Body, &pr); err != nil || pr.Number == 0 {
		pr = open[0]
	}
	return pr, true
}

// decorate applies labels, assignees and reviewers. Failures are logged
// only; the PR already exists at this point.
func (t *CreatePRTool) decorate(ctx context.Context, repoPath string, number int, in createPRInput) {
	if number <= 0 {
		return
	}
	calls := []struct {
		skip    bool
		path    string
		payload map[string]any
	}{
		{len(in.Labels) == 0, fmt.Sprintf("%s/issues/%d/labels", repoPath, number), map[string]any{"labels": in.Labels}},
		{len(in.Assignees) == 0, fmt.Sprintf("%s/issues/%d/assignees", repoPath, number), map[string]any{"assignees": in.Assignees}},
		{len(in.Reviewers) == 0, fmt.Sprintf("%s/pulls/%d/requested_reviewers", repoPath, number), map[string]any{"reviewers": in.Reviewers}},
	}
	for _, c := range calls {
		if c.skip {
			continue
		}
		if resp, err := t.gh.do(ctx, http.MethodPost, c.path, c.payload); err != nil || resp.Status >= 300 {
			logging.Warnf("[create_pr] %s failed: status=%d err=%v", c.path, resp.Status, err)
		}
	}
}
