package tools

import (
	"net/http"
)

// BuiltinOptions configures the built-in tool catalogue
type BuiltinOptions struct {
	Allowlist         []string
	TestCommand       string
	GitAuthor         GitAuthor
	GitHubAPI         string
	GitHubToken       func() string
	SearchEngine      string
	HTTPClient        *http.Client
	AllowPrivateFetch bool
}

// RegisterBuiltins registers every built-in tool rooted at ws
func RegisterBuiltins(r *Registry, ws *Workspace, opts BuiltinOptions) {
	gh := NewGitHubClient(opts.GitHubAPI, opts.GitHubToken)
	if opts.HTTPClient != nil {
		gh.HTTP = opts.HTTPClient
	}

	r.MustRegister(
		NewReadFileTool(ws),
		NewWriteFileTool(ws),
		NewListFilesTool(ws),
		NewFindReplaceTool(ws),
		NewRunCommandTool(ws, NewPolicy(opts.Allowlist)),
		NewRunTestsTool(ws, opts.TestCommand),
		NewGitBranchTool(ws),
		NewGitCommitTool(ws, opts.GitAuthor),
		NewApplyPatchTool(ws),
		NewMobileAuditTool(ws),
		NewWebSearchTool(WebSearchConfig{Engine: opts.SearchEngine, Client: opts.HTTPClient}),
		NewWebFetchTool(opts.HTTPClient, opts.AllowPrivateFetch),
		NewGitHubSearchTool(gh),
		NewCreatePRTool(ws, gh),
	)
}
