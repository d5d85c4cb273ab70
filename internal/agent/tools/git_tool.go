package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GitAuthor is the identity used for agent commits
type GitAuthor struct {
	Name  string
	Email string
}

// DefaultGitAuthor is used when the config leaves the author empty
var DefaultGitAuthor = GitAuthor{Name: "architect", Email: "architect@localhost"}

func openRepo(ws *Workspace) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(ws.Root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return repo, nil
}

// currentBranch returns the short name of HEAD
func currentBranch(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// originURL returns the first URL of the origin remote
func originURL(repo *git.Repository) (string, error) {
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("remote origin: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote origin has no URL")
	}
	return urls[0], nil
}

// pushBranch pushes branch to origin. Only https remotes with a token are
// supported; anything else is left to the user.
func pushBranch(ctx context.Context, repo *git.Repository, branch, token string) error {
	url, err := originURL(repo)
	if err != nil {
		return err
	}
	if token == "" || !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("push skipped: need an https origin and a GitHub token")
	}
	spec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{spec},
		Auth:       &githttp.BasicAuth{Username: "x-access-token", Password: token},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// GitBranchTool creates or switches to a feature branch
type GitBranchTool struct {
	ws *Workspace
}

// NewGitBranchTool creates the git_branch tool
func NewGitBranchTool(ws *Workspace) *GitBranchTool {
	return &GitBranchTool{ws: ws}
}

// Name returns the tool name
func (t *GitBranchTool) Name() string { return "git_branch" }

// Description returns the tool description
func (t *GitBranchTool) Description() string {
	return "Create or switch to a git branch (name). Uncommitted changes are kept. " +
		"With worktree=true the branch is checked out in a new linked worktree next to the project instead."
}

// Schema returns the JSON schema
func (t *GitBranchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1, "description": "Branch name"},
			"worktree": {"type": "boolean", "default": false, "description": "Check the branch out in a separate worktree"}
		},
		"required": ["name"]
	}`)
}

type gitBranchInput struct {
	Name     string `json:"name"`
	Worktree bool   `json:"worktree"`
}

// Execute checks out the branch, creating it from HEAD when missing
func (t *GitBranchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[gitBranchInput](input)
	if err != nil {
		return nil, err
	}
	ref := plumbing.NewBranchReferenceName(in.Name)
	if err := ref.Validate(); err != nil {
		return ErrorResult("invalid branch name %q: %v", in.Name, err), nil
	}

	repo, err := openRepo(t.ws)
	if err != nil {
		return ErrorResult("%v", err), nil
	}

	_, err = repo.Reference(ref, true)
	create := errors.Is(err, plumbing.ErrReferenceNotFound)
	if err != nil && !create {
		return ErrorResult("lookup branch: %v", err), nil
	}

	if in.Worktree {
		return t.addWorktree(ctx, in.Name, create)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ErrorResult("worktree: %v", err), nil
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: create, Keep: true}); err != nil {
		return ErrorResult("checkout %s: %v", in.Name, err), nil
	}

	summary := "Switched to branch " + in.Name
	if create {
		summary = "Created branch " + in.Name
	}
	return JSONResult(true, summary, map[string]any{
		"ok":      true,
		"branch":  in.Name,
		"created": create,
	}), nil
}

// addWorktree shells out because go-git cannot create linked worktrees.
// The worktree lands next to the project as <project>-<branch>.
func (t *GitBranchTool) addWorktree(ctx context.Context, branch string, create bool) (*Result, error) {
	path := WorktreePath(t.ws.Root, branch)
	if _, err := os.Stat(path); err == nil {
		return ErrorResult("worktree path %s already exists", path), nil
	}

	args := []string{"worktree", "add", path, branch}
	if create {
		args = []string{"worktree", "add", "-b", branch, path}
	}
	res, err := t.ws.Run(ctx, "git", args...)
	if err != nil {
		return ErrorResult("git worktree: %v", err), nil
	}
	if res.ExitCode != 0 {
		return ErrorResult("git worktree add failed: %s", truncate(res.Combined(), maxOutputChars)), nil
	}

	return JSONResult(true, fmt.Sprintf("Branch %s checked out in worktree %s", branch, path), map[string]any{
		"ok":       true,
		"branch":   branch,
		"created":  create,
		"worktree": path,
	}), nil
}

// WorktreePath is where git_branch puts the linked worktree for branch
func WorktreePath(root, branch string) string {
	name := strings.NewReplacer("/", "-", "\\", "-", " ", "-").Replace(branch)
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+"-"+name)
}

// GitCommitTool stages everything and commits
type GitCommitTool struct {
	ws     *Workspace
	author GitAuthor
}

// NewGitCommitTool creates the git_commit tool
func NewGitCommitTool(ws *Workspace, author GitAuthor) *GitCommitTool {
	if author.Name == "" {
		author.Name = DefaultGitAuthor.Name
	}
	if author.Email == "" {
		author.Email = DefaultGitAuthor.Email
	}
	return &GitCommitTool{ws: ws, author: author}
}

// Name returns the tool name
func (t *GitCommitTool) Name() string { return "git_commit" }

// Description returns the tool description
func (t *GitCommitTool) Description() string {
	return "Stage all changes (git add -A) and commit them with the given message."
}

// Schema returns the JSON schema
func (t *GitCommitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "Commit message"}
		},
		"required": ["message"]
	}`)
}

type gitCommitInput struct {
	Message string `json:"message"`
}

// Execute commits the working tree. A clean tree is a successful no-op.
func (t *GitCommitTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[gitCommitInput](input)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Message) == "" {
		in.Message = "update"
	}

	repo, err := openRepo(t.ws)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ErrorResult("worktree: %v", err), nil
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return ErrorResult("git add: %v", err), nil
	}

	status, err := wt.Status()
	if err != nil {
		return ErrorResult("git status: %v", err), nil
	}
	if status.IsClean() {
		return JSONResult(true, "Nothing to commit", map[string]any{
			"ok":        true,
			"committed": false,
		}), nil
	}

	hash, err := wt.Commit(in.Message, &git.CommitOptions{
		Author: &object.Signature{Name: t.author.Name, Email: t.author.Email, When: time.Now()},
	})
	if err != nil {
		return ErrorResult("git commit: %v", err), nil
	}
	return JSONResult(true, fmt.Sprintf("Committed %s: %s", hash.String()[:8], in.Message), map[string]any{
		"ok":        true,
		"committed": true,
		"hash":      hash.String(),
		"files":     len(status),
	}), nil
}

// ApplyPatchTool applies a unified diff with git apply, falling back to patch
type ApplyPatchTool struct {
	ws *Workspace
}

// NewApplyPatchTool creates the apply_patch tool
func NewApplyPatchTool(ws *Workspace) *ApplyPatchTool {
	return &ApplyPatchTool{ws: ws}
}

// Name returns the tool name
func (t *ApplyPatchTool) Name() string { return "apply_patch" }

// Description returns the tool description
func (t *ApplyPatchTool) Description() string {
	return "Apply a unified diff through git apply (with --3way support), falling back to patch -p1."
}

// Schema returns the JSON schema
func (t *ApplyPatchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"patch": {"type": "string", "minLength": 1, "description": "Unified diff"},
			"three_way": {"type": "boolean", "default": true}
		},
		"required": ["patch"]
	}`)
}

type applyPatchInput struct {
	Patch    string `json:"patch"`
	ThreeWay *bool  `json:"three_way"`
}

// Execute writes the patch to a temp file and applies it
func (t *ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[applyPatchInput](input)
	if err != nil {
		return nil, err
	}
	patch := in.Patch
	if !strings.HasSuffix(patch, "\n") {
		patch += "\n"
	}

	tmp, err := os.CreateTemp("", "architect-*.patch")
	if err != nil {
		return nil, fmt.Errorf("create temp patch: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(patch); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp patch: %w", err)
	}
	tmp.Close()

	args := []string{"apply", "--whitespace=nowarn"}
	if in.ThreeWay == nil || *in.ThreeWay {
		args = append(args, "--3way")
	}
	args = append(args, tmp.Name())

	res, err := t.ws.Run(ctx, "git", args...)
	if err == nil && res.ExitCode == 0 {
		return JSONResult(true, "Patch applied", map[string]any{"ok": true}), nil
	}
	gitErr := res.Stderr
	if err != nil {
		gitErr = err.Error()
	}

	fallback, ferr := t.ws.Run(ctx, "patch", "-p1", "-i", tmp.Name())
	if ferr == nil && fallback.ExitCode == 0 {
		return JSONResult(true, "Patch applied with patch -p1", map[string]any{"ok": true, "fallback": "patch"}), nil
	}
	fallbackErr := fallback.Combined()
	if ferr != nil {
		fallbackErr = ferr.Error()
	}

	msg := strings.TrimSpace(gitErr + "\n" + fallbackErr)
	if msg == "" {
		msg = "git apply failed"
	}
	return ErrorResult("%s", msg), nil
}
