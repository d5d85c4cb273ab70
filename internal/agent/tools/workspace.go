package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultCommandTimeout bounds every external process a tool starts
const DefaultCommandTimeout = 120 * time.Second

// maxOutputChars caps command output returned to the model
const maxOutputChars = 8000

// Workspace is the project root every file and process tool is confined to
type Workspace struct {
	Root           string
	CommandTimeout time.Duration
}

// NewWorkspace resolves root to an absolute, symlink-free path
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}
	return &Workspace{Root: abs, CommandTimeout: DefaultCommandTimeout}, nil
}

// Resolve maps a workspace-relative path to an absolute one and rejects
// anything that escapes the root.
func (w *Workspace) Resolve(rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	var target string
	if filepath.IsAbs(rel) {
		target = filepath.Clean(rel)
	} else {
		target = filepath.Join(w.Root, rel)
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}
	relToRoot, err := filepath.Rel(w.Root, target)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return target, nil
}

// Rel returns the slash-separated path of abs relative to the root
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.Root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// CommandResult is the captured outcome of an external process
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout and stderr joined and trimmed
func (r CommandResult) Combined() string {
	return strings.TrimSpace(r.Stdout + "\n" + r.Stderr)
}

// Run executes a process in the workspace. A non-zero exit is reported in
// the result, not as an error; errors mean the process could not run.
func (w *Workspace) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	timeout := w.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = w.Root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s timed out or was cancelled: %w", name, ctx.Err())
		}
		return res, err
	}
	return res, nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
