package tools

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Check(t *testing.T) {
	p := NewPolicy(nil)
	tests := []struct {
		cmd     string
		allowed bool
	}{
		{"./gradlew test", true},
		{"git status", true},
		{"git status --short", true},
		{"ls -la", true},
		{"ls", true},
		{"go test ./...", true},
		{`grep -rn "a b" src`, true},
		{"curl https://example.com", false},
		{"sudo ls", false},
		{"git push --force origin main", false},
		{"git push origin main", false},
		{"go run main.go", false},
		{"rm -rf /", false},
		{"   ", false},
		{"ls; touch pwned", false},
		{"lsblk", false},
		{"makepasswd", false},
		{"pwd && echo hi > out.txt", false},
		{"cat x | sh", false},
		{"echo $(id)", false},
		{"cat `id`", false},
		{"ls\ntouch pwned", false},
		{`ls \ -la`, false},
		{"cat 'unterminated", false},
		{"./evil.sh", false},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			err := p.Check(tt.cmd)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPolicy_Parse(t *testing.T) {
	p := NewPolicy([]string{"grep", "  git   status "})
	assert.Equal(t, []string{"grep", "git status"}, p.Allowlist)

	argv, err := p.Parse(`grep -n "two words" 'a;b' src`)
	require.NoError(t, err)
	assert.Equal(t, []string{"grep", "-n", "two words", "a;b", "src"}, argv)

	argv, err = p.Parse("git status --short")
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "status", "--short"}, argv)

	_, err = p.Parse("git diff")
	assert.ErrorContains(t, err, "not allowed by policy")

	_, err = p.Parse("grep x file > out")
	assert.ErrorContains(t, err, "shell operator")

	_, err = p.Parse(`grep "x`)
	assert.ErrorContains(t, err, "unterminated")
}

func TestPolicy_CustomAllowlist(t *testing.T) {
	p := NewPolicy([]string{"echo "})
	assert.NoError(t, p.Check("echo hi"))
	assert.Error(t, p.Check("ls"))
	assert.Error(t, p.Check("echoes hi"))
}

func TestRunCommand(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	r := NewRegistry()
	r.MustRegister(NewRunCommandTool(ws, NewPolicy([]string{"echo", "sh"})))
	ctx := context.Background()

	res := r.Invoke(ctx, "run_command", `{"cmd":"echo hello"}`)
	require.True(t, res.OK, res.Output)
	out := decodeOutput(t, res)
	assert.Equal(t, "hello", out["output"])
	assert.EqualValues(t, 0, out["exit_code"])

	res = r.Invoke(ctx, "run_command", `{"cmd":"sh -c 'exit 4'"}`)
	assert.False(t, res.OK)
	assert.EqualValues(t, 4, decodeOutput(t, res)["exit_code"])

	res = r.Invoke(ctx, "run_command", `{"cmd":"cat /etc/hostname"}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "not allowed by policy")
}

func TestRunCommand_RejectsChaining(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	r := NewRegistry()
	r.MustRegister(NewRunCommandTool(ws, NewPolicy([]string{"echo", "ls"})))
	ctx := context.Background()

	for _, cmd := range []string{
		"ls; touch pwned",
		"echo hi && touch pwned",
		"echo hi > pwned",
		"echo $(touch pwned)",
		"echo hi | tee pwned",
	} {
		res := r.Invoke(ctx, "run_command", `{"cmd":`+strconv.Quote(cmd)+`}`)
		assert.False(t, res.OK, cmd)
		assert.Contains(t, decodeOutput(t, res)["error"], "shell operator", cmd)
	}
	assert.NoFileExists(t, filepath.Join(root, "pwned"))

	// quoted operators reach the program as plain text
	res := r.Invoke(ctx, "run_command", `{"cmd":"echo 'a; b' \"$HOME\""}`)
	require.True(t, res.OK, res.Output)
	assert.Equal(t, "a; b $HOME", decodeOutput(t, res)["output"])
}

func TestRunCommand_LocalScript(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "gradlew"), []byte("#!/bin/sh\necho gradle $1\n"), 0o755))
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	r := NewRegistry()
	r.MustRegister(NewRunCommandTool(ws, NewPolicy([]string{"./gradlew"})))

	res := r.Invoke(context.Background(), "run_command", `{"cmd":"./gradlew assemble"}`)
	require.True(t, res.OK, res.Output)
	assert.Equal(t, "gradle assemble", decodeOutput(t, res)["output"])
}

func TestRunTests_ConfiguredCommand(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	pass := NewRegistry()
	pass.MustRegister(NewRunTestsTool(ws, "echo all green"))
	res := pass.Invoke(ctx, "run_tests", `{"task":"test"}`)
	require.True(t, res.OK, res.Output)
	assert.Equal(t, true, decodeOutput(t, res)["ok"])
	assert.Equal(t, "tests passed (exit 0)", res.Summary)

	fail := NewRegistry()
	fail.MustRegister(NewRunTestsTool(ws, "echo FAILED >&2; exit 1"))
	res = fail.Invoke(ctx, "run_tests", "")
	assert.True(t, res.OK, "the runner ran, so the invocation itself succeeds")
	out := decodeOutput(t, res)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["output"], "FAILED")
}

func TestRunTests_NoRunnerDetected(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	r := NewRegistry()
	r.MustRegister(NewRunTestsTool(ws, ""))

	res := r.Invoke(context.Background(), "run_tests", "{}")
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "no test runner detected")
}

func TestWorkspaceRun_Timeout(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	ws.CommandTimeout = 50 * time.Millisecond

	_, err = ws.Run(context.Background(), "sleep", "5")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab\n... (truncated)", truncate("abcdef", 2))
	assert.Equal(t, "a\n... (truncated)", truncate("aжж", 2))
}
