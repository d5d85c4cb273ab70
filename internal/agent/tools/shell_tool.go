package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunCommandTool runs an allowlisted command in the project root
type RunCommandTool struct {
	ws     *Workspace
	policy *Policy
}

// NewRunCommandTool creates the run_command tool
func NewRunCommandTool(ws *Workspace, policy *Policy) *RunCommandTool {
	if policy == nil {
		policy = NewPolicy(nil)
	}
	return &RunCommandTool{ws: ws, policy: policy}
}

// Name returns the tool name
func (t *RunCommandTool) Name() string { return "run_command" }

// Description returns the tool description
func (t *RunCommandTool) Description() string {
	return "Run one console command in the project root. The command must be allowlisted. " +
		"It runs without a shell: pipes, redirects, chaining and $ expansion are rejected."
}

// Schema returns the JSON schema
func (t *RunCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"cmd": {"type": "string", "minLength": 1, "description": "Command line to run"}
		},
		"required": ["cmd"]
	}`)
}

type runCommandInput struct {
	Cmd string `json:"cmd"`
}

// Execute checks the policy and runs the command
func (t *RunCommandTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[runCommandInput](input)
	if err != nil {
		return nil, err
	}
	argv, err := t.policy.Parse(in.Cmd)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	name := argv[0]
	if strings.HasPrefix(name, "./") {
		name = filepath.Join(t.ws.Root, name)
	}

	res, err := t.ws.Run(ctx, name, argv[1:]...)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	ok := res.ExitCode == 0
	output := truncate(res.Combined(), maxOutputChars)
	return JSONResult(ok, output, map[string]any{
		"ok":        ok,
		"exit_code": res.ExitCode,
		"output":    output,
	}), nil
}

// RunTestsTool runs the project's test suite
type RunTestsTool struct {
	ws      *Workspace
	command string // configured override, run through sh -c
}

// NewRunTestsTool creates the run_tests tool. When command is empty the
// build system is detected from the workspace.
func NewRunTestsTool(ws *Workspace, command string) *RunTestsTool {
	return &RunTestsTool{ws: ws, command: command}
}

// Name returns the tool name
func (t *RunTestsTool) Name() string { return "run_tests" }

// Description returns the tool description
func (t *RunTestsTool) Description() string {
	return "Run the project's tests (Gradle, Maven, Go or npm, detected automatically). Argument task selects the Gradle task, default 'test'."
}

// Schema returns the JSON schema
func (t *RunTestsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "default": "test", "description": "Gradle task, e.g. 'test' or ':app:test'"}
		}
	}`)
}

type runTestsInput struct {
	Task string `json:"task"`
}

// Execute runs the detected or configured test command
func (t *RunTestsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	in, err := decodeArgs[runTestsInput](input)
	if err != nil {
		return nil, err
	}
	if in.Task == "" {
		in.Task = "test"
	}

	name, args, err := t.testCommand(in.Task)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	res, err := t.ws.Run(ctx, name, args...)
	if err != nil {
		return ErrorResult("%v", err), nil
	}

	ok := res.ExitCode == 0
	output := truncate(res.Combined(), maxOutputChars)
	summary := fmt.Sprintf("tests passed (exit %d)", res.ExitCode)
	if !ok {
		summary = fmt.Sprintf("tests failed (exit %d)", res.ExitCode)
	}
	return JSONResult(true, summary, map[string]any{
		"ok":        ok,
		"exit_code": res.ExitCode,
		"output":    output,
	}), nil
}

func (t *RunTestsTool) testCommand(task string) (string, []string, error) {
	if t.command != "" {
		return "sh", []string{"-c", t.command}, nil
	}
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(t.ws.Root, name))
		return err == nil
	}
	switch {
	case exists("gradlew"):
		return filepath.Join(t.ws.Root, "gradlew"), []string{task}, nil
	case exists("pom.xml"):
		return "mvn", []string{"-q", "-e", "-DskipTests=false", "test"}, nil
	case exists("go.mod"):
		return "go", []string{"test", "./..."}, nil
	case exists("package.json"):
		return "npm", []string{"test", "--silent"}, nil
	}
	return "", nil, fmt.Errorf("no test runner detected in %s (configure test_command)", t.ws.Root)
}
