package playbooks

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultBranch        = "feat/agent-fix"
	defaultCommitMessage = "agent: apply patch & tests"
	defaultLayoutDir     = "app/src/main/res/layout"
)

// AgentE2E is the coding-agent loop without the model: create a branch,
// apply the given patch, run the tests and commit. Params.Patch is
// required. With Params.Worktree the branch is checked out in a linked
// worktree and the remaining steps run there.
func AgentE2E() Playbook {
	return Playbook{
		ID:          "agent_e2e",
		Title:       "Agent E2E: branch, patch, test, commit",
		Description: "Create a branch, apply a unified diff, run the tests and commit the result.",
		Run:         runAgentE2E,
	}
}

func runAgentE2E(ctx context.Context, env *Env) (*Report, error) {
	rep := &Report{}
	p := env.Params
	if strings.TrimSpace(p.Patch) == "" {
		return rep, fmt.Errorf("a patch is required")
	}
	inv := env.Tools

	branch := orDefault(p.Branch, defaultBranch)
	res := rep.call(ctx, inv, "git_branch", map[string]any{"name": branch, "worktree": p.Worktree})
	if !res.OK {
		return rep, fmt.Errorf("git_branch: %s", res.Summary)
	}
	if dir, _ := payload(res)["worktree"].(string); dir != "" && env.Reroot != nil {
		rerooted, err := env.Reroot(dir)
		if err != nil {
			return rep, fmt.Errorf("open worktree %s: %w", dir, err)
		}
		inv = rerooted
	}

	res = rep.call(ctx, inv, "apply_patch", map[string]any{"patch": p.Patch, "three_way": true})
	if !res.OK {
		return rep, fmt.Errorf("apply_patch: %s", res.Summary)
	}

	tests := rep.call(ctx, inv, "run_tests", map[string]any{"task": orDefault(p.TestTask, "test")})
	passed, _ := payload(tests)["ok"].(bool)

	res = rep.call(ctx, inv, "git_commit", map[string]any{"message": orDefault(p.Message, defaultCommitMessage)})
	if !res.OK {
		return rep, fmt.Errorf("git_commit: %s", res.Summary)
	}

	rep.OK = tests.OK && passed
	rep.Output = fmt.Sprintf("Branch %s, patch, tests and commit done.\n%s", branch, tests.Summary)
	return rep, nil
}

// XMLToCompose surveys the XML layouts a Compose migration has to cover
// and prints the module dependencies through Gradle.
func XMLToCompose() Playbook {
	return Playbook{
		ID:          "xml_to_compose",
		Title:       "Migrate XML layouts to Compose",
		Description: "List the layout XML files and the app dependencies as a migration plan.",
		Run:         runXMLToCompose,
	}
}

func runXMLToCompose(ctx context.Context, env *Env) (*Report, error) {
	rep := &Report{}
	deps := rep.call(ctx, env.Tools, "run_command", map[string]any{"cmd": "./gradlew app:dependencies"})

	res := rep.call(ctx, env.Tools, "list_files", map[string]any{"glob": defaultLayoutDir + "/**/*.xml"})
	if !res.OK {
		return rep, fmt.Errorf("list_files: %s", res.Summary)
	}
	files, _ := payload(res)["files"].([]any)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d layout files to migrate under %s.\n", len(files), defaultLayoutDir)
	for _, f := range files {
		fmt.Fprintf(&sb, "  %v\n", f)
	}
	if !deps.OK {
		sb.WriteString("Dependency listing failed; add the Compose BOM and ui-tooling to app/build.gradle by hand.\n")
	}
	sb.WriteString("Review the plan, then ask the agent to convert one layout at a time.")
	rep.OK = true
	rep.Output = sb.String()
	return rep, nil
}
