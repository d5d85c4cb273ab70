package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agentcfg "github.com/neboloop/architect/internal/agent/config"
	"github.com/neboloop/architect/internal/agent/playbooks"
	"github.com/neboloop/architect/internal/agent/tools"
)

// PlaybookCmd lists and runs the built-in playbooks
func PlaybookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playbook",
		Short: "List or run canned multi-step procedures",
	}
	cmd.AddCommand(playbookListCmd(), playbookRunCmd())
	return cmd
}

func playbookListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available playbooks",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printPlaybooks(cmd.OutOrStdout(), playbooks.Default())
		},
	}
}

func playbookRunCmd() *cobra.Command {
	var (
		params    playbooks.Params
		patchFile string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a playbook against the workspace",
		Long: `Run a playbook by ID. agent_e2e needs a unified diff from --patch-file
('-' reads stdin); it creates the branch, applies the diff, runs the tests
and commits.

Example:
  git diff > fix.patch && git stash
  architect playbook run agent_e2e --patch-file fix.patch --branch fix/npe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			if patchFile != "" {
				data, err := readPatch(cmd.InOrStdin(), patchFile)
				if err != nil {
					return err
				}
				params.Patch = string(data)
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			env := &playbooks.Env{
				Tools:  registry,
				Reroot: rerootRegistry(cfg),
				Params: params,
			}
			return runPlaybook(ctx, cmd.OutOrStdout(), playbooks.Default(), args[0], env, asJSON)
		},
	}

	cmd.Flags().StringVar(&patchFile, "patch-file", "", "unified diff to apply ('-' for stdin)")
	cmd.Flags().StringVar(&params.Branch, "branch", "", "branch to create (default feat/agent-fix)")
	cmd.Flags().StringVar(&params.Message, "message", "", "commit message")
	cmd.Flags().StringVar(&params.TestTask, "task", "", "test task passed to run_tests (default test)")
	cmd.Flags().BoolVar(&params.Worktree, "worktree", false, "check the branch out in a linked worktree next to the project")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printPlaybooks(out io.Writer, reg *playbooks.Registry) {
	for _, p := range reg.List() {
		fmt.Fprintf(out, "  %-16s %s\n", p.ID, p.Title)
		if p.Description != "" {
			fmt.Fprintf(out, "  %-16s %s\n", "", p.Description)
		}
	}
}

func runPlaybook(ctx context.Context, out io.Writer, reg *playbooks.Registry, id string, env *playbooks.Env, asJSON bool) error {
	report, runErr := reg.Run(ctx, id, env)
	if report != nil {
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			for _, s := range report.Steps {
				mark := "ok"
				if !s.OK {
					mark = "FAILED"
				}
				fmt.Fprintf(out, "  %-12s %-6s %s\n", s.Tool, mark, s.Summary)
			}
			if report.Output != "" {
				fmt.Fprintln(out, report.Output)
			}
		}
	}
	return runErr
}

// rerootRegistry builds the same tool set rooted at another directory
func rerootRegistry(cfg *agentcfg.Config) func(dir string) (tools.Invoker, error) {
	return func(dir string) (tools.Invoker, error) {
		next := *cfg
		next.Workspace = dir
		registry, err := buildRegistry(&next)
		if err != nil {
			return nil, err
		}
		return registry, nil
	}
}

func readPatch(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return data, nil
}
