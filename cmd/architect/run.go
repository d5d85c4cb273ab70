package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/runner"
	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/logging"
)

// RunCmd runs one task the way the background worker would, in the foreground
func RunCmd() *cobra.Command {
	var modeArg string
	var personaArg string

	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Run a single task to completion",
		Long: `Run one task without a conversation: the agent works on the instruction,
searches the web once if it is unsure, and the reply is post-processed in
the chosen mode. The default mode is auto: apply the diff, run the tests,
repair once, commit and open a pull request.

Example:
  architect run "Migrate the settings screen to Jetpack Compose"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				logging.Disable()
			}
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			mode, err := orchestrator.ParseMode(modeArg)
			if err != nil {
				return err
			}
			stack, err := buildAgent(cfg, personaArg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			instruction := strings.Join(args, " ")
			handler := runner.BackgroundHandler(stack.runner, stack.orch, runner.BackgroundConfig{
				Persona: stack.persona,
				Mode:    mode,
			})
			report, err := handler(ctx, &agenthub.Task{
				ID:          uuid.NewString(),
				Title:       instruction,
				Instruction: instruction,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeArg, "mode", "m", string(orchestrator.ModeAuto), "post-processing mode: chat, apply, run or auto")
	cmd.Flags().StringVarP(&personaArg, "persona", "p", "", "persona ID (see 'architect personas')")
	return cmd
}
