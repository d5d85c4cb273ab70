package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/logging"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile      string
	workspaceArg string
	verbose      bool
)

// Version is set by main from build flags
var Version = "dev"

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "architect",
		Short: "Architect - coding agent for your project",
		Long: `Architect is a coding agent that reads, edits, tests and publishes changes
in one project through a fixed set of tools, backed by an OpenAI-compatible model.

Use 'architect chat' for a conversation, 'architect run' for a one-shot task and
'architect serve' to process queued background tasks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(verbose)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceArg, "workspace", "w", "", "project directory (default: config workspace or cwd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(SubmitCmd())
	rootCmd.AddCommand(KeyCmd())
	rootCmd.AddCommand(ToolsCmd())
	rootCmd.AddCommand(PersonasCmd())
	rootCmd.AddCommand(PlaybookCmd())
	rootCmd.AddCommand(AuditCmd())

	return rootCmd
}
