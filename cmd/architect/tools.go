package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/agent/runner"
)

// ToolsCmd lists the tools offered to the model
func ToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			defs := registry.Definitions()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			for _, d := range defs {
				desc, _, _ := strings.Cut(d.Description, "\n")
				fmt.Fprintf(out, "  %-14s %s\n", d.Name, desc)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full definitions with parameter schemas")
	return cmd
}

// PersonasCmd lists the built-in personas
func PersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the built-in personas",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, p := range runner.Personas() {
				marker := " "
				if p.ID == runner.DefaultPersonaID {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-20s %s\n", marker, p.ID, p.Title)
				if p.Summary != "" {
					fmt.Fprintf(out, "    %s\n", p.Summary)
				}
			}
		},
	}
}
