package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/agent/tools"
)

// AuditCmd runs the quick mobile security audit on the workspace
func AuditCmd() *cobra.Command {
	var asJSON bool
	var failOnHigh bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Quick Android security audit of the project",
		Long: `Scan the project for risky manifest flags (debuggable, allowBackup,
cleartext traffic), exported components without a permission and unsafe
WebView settings. Build output and IDE folders are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			root, err := cfg.WorkspaceDir()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
			ws, err := tools.NewWorkspace(root)
			if err != nil {
				return err
			}
			findings, err := tools.Audit(cmd.Context(), ws)
			if err != nil {
				return err
			}
			if err := printFindings(cmd.OutOrStdout(), findings, asJSON); err != nil {
				return err
			}
			if failOnHigh {
				return highFindingsError(findings)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	cmd.Flags().BoolVar(&failOnHigh, "fail-on-high", false, "exit non-zero when a HIGH finding is reported")
	return cmd
}

func printFindings(out io.Writer, findings []tools.Finding, asJSON bool) error {
	if asJSON {
		if findings == nil {
			findings = []tools.Finding{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}
	for _, f := range findings {
		fmt.Fprintf(out, "• %s\n", f)
	}
	fmt.Fprintln(out, tools.AuditSummary(findings))
	return nil
}

func highFindingsError(findings []tools.Finding) error {
	n := 0
	for _, f := range findings {
		if f.Severity == tools.SeverityHigh {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d high severity findings", n)
	}
	return nil
}
