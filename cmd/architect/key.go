package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/keyring"
)

// KeyCmd manages API credentials in the OS keychain
func KeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage API credentials",
		Long: `Store credentials in the OS keychain. Known names: deepseek, github.
Environment variables (DEEPSEEK_API_KEY, GITHUB_TOKEN) are used when the
keychain has no value.`,
	}

	setCmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a credential (reads stdin when value is omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := keyring.Lookup(args[0])
			if err != nil {
				return err
			}
			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", c.Name)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read value: %w", err)
				}
				value = line
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("empty value")
			}
			if err := keyring.Set(c, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the keychain.\n", c.Name)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a credential from the keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := keyring.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := keyring.Delete(c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", c.Name)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if keyring.Available() {
				fmt.Fprintln(out, "Keychain: available")
			} else {
				fmt.Fprintln(out, "Keychain: unavailable (environment variables only)")
			}
			for _, c := range keyring.Credentials {
				state := "missing"
				if _, err := keyring.Get(c); err == nil {
					state = "configured"
				}
				fmt.Fprintf(out, "  %-10s %s\n", c.Name, state)
			}
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd, statusCmd)
	return cmd
}
