package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/architect/internal/middleware"
	"github.com/neboloop/architect/internal/types"
)

// SubmitCmd queues a task on a running worker
func SubmitCmd() *cobra.Command {
	var priority int
	var title string
	var serverArg string

	cmd := &cobra.Command{
		Use:   "submit <instruction>",
		Short: "Queue a background task on a running worker",
		Long: `Queue a task on the worker started with 'architect serve'. Higher priority
tasks run first; equal priorities run in submission order.

Example:
  architect submit --priority 5 "Audit the manifest for exported components"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			base := serverArg
			if base == "" {
				base = cfg.Server.Listen
			}
			id, err := submitTask(base, cfg.Server.Secret, types.SubmitTaskRequest{
				Priority:    priority,
				Title:       title,
				Instruction: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().IntVar(&priority, "priority", 0, "task priority (higher runs first)")
	cmd.Flags().StringVar(&title, "title", "", "short title (default: first line of the instruction)")
	cmd.Flags().StringVar(&serverArg, "server", "", "worker address (default from config server.listen)")
	return cmd
}

func submitTask(base, secret string, req types.SubmitTaskRequest) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequest(http.MethodPost, strings.TrimRight(base, "/")+"/api/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if secret != "" {
		token, err := middleware.SignToken(secret, "cli", time.Minute)
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("worker not reachable at %s (is 'architect serve' running?): %w", base, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var out types.SubmitTaskResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Id, nil
}
