package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/runner"
	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/db"
	"github.com/neboloop/architect/internal/logging"
	"github.com/neboloop/architect/internal/server"
	"github.com/neboloop/architect/internal/svc"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd starts the background worker, the cron schedules and the task API
func ServeCmd() *cobra.Command {
	var listenArg string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process queued background tasks",
		Long: `Start the background worker. Tasks submitted over the HTTP API or fired by
the configured cron schedules run one at a time, highest priority first.
Every task's lifecycle is recorded in the local task journal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig()
			if err != nil {
				return err
			}
			if listenArg != "" {
				cfg.Server.Listen = listenArg
			}
			mode, err := orchestrator.ParseMode(cfg.BackgroundMode)
			if err != nil {
				return err
			}
			stack, err := buildAgent(cfg, "")
			if err != nil {
				return err
			}

			store, err := db.NewSQLite(cfg.DBPath())
			if err != nil {
				return err
			}
			defer store.Close()
			journal := db.NewTaskJournal(store)

			handler := runner.BackgroundHandler(stack.runner, stack.orch, runner.BackgroundConfig{
				Persona: stack.persona,
				Mode:    mode,
			})
			scheduler := agenthub.NewScheduler(handler, agenthub.MultiObserver{journal, agenthub.LogObserver{}})

			recurring := agenthub.NewRecurring(scheduler)
			for _, sched := range cfg.Schedules {
				if err := recurring.Add(sched); err != nil {
					return err
				}
			}

			svcCtx := &svc.ServiceContext{
				Config:    cfg,
				Version:   Version,
				Scheduler: scheduler,
				Recurring: recurring,
				Journal:   journal,
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Architect worker: persona=%s mode=%s schedules=%d\n",
					stack.persona.ID, mode, len(cfg.Schedules))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, svcCtx, cfg.Server.Listen, server.ServerOptions{
					Quiet:       quiet,
					RequestLogs: verbose,
					Secret:      cfg.Server.Secret,
				})
			})
			g.Go(func() error {
				recurring.Start()
				<-gctx.Done()
				recurring.Stop()

				logging.Infof("[Serve] Stopping scheduler")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return scheduler.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Shut down cleanly.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenArg, "listen", "", "API listen address (default from config server.listen)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress startup messages")
	return cmd
}
