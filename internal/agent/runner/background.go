package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/logging"
)

// BackgroundConfig configures how queued tasks are executed
type BackgroundConfig struct {
	Persona Persona
	// Mode is applied to the final reply; ModeChat skips orchestration
	Mode orchestrator.Mode
}

// BackgroundHandler returns the scheduler handler for queued tasks. Each
// task gets a fresh conversation seeded with the background preamble, one
// Run (turn plus at most one escalation) and, outside chat mode, the
// orchestrator pass over the reply.
func BackgroundHandler(r *Runner, orch *orchestrator.Orchestrator, cfg BackgroundConfig) agenthub.TaskHandler {
	if cfg.Persona.ID == "" {
		cfg.Persona, _ = LookupPersona(DefaultPersonaID)
	}
	if cfg.Mode == "" {
		cfg.Mode = orchestrator.ModeChat
	}
	system := BackgroundSystemPrompt(cfg.Persona)

	return func(ctx context.Context, task *agenthub.Task) (string, error) {
		log := logging.L().With(zap.String("task", task.ID), zap.String("title", task.Title))

		conv := session.NewConversation(system)
		conv.Append(session.UserMessage("Complete the task: " + task.Instruction))

		result, err := r.Run(ctx, conv, task.Instruction)
		if err != nil {
			return "", fmt.Errorf("task %s: %w", task.ID, err)
		}
		if result.CutOff {
			log.Warn("task turn hit the iteration cap")
		}

		var sb strings.Builder
		sb.WriteString(result.Reply)
		if result.StillUncertain {
			sb.WriteString("\n\n[still uncertain after web search]")
		}
		if cfg.Mode != orchestrator.ModeChat && orch != nil {
			report := orch.Process(ctx, cfg.Mode, result.Reply)
			sb.WriteString("\n\n")
			sb.WriteString(report.Summary())
		}
		return strings.TrimSpace(sb.String()), nil
	}
}
