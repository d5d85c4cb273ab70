package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/agent/ai"
	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/logging"
)

var (
	// ErrInvalidConversation is returned before any provider call when the
	// conversation is empty, does not start with a system message, or has a
	// tool message without a matching tool call.
	ErrInvalidConversation = session.ErrInvalidConversation

	// ErrInvalidIterations is returned when the iteration cap is below one
	ErrInvalidIterations = errors.New("max iterations must be at least 1")
)

// DefaultMaxIterations is the model round-trip cap per turn
const DefaultMaxIterations = 5

// TurnOptions are per-request model settings forwarded to the provider
type TurnOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// TurnResult is the outcome of one RunTurn
type TurnResult struct {
	// Conversation is the input conversation plus everything appended
	Conversation *session.Conversation
	// Appended holds only the messages added during this turn
	Appended []session.Message
	// Reply is the final assistant text, possibly empty
	Reply string
	// CutOff is set when the iteration cap ended the turn while the model
	// was still requesting tools
	CutOff bool
	// Iterations is the number of provider requests made
	Iterations int
}

// RunTurn drives one bounded tool-calling exchange. Each iteration sends the
// whole conversation; tool calls are answered in order, one tool message
// per call, before the next request. conv itself is not modified.
//
// A provider error ends the turn and is returned alongside the partial
// result. Tool failures are ordinary tool messages.
func RunTurn(
	ctx context.Context,
	provider ai.Provider,
	conv *session.Conversation,
	defs []ai.ToolDefinition,
	invoker tools.Invoker,
	maxIterations int,
	opts TurnOptions,
) (*TurnResult, error) {
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	if maxIterations < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIterations, maxIterations)
	}

	work := conv.Clone()
	start := work.Len()
	result := &TurnResult{Conversation: work}
	finish := func() *TurnResult {
		result.Appended = work.Since(start)
		return result
	}

	log := logging.L().With(zap.String("provider", provider.ID()))

	for result.Iterations < maxIterations {
		result.Iterations++
		log.Debug("turn iteration",
			zap.Int("iteration", result.Iterations),
			zap.Int("messages", work.Len()))

		resp, err := provider.Complete(ctx, &ai.ChatRequest{
			Messages:    work.Messages(),
			Tools:       defs,
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			err = asProviderError(err)
			log.Warn("provider request failed", zap.Int("iteration", result.Iterations), zap.Error(err))
			return finish(), err
		}

		msg, ok := resp.First()
		if !ok {
			log.Warn("provider returned no choices", zap.Int("iteration", result.Iterations))
			return finish(), nil
		}

		assistant := session.AssistantMessage(msg.Content, ensureCallIDs(msg.ToolCalls, work.Len())...)
		work.Append(assistant)
		result.Reply = msg.Content

		if !assistant.HasToolCalls() {
			return finish(), nil
		}

		for _, call := range assistant.ToolCalls {
			res := invoker.Invoke(ctx, call.Name, call.Arguments)
			if !res.OK {
				log.Info("tool call failed",
					zap.String("tool", call.Name),
					zap.String("summary", res.Summary))
			} else {
				log.Debug("tool call", zap.String("tool", call.Name))
			}
			work.Append(session.ToolMessage(call, res.Output))
		}
	}

	result.CutOff = true
	log.Warn("iteration cap reached with pending tool calls", zap.Int("max_iterations", maxIterations))
	return finish(), nil
}

// ensureCallIDs returns calls with every ID present and unique within the
// message. Some compatible servers omit IDs; pos is the assistant message's
// index, which keeps generated IDs unique across the conversation.
func ensureCallIDs(calls []session.ToolCall, pos int) []session.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]session.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, call := range calls {
		if call.ID == "" || seen[call.ID] {
			call.ID = fmt.Sprintf("call_%d_%d", pos, i)
		}
		seen[call.ID] = true
		out[i] = call
	}
	return out
}

// asProviderError makes sure err matches ai.ErrProvider
func asProviderError(err error) error {
	if errors.Is(err, ai.ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %w", ai.ErrProvider, err)
}
