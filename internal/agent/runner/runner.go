// Package runner drives conversation turns against a model provider: the
// bounded tool-calling loop, the uncertainty escalation, and the personas
// that seed each conversation.
package runner

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/agent/ai"
	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/logging"
)

// escalationSearchTool is the tool consulted when a reply hedges
const escalationSearchTool = "web_search"

// Toolset is what the runner needs from a tool registry
type Toolset interface {
	tools.Invoker
	Definitions() []ai.ToolDefinition
}

// Config holds runner settings
type Config struct {
	MaxIterations int
	Turn          TurnOptions
}

// Runner runs turns with one-round escalation on uncertain replies
type Runner struct {
	provider ai.Provider
	tools    Toolset
	config   Config
}

// RunResult is the outcome of Run
type RunResult struct {
	Conversation   *session.Conversation
	Reply          string
	CutOff         bool
	Escalated      bool
	StillUncertain bool
	Iterations     int
}

// New creates a runner. A zero MaxIterations means DefaultMaxIterations.
func New(provider ai.Provider, toolset Toolset, cfg Config) *Runner {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Runner{provider: provider, tools: toolset, config: cfg}
}

// Run performs one turn on conv. When the reply is uncertain it searches the
// web for query, appends the evidence and runs exactly one more turn. conv
// is not modified; the extended conversation is in the result.
func (r *Runner) Run(ctx context.Context, conv *session.Conversation, query string) (*RunResult, error) {
	defs := r.tools.Definitions()

	first, err := RunTurn(ctx, r.provider, conv, defs, r.tools, r.config.MaxIterations, r.config.Turn)
	if first == nil {
		return nil, err
	}
	result := &RunResult{
		Conversation: first.Conversation,
		Reply:        first.Reply,
		CutOff:       first.CutOff,
		Iterations:   first.Iterations,
	}
	if err != nil {
		return result, err
	}
	if !IsUncertain(first.Reply) {
		return result, nil
	}

	if query == "" {
		query = lastUserContent(conv)
	}
	logging.L().Info("reply is uncertain, escalating with web search", zap.String("query", query))

	args, _ := json.Marshal(map[string]any{"query": query, "top_k": 5})
	search := r.tools.Invoke(ctx, escalationSearchTool, string(args))
	evidence := search.Summary
	if evidence == "" {
		evidence = search.Output
	}

	escalated := BuildEscalationTurn(first.Conversation, query, evidence)
	second, err := RunTurn(ctx, r.provider, escalated, defs, r.tools, r.config.MaxIterations, r.config.Turn)
	result.Escalated = true
	if second == nil {
		return result, err
	}
	result.Conversation = second.Conversation
	result.Reply = second.Reply
	result.CutOff = second.CutOff
	result.Iterations += second.Iterations
	if err != nil {
		return result, err
	}

	if IsUncertain(second.Reply) {
		result.StillUncertain = true
		logging.L().Warn("reply still uncertain after escalation",
			zap.String("query", query),
			zap.Int("rounds", MaxEscalationRounds))
	}
	return result, nil
}

// Send runs a foreground turn on sess. A second Send while one is in flight
// fails with session.ErrSessionBusy.
func (r *Runner) Send(ctx context.Context, sess *session.Session, text string) (*RunResult, error) {
	conv, err := sess.Begin()
	if err != nil {
		return nil, err
	}
	conv.Append(session.UserMessage(text))

	result, err := r.Run(ctx, conv, text)
	if result != nil {
		sess.End(result.Conversation)
	} else {
		sess.End(nil)
	}
	return result, err
}

// Ask sends a single tool-less request and returns the reply text
func (r *Runner) Ask(ctx context.Context, system, user string) (string, error) {
	resp, err := r.provider.Complete(ctx, &ai.ChatRequest{
		Messages: []session.Message{
			session.SystemMessage(system),
			session.UserMessage(user),
		},
		Model:       r.config.Turn.Model,
		Temperature: r.config.Turn.Temperature,
		MaxTokens:   r.config.Turn.MaxTokens,
	})
	if err != nil {
		return "", asProviderError(err)
	}
	msg, ok := resp.First()
	if !ok {
		return "", nil
	}
	return msg.Content, nil
}

func lastUserContent(conv *session.Conversation) string {
	msgs := conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
