package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/logging"
)

// Defaults for DeepSeek, which speaks the OpenAI chat completions protocol
const (
	DefaultBaseURL     = "https://api.deepseek.com/v1"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.2
	DefaultTimeout     = 120 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible endpoint
type OpenAIConfig struct {
	Name        string // provider ID reported in logs, default "deepseek"
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per request
	HTTPClient  *http.Client  // optional, for tests
}

// OpenAIProvider implements Provider on the official OpenAI SDK pointed at
// any compatible base URL.
type OpenAIProvider struct {
	client openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIProvider creates a provider. A missing key or model is a
// configuration error returned before any request is made.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrMissingModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "deepseek"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0), // provider errors end the turn, never retried
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return p.cfg.Name
}

// Complete sends the conversation and returns the parsed choices
func (p *OpenAIProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	logging.Debugf("[%s] Sending request: model=%s messages=%d tools=%d",
		p.cfg.Name, params.Model, len(params.Messages), len(params.Tools))

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	resp := &ChatResponse{
		Model: completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}
	for _, choice := range completion.Choices {
		msg := session.AssistantMessage(choice.Message.Content)
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		resp.Choices = append(resp.Choices, Choice{Message: msg, FinishReason: choice.FinishReason})
	}
	return resp, nil
}

func (p *OpenAIProvider) buildParams(req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	temperature := p.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    buildMessages(req.Messages),
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]any
			if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
				return params, fmt.Errorf("tool %s has an invalid schema: %w", tool.Name, err)
			}
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  shared.FunctionParameters(schema),
				},
			})
		}
		params.Tools = tools
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}
	return params, nil
}

// buildMessages converts session messages to OpenAI format
func buildMessages(msgs []session.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))

		case session.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))

		case session.RoleAssistant:
			assistantMsg := openai.ChatCompletionAssistantMessageParam{
				Role: "assistant",
			}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, tc := range msg.ToolCalls {
				assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistantMsg,
			})

		case session.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return result
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &ProviderError{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Type:       apiErr.Type,
			Message:    msg,
		}
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}
