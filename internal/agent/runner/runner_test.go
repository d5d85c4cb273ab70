package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/architect/internal/agent/ai"
	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/session"
	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/agenthub"
)

// scriptedProvider replays canned responses and records every request
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*ai.ChatResponse
	errs      []error
	requests  []*ai.ChatRequest
	block     chan struct{}
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return reply("done"), nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func reply(content string, calls ...session.ToolCall) *ai.ChatResponse {
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: session.AssistantMessage(content, calls...)}}}
}

// fakeToolset answers every tool call and records the invocations
type fakeToolset struct {
	mu      sync.Mutex
	invoked []string
	args    []string
	results map[string]tools.Result
}

func (f *fakeToolset) Invoke(ctx context.Context, name, args string) tools.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, name)
	f.args = append(f.args, args)
	if res, ok := f.results[name]; ok {
		return res
	}
	return tools.Result{Output: `{"ok":true,"tool":"` + name + `"}`, Summary: name + " ok", OK: true}
}

func (f *fakeToolset) Definitions() []ai.ToolDefinition {
	return []ai.ToolDefinition{{Name: "read_file", Parameters: json.RawMessage(`{"type":"object"}`)}}
}

func newConv(user string) *session.Conversation {
	conv := session.NewConversation("system prompt")
	conv.Append(session.UserMessage(user))
	return conv
}

func TestRunTurnRejectsBadInput(t *testing.T) {
	provider := &scriptedProvider{}
	ts := &fakeToolset{}

	_, err := RunTurn(context.Background(), provider, session.FromMessages(nil), nil, ts, 5, TurnOptions{})
	assert.ErrorIs(t, err, ErrInvalidConversation)

	noSystem := session.FromMessages([]session.Message{session.UserMessage("hi")})
	_, err = RunTurn(context.Background(), provider, noSystem, nil, ts, 5, TurnOptions{})
	assert.ErrorIs(t, err, ErrInvalidConversation)

	orphan := newConv("hi")
	orphan.Append(session.ToolMessage(session.ToolCall{ID: "missing", Name: "read_file"}, "{}"))
	_, err = RunTurn(context.Background(), provider, orphan, nil, ts, 5, TurnOptions{})
	assert.ErrorIs(t, err, ErrInvalidConversation)

	_, err = RunTurn(context.Background(), provider, newConv("hi"), nil, ts, 0, TurnOptions{})
	assert.ErrorIs(t, err, ErrInvalidIterations)

	assert.Zero(t, provider.calls())
}

func TestRunTurnToolLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{
		reply("", session.ToolCall{ID: "c1", Name: "read_file", Arguments: `{"path":"a"}`},
			session.ToolCall{ID: "c2", Name: "list_files", Arguments: `{}`}),
		reply("All files look fine."),
	}}
	ts := &fakeToolset{}
	conv := newConv("check the files")

	temp := 0.2
	res, err := RunTurn(context.Background(), provider, conv, ts.Definitions(), ts, 5, TurnOptions{Model: "m", Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, "All files look fine.", res.Reply)
	assert.False(t, res.CutOff)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []string{"read_file", "list_files"}, ts.invoked)
	assert.Equal(t, 2, conv.Len(), "input conversation must not change")

	require.Len(t, res.Appended, 4)
	assert.Equal(t, session.RoleAssistant, res.Appended[0].Role)
	assert.Equal(t, session.RoleTool, res.Appended[1].Role)
	assert.Equal(t, "c1", res.Appended[1].ToolCallID)
	assert.Equal(t, "c2", res.Appended[2].ToolCallID)
	assert.Contains(t, res.Appended[2].Content, "list_files")
	assert.Equal(t, "All files look fine.", res.Appended[3].Content)
	assert.Equal(t, 6, res.Conversation.Len())
	require.NoError(t, res.Conversation.Validate())

	require.Len(t, provider.requests, 2)
	assert.Len(t, provider.requests[0].Messages, 2)
	assert.Len(t, provider.requests[1].Messages, 5)
	assert.Equal(t, "m", provider.requests[0].Model)
	assert.Equal(t, &temp, provider.requests[0].Temperature)
	assert.Len(t, provider.requests[0].Tools, 1)
}

func TestRunTurnToolFailureIsAMessage(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{
		reply("", session.ToolCall{ID: "c1", Name: "read_file", Arguments: `{}`}),
		reply("The file does not exist."),
	}}
	failure := tools.ErrorResult("file not found: a")
	ts := &fakeToolset{results: map[string]tools.Result{"read_file": *failure}}

	res, err := RunTurn(context.Background(), provider, newConv("read a"), nil, ts, 5, TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, failure.Output, res.Appended[1].Content)
	assert.Equal(t, "The file does not exist.", res.Reply)
}

func TestRunTurnFillsMissingToolCallIDs(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{
		reply("", session.ToolCall{Name: "read_file", Arguments: `{"path":"a"}`},
			session.ToolCall{Name: "read_file", Arguments: `{"path":"b"}`}),
		reply("Done, files read."),
		reply("", session.ToolCall{ID: "dup", Name: "read_file", Arguments: `{}`},
			session.ToolCall{ID: "dup", Name: "read_file", Arguments: `{}`}),
		reply("Done again."),
	}}
	r := New(provider, &fakeToolset{}, Config{})
	sess := session.New(DefaultPersonaID, "system prompt")

	first, err := r.Send(context.Background(), sess, "read a and b")
	require.NoError(t, err)
	assert.Equal(t, "Done, files read.", first.Reply)

	second, err := r.Send(context.Background(), sess, "again")
	require.NoError(t, err)
	assert.Equal(t, "Done again.", second.Reply)
	assert.Equal(t, 4, provider.calls())

	conv := sess.Conversation()
	require.NoError(t, conv.Validate())
	ids := map[string]bool{}
	for _, m := range conv.Messages() {
		for _, tc := range m.ToolCalls {
			require.NotEmpty(t, tc.ID)
			assert.False(t, ids[tc.ID], "tool call id %q reused", tc.ID)
			ids[tc.ID] = true
		}
		if m.Role == session.RoleTool {
			assert.True(t, ids[m.ToolCallID])
		}
	}
	assert.Len(t, ids, 4)
}

func TestRunTurnCutOff(t *testing.T) {
	loop := reply("still looking", session.ToolCall{ID: "c", Name: "read_file", Arguments: `{}`})
	provider := &scriptedProvider{responses: []*ai.ChatResponse{loop, loop, loop}}
	ts := &fakeToolset{}

	res, err := RunTurn(context.Background(), provider, newConv("loop"), nil, ts, 2, TurnOptions{})
	require.NoError(t, err)
	assert.True(t, res.CutOff)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, provider.calls())
	assert.Len(t, ts.invoked, 2)
	assert.Equal(t, "still looking", res.Reply)
	last, _ := res.Conversation.Last()
	assert.Equal(t, session.RoleTool, last.Role)
}

func TestRunTurnNoChoices(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{{}}}
	res, err := RunTurn(context.Background(), provider, newConv("hi"), nil, &fakeToolset{}, 5, TurnOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Reply)
	assert.Empty(t, res.Appended)
	assert.False(t, res.CutOff)
}

func TestRunTurnProviderError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*ai.ChatResponse{reply("", session.ToolCall{ID: "c", Name: "read_file", Arguments: `{}`})},
		errs:      []error{nil, errors.New("connection reset")},
	}
	res, err := RunTurn(context.Background(), provider, newConv("hi"), nil, &fakeToolset{}, 5, TurnOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrProvider)
	assert.Contains(t, err.Error(), "connection reset")
	require.NotNil(t, res)
	assert.Len(t, res.Appended, 2)

	pe := &ai.ProviderError{StatusCode: 429, Message: "slow down"}
	provider = &scriptedProvider{errs: []error{pe}}
	_, err = RunTurn(context.Background(), provider, newConv("hi"), nil, &fakeToolset{}, 5, TurnOptions{})
	var got *ai.ProviderError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 429, got.StatusCode)
	assert.Equal(t, "rate_limit", ai.ClassifyErrorReason(err))
}

func TestIsUncertain(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"", true},
		{"   \n", true},
		{"I'm not sure which Gradle version you use.", true},
		{"I DON'T KNOW", true},
		{"I cannot find that file.", true},
		{"Я не уверен, что это сработает", true},
		{"Не удалось найти модуль", true},
		{"Use Room 2.6 with KSP.", false},
		{"Here is the diff.", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsUncertain(tt.reply), "reply %q", tt.reply)
	}
}

func TestBuildEscalationTurn(t *testing.T) {
	conv := newConv("how do I fix the leak?")
	next := BuildEscalationTurn(conv, "leakcanary fragment", "• Fix leaks\n  https://example.com")

	assert.Equal(t, 2, conv.Len())
	msgs := next.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, session.RoleAssistant, msgs[2].Role)
	assert.True(t, strings.HasPrefix(msgs[2].Content, `Web search results for "leakcanary fragment":`))
	assert.Contains(t, msgs[2].Content, "https://example.com")
	assert.Equal(t, session.RoleUser, msgs[3].Role)
	assert.NoError(t, next.Validate())
}

func TestRunEscalatesOnce(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{
		reply("I'm not sure."),
		reply("Use LeakCanary. Source: https://square.github.io/leakcanary"),
	}}
	ts := &fakeToolset{results: map[string]tools.Result{
		"web_search": {Output: `{"ok":true}`, Summary: "• LeakCanary\n  https://square.github.io/leakcanary", OK: true},
	}}
	r := New(provider, ts, Config{})

	res, err := r.Run(context.Background(), newConv("how to find leaks"), "")
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.False(t, res.StillUncertain)
	assert.Contains(t, res.Reply, "LeakCanary")
	assert.Equal(t, 2, res.Iterations)

	require.Equal(t, []string{"web_search"}, ts.invoked)
	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(ts.args[0]), &args))
	assert.Equal(t, "how to find leaks", args["query"])
	assert.Equal(t, float64(5), args["top_k"])

	second := provider.requests[1].Messages
	assert.Contains(t, second[len(second)-2].Content, "https://square.github.io/leakcanary")
}

func TestRunStillUncertain(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{
		reply("I don't know."),
		reply("Still not sure, sorry."),
		reply("unreachable"),
	}}
	ts := &fakeToolset{}
	r := New(provider, ts, Config{})

	res, err := r.Run(context.Background(), newConv("q"), "explicit query")
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.True(t, res.StillUncertain)
	assert.Equal(t, 2, provider.calls())
	assert.Len(t, ts.invoked, 1)
	assert.Contains(t, ts.args[0], "explicit query")
}

func TestRunConfidentReplySkipsSearch(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("Bump compileSdk to 35.")}}
	ts := &fakeToolset{}
	res, err := New(provider, ts, Config{}).Run(context.Background(), newConv("q"), "")
	require.NoError(t, err)
	assert.False(t, res.Escalated)
	assert.Empty(t, ts.invoked)
}

func TestSendRejectsConcurrentTurns(t *testing.T) {
	provider := &scriptedProvider{block: make(chan struct{}), responses: []*ai.ChatResponse{reply("first answer")}}
	r := New(provider, &fakeToolset{}, Config{})
	sess := session.New(DefaultPersonaID, "system prompt")

	done := make(chan error, 1)
	go func() {
		_, err := r.Send(context.Background(), sess, "first")
		done <- err
	}()
	require.Eventually(t, sess.Busy, time.Second, time.Millisecond)

	_, err := r.Send(context.Background(), sess, "second")
	assert.ErrorIs(t, err, session.ErrSessionBusy)

	close(provider.block)
	require.NoError(t, <-done)
	assert.False(t, sess.Busy())

	msgs := sess.Conversation().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "first answer", msgs[2].Content)
}

func TestAsk(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("```diff\ndiff --git a/x b/x\n```")}}
	r := New(provider, &fakeToolset{}, Config{Turn: TurnOptions{Model: "deepseek-chat"}})

	out, err := r.Ask(context.Background(), "sys", "make a diff")
	require.NoError(t, err)
	assert.Contains(t, out, "diff --git")
	req := provider.requests[0]
	assert.Empty(t, req.Tools)
	assert.Equal(t, "deepseek-chat", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, session.RoleSystem, req.Messages[0].Role)

	provider = &scriptedProvider{errs: []error{errors.New("down")}}
	_, err = New(provider, &fakeToolset{}, Config{}).Ask(context.Background(), "sys", "x")
	assert.ErrorIs(t, err, ai.ErrProvider)
}

func TestPersonas(t *testing.T) {
	all := Personas()
	require.Len(t, all, 5)

	p, err := LookupPersona("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonaID, p.ID)

	for _, persona := range all {
		prompt := persona.SystemPrompt()
		assert.True(t, strings.HasPrefix(prompt, doctrineHeader), persona.ID)
		assert.Contains(t, prompt, persona.Title)
	}

	_, err = LookupPersona("chef")
	assert.ErrorContains(t, err, "unknown persona")

	bg := BackgroundSystemPrompt(p)
	assert.True(t, strings.HasPrefix(bg, BackgroundPreamble))
	assert.Contains(t, bg, p.SystemPrompt())
}

type noAsk struct{}

func (noAsk) Ask(ctx context.Context, system, user string) (string, error) { return "", nil }

func TestBackgroundHandler(t *testing.T) {
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("Renamed the module.")}}
	r := New(provider, &fakeToolset{}, Config{})
	handler := BackgroundHandler(r, nil, BackgroundConfig{})

	out, err := handler(context.Background(), &agenthub.Task{ID: "t1", Title: "rename", Instruction: "rename module core"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed the module.", out)

	msgs := provider.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[0].Content, BackgroundPreamble))
	assert.Equal(t, "Complete the task: rename module core", msgs[1].Content)
}

func TestBackgroundHandlerRunsOrchestrator(t *testing.T) {
	diff := "```diff\ndiff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\n```"
	provider := &scriptedProvider{responses: []*ai.ChatResponse{reply("Here it is:\n" + diff)}}
	ts := &fakeToolset{}
	r := New(provider, ts, Config{})
	orch := orchestrator.New(ts, noAsk{})
	handler := BackgroundHandler(r, orch, BackgroundConfig{Mode: orchestrator.ModeApply})

	out, err := handler(context.Background(), &agenthub.Task{ID: "t2", Instruction: "fix x"})
	require.NoError(t, err)
	assert.Contains(t, out, "mode=apply")
	assert.Equal(t, []string{"apply_patch"}, ts.invoked)
}

func TestBackgroundHandlerProviderFailure(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("timeout")}}
	handler := BackgroundHandler(New(provider, &fakeToolset{}, Config{}), nil, BackgroundConfig{})
	_, err := handler(context.Background(), &agenthub.Task{ID: "t3", Instruction: "x"})
	assert.ErrorIs(t, err, ai.ErrProvider)
}
