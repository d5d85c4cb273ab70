package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name string
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echo " + t.name }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"text": {"type": "string"}, "count": {"type": "integer"}},
		"required": ["text"]
	}`)
}
func (t *echoTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	return JSONResult(true, in.Text, map[string]any{"ok": true, "text": in.Text}), nil
}

type brokenTool struct {
	panics bool
}

func (t *brokenTool) Name() string            { return "broken" }
func (t *brokenTool) Description() string     { return "always fails" }
func (t *brokenTool) Schema() json.RawMessage { return json.RawMessage(`{"type": "object"}`) }
func (t *brokenTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	if t.panics {
		panic("boom")
	}
	return nil, errors.New("disk on fire")
}

func decodeOutput(t *testing.T, res Result) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out), "output must be JSON: %s", res.Output)
	return out
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&echoTool{name: "echo"})

	res := r.Invoke(context.Background(), "echo", `{"text":"hi"}`)
	assert.True(t, res.OK)
	assert.Equal(t, "hi", res.Summary)
	assert.Equal(t, "hi", decodeOutput(t, res)["text"])
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&echoTool{name: "echo"})

	res := r.Invoke(context.Background(), "nope", `{}`)
	assert.False(t, res.OK)
	out := decodeOutput(t, res)
	assert.Equal(t, false, out["ok"])
	assert.Contains(t, out["error"], `unknown tool "nope"`)
	assert.Contains(t, out["error"], "echo")
}

func TestRegistry_InvalidArguments(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&echoTool{name: "echo"})

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"text":`},
		{"not an object", `["text"]`},
		{"missing required", `{}`},
		{"blank means empty object", ``},
		{"wrong type", `{"text":"a","count":"three"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Invoke(context.Background(), "echo", tt.args)
			assert.False(t, res.OK)
			assert.Contains(t, decodeOutput(t, res)["error"], "invalid arguments for echo")
		})
	}
}

func TestRegistry_ToolErrorAndPanic(t *testing.T) {
	r := NewRegistry()

	r.MustRegister(&brokenTool{})
	res := r.Invoke(context.Background(), "broken", "")
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "disk on fire")

	r.MustRegister(&brokenTool{panics: true})
	assert.NotPanics(t, func() {
		res = r.Invoke(context.Background(), "broken", "{}")
	})
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "crashed: boom")
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&echoTool{name: "zeta"}, &echoTool{name: "alpha"}, &echoTool{name: "mid"})

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "mid", defs[1].Name)
	assert.Equal(t, "zeta", defs[2].Name)
	assert.JSONEq(t, string((&echoTool{}).Schema()), string(defs[0].Parameters))
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

type badSchemaTool struct{ echoTool }

func (t *badSchemaTool) Schema() json.RawMessage { return json.RawMessage(`{"type": 7}`) }

func TestRegistry_RegisterRejectsBrokenSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&badSchemaTool{echoTool{name: "bad"}})
	require.Error(t, err)
	_, ok := r.Get("bad")
	assert.False(t, ok)
}

func TestRegisterBuiltins(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	r := NewRegistry()
	RegisterBuiltins(r, ws, BuiltinOptions{})
	assert.Equal(t, []string{
		"apply_patch", "create_pr", "find_replace", "git_branch", "git_commit",
		"github_search", "list_files", "mobile_audit", "read_file", "run_command", "run_tests",
		"web_fetch", "web_search", "write_file",
	}, r.Names())
}
