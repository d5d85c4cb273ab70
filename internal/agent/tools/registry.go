package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/neboloop/architect/internal/agent/ai"
	"github.com/neboloop/architect/internal/logging"
)

// Result is what a tool invocation hands back to the conversation.
// Output is fed to the model verbatim, Summary is for logs and observers.
type Result struct {
	Output  string `json:"output"`
	Summary string `json:"summary"`
	OK      bool   `json:"ok"`
}

// ErrorResult builds the standard failure payload {"ok":false,"error":...}
func ErrorResult(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	out, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return &Result{Output: string(out), Summary: msg, OK: false}
}

// JSONResult marshals payload as the output. The payload should carry its
// own "ok" field so the model sees the outcome.
func JSONResult(ok bool, summary string, payload any) *Result {
	out, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult("failed to encode result: %v", err)
	}
	return &Result{Output: string(out), Summary: summary, OK: ok}
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the AI
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with arguments that already passed schema
	// validation. A returned error is converted into an error result.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Invoker dispatches a tool call by name. Implementations never panic and
// never return Go errors; every failure is a Result with OK=false.
type Invoker interface {
	Invoke(ctx context.Context, name, args string) Result
}

type registered struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry is the closed set of tools the model may call
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds a tool. The tool's schema is compiled up front so that a
// broken schema is a startup error rather than a per-call surprise.
func (r *Registry) Register(tool Tool) error {
	resolved, err := compileSchema(tool.Schema())
	if err != nil {
		return fmt.Errorf("tool %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[Registry] tool %q already registered (%T), overwritten by %T",
			tool.Name(), existing.tool, tool)
	}
	r.tools[tool.Name()] = registered{tool: tool, schema: resolved}
	return nil
}

// MustRegister is Register for built-in tools whose schemas are constants
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.tool, ok
}

// Names returns registered tool names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tools as AI tool definitions, sorted by name so
// the request payload is stable between iterations.
func (r *Registry) Definitions() []ai.ToolDefinition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name].tool
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Invoke validates args against the tool's schema and runs it. Unknown
// names, malformed arguments, tool errors and panics all come back as
// error results.
func (r *Registry) Invoke(ctx context.Context, name, args string) (result Result) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		logging.Warnf("[Registry] Unknown tool: %s", name)
		return *ErrorResult("unknown tool %q. Available tools: %s", name, strings.Join(r.Names(), ", "))
	}

	input, err := validateArgs(reg.schema, args)
	if err != nil {
		logging.Warnf("[Registry] Invalid arguments for %s: %v", name, err)
		return *ErrorResult("invalid arguments for %s: %v", name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Errorf("[Registry] Tool %s panicked: %v\n%s", name, rec, debug.Stack())
			result = *ErrorResult("tool %s crashed: %v", name, rec)
		}
	}()

	logging.Debugf("[Registry] Executing tool: %s", name)
	res, err := reg.tool.Execute(ctx, input)
	if err != nil {
		return *ErrorResult("%s failed: %v", name, err)
	}
	if res == nil {
		return *ErrorResult("%s returned no result", name)
	}
	return *res
}
