// Package playbooks holds canned multi-step procedures that drive the
// built-in tools without a model in the loop.
package playbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/logging"
)

// Params are the user inputs a playbook may read. Each playbook documents
// which ones it needs.
type Params struct {
	Branch   string
	Patch    string
	Message  string
	TestTask string
	Worktree bool
}

// Env is what a playbook runs against
type Env struct {
	Tools tools.Invoker

	// Reroot returns tools rooted at dir. Playbooks call it after creating a
	// linked worktree so later steps act on the new checkout. Nil disables
	// the switch.
	Reroot func(dir string) (tools.Invoker, error)

	Params Params
}

// Step records one tool call made by a playbook
type Step struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Report is the outcome of a playbook run
type Report struct {
	Playbook string `json:"playbook"`
	OK       bool   `json:"ok"`
	Steps    []Step `json:"steps"`
	Output   string `json:"output"`
}

// Playbook is a named procedure
type Playbook struct {
	ID          string
	Title       string
	Description string
	Run         func(ctx context.Context, env *Env) (*Report, error)
}

// Registry maps playbook IDs to playbooks
type Registry struct {
	mu        sync.RWMutex
	playbooks map[string]Playbook
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{playbooks: make(map[string]Playbook)}
}

// Default returns a registry holding the built-in playbooks
func Default() *Registry {
	r := NewRegistry()
	for _, p := range []Playbook{AgentE2E(), XMLToCompose()} {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a playbook. IDs are unique.
func (r *Registry) Register(p Playbook) error {
	if p.ID == "" || p.Run == nil {
		return fmt.Errorf("playbook needs an id and a run function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.playbooks[p.ID]; ok {
		return fmt.Errorf("playbook %q already registered", p.ID)
	}
	r.playbooks[p.ID] = p
	return nil
}

// Get returns the playbook with id
func (r *Registry) Get(id string) (Playbook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.playbooks[id]
	return p, ok
}

// List returns every playbook sorted by title
func (r *Registry) List() []Playbook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Playbook, 0, len(r.playbooks))
	for _, p := range r.playbooks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// Run executes the playbook with id. A playbook error still returns the
// partial report.
func (r *Registry) Run(ctx context.Context, id string, env *Env) (*Report, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown playbook %q", id)
	}
	logging.L().Info("running playbook", zap.String("playbook", id))
	report, err := p.Run(ctx, env)
	if report == nil {
		report = &Report{}
	}
	report.Playbook = id
	if err != nil {
		report.OK = false
		logging.L().Warn("playbook failed", zap.String("playbook", id), zap.Error(err))
		return report, fmt.Errorf("playbook %s: %w", id, err)
	}
	return report, nil
}

// call invokes one tool and appends the step to the report
func (rep *Report) call(ctx context.Context, inv tools.Invoker, name string, args map[string]any) tools.Result {
	data, _ := json.Marshal(args)
	res := inv.Invoke(ctx, name, string(data))
	rep.Steps = append(rep.Steps, Step{Tool: name, OK: res.OK, Summary: res.Summary})
	logging.L().Debug("playbook step",
		zap.String("tool", name),
		zap.Bool("ok", res.OK),
		zap.String("summary", res.Summary))
	return res
}

// payload decodes a tool result's JSON output; a non-JSON output yields an
// empty map
func payload(res tools.Result) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Output), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
