package cli

import (
	"fmt"

	"github.com/neboloop/architect/internal/agent/ai"
	agentcfg "github.com/neboloop/architect/internal/agent/config"
	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/runner"
	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/defaults"
	"github.com/neboloop/architect/internal/keyring"
)

// agentStack is everything a turn needs
type agentStack struct {
	cfg      *agentcfg.Config
	registry *tools.Registry
	runner   *runner.Runner
	orch     *orchestrator.Orchestrator
	persona  runner.Persona
}

// loadAgentConfig loads --config or the data directory config and applies
// the --workspace override
func loadAgentConfig() (*agentcfg.Config, error) {
	var (
		cfg *agentcfg.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = agentcfg.LoadFrom(cfgFile)
	} else {
		if err := defaults.EnsureDataDir(agentcfg.DefaultDataDir()); err != nil {
			return nil, err
		}
		cfg, err = agentcfg.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if workspaceArg != "" {
		cfg.Workspace = workspaceArg
	}
	return cfg, nil
}

// buildRegistry registers the built-in tools rooted at the workspace
func buildRegistry(cfg *agentcfg.Config) (*tools.Registry, error) {
	root, err := cfg.WorkspaceDir()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	ws, err := tools.NewWorkspace(root)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, ws, builtinOptions(cfg))
	return registry, nil
}

func builtinOptions(cfg *agentcfg.Config) tools.BuiltinOptions {
	return tools.BuiltinOptions{
		Allowlist:   cfg.Policy.Allowlist,
		TestCommand: cfg.TestCommand,
		GitAuthor: tools.GitAuthor{
			Name:  cfg.Git.AuthorName,
			Email: cfg.Git.AuthorEmail,
		},
		GitHubAPI:    cfg.GitHub.APIBase,
		GitHubToken:  keyring.Resolver(keyring.GitHub),
		SearchEngine: cfg.SearchEngine,
	}
}

// buildProvider resolves the API key and creates the model client. A
// missing key fails here, before any network call.
func buildProvider(cfg *agentcfg.Config) (ai.Provider, error) {
	key, err := keyring.Get(keyring.DeepSeek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMissingCredential, err)
	}
	return ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:      key,
		BaseURL:     cfg.APIBase,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.RequestTimeout,
	})
}

// buildAgent wires provider, tools, runner and orchestrator. personaID
// overrides the configured persona when non-empty.
func buildAgent(cfg *agentcfg.Config, personaID string) (*agentStack, error) {
	if personaID == "" {
		personaID = cfg.Persona
	}
	persona, err := runner.LookupPersona(personaID)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	r := runner.New(provider, registry, runner.Config{
		MaxIterations: cfg.MaxIterations,
		Turn: runner.TurnOptions{
			Model:       cfg.Model,
			Temperature: cfg.TemperaturePtr(),
			MaxTokens:   cfg.MaxTokens,
		},
	})

	return &agentStack{
		cfg:      cfg,
		registry: registry,
		runner:   r,
		orch:     orchestrator.New(registry, r),
		persona:  persona,
	}, nil
}

// resolveMode parses a --mode flag, falling back to the configured value
func resolveMode(flag, configured string) (orchestrator.Mode, error) {
	if flag != "" {
		return orchestrator.ParseMode(flag)
	}
	return orchestrator.ParseMode(configured)
}
