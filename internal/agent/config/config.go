package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/architect/internal/agent/orchestrator"
	"github.com/neboloop/architect/internal/agent/tools"
	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/defaults"
)

// Config holds the agent configuration
type Config struct {
	DataDir   string `yaml:"data_dir"`  // Platform data directory
	Workspace string `yaml:"workspace"` // Project root the tools operate on (empty = cwd)

	// Model endpoint (OpenAI-compatible)
	Model          string        `yaml:"model"`
	APIBase        string        `yaml:"api_base"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"` // 0 = endpoint default
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Execution settings
	MaxIterations  int    `yaml:"max_iterations"`  // Model round-trips per turn (default: 5)
	Mode           string `yaml:"mode"`            // Foreground post-processing
	BackgroundMode string `yaml:"background_mode"` // Post-processing for queued tasks
	Persona        string `yaml:"persona"`
	TestCommand    string `yaml:"test_command"` // Empty = detect from build files

	// Tool settings
	Policy       PolicyConfig `yaml:"policy"`
	SearchEngine string       `yaml:"search_engine"` // duckduckgo or stackexchange
	Git          GitConfig    `yaml:"git"`

	Server ServerConfig `yaml:"server"`
	GitHub GitHubConfig `yaml:"github"`

	// Recurring background tasks
	Schedules []agenthub.Schedule `yaml:"schedules"`
}

// PolicyConfig holds command execution policy
type PolicyConfig struct {
	Allowlist []string `yaml:"allowlist"` // Approved commands: a binary, or a binary and first argument
}

// GitConfig sets the identity on agent commits
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// ServerConfig holds the background task API settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
	Secret string `yaml:"secret"` // HS256 key for API bearer tokens; empty disables auth
}

// GitHubConfig holds GitHub REST settings
type GitHubConfig struct {
	APIBase string `yaml:"api_base"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:        DefaultDataDir(),
		Model:          "deepseek-chat",
		APIBase:        "https://api.deepseek.com/v1",
		Temperature:    0.2,
		RequestTimeout: 120 * time.Second,
		MaxIterations:  5,
		Mode:           string(orchestrator.ModeChat),
		BackgroundMode: string(orchestrator.ModeChat),
		Persona:        "android_architect",
		SearchEngine:   tools.EngineDuckDuckGo,
		Policy: PolicyConfig{
			Allowlist: []string{
				"ls", "cat", "grep", "git status", "git diff", "git log",
				"./gradlew", "gradle", "go test", "go build", "npm test", "mvn",
			},
		},
		Server: ServerConfig{Listen: "127.0.0.1:8765"},
		GitHub: GitHubConfig{APIBase: "https://api.github.com"},
	}
}

// DefaultDataDir returns the platform-appropriate data directory
func DefaultDataDir() string {
	dir, err := defaults.DataDir()
	if err != nil {
		return ".architect"
	}
	return dir
}

// Load loads config.yaml from the data directory. A missing file yields
// the defaults.
func Load() (*Config, error) {
	path := filepath.Join(DefaultDataDir(), "config.yaml")
	cfg, err := LoadFrom(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = DefaultConfig()
			cfg.expand()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// The environment override beats the file
	if dir := os.Getenv(defaults.DataDirEnv); dir != "" {
		cfg.DataDir = dir
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expand resolves ${ENV} references and leading ~ in path-like fields
func (c *Config) expand() {
	c.DataDir = expandPath(os.ExpandEnv(c.DataDir))
	c.Workspace = expandPath(os.ExpandEnv(c.Workspace))
	c.Model = os.ExpandEnv(c.Model)
	c.APIBase = os.ExpandEnv(c.APIBase)
	c.TestCommand = os.ExpandEnv(c.TestCommand)
	c.Server.Listen = os.ExpandEnv(c.Server.Listen)
	c.Server.Secret = os.ExpandEnv(c.Server.Secret)
	c.GitHub.APIBase = os.ExpandEnv(c.GitHub.APIBase)
	c.Git.AuthorName = os.ExpandEnv(c.Git.AuthorName)
	c.Git.AuthorEmail = os.ExpandEnv(c.Git.AuthorEmail)
}

func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Validate rejects values that would fail later in a less obvious way
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if _, err := orchestrator.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	if _, err := orchestrator.ParseMode(c.BackgroundMode); err != nil {
		return fmt.Errorf("background_mode: %w", err)
	}
	switch c.SearchEngine {
	case "", tools.EngineDuckDuckGo, tools.EngineStackExchange:
	default:
		return fmt.Errorf("search_engine must be %s or %s, got %q",
			tools.EngineDuckDuckGo, tools.EngineStackExchange, c.SearchEngine)
	}
	return nil
}

// Save writes the config to <data_dir>/config.yaml
func (c *Config) Save() error {
	if err := c.EnsureDataDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path(), data, 0o600)
}

// Path returns the config file location inside the data directory
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, "config.yaml")
}

// DBPath returns the path to the SQLite task journal
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "architect.db")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WorkspaceDir returns the absolute workspace root, defaulting to cwd
func (c *Config) WorkspaceDir() (string, error) {
	if c.Workspace == "" {
		return os.Getwd()
	}
	return filepath.Abs(c.Workspace)
}

// TemperaturePtr returns the temperature for request options
func (c *Config) TemperaturePtr() *float64 {
	t := c.Temperature
	return &t
}
