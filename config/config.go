package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/rayo/errors"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".rayo"

// PolicyConfig tunes the safety policy. Entries extend the built-in rules,
// they never relax them.
type PolicyConfig struct {
	DeniedPaths     []string `yaml:"denied_paths"`
	DeniedCommands  []string `yaml:"denied_commands"`
	ConfirmCommands []string `yaml:"confirm_commands"`
	AllowChaining   bool     `yaml:"allow_chaining"`
	// ReadConfirmBytes is the file size above which read_file needs confirmation.
	ReadConfirmBytes int64 `yaml:"read_confirm_bytes"`
}

type Limits struct {
	MaxListEntries      int     `yaml:"max_list_entries"`
	MaxListDepth        int     `yaml:"max_list_depth"`
	MaxReadBytes        int64   `yaml:"max_read_bytes"`
	MinSnippetChars     int     `yaml:"min_snippet_chars"`
	MaxSnippetRatio     float64 `yaml:"max_snippet_ratio"`
	MaxOutputLines      int     `yaml:"max_output_lines"`
	MaxObservationChars int     `yaml:"max_observation_chars"`
	// Command timeouts are in seconds.
	DefaultCommandTimeout int `yaml:"default_command_timeout"`
	MaxCommandTimeout     int `yaml:"max_command_timeout"`
	MaxParseRetries       int `yaml:"max_parse_retries"`
	MaxToolRounds         int `yaml:"max_tool_rounds"`
}

type Config struct {
	ProjectRoot       string            `yaml:"project_root"`
	LLMClient         string            `yaml:"llm"`
	Model             string            `yaml:"model"`
	MaxTokens         int               `yaml:"max_tokens"`
	Temperature       float64           `yaml:"temperature"`
	APIKeys           map[string]string `yaml:"api_keys"`
	BaseURL           string            `yaml:"base_url"`
	RequestsPerMinute int               `yaml:"requests_per_minute"`
	CustomPromptPath  string            `yaml:"custom_prompt_path"`
	PromptTokenBudget int               `yaml:"prompt_token_budget"`
	LogLevel          string            `yaml:"log_level"`
	LogFile           string            `yaml:"log_file"`
	Policy            PolicyConfig      `yaml:"policy"`
	Limits            Limits            `yaml:"limits"`
}

// Default returns a configuration with every default applied and the
// current working directory as project root.
func Default() *Config {
	cfg := &Config{
		LLMClient:   "openai",
		Model:       "gpt-4o",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.APIKeys == nil {
		c.APIKeys = map[string]string{}
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.PromptTokenBudget <= 0 {
		c.PromptTokenBudget = 4000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Policy.ReadConfirmBytes <= 0 {
		c.Policy.ReadConfirmBytes = 256 << 10
	}
	l := &c.Limits
	if l.MaxListEntries <= 0 {
		l.MaxListEntries = 500
	}
	if l.MaxListDepth <= 0 {
		l.MaxListDepth = 3
	}
	if l.MaxReadBytes <= 0 {
		l.MaxReadBytes = 4 << 20
	}
	if l.MinSnippetChars <= 0 {
		l.MinSnippetChars = 10
	}
	if l.MaxSnippetRatio <= 0 {
		l.MaxSnippetRatio = 0.8
	}
	if l.MaxOutputLines <= 0 {
		l.MaxOutputLines = 200
	}
	if l.MaxObservationChars <= 0 {
		l.MaxObservationChars = 60_000
	}
	if l.DefaultCommandTimeout <= 0 {
		l.DefaultCommandTimeout = 30
	}
	if l.MaxCommandTimeout <= 0 {
		l.MaxCommandTimeout = 600
	}
	if l.MaxParseRetries <= 0 {
		l.MaxParseRetries = 3
	}
	if l.MaxToolRounds <= 0 {
		l.MaxToolRounds = 50
	}
}

// Validate checks ranges and normalizes the project root to an absolute path.
func (c *Config) Validate() error {
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		return errors.New("model name cannot be empty")
	}
	if c.MaxTokens < 1 || c.MaxTokens > 128000 {
		return errors.New("max_tokens must be between 1 and 128000, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be between 0.0 and 2.0, got %v", c.Temperature)
	}
	if c.Limits.MaxSnippetRatio > 1 {
		return errors.New("limits.max_snippet_ratio must be at most 1, got %v", c.Limits.MaxSnippetRatio)
	}
	if c.Limits.DefaultCommandTimeout > c.Limits.MaxCommandTimeout {
		return errors.New("limits.default_command_timeout (%d) exceeds limits.max_command_timeout (%d)",
			c.Limits.DefaultCommandTimeout, c.Limits.MaxCommandTimeout)
	}
	root := c.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrapf(err, "could not get working directory")
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrapf(err, "invalid project root '%s'", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrapf(err, "project root '%s' is not accessible", abs)
	}
	if !info.IsDir() {
		return errors.New("project root '%s' is not a directory", abs)
	}
	c.ProjectRoot = abs
	return nil
}

// APIKey returns the credential for a provider, or "".
func (c *Config) APIKey(provider string) string {
	return c.APIKeys[provider]
}

// UserConfigPath is ~/.rayo/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve home directory")
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. API keys missing from
// both files are taken from the provider environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		LLMClient:   "openai",
		Model:       "gpt-4o",
		Temperature: 0.7,
	}

	// Load user-level config first
	if userConfigPath, err := UserConfigPath(); err == nil {
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, DirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.ApplyDefaults()
	applyEnvKeys(cfg)
	return cfg, nil
}

// LoadFile loads a single configuration file on top of the built-in defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{
		LLMClient:   "openai",
		Model:       "gpt-4o",
		Temperature: 0.7,
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config '%s'", path)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so a project
	// file replaces user-level values key by key.
	return yaml.Unmarshal(data, cfg)
}

var envKeys = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func applyEnvKeys(cfg *Config) {
	for provider, env := range envKeys {
		if cfg.APIKeys[provider] != "" {
			continue
		}
		if v := os.Getenv(env); v != "" {
			cfg.APIKeys[provider] = v
		}
	}
}

// Save writes cfg to path as YAML, creating the parent directory. Only the
// setup wizard calls this; the agent never writes configuration.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "could not create config directory")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write config '%s'", path)
	}
	return nil
}
