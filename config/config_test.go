package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
llm: anthropic
model: claude-sonnet-4-5
temperature: 0.2
api_keys:
  anthropic: sk-test
policy:
  allow_chaining: true
  denied_paths:
    - "secrets/**"
limits:
  max_parse_retries: 5
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LLMClient != "anthropic" || cfg.Model != "claude-sonnet-4-5" {
		t.Fatalf("unexpected provider/model %q/%q", cfg.LLMClient, cfg.Model)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.APIKey("anthropic") != "sk-test" {
		t.Errorf("api key not loaded")
	}
	if !cfg.Policy.AllowChaining || len(cfg.Policy.DeniedPaths) != 1 {
		t.Errorf("policy not loaded: %+v", cfg.Policy)
	}
	if cfg.Limits.MaxParseRetries != 5 {
		t.Errorf("max_parse_retries = %d", cfg.Limits.MaxParseRetries)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("max_tokens default = %d", cfg.MaxTokens)
	}
	if cfg.Limits.DefaultCommandTimeout != 30 {
		t.Errorf("default timeout = %d", cfg.Limits.DefaultCommandTimeout)
	}
	if cfg.Limits.MaxSnippetRatio != 0.8 {
		t.Errorf("snippet ratio = %v", cfg.Limits.MaxSnippetRatio)
	}
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty model", func(c *Config) { c.Model = "  " }, true},
		{"max tokens too large", func(c *Config) { c.MaxTokens = 200000 }, true},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, true},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, true},
		{"root is a file", func(c *Config) { c.ProjectRoot = file }, true},
		{"root missing", func(c *Config) { c.ProjectRoot = filepath.Join(root, "nope") }, true},
		{"timeout above max", func(c *Config) {
			c.Limits.DefaultCommandTimeout = 900
			c.Limits.MaxCommandTimeout = 60
		}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.ProjectRoot = root
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && !filepath.IsAbs(cfg.ProjectRoot) {
				t.Fatalf("project root not absolute: %s", cfg.ProjectRoot)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DirName, "config.yaml")
	cfg := Default()
	cfg.LLMClient = "gemini"
	cfg.Model = "gemini-2.5-pro"
	cfg.APIKeys["gemini"] = "key"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v", info.Mode().Perm())
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLMClient != "gemini" || loaded.APIKey("gemini") != "key" {
		t.Fatalf("unexpected loaded config %+v", loaded)
	}
}

func TestApplyEnvKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic")
	cfg := Default()
	cfg.APIKeys["anthropic"] = "from-file"
	applyEnvKeys(cfg)
	if cfg.APIKey("openai") != "from-env" {
		t.Errorf("openai key = %q", cfg.APIKey("openai"))
	}
	if cfg.APIKey("anthropic") != "from-file" {
		t.Errorf("file key must win over env, got %q", cfg.APIKey("anthropic"))
	}
}
