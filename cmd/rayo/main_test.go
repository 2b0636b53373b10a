package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/rayo/config"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, &startOptions{})
	if cfg.LLMClient != "openai" || cfg.Model != "gpt-4o" || cfg.LogLevel != "info" {
		t.Errorf("unset flags changed the config: %+v", cfg)
	}

	applyFlags(cfg, &startOptions{
		root:       "/tmp/project",
		llm:        "anthropic",
		model:      "claude-sonnet-4-20250514",
		promptFile: "prompt.md",
		debug:      true,
	})
	if cfg.ProjectRoot != "/tmp/project" || cfg.LLMClient != "anthropic" ||
		cfg.Model != "claude-sonnet-4-20250514" || cfg.CustomPromptPath != "prompt.md" || cfg.LogLevel != "debug" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLoggingToFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "rayo.log")
	cfg.LogLevel = "warn"
	logger, closeLog, err := setupLogging(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("agent.tool_call", "tool", "list_files")
	logger.Warn("policy.forbidden", "rule", "recursive_delete")
	closeLog()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "agent.tool_call") {
		t.Error("info event logged at warn level")
	}
	if !strings.Contains(string(data), "policy.forbidden") || !strings.Contains(string(data), "rule=recursive_delete") {
		t.Errorf("log file = %q", data)
	}
}

func TestApplyWizardAnswers(t *testing.T) {
	cfg := config.Default()
	if err := applyWizardAnswers(cfg, "gemini", "gemini-1.5-pro", "0.2", "2048"); err != nil {
		t.Fatal(err)
	}
	if cfg.LLMClient != "gemini" || cfg.Model != "gemini-1.5-pro" || cfg.Temperature != 0.2 || cfg.MaxTokens != 2048 {
		t.Errorf("answers not applied: %+v", cfg)
	}

	bad := []struct{ temp, tokens string }{
		{"2.5", "100"},
		{"warm", "100"},
		{"0.5", "0"},
		{"0.5", "200000"},
	}
	for _, b := range bad {
		if err := applyWizardAnswers(config.Default(), "openai", "gpt-4o", b.temp, b.tokens); err == nil {
			t.Errorf("expected an error for temperature %q, max tokens %q", b.temp, b.tokens)
		}
	}
	if err := applyWizardAnswers(config.Default(), "openai", "", "0.5", "100"); err == nil {
		t.Error("expected an error for an empty model")
	}
}

func TestWizardDefaultsCoverProviders(t *testing.T) {
	for _, p := range providers {
		if defaultModels[p.Value] == "" {
			t.Errorf("provider %s has no default model", p.Value)
		}
	}
	if providerIndex("bedrock") != 3 || providerIndex("unknown") != 0 {
		t.Error("providerIndex returned an unexpected position")
	}
}

func TestCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"start", "config", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not registered: %v", name, err)
		}
	}
	for _, flag := range []string{"root", "llm", "model", "prompt-file", "debug"} {
		if root.Flags().Lookup(flag) == nil {
			t.Errorf("root command lacks --%s", flag)
		}
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "rayo dev\n" {
		t.Errorf("version output = %q", out.String())
	}
}
