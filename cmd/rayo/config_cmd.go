package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/spf13/cobra"
)

var providers = []SelectOption[string]{
	{Label: "Anthropic", Value: "anthropic"},
	{Label: "OpenAI (or compatible endpoint)", Value: "openai"},
	{Label: "Google Gemini", Value: "gemini"},
	{Label: "AWS Bedrock", Value: "bedrock"},
	{Label: "Mock (offline echo)", Value: "mock"},
}

var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o",
	"gemini":    "gemini-1.5-pro",
	"bedrock":   "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"mock":      "mock",
}

// keyEnv names the environment variable checked for each provider's key.
// Bedrock uses the AWS credential chain.
var keyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func configCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Interactively set the provider, model, API key and sampling options",
		Long: `Runs a setup wizard and writes the answers to the user configuration file
(~/.rayo/config.yaml by default). Existing values are kept as defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				p, err := config.UserConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			return runConfigWizard(path)
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "configuration file to write (default ~/.rayo/config.yaml)")
	return cmd
}

func runConfigWizard(path string) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	provider, err := promptSelect("Model provider", providers, providerIndex(cfg.LLMClient))
	if err != nil {
		return err
	}
	model := cfg.Model
	if provider != cfg.LLMClient || model == "" {
		model = defaultModels[provider]
	}
	if model, err = promptString("Model", "Model name as the provider spells it.", model, nil); err != nil {
		return err
	}

	if env, ok := keyEnv[provider]; ok {
		desc := fmt.Sprintf("Leave empty to use $%s.", env)
		if cfg.APIKeys[provider] != "" {
			desc = "Leave empty to keep the saved key."
		}
		key, err := promptPassword(fmt.Sprintf("%s API key", provider), desc)
		if err != nil {
			return err
		}
		if key != "" {
			cfg.APIKeys[provider] = key
		}
	}

	temp, err := promptString("Temperature", "Between 0.0 and 2.0.", strconv.FormatFloat(cfg.Temperature, 'f', -1, 64), validateTemperature)
	if err != nil {
		return err
	}
	maxTokens, err := promptString("Max tokens", "Between 1 and 128000.", strconv.Itoa(cfg.MaxTokens), validateMaxTokens)
	if err != nil {
		return err
	}

	if err := applyWizardAnswers(cfg, provider, model, temp, maxTokens); err != nil {
		return err
	}

	ok, err := promptConfirm(fmt.Sprintf("Write %s?", path), true)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Configuration not saved.")
		return nil
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s\n", path)
	return nil
}

// applyWizardAnswers validates the answers and stores them in cfg.
func applyWizardAnswers(cfg *config.Config, provider, model, temperature, maxTokens string) error {
	if err := validateTemperature(temperature); err != nil {
		return err
	}
	if err := validateMaxTokens(maxTokens); err != nil {
		return err
	}
	t, _ := strconv.ParseFloat(temperature, 64)
	n, _ := strconv.Atoi(maxTokens)

	cfg.LLMClient = provider
	cfg.Model = model
	cfg.Temperature = t
	cfg.MaxTokens = n
	if cfg.Model == "" {
		return errors.New("model name cannot be empty")
	}
	return nil
}

// Validators feed huh inline messages, so they carry no source location.
func validateTemperature(s string) error {
	t, err := strconv.ParseFloat(s, 64)
	if err != nil || t < 0 || t > 2 {
		return fmt.Errorf("temperature must be a number between 0.0 and 2.0")
	}
	return nil
}

func validateMaxTokens(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 128000 {
		return fmt.Errorf("max tokens must be an integer between 1 and 128000")
	}
	return nil
}

func providerIndex(name string) int {
	for i, p := range providers {
		if p.Value == name {
			return i
		}
	}
	return 0
}
