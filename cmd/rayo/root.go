package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m4xw311/rayo/agent"
	"github.com/m4xw311/rayo/agent/terminal"
	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/llm"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type startOptions struct {
	root       string
	llm        string
	model      string
	promptFile string
	debug      bool
	plain      bool
}

func rootCmd() *cobra.Command {
	opts := &startOptions{}
	run := func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context(), opts, args)
	}

	root := &cobra.Command{
		Use:   "rayo [prompt...]",
		Short: "A terminal coding agent that reads, patches and runs your project with your approval",
		Long: `rayo converses with a language model about the project in the current
directory. The model can list and read files, propose exact-match patches and
run shell commands. Patches and commands are shown for confirmation first;
dangerous operations are refused.

Examples:
  rayo                                  # Interactive session
  rayo "why does the build fail?"       # Start with a prompt
  rayo --llm anthropic --model claude-sonnet-4-20250514
  rayo config                           # Set provider, model and API key`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	addStartFlags(root.Flags(), opts)

	start := &cobra.Command{
		Use:           "start [prompt...]",
		Short:         "Start an interactive session (default command)",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	addStartFlags(start.Flags(), opts)

	root.AddCommand(start, configCmd(), versionCmd())
	return root
}

func addStartFlags(fs *pflag.FlagSet, opts *startOptions) {
	fs.StringVar(&opts.root, "root", "", "project root (default: current directory)")
	fs.StringVar(&opts.llm, "llm", "", "model provider: anthropic, openai, gemini, bedrock or mock")
	fs.StringVar(&opts.model, "model", "", "model name")
	fs.StringVar(&opts.promptFile, "prompt-file", "", "custom system prompt (markdown)")
	fs.BoolVar(&opts.debug, "debug", false, "log at debug level to stderr")
	fs.BoolVar(&opts.plain, "plain", false, "disable colors and markdown rendering")
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(cfg *config.Config, opts *startOptions) {
	if opts.root != "" {
		cfg.ProjectRoot = opts.root
	}
	if opts.llm != "" {
		cfg.LLMClient = opts.llm
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.promptFile != "" {
		cfg.CustomPromptPath = opts.promptFile
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}
}

func runStart(ctx context.Context, opts *startOptions, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "error loading configuration")
	}
	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg, opts.debug)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := llm.New(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "error initializing %s client", cfg.LLMClient)
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	a, err := agent.New(cfg, client, logger)
	if err != nil {
		return errors.Wrapf(err, "error initializing agent")
	}
	logger.Info("session.start",
		"session", a.History.ID,
		"root", cfg.ProjectRoot,
		"llm", cfg.LLMClient,
		"model", cfg.Model)

	plain := opts.plain || !isTerminal(os.Stdout)
	fmt.Printf("rayo is ready in %s (%s/%s). Type your prompt, or exit to quit.\n", cfg.ProjectRoot, cfg.LLMClient, cfg.Model)
	term := terminal.New(a, terminal.WithPlain(plain))
	err = term.Run(ctx, strings.Join(args, " "))
	logger.Info("session.end", "session", a.History.ID)
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rayo version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rayo %s\n", version)
		},
	}
}
