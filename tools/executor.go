package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/patch"
)

// Executor performs Actions against the project root. It does not consult
// the safety policy; callers check every Action before running it.
type Executor struct {
	root             string
	limits           config.Limits
	readConfirmBytes int64
	patcher          patch.Engine
	logger           *slog.Logger
}

func NewExecutor(cfg *config.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		root:             cfg.ProjectRoot,
		limits:           cfg.Limits,
		readConfirmBytes: cfg.Policy.ReadConfirmBytes,
		patcher: patch.Engine{
			MinSnippetChars: cfg.Limits.MinSnippetChars,
			MaxSnippetRatio: cfg.Limits.MaxSnippetRatio,
		},
		logger: logger,
	}
}

// Run executes a. confirmed records that the operator approved this
// specific invocation; read_file uses it to allow large files.
func (e *Executor) Run(ctx context.Context, a Action, confirmed bool) Observation {
	start := time.Now()
	var (
		out string
		err error
	)
	switch a := a.(type) {
	case ListFiles:
		out, err = e.listFiles(a)
	case ReadFile:
		out, err = e.readFile(a, confirmed)
	case ApplyPatch:
		out, err = e.applyPatch(a)
	case RunBash:
		out, err = e.runBash(ctx, a)
	default:
		panic("tools: unhandled action type")
	}

	if err != nil {
		obs := Failure(a.ToolName(), err)
		// Partial output of an interrupted command is discarded.
		if out != "" && obs.ErrorKind != errors.KindCancelled {
			obs.Output += "\n" + out
		}
		e.logger.Info("tools.run.failed", "tool", a.ToolName(), "kind", obs.ErrorKind,
			"duration", time.Since(start), "error", err)
		return obs
	}
	e.logger.Debug("tools.run.ok", "tool", a.ToolName(), "duration", time.Since(start), "bytes", len(out))
	return Success(a.ToolName(), out)
}
