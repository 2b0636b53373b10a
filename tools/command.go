package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/m4xw311/rayo/errors"
)

// waitDelay bounds how long Run waits for stdio to close after the shell
// exits or is killed.
const waitDelay = 3 * time.Second

func (e *Executor) runBash(ctx context.Context, a RunBash) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = time.Duration(e.limits.DefaultCommandTimeout) * time.Second
	}
	if limit := time.Duration(e.limits.MaxCommandTimeout) * time.Second; limit > 0 && timeout > limit {
		timeout = limit
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", a.Command)
	cmd.Dir = e.root
	// Own process group so the whole tree can be killed on timeout.
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("tools.run_bash.start", "command", a.Command, "timeout", timeout)
	runErr := cmd.Run()
	// Descendants that outlived the shell go too.
	if err := killProcessGroup(cmd); err != nil {
		e.logger.Warn("tools.run_bash.kill_group_failed", "command", a.Command, "error", err)
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	out := formatCommandOutput(exitCode, stdout.String(), stderr.String(), e.limits.MaxOutputLines)

	switch {
	case ctx.Err() != nil:
		e.logger.Info("tools.run_bash.cancelled", "command", a.Command)
		return out, errors.E(errors.KindCancelled, "command cancelled by operator")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.logger.Warn("tools.run_bash.timeout", "command", a.Command, "timeout", timeout)
		return out, errors.E(errors.KindTimeout, "command timed out after %s and was killed", timeout)
	case runErr == nil, errors.Is(runErr, exec.ErrWaitDelay) && exitCode == 0:
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return out, errors.E(errors.KindProcessFailure, "command exited with status %d", exitCode)
	}
	return out, errors.WrapKind(runErr, errors.KindProcessFailure, "command could not be run")
}

func formatCommandOutput(exitCode int, stdout, stderr string, maxLines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit_code: %d\n", exitCode)
	writeStream(&b, "stdout", stdout, maxLines)
	writeStream(&b, "stderr", stderr, maxLines)
	return strings.TrimSuffix(b.String(), "\n")
}

func writeStream(b *strings.Builder, name, s string, maxLines int) {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		fmt.Fprintf(b, "%s: (empty)\n", name)
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n", name, truncateLines(s, maxLines))
}
