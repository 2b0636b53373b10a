//go:build !windows

package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	rerrors "github.com/m4xw311/rayo/errors"
)

func TestRunBash(t *testing.T) {
	cfg := testConfig(t)
	ex := NewExecutor(cfg, nil)

	obs := ex.Run(context.Background(), RunBash{Command: "echo hello; echo oops >&2", Timeout: 5 * time.Second}, true)
	if !obs.Succeeded {
		t.Fatalf("command failed: %+v", obs)
	}
	for _, want := range []string{"exit_code: 0", "stdout:\nhello", "stderr:\noops"} {
		if !strings.Contains(obs.Output, want) {
			t.Errorf("missing %q in:\n%s", want, obs.Output)
		}
	}

	obs = ex.Run(context.Background(), RunBash{Command: "pwd", Timeout: 5 * time.Second}, true)
	if !strings.Contains(obs.Output, filepath.Base(cfg.ProjectRoot)) {
		t.Errorf("command should run in the project root:\n%s", obs.Output)
	}
}

func TestRunBashFailure(t *testing.T) {
	ex := NewExecutor(testConfig(t), nil)
	obs := ex.Run(context.Background(), RunBash{Command: "echo partial; exit 3", Timeout: 5 * time.Second}, true)
	if obs.Succeeded || obs.ErrorKind != rerrors.KindProcessFailure {
		t.Fatalf("expected ProcessFailure, got %+v", obs)
	}
	for _, want := range []string{"status 3", "exit_code: 3", "partial"} {
		if !strings.Contains(obs.Output, want) {
			t.Errorf("missing %q in:\n%s", want, obs.Output)
		}
	}
}

func TestRunBashOutputBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Limits.MaxOutputLines = 10
	ex := NewExecutor(cfg, nil)
	obs := ex.Run(context.Background(), RunBash{Command: "seq 1 1000", Timeout: 5 * time.Second}, true)
	if !strings.Contains(obs.Output, "[... 990 lines omitted ...]") {
		t.Fatalf("expected omitted-lines marker:\n%s", obs.Output)
	}
	if !strings.Contains(obs.Output, "\n1000") {
		t.Fatalf("tail of the output should be kept:\n%s", obs.Output)
	}
}

func TestRunBashTimeoutKillsProcessGroup(t *testing.T) {
	cfg := testConfig(t)
	ex := NewExecutor(cfg, nil)

	start := time.Now()
	obs := ex.Run(context.Background(), RunBash{
		Command: "sleep 30 & echo $! > child.pid; wait",
		Timeout: time.Second,
	}, true)
	if obs.ErrorKind != rerrors.KindTimeout {
		t.Fatalf("expected Timeout, got %+v", obs)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}

	data, err := os.ReadFile(filepath.Join(cfg.ProjectRoot, "child.pid"))
	if err != nil {
		t.Fatalf("child pid not recorded: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for pidAlive(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("background child %d survived the timeout", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRunBashCancelled(t *testing.T) {
	ex := NewExecutor(testConfig(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	obs := ex.Run(ctx, RunBash{Command: "echo PARTIAL-OUTPUT; sleep 30", Timeout: 20 * time.Second}, true)
	if obs.ErrorKind != rerrors.KindCancelled {
		t.Fatalf("expected Cancelled, got %+v", obs)
	}
	if strings.Contains(obs.Output, "PARTIAL-OUTPUT") {
		t.Fatalf("partial output kept after cancel:\n%s", obs.Output)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancellation took %s", elapsed)
	}
}

// pidAlive treats zombies as dead: an orphaned child killed by the group
// signal may linger unreaped in containers without an init process.
func pidAlive(pid int) bool {
	if b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat")); err == nil {
		line := string(b)
		if i := strings.LastIndexByte(line, ')'); i >= 0 && i+2 < len(line) {
			if s := line[i+2]; s == 'Z' || s == 'X' {
				return false
			}
		}
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
