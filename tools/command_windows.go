//go:build windows

package tools

import "os/exec"

// No process groups here; only the shell itself is killed.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error { return nil }
