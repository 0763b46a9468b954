// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set is a no-op on Windows.
func Set(*exec.Cmd) {}

func leaderGroup(*exec.Cmd) (int, bool) { return 0, false }

// KillGroup is a no-op on Windows; Kill already ends the process.
func KillGroup(int, syscall.Signal) (bool, error) { return false, nil }

// Kill maps every signal to Process.Kill; Windows has no graceful SIGTERM.
func Kill(cmd *exec.Cmd, _ syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
