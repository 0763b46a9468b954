// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs external tools in their own process group so a
// cancelled run takes its children down with it.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/astrogate/internal/metrics"
)

// Bind makes cmd a group leader and, on context cancellation, sends SIGTERM
// to the whole group. Members still alive after grace get SIGKILL, even when
// the leader already exited. Call before cmd.Start on a command built with
// exec.CommandContext.
func Bind(cmd *exec.Cmd, grace time.Duration) {
	Set(cmd)
	cmd.Cancel = func() error {
		pgid, grouped := leaderGroup(cmd)
		err := Kill(cmd, syscall.SIGTERM)
		metrics.IncProcTerminate("SIGTERM", err)
		if grouped {
			time.AfterFunc(grace, func() {
				if hit, err := KillGroup(pgid, syscall.SIGKILL); hit || err != nil {
					metrics.IncProcTerminate("SIGKILL", err)
				}
			})
		}
		return err
	}
	cmd.WaitDelay = grace
}
