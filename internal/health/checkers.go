// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/astrogate/internal/log"
)

// CheckFunc adapts a function into a named Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewCheckFunc(name string, fn func(ctx context.Context) CheckResult) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// DirChecker verifies a directory exists and accepts writes.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory", Message: c.path}
	}
	probe, err := os.CreateTemp(c.path, ".healthcheck-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "not writable: " + err.Error(), Message: c.path}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

// BinaryChecker reports whether an optional external tool is runnable.
// A missing tool degrades rather than fails, since only its feature is lost.
type BinaryChecker struct {
	name   string
	binary string
}

func NewBinaryChecker(name, binary string) *BinaryChecker {
	return &BinaryChecker{name: name, binary: binary}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	if c.binary == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: c.binary}
	}
	return CheckResult{Status: StatusHealthy, Message: filepath.Clean(path)}
}

// ErrStartupCheck is returned by Startup when a component is unhealthy.
var ErrStartupCheck = errors.New("startup check failed")

// Startup runs checkers once before serving. Unhealthy components abort
// startup; degraded ones are logged.
func Startup(ctx context.Context, checkers ...Checker) error {
	logger := log.WithComponent("startup-check")
	var errs []error
	for _, c := range checkers {
		res := c.Check(ctx)
		evt := logger.Info()
		switch res.Status {
		case StatusUnhealthy:
			evt = logger.Error()
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrStartupCheck, c.Name(), res.Error))
		case StatusDegraded:
			evt = logger.Warn()
		}
		evt.Str("check", c.Name()).
			Str("status", string(res.Status)).
			Str("detail", res.Message).
			Str("error", res.Error).
			Msg("startup check")
	}
	return errors.Join(errs...)
}
