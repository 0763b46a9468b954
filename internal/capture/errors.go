// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("capture not found")
	ErrInvalidSettings = errors.New("invalid capture settings")
	ErrInProgress      = errors.New("capture in progress")
	ErrArtifactMissing = errors.New("capture artifact missing")
	ErrNoFrame         = errors.New("no acquired frame to finalize")
	ErrRemoved         = errors.New("capture removed")
)

// NotReadyError is returned by artifact accessors before the capture is Ready.
// It matches ErrInProgress with errors.Is.
type NotReadyError struct {
	ID    string
	State State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("capture %s not ready: %s", e.ID, e.State)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrInProgress }
