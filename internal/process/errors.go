// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("process not found")
	ErrConflict = errors.New("process conflict")
	ErrClosed   = errors.New("registry closed")
)

// ConflictError lists the running processes that blocked a Start.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	ID        string
	Category  Category
	Conflicts []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("process %s (%s) conflicts with running: %s", e.ID, e.Category, strings.Join(e.Conflicts, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PanicError is recorded as the failure of a run whose work panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("process panicked: %v", e.Value) }

// Outcome maps a Start error onto a StartResult. Errors other than the
// registry's own are reported as Conflict since nothing was started.
func Outcome(err error) StartResult {
	switch {
	case err == nil:
		return Started
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return Conflict
	}
}

// Conflicts returns the conflicting process ids carried by err, if any.
func Conflicts(err error) []string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return append([]string(nil), ce.Conflicts...)
	}
	return nil
}
