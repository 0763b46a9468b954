// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package process

import (
	"context"
	"time"
)

// Status is the lifecycle of a registered process.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusFinished  Status = "FINISHED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Category tags a process for conflict grouping.
type Category string

const (
	CategoryCameraCool      Category = "camera.cool"
	CategoryCameraWarm      Category = "camera.warm"
	CategoryCapture         Category = "capture"
	CategoryCaptureFinalize Category = "capture.finalize"
	CategoryPlateSolve      Category = "platesolve"
)

// Work is the body of a process. ctx is cancelled by Stop; implementations
// must check it at safe points and return ctx.Err() (or an error wrapping it)
// when they give up.
type Work func(ctx context.Context) (any, error)

// Snapshot is a read-only copy of a process taken under the registry lock.
type Snapshot struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Status    Status    `json:"status"`
	Runs      int       `json:"runs"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// Result is whatever the last successful run returned.
	Result any `json:"-"`
	// Err is the error of the last Failed or Cancelled run.
	Err error `json:"-"`
}

// Event is published on TopicStatus for every status transition.
// Seq is registry-wide and strictly increasing.
type Event struct {
	Seq       uint64    `json:"seq"`
	ProcessID string    `json:"process_id"`
	Category  Category  `json:"category"`
	Run       int       `json:"run"`
	From      Status    `json:"from,omitempty"`
	To        Status    `json:"to"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// TopicStatus is the bus topic carrying Events.
const TopicStatus = "process.status"

// StartResult is the coarse outcome of Start, suitable for translating into
// transport status codes (200 / 409 / 404).
type StartResult int

const (
	Started StartResult = iota
	Conflict
	NotFound
)

func (r StartResult) String() string {
	switch r {
	case Started:
		return "started"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}
