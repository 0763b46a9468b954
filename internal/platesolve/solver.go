// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package platesolve wraps external astrometric solvers. Solving itself is
// opaque to this module; it only prepares requests and reads results.
package platesolve

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when no solver is configured.
var ErrUnavailable = errors.New("plate solver unavailable")

// Coordinates are J2000 equatorial coordinates in degrees.
type Coordinates struct {
	RA  float64 `json:"ra" yaml:"ra"`
	Dec float64 `json:"dec" yaml:"dec"`
}

// Request describes an image to solve.
type Request struct {
	Path          string
	PixelSizeUM   float64
	FocalLengthMM float64
	// Hint narrows the search when the pointing is roughly known.
	Hint *Coordinates
}

// PixelScale returns arcseconds per pixel, or 0 when the optics are unknown.
func (r Request) PixelScale() float64 {
	if r.PixelSizeUM <= 0 || r.FocalLengthMM <= 0 {
		return 0
	}
	return 206.265 * r.PixelSizeUM / r.FocalLengthMM
}

// Result of a solve attempt. Success=false with a nil error means the solver
// ran but found no solution.
type Result struct {
	Success     bool          `json:"success"`
	Coordinates Coordinates   `json:"coordinates"`
	Rotation    float64       `json:"rotation"`
	PixelScale  float64       `json:"pixel_scale"`
	Message     string        `json:"message,omitempty"`
	SolvedAt    time.Time     `json:"solved_at"`
	Duration    time.Duration `json:"duration"`
}

// Solver determines where an image points.
type Solver interface {
	Solve(ctx context.Context, req Request) (*Result, error)
}

// Stub reports a fixed solution, centred on the hint when one is given.
// It stands in for a real solver when the rig runs in virtual mode.
type Stub struct {
	Center Coordinates
}

func (s Stub) Solve(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := s.Center
	if req.Hint != nil {
		c = *req.Hint
	}
	return &Result{
		Success:     true,
		Coordinates: c,
		PixelScale:  req.PixelScale(),
		SolvedAt:    time.Now().UTC(),
	}, nil
}
