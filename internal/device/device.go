// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device declares the capabilities the core needs from rig hardware.
// Drivers live behind these interfaces; the core never reaches into them.
package device

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("device not connected")
	ErrUnsupported  = errors.New("operation not supported by device")
)

// CameraInfo describes a connected camera sensor.
type CameraInfo struct {
	Name        string  `json:"name"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	BitDepth    int     `json:"bit_depth"`
	PixelSizeUM float64 `json:"pixel_size_um"`
	Bayer       bool    `json:"bayer"`
	CanCool     bool    `json:"can_cool"`
}

// ExposureRequest is what the camera needs for one frame.
// ROI is the centred fraction of the sensor to read out, in (0, 1].
type ExposureRequest struct {
	Duration time.Duration
	Gain     int
	Binning  int
	ROI      float64
}

// Frame is raw sensor data, row-major, one uint16 per pixel.
type Frame struct {
	Width       int
	Height      int
	BitDepth    int
	PixelSizeUM float64
	Bayer       bool
	Pixels      []uint16
	ExposedAt   time.Time
	Duration    time.Duration
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) uint16 {
	return f.Pixels[y*f.Width+x]
}

// Camera takes exposures. Expose must return ctx.Err() promptly when ctx is
// cancelled mid-exposure.
type Camera interface {
	Info() CameraInfo
	Expose(ctx context.Context, req ExposureRequest) (*Frame, error)
}

// Cooler drives a sensor's thermoelectric cooler.
type Cooler interface {
	Temperature(ctx context.Context) (float64, error)
	SetTarget(ctx context.Context, celsius float64) error
	SetPower(ctx context.Context, on bool) error
}

// Guider reports the current guiding error, recorded with each capture.
type Guider interface {
	RMSErrorArcsec(ctx context.Context) (float64, error)
}
