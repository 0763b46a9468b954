// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim provides virtual rig hardware for tests and for running the
// daemon without a camera attached.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ManuGH/astrogate/internal/device"
)

// CameraConfig shapes the synthetic star field.
type CameraConfig struct {
	Name        string
	Width       int
	Height      int
	PixelSizeUM float64
	Bayer       bool
	Stars       int
	Background  float64
	Noise       float64
	Seed        uint64
	// TimeScale multiplies the requested exposure duration; 0 returns immediately.
	TimeScale float64
}

type star struct {
	x, y  float64
	flux  float64
	sigma float64
}

// Camera is a deterministic virtual camera: the same seed always renders the
// same field, which keeps star counts stable across test runs.
type Camera struct {
	cfg      CameraConfig
	field    []star
	exposed  atomic.Int64
	failNext atomic.Pointer[error]
}

func NewCamera(cfg CameraConfig) *Camera {
	if cfg.Name == "" {
		cfg.Name = "Simulated Camera"
	}
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.PixelSizeUM <= 0 {
		cfg.PixelSizeUM = 3.76
	}
	if cfg.Stars < 0 {
		cfg.Stars = 0
	}
	if cfg.Background <= 0 {
		cfg.Background = 1000
	}
	if cfg.Noise < 0 {
		cfg.Noise = 0
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	field := make([]star, 0, cfg.Stars)
	margin := 8.0
	for len(field) < cfg.Stars {
		field = append(field, star{
			x:     margin + rng.Float64()*(float64(cfg.Width)-2*margin),
			y:     margin + rng.Float64()*(float64(cfg.Height)-2*margin),
			flux:  8000 + rng.Float64()*40000,
			sigma: 1.2 + rng.Float64()*0.8,
		})
	}
	return &Camera{cfg: cfg, field: field}
}

func (c *Camera) Info() device.CameraInfo {
	return device.CameraInfo{
		Name:        c.cfg.Name,
		Width:       c.cfg.Width,
		Height:      c.cfg.Height,
		BitDepth:    16,
		PixelSizeUM: c.cfg.PixelSizeUM,
		Bayer:       c.cfg.Bayer,
		CanCool:     true,
	}
}

// Exposures returns how many frames were completed.
func (c *Camera) Exposures() int64 { return c.exposed.Load() }

// FailNext makes the next Expose return err.
func (c *Camera) FailNext(err error) { c.failNext.Store(&err) }

func (c *Camera) Expose(ctx context.Context, req device.ExposureRequest) (*device.Frame, error) {
	if req.Binning < 1 {
		return nil, fmt.Errorf("binning %d out of range", req.Binning)
	}
	if !(req.ROI > 0 && req.ROI <= 1) {
		return nil, fmt.Errorf("roi %.3f out of range", req.ROI)
	}

	if wait := time.Duration(float64(req.Duration) * c.cfg.TimeScale); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if errp := c.failNext.Swap(nil); errp != nil {
		return nil, *errp
	}

	frame := c.render(req)
	c.exposed.Add(1)
	return frame, nil
}

func (c *Camera) render(req device.ExposureRequest) *device.Frame {
	roiW := max(1, int(float64(c.cfg.Width)*req.ROI))
	roiH := max(1, int(float64(c.cfg.Height)*req.ROI))
	offX := float64(c.cfg.Width-roiW) / 2
	offY := float64(c.cfg.Height-roiH) / 2
	bin := float64(req.Binning)
	w := max(1, roiW/req.Binning)
	h := max(1, roiH/req.Binning)

	gain := 1 + float64(req.Gain)/100
	pix := make([]float64, w*h)
	for i := range pix {
		pix[i] = c.cfg.Background
	}

	for _, s := range c.field {
		cx := (s.x - offX) / bin
		cy := (s.y - offY) / bin
		sigma := s.sigma / math.Sqrt(bin)
		r := int(math.Ceil(4 * sigma))
		for y := int(cy) - r; y <= int(cy)+r; y++ {
			if y < 0 || y >= h {
				continue
			}
			for x := int(cx) - r; x <= int(cx)+r; x++ {
				if x < 0 || x >= w {
					continue
				}
				dx, dy := float64(x)-cx, float64(y)-cy
				pix[y*w+x] += s.flux * gain * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			}
		}
	}

	// noise is keyed on the request so identical requests render identical frames
	rng := rand.New(rand.NewPCG(c.cfg.Seed+uint64(req.Gain), uint64(req.Binning)))
	out := make([]uint16, w*h)
	for i, v := range pix {
		v += rng.NormFloat64() * c.cfg.Noise
		out[i] = uint16(math.Max(0, math.Min(65535, v)))
	}

	return &device.Frame{
		Width:       w,
		Height:      h,
		BitDepth:    16,
		PixelSizeUM: c.cfg.PixelSizeUM * bin,
		Bayer:       c.cfg.Bayer,
		Pixels:      out,
		ExposedAt:   time.Now().UTC(),
		Duration:    req.Duration,
	}
}
