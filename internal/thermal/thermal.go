// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package thermal runs sensor cooling and warming ramps as registry processes.
// Cooling and warming share a conflict group, so at most one ramp drives the
// cooler at a time.
package thermal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/astrogate/internal/device"
	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/process"
	"github.com/rs/zerolog"
)

var ErrInvalidTarget = errors.New("invalid cooling target")

const (
	minTargetC = -60
	maxTargetC = 30
)

// Config tunes ramps.
type Config struct {
	// Step is the interval between setpoint changes.
	Step time.Duration
	// AmbientC is where warming ramps end before the cooler is powered off.
	AmbientC float64
}

// Result is returned by a completed ramp.
type Result struct {
	TargetC      float64 `json:"target_c"`
	TemperatureC float64 `json:"temperature_c"`
	PoweredOff   bool    `json:"powered_off"`
}

type Service struct {
	reg    *process.Registry
	cooler device.Cooler
	cfg    Config
	logger zerolog.Logger
}

func NewService(reg *process.Registry, cooler device.Cooler, cfg Config) *Service {
	if cfg.Step <= 0 {
		cfg.Step = 5 * time.Second
	}
	return &Service{
		reg:    reg,
		cooler: cooler,
		cfg:    cfg,
		logger: log.WithComponent("thermal"),
	}
}

// Cool registers and starts a ramp to target over duration. A rejected start
// leaves nothing registered.
func (s *Service) Cool(target float64, duration time.Duration) (string, error) {
	if !(target >= minTargetC && target <= maxTargetC) {
		return "", fmt.Errorf("%w: %.1f°C outside [%d, %d]", ErrInvalidTarget, target, minTargetC, maxTargetC)
	}
	if duration < 0 {
		return "", fmt.Errorf("%w: negative duration", ErrInvalidTarget)
	}
	return s.launch(s.CoolWork(target, duration), process.CategoryCameraCool)
}

// Warm registers and starts a ramp back to ambient followed by power off.
func (s *Service) Warm(duration time.Duration) (string, error) {
	if duration < 0 {
		return "", fmt.Errorf("%w: negative duration", ErrInvalidTarget)
	}
	return s.launch(s.WarmWork(duration), process.CategoryCameraWarm)
}

func (s *Service) launch(work process.Work, category process.Category) (string, error) {
	id := s.reg.AddProcess(work, category)
	if err := s.reg.Start(id); err != nil {
		s.reg.RemoveProcess(id)
		return "", err
	}
	return id, nil
}

// CoolWork powers the cooler and ramps the setpoint to target.
func (s *Service) CoolWork(target float64, duration time.Duration) process.Work {
	return func(ctx context.Context) (any, error) {
		if err := s.cooler.SetPower(ctx, true); err != nil {
			return nil, fmt.Errorf("cooler power on: %w", err)
		}
		if err := s.ramp(ctx, target, duration); err != nil {
			return nil, err
		}
		temp, err := s.cooler.Temperature(ctx)
		if err != nil {
			return nil, err
		}
		return Result{TargetC: target, TemperatureC: temp}, nil
	}
}

// WarmWork ramps to ambient and powers the cooler off.
func (s *Service) WarmWork(duration time.Duration) process.Work {
	return func(ctx context.Context) (any, error) {
		if err := s.ramp(ctx, s.cfg.AmbientC, duration); err != nil {
			return nil, err
		}
		if err := s.cooler.SetPower(ctx, false); err != nil {
			return nil, fmt.Errorf("cooler power off: %w", err)
		}
		temp, err := s.cooler.Temperature(ctx)
		if err != nil {
			return nil, err
		}
		return Result{TargetC: s.cfg.AmbientC, TemperatureC: temp, PoweredOff: true}, nil
	}
}

// ramp moves the setpoint linearly from the current temperature to target.
// Cancellation leaves the last setpoint in place.
func (s *Service) ramp(ctx context.Context, target float64, duration time.Duration) error {
	from, err := s.cooler.Temperature(ctx)
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}
	steps := int(duration / s.cfg.Step)
	if steps < 1 {
		steps = 1
	}
	interval := duration / time.Duration(steps)
	l := log.WithContext(ctx, s.logger)

	for i := 1; i <= steps; i++ {
		sp := from + (target-from)*float64(i)/float64(steps)
		if err := s.cooler.SetTarget(ctx, sp); err != nil {
			return fmt.Errorf("set target: %w", err)
		}
		l.Debug().Float64(log.FieldTemperature, sp).Int("step", i).Int("steps", steps).Msg("setpoint")
		if i == steps {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
