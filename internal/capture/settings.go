// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"fmt"
	"time"

	"github.com/ManuGH/astrogate/internal/device"
	"github.com/ManuGH/astrogate/internal/platesolve"
)

const (
	MaxDuration = time.Hour
	MaxBinning  = 4
)

// Settings are the exposure parameters of one capture.
// Zero Binning and ROI mean 1x1 and the full sensor.
type Settings struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Gain     int           `json:"gain" yaml:"gain"`
	Binning  int           `json:"binning" yaml:"binning"`
	ROI      float64       `json:"roi" yaml:"roi"`
	// Target hints the plate solver.
	Target *platesolve.Coordinates `json:"target,omitempty" yaml:"target,omitempty"`
}

func (s Settings) withDefaults() Settings {
	if s.Binning == 0 {
		s.Binning = 1
	}
	if s.ROI == 0 {
		s.ROI = 1
	}
	return s
}

// Validate reports the first invalid field, wrapped in ErrInvalidSettings.
func (s Settings) Validate() error {
	s = s.withDefaults()
	switch {
	case s.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidSettings)
	case s.Duration > MaxDuration:
		return fmt.Errorf("%w: duration %s exceeds %s", ErrInvalidSettings, s.Duration, MaxDuration)
	case s.Gain < 0:
		return fmt.Errorf("%w: negative gain %d", ErrInvalidSettings, s.Gain)
	case s.Binning < 1 || s.Binning > MaxBinning:
		return fmt.Errorf("%w: binning %d outside 1..%d", ErrInvalidSettings, s.Binning, MaxBinning)
	case !(s.ROI > 0 && s.ROI <= 1):
		return fmt.Errorf("%w: roi %g outside (0, 1]", ErrInvalidSettings, s.ROI)
	}
	if t := s.Target; t != nil {
		if !(t.RA >= 0 && t.RA < 360) || !(t.Dec >= -90 && t.Dec <= 90) {
			return fmt.Errorf("%w: target ra=%g dec=%g out of range", ErrInvalidSettings, t.RA, t.Dec)
		}
	}
	return nil
}

func (s Settings) exposure() device.ExposureRequest {
	return device.ExposureRequest{
		Duration: s.Duration,
		Gain:     s.Gain,
		Binning:  s.Binning,
		ROI:      s.ROI,
	}
}
