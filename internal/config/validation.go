// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/astrogate/internal/validate"
	"github.com/rs/zerolog"
)

// Validate checks cfg and creates missing data directories.
func Validate(cfg Config) error {
	v := validate.New()

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil || cfg.LogLevel == "" {
		v.AddError("logLevel", "unknown log level", cfg.LogLevel)
	}
	v.Directory("dataDir", cfg.DataDir, false)

	v.NotEmpty("api.listenAddr", cfg.API.ListenAddr)
	v.Range("api.rateLimit", cfg.API.RateLimit, 0, 100000)

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "badger"})
	v.NonNegativeDuration("store.retention", cfg.Store.Retention)

	if !cfg.Camera.Virtual {
		v.AddError("camera.virtual", "no hardware drivers are built in; enable the virtual camera", cfg.Camera.Virtual)
	}
	v.Range("camera.width", cfg.Camera.Width, 16, 16384)
	v.Range("camera.height", cfg.Camera.Height, 16, 16384)
	v.FloatRange("camera.pixelSizeUM", cfg.Camera.PixelSizeUM, 0.5, 50)
	v.Range("camera.stars", cfg.Camera.Stars, 0, 10000)
	v.FloatRange("camera.timeScale", cfg.Camera.TimeScale, 0, 10)

	v.PositiveDuration("thermal.stepInterval", cfg.Thermal.StepInterval)
	v.FloatRange("thermal.ambientC", cfg.Thermal.AmbientC, -40, 50)
	v.FloatRange("thermal.coolerRate", cfg.Thermal.CoolerRate, 0.01, 100)

	v.Directory("capture.dir", cfg.Capture.Dir, false)
	v.Range("capture.openRetries", cfg.Capture.OpenRetries, 1, 50)
	v.PositiveDuration("capture.openRetryDelay", cfg.Capture.OpenRetryDelay)
	v.FloatRange("capture.focalLengthMM", cfg.Capture.FocalLengthMM, 0, 20000)

	v.FloatRange("platesolve.searchRadiusDeg", cfg.PlateSolve.SearchRadiusDeg, 0, 180)
	v.Range("platesolve.downsample", cfg.PlateSolve.Downsample, 0, 8)
	v.PositiveDuration("platesolve.timeout", cfg.PlateSolve.Timeout)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
