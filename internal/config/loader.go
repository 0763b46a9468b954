// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "data",
		API: APIConfig{
			ListenAddr: ":8480",
			RateLimit:  600,
		},
		Store: StoreConfig{Backend: "memory", Retention: 7 * 24 * time.Hour},
		Camera: CameraConfig{
			Virtual:     true,
			Name:        "Simulated Camera",
			Width:       1280,
			Height:      960,
			PixelSizeUM: 3.76,
			Stars:       60,
			Seed:        1,
			TimeScale:   1,
			GuideRMS:    0.6,
		},
		Thermal: ThermalConfig{
			StepInterval: 5 * time.Second,
			AmbientC:     20,
			CoolerRate:   0.5,
		},
		Capture: CaptureConfig{
			OpenRetries:    5,
			OpenRetryDelay: 100 * time.Millisecond,
			FocalLengthMM:  400,
		},
		PlateSolve: PlateSolveConfig{
			SearchRadiusDeg: 30,
			Timeout:         2 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1,
			Environment:  "production",
		},
	}
}

// Load applies defaults, the YAML file (strict) and environment overrides,
// resolves derived paths and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Capture.Dir == "" {
		cfg.Capture.Dir = filepath.Join(cfg.DataDir, "captures")
	}
	if cfg.Store.Backend == "badger" && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "history")
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown fields are rejected.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.DataDir)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvPrefix+"RATE_LIMIT", cfg.API.RateLimit)

	cfg.Store.Backend = l.envString(EnvPrefix+"STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString(EnvPrefix+"STORE_PATH", cfg.Store.Path)
	cfg.Store.Retention = l.envDuration(EnvPrefix+"STORE_RETENTION", cfg.Store.Retention)

	cfg.Camera.Virtual = l.envBool(EnvPrefix+"CAMERA_VIRTUAL", cfg.Camera.Virtual)
	cfg.Camera.TimeScale = l.envFloat(EnvPrefix+"CAMERA_TIME_SCALE", cfg.Camera.TimeScale)

	cfg.Thermal.StepInterval = l.envDuration(EnvPrefix+"THERMAL_STEP_INTERVAL", cfg.Thermal.StepInterval)
	cfg.Thermal.AmbientC = l.envFloat(EnvPrefix+"THERMAL_AMBIENT_C", cfg.Thermal.AmbientC)

	cfg.Capture.Dir = l.envString(EnvPrefix+"CAPTURE_DIR", cfg.Capture.Dir)
	cfg.Capture.OpenRetries = l.envInt(EnvPrefix+"CAPTURE_OPEN_RETRIES", cfg.Capture.OpenRetries)
	cfg.Capture.OpenRetryDelay = l.envDuration(EnvPrefix+"CAPTURE_OPEN_RETRY_DELAY", cfg.Capture.OpenRetryDelay)
	cfg.Capture.FocalLengthMM = l.envFloat(EnvPrefix+"FOCAL_LENGTH_MM", cfg.Capture.FocalLengthMM)

	cfg.PlateSolve.Command = l.envString(EnvPrefix+"PLATESOLVE_COMMAND", cfg.PlateSolve.Command)
	cfg.PlateSolve.Timeout = l.envDuration(EnvPrefix+"PLATESOLVE_TIMEOUT", cfg.PlateSolve.Timeout)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TRACE_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
