// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration from YAML and ASTROGATE_*
// environment variables.
package config

import "time"

// Config is the effective configuration after defaults, file and env.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	DataDir    string           `yaml:"dataDir"`
	API        APIConfig        `yaml:"api"`
	Store      StoreConfig      `yaml:"store"`
	Camera     CameraConfig     `yaml:"camera"`
	Thermal    ThermalConfig    `yaml:"thermal"`
	Capture    CaptureConfig    `yaml:"capture"`
	PlateSolve PlateSolveConfig `yaml:"platesolve"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Version is injected from the binary, never read from file.
	Version string `yaml:"-"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `yaml:"backend"`
	// Path is the badger directory; defaults to <dataDir>/history.
	Path string `yaml:"path"`
	// Retention bounds how long history records are kept; 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

type CameraConfig struct {
	Virtual     bool    `yaml:"virtual"`
	Name        string  `yaml:"name"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	PixelSizeUM float64 `yaml:"pixelSizeUM"`
	Bayer       bool    `yaml:"bayer"`
	Stars       int     `yaml:"stars"`
	Seed        uint64  `yaml:"seed"`
	TimeScale   float64 `yaml:"timeScale"`
	GuideRMS    float64 `yaml:"guideRMS"`
}

type ThermalConfig struct {
	StepInterval time.Duration `yaml:"stepInterval"`
	AmbientC     float64       `yaml:"ambientC"`
	// CoolerRate is the simulated cooler slew in degrees per second.
	CoolerRate float64 `yaml:"coolerRate"`
}

type CaptureConfig struct {
	// Dir defaults to <dataDir>/captures.
	Dir            string        `yaml:"dir"`
	OpenRetries    int           `yaml:"openRetries"`
	OpenRetryDelay time.Duration `yaml:"openRetryDelay"`
	FocalLengthMM  float64       `yaml:"focalLengthMM"`
}

type PlateSolveConfig struct {
	// Command is the solver binary; empty uses the stub solver in virtual mode.
	Command         string        `yaml:"command"`
	SearchRadiusDeg float64       `yaml:"searchRadiusDeg"`
	Downsample      int           `yaml:"downsample"`
	Timeout         time.Duration `yaml:"timeout"`
	StubRA          float64       `yaml:"stubRA"`
	StubDec         float64       `yaml:"stubDec"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}
