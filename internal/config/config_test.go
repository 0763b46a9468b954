// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/astrogate/internal/testutil"
	"github.com/ManuGH/astrogate/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "astrogate.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASTROGATE_DATA_DIR", dir)

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, filepath.Join(dir, "captures"), cfg.Capture.Dir)
	assert.DirExists(t, cfg.Capture.Dir)
	assert.Equal(t, 5, cfg.Capture.OpenRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.OpenRetryDelay)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, 7*24*time.Hour, cfg.Store.Retention)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logLevel: debug
dataDir: `+dir+`
api:
  listenAddr: 127.0.0.1:9000
  rateLimit: 30
store:
  backend: badger
thermal:
  stepInterval: 250ms
capture:
  openRetryDelay: 20ms
platesolve:
  command: /usr/bin/astap
`)
	t.Setenv("ASTROGATE_RATE_LIMIT", "90")
	t.Setenv("ASTROGATE_PLATESOLVE_TIMEOUT", "45s")
	t.Setenv("ASTROGATE_STORE_RETENTION", "24h")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr)
	assert.Equal(t, 90, cfg.API.RateLimit, "env wins over file")
	assert.Equal(t, filepath.Join(dir, "history"), cfg.Store.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Thermal.StepInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Capture.OpenRetryDelay)
	assert.Equal(t, "/usr/bin/astap", cfg.PlateSolve.Command)
	assert.Equal(t, 45*time.Second, cfg.PlateSolve.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Store.Retention)
	assert.Contains(t, l.ConsumedEnvKeys, "ASTROGATE_RATE_LIMIT")
}

func TestLoad_ExampleConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASTROGATE_DATA_DIR", dir)

	path := filepath.Join(testutil.MustRepoRoot(t), "config.example.yaml")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dir, "history"), cfg.Store.Path)
	assert.Equal(t, 2, cfg.PlateSolve.Downsample)
	assert.InDelta(t, 83.82, cfg.PlateSolve.StubRA, 1e-9)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "dataDir: "+dir+"\ncamera:\n  exposure: 3\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
	_, err := NewLoader(p, "").Load()
	require.ErrorContains(t, err, "only YAML supported")
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("ASTROGATE_DATA_DIR", t.TempDir())
	t.Setenv("ASTROGATE_CAPTURE_OPEN_RETRIES", "many")
	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Capture.OpenRetries)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Capture.Dir = filepath.Join(cfg.DataDir, "captures")
	require.NoError(t, Validate(cfg))

	cfg.LogLevel = "loud"
	cfg.Store.Backend = "redis"
	cfg.Store.Retention = -time.Hour
	cfg.Camera.Virtual = false
	cfg.Capture.OpenRetries = 0
	cfg.Thermal.StepInterval = 0
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"

	err := Validate(cfg)
	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, 0, len(ve.Errors()))
	for _, e := range ve.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"logLevel", "store.backend", "store.retention", "camera.virtual", "capture.openRetries",
		"thermal.stepInterval", "telemetry.exporter",
	}, fields)
}

func TestHolder_ReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "dataDir: "+dir+"\nlogLevel: info\n")
	l := NewLoader(path, "")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l, path)

	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	writeConfig(t, dir, "dataDir: "+dir+"\nlogLevel: warn\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().LogLevel)
	assert.Equal(t, "warn", (<-ch).LogLevel)

	writeConfig(t, dir, "dataDir: "+dir+"\nlogLevel: shouting\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().LogLevel)
	assert.Empty(t, ch)
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	// a reload can observe the file mid-write; keep dataDir pinned regardless
	t.Setenv("ASTROGATE_DATA_DIR", dir)
	path := writeConfig(t, dir, "dataDir: "+dir+"\nlogLevel: info\n")
	l := NewLoader(path, "")
	initial, err := l.Load()
	require.NoError(t, err)

	h := NewHolder(initial, l, path)
	h.debounce = 10 * time.Millisecond
	ch := make(chan Config, 4)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// the watch is registered asynchronously; keep writing until it is seen
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("dataDir: "+dir+"\nlogLevel: debug\n"), 0o600)
		select {
		case cfg := <-ch:
			return cfg.LogLevel == "debug"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", ""), "")
	require.NoError(t, h.Watch(context.Background()))
}
