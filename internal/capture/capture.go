// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package capture models a camera exposure as two chained registry processes:
// acquisition reads the sensor, finalize persists the frame. Analysis and
// plate solving run lazily over the finalized artifact and are memoized.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/astrogate/internal/device"
	"github.com/ManuGH/astrogate/internal/imaging"
	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/metrics"
	"github.com/ManuGH/astrogate/internal/platesolve"
	"github.com/ManuGH/astrogate/internal/process"
	"github.com/ManuGH/astrogate/internal/telemetry"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// State is the capture lifecycle derived from its two processes.
type State string

const (
	StateCreated    State = "CREATED"
	StateAcquiring  State = "ACQUIRING"
	StateFinalizing State = "FINALIZING"
	StateReady      State = "READY"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// Analyzer computes the report served by Capture.Analyze.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image) (imaging.Report, error)
}

// Deps are shared by every capture of a mediator.
type Deps struct {
	Camera   device.Camera
	Guider   device.Guider // optional
	Analyzer Analyzer
	Solver   platesolve.Solver // optional
	// Dir holds finalized artifacts.
	Dir           string
	FocalLengthMM float64
	// OpenRetries bounds artifact open attempts, spaced by OpenRetryDelay.
	OpenRetries    int
	OpenRetryDelay time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Analyzer == nil {
		d.Analyzer = imaging.Analyzer{}
	}
	if d.Dir == "" {
		d.Dir = filepath.Join(os.TempDir(), "astrogate")
	}
	if d.OpenRetries <= 0 {
		d.OpenRetries = 5
	}
	if d.OpenRetryDelay <= 0 {
		d.OpenRetryDelay = 100 * time.Millisecond
	}
	return d
}

// Metadata is recorded by the acquisition and finalize phases.
type Metadata struct {
	Camera         string        `json:"camera"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	BitDepth       int           `json:"bit_depth"`
	PixelSizeUM    float64       `json:"pixel_size_um"`
	Bayer          bool          `json:"bayer"`
	GuideRMSArcsec float64       `json:"guide_rms_arcsec"`
	Exposure       time.Duration `json:"exposure"`
	Gain           int           `json:"gain"`
	Binning        int           `json:"binning"`
	ExposedAt      time.Time     `json:"exposed_at"`
	Path           string        `json:"path,omitempty"`
	SizeBytes      int64         `json:"size_bytes,omitempty"`
	FinalizedAt    time.Time     `json:"finalized_at,omitempty"`
}

// Analysis is the memoized result of Analyze.
type Analysis struct {
	imaging.Report
	CaptureID  string    `json:"capture_id"`
	ComputedAt time.Time `json:"computed_at"`
}

// Capture is one logical exposure. Its ID is the acquisition process id.
type Capture struct {
	id         string
	finalizeID string
	path       string
	created    time.Time

	reg    *process.Registry
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	settings Settings
	frame    *device.Frame
	meta     Metadata
	// armed is set once finalize has been started for the current frame;
	// from then on the finalize status drives State.
	armed   bool
	gen     uint64
	removed bool

	analysisMu  sync.Mutex
	analysis    *Analysis
	analysisGen uint64

	// solves collapses concurrent PlateSolve calls per generation;
	// solve and solveGen are guarded by mu.
	solves   singleflight.Group
	solve    *platesolve.Result
	solveGen uint64
}

func newCapture(reg *process.Registry, deps Deps) *Capture {
	c := &Capture{
		reg:     reg,
		deps:    deps,
		created: time.Now().UTC(),
		tracer:  telemetry.Tracer("astrogate/capture"),
	}
	c.id = reg.AddProcess(c.acquire, process.CategoryCapture)
	c.finalizeID = reg.AddProcess(c.finalize, process.CategoryCaptureFinalize)
	c.path = filepath.Join(deps.Dir, "capture-"+c.id+imaging.Extension)
	c.logger = log.WithComponent("capture").With().Str(log.FieldCaptureID, c.id).Logger()
	return c
}

func (c *Capture) ID() string { return c.id }

// FinalizeID is the id of the finalize process.
func (c *Capture) FinalizeID() string { return c.finalizeID }

func (c *Capture) CreatedAt() time.Time { return c.created }

// Path is where the finalized artifact lives. The file exists only while the
// capture is Ready and has not been cleaned up.
func (c *Capture) Path() string { return c.path }

func (c *Capture) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Capture) Metadata() Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Capture) stateLocked() State {
	if c.armed {
		fin, _ := c.reg.GetProcess(c.finalizeID)
		switch fin.Status {
		case process.StatusFinished:
			return StateReady
		case process.StatusFailed:
			return StateFailed
		case process.StatusCancelled:
			return StateCancelled
		default:
			return StateFinalizing
		}
	}
	acq, _ := c.reg.GetProcess(c.id)
	switch acq.Status {
	case process.StatusRunning:
		return StateAcquiring
	case process.StatusFailed:
		return StateFailed
	case process.StatusCancelled:
		return StateCancelled
	case process.StatusFinished:
		return StateFinalizing
	default:
		return StateCreated
	}
}

// Start validates s and starts acquisition. Finalize is started by the
// acquisition itself. Errors are ErrInvalidSettings, ErrRemoved or those of
// process.Registry.Start; a capture that is still finalizing reports a
// *process.ConflictError naming the finalize process.
func (c *Capture) Start(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s = s.withDefaults()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return ErrRemoved
	}
	if fin, ok := c.reg.GetProcess(c.finalizeID); ok && fin.Status == process.StatusRunning {
		return &process.ConflictError{ID: c.id, Category: process.CategoryCapture, Conflicts: []string{c.finalizeID}}
	}
	if err := c.reg.Start(c.id); err != nil {
		return err
	}
	// acquisition blocks on c.mu until the new settings are in place
	c.settings = s
	c.frame = nil
	c.meta = Metadata{}
	c.armed = false
	c.gen++
	return nil
}

// Stop cancels whichever phase is running.
func (c *Capture) Stop() bool {
	acq := c.reg.Stop(c.id)
	fin := c.reg.Stop(c.finalizeID)
	return acq || fin
}

// RetryFinalize runs finalize again over the frame kept from a failed or
// cancelled finalize, without exposing again.
func (c *Capture) RetryFinalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return ErrRemoved
	}
	if c.frame == nil {
		return ErrNoFrame
	}
	if err := c.reg.Start(c.finalizeID); err != nil {
		return err
	}
	c.armed = true
	c.gen++
	c.logger.Info().Str(log.FieldEvent, "capture.finalize_retry").Msg("finalize restarted")
	return nil
}

func (c *Capture) acquire(ctx context.Context) (any, error) {
	ctx, span := c.tracer.Start(ctx, "capture.acquire",
		trace.WithAttributes(telemetry.CaptureAttributes(c.id, "frame", false)...))
	defer span.End()

	c.mu.Lock()
	s := c.settings
	c.mu.Unlock()

	l := log.WithContext(ctx, c.logger)
	l.Info().
		Dur("exposure", s.Duration).
		Int("gain", s.Gain).
		Int("binning", s.Binning).
		Float64("roi", s.ROI).
		Msg("exposure started")

	frame, err := c.deps.Camera.Expose(ctx, s.exposure())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("expose: %w", err)
	}

	info := c.deps.Camera.Info()
	meta := Metadata{
		Camera:      info.Name,
		Width:       frame.Width,
		Height:      frame.Height,
		BitDepth:    frame.BitDepth,
		PixelSizeUM: frame.PixelSizeUM,
		Bayer:       frame.Bayer,
		Exposure:    frame.Duration,
		Gain:        s.Gain,
		Binning:     s.Binning,
		ExposedAt:   frame.ExposedAt,
	}
	if c.deps.Guider != nil {
		rms, err := c.deps.Guider.RMSErrorArcsec(ctx)
		if err != nil {
			l.Warn().Err(err).Msg("guider error unavailable")
		} else {
			meta.GuideRMSArcsec = rms
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, ErrRemoved
	}
	c.frame = frame
	c.meta = meta
	if err := c.reg.Start(c.finalizeID); err != nil {
		return nil, fmt.Errorf("start finalize: %w", err)
	}
	c.armed = true
	l.Info().Int("width", frame.Width).Int("height", frame.Height).Msg("exposure complete")
	return meta, nil
}

func (c *Capture) finalize(ctx context.Context) (any, error) {
	ctx, span := c.tracer.Start(ctx, "capture.finalize",
		trace.WithAttributes(telemetry.CaptureAttributes(c.id, "image", false)...))
	defer span.End()
	l := log.WithContext(ctx, c.logger)

	c.mu.Lock()
	frame := c.frame
	c.mu.Unlock()
	if frame == nil {
		return nil, ErrNoFrame
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	pendingFile, err := renameio.NewPendingFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			l.Debug().Err(err).Msg("cleanup pending artifact")
		}
	}()

	if err := imaging.Encode(pendingFile, frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, ErrRemoved
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("atomically replace artifact: %w", err)
	}
	c.meta.Path = c.path
	c.meta.FinalizedAt = time.Now().UTC()
	if fi, err := os.Stat(c.path); err == nil {
		c.meta.SizeBytes = fi.Size()
	}
	c.frame = nil
	l.Info().Str(log.FieldPath, c.path).Int64("bytes", c.meta.SizeBytes).Msg("artifact written")
	return c.meta, nil
}

// readyArtifact returns the current generation once the artifact is servable.
func (c *Capture) readyArtifact(kind string) (uint64, error) {
	c.mu.Lock()
	st := c.stateLocked()
	gen := c.gen
	c.mu.Unlock()

	if st != StateReady {
		metrics.RecordArtifact(kind, "not_ready")
		return 0, &NotReadyError{ID: c.id, State: st}
	}
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordArtifact(kind, "missing")
			return 0, fmt.Errorf("%w: %s", ErrArtifactMissing, c.path)
		}
		return 0, err
	}
	return gen, nil
}

// Analyze computes pixel statistics and star detection once per finalized
// artifact. Before the capture is Ready it returns a *NotReadyError.
func (c *Capture) Analyze(ctx context.Context) (*Analysis, error) {
	gen, err := c.readyArtifact("analysis")
	if err != nil {
		return nil, err
	}

	c.analysisMu.Lock()
	defer c.analysisMu.Unlock()
	if c.analysis != nil && c.analysisGen == gen {
		metrics.RecordArtifact("analysis", "cached")
		return c.analysis, nil
	}

	ctx, span := c.tracer.Start(ctx, "capture.analyze",
		trace.WithAttributes(telemetry.CaptureAttributes(c.id, "analysis", false)...))
	defer span.End()

	img, err := c.openArtifact(ctx)
	if err != nil {
		metrics.RecordArtifact("analysis", "error")
		span.RecordError(err)
		return nil, err
	}
	report, err := c.deps.Analyzer.Analyze(ctx, img)
	if err != nil {
		metrics.RecordArtifact("analysis", "error")
		span.RecordError(err)
		return nil, fmt.Errorf("analyze: %w", err)
	}

	a := &Analysis{Report: report, CaptureID: c.id, ComputedAt: time.Now().UTC()}
	c.analysis, c.analysisGen = a, gen
	metrics.RecordArtifact("analysis", "computed")
	logger := log.WithContext(ctx, c.logger)
	logger.Info().
		Int("stars", report.Stars).
		Float64("hfr", report.HFR).
		Msg("capture analyzed")
	return a, nil
}

// PlateSolve solves the finalized artifact once. A solver run that finds no
// solution is memoized like a success; solver errors are not. Concurrent
// callers share a single solver run, including its error.
func (c *Capture) PlateSolve(ctx context.Context) (*platesolve.Result, error) {
	gen, err := c.readyArtifact("platesolve")
	if err != nil {
		return nil, err
	}
	if c.deps.Solver == nil {
		return nil, platesolve.ErrUnavailable
	}
	if res := c.cachedSolve(gen); res != nil {
		metrics.RecordArtifact("platesolve", "cached")
		return res, nil
	}

	v, err, shared := c.solves.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if res := c.cachedSolve(gen); res != nil {
			return res, nil
		}
		return c.plateSolve(ctx, gen)
	})
	if shared {
		metrics.RecordArtifact("platesolve", "shared")
	}
	if err != nil {
		return nil, err
	}
	return v.(*platesolve.Result), nil
}

func (c *Capture) cachedSolve(gen uint64) *platesolve.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.solve != nil && c.solveGen == gen {
		return c.solve
	}
	return nil
}

func (c *Capture) plateSolve(ctx context.Context, gen uint64) (*platesolve.Result, error) {
	ctx, span := c.tracer.Start(ctx, "capture.platesolve",
		trace.WithAttributes(telemetry.CaptureAttributes(c.id, "platesolve", false)...))
	defer span.End()

	c.mu.Lock()
	req := platesolve.Request{
		Path:          c.path,
		PixelSizeUM:   c.meta.PixelSizeUM,
		FocalLengthMM: c.deps.FocalLengthMM,
		Hint:          c.settings.Target,
	}
	c.mu.Unlock()

	res, err := c.deps.Solver.Solve(ctx, req)
	if err != nil {
		metrics.RecordArtifact("platesolve", "error")
		span.RecordError(err)
		return nil, fmt.Errorf("plate solve: %w", err)
	}
	c.mu.Lock()
	c.solve, c.solveGen = res, gen
	c.mu.Unlock()
	metrics.RecordArtifact("platesolve", "computed")
	return res, nil
}

// openArtifact decodes the artifact, retrying opens that race with the
// finalize writer.
func (c *Capture) openArtifact(ctx context.Context) (image.Image, error) {
	op := func() (image.Image, error) {
		f, err := os.Open(c.path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := imaging.Decode(f)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode artifact: %w", err))
		}
		return img, nil
	}
	img, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.deps.OpenRetryDelay)),
		backoff.WithMaxTries(uint(c.deps.OpenRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.IncOpenRetry()
			c.logger.Debug().Err(err).Dur("retry_in", next).Msg("artifact open retry")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return img, nil
}

// Cleanup removes the artifact. Calling it again, or before the artifact
// exists, is a no-op.
func (c *Capture) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked()
}

func (c *Capture) cleanupLocked() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	if err == nil {
		c.logger.Info().Str(log.FieldPath, c.path).Msg("artifact removed")
	}
	return nil
}

// close retires the capture. Phases still running stop before persisting.
func (c *Capture) close() error {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	c.frame = nil
	return c.cleanupLocked()
}
