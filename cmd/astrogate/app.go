// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/astrogate/internal/api"
	"github.com/ManuGH/astrogate/internal/bus"
	"github.com/ManuGH/astrogate/internal/capture"
	"github.com/ManuGH/astrogate/internal/config"
	"github.com/ManuGH/astrogate/internal/device/sim"
	"github.com/ManuGH/astrogate/internal/health"
	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/platesolve"
	"github.com/ManuGH/astrogate/internal/process"
	"github.com/ManuGH/astrogate/internal/store"
	"github.com/ManuGH/astrogate/internal/telemetry"
	"github.com/ManuGH/astrogate/internal/thermal"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// app holds every long-lived component of the daemon.
type app struct {
	cfg      config.Config
	provider *telemetry.Provider
	history  store.HistoryStore
	events   *bus.MemoryBus
	registry *process.Registry
	captures *capture.Mediator
	thermal  *thermal.Service
	health   *health.Manager
	server   *api.Server
	logger   zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.WithComponent("daemon")}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "astrogate",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.provider = provider

	history, err := store.OpenHistoryStore(cfg.Store.Backend, cfg.Store.Path, cfg.Store.Retention)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("history store: %w", err)
	}
	a.history = history

	a.events = bus.NewMemoryBus()
	a.registry = process.NewRegistry(
		process.WithBus(a.events),
		process.WithHistory(history),
	)

	camera := sim.NewCamera(sim.CameraConfig{
		Name:        cfg.Camera.Name,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		PixelSizeUM: cfg.Camera.PixelSizeUM,
		Bayer:       cfg.Camera.Bayer,
		Stars:       cfg.Camera.Stars,
		Seed:        cfg.Camera.Seed,
		TimeScale:   cfg.Camera.TimeScale,
	})
	cooler := sim.NewCooler(cfg.Thermal.AmbientC, cfg.Thermal.CoolerRate)

	a.captures = capture.NewMediator(a.registry, capture.Deps{
		Camera:         camera,
		Guider:         sim.Guider{RMS: cfg.Camera.GuideRMS},
		Solver:         newSolver(cfg.PlateSolve),
		Dir:            cfg.Capture.Dir,
		FocalLengthMM:  cfg.Capture.FocalLengthMM,
		OpenRetries:    cfg.Capture.OpenRetries,
		OpenRetryDelay: cfg.Capture.OpenRetryDelay,
	})
	a.thermal = thermal.NewService(a.registry, cooler, thermal.Config{
		Step:     cfg.Thermal.StepInterval,
		AmbientC: cfg.Thermal.AmbientC,
	})

	checks := a.checkers()
	a.health = health.NewManager(cfg.Version)
	for _, c := range checks {
		a.health.RegisterChecker(c)
	}
	a.server = api.New(api.Config{
		ListenAddr: cfg.API.ListenAddr,
		RateLimit:  cfg.API.RateLimit,
		Tracing:    cfg.Telemetry.Enabled,
	}, a.health, nil)

	if err := health.Startup(ctx, checks...); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func newSolver(cfg config.PlateSolveConfig) platesolve.Solver {
	if cfg.Command == "" {
		return platesolve.Stub{
			Center: platesolve.Coordinates{RA: cfg.StubRA, Dec: cfg.StubDec},
		}
	}
	cs := platesolve.NewCommandSolver(cfg.Command, cfg.SearchRadiusDeg, cfg.Timeout)
	cs.Downsample = cfg.Downsample
	return cs
}

func (a *app) checkers() []health.Checker {
	return []health.Checker{
		health.NewCheckFunc("registry", func(context.Context) health.CheckResult {
			if a.registry.Closed() {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: "registry closed"}
			}
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Message: fmt.Sprintf("%d running", a.registry.Running()),
			}
		}),
		health.NewCheckFunc("history", func(ctx context.Context) health.CheckResult {
			if _, err := a.history.List(ctx, "healthcheck"); err != nil {
				return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: a.cfg.Store.Backend}
		}),
		health.NewDirChecker("captures", a.cfg.Capture.Dir),
		health.NewBinaryChecker("platesolve", a.cfg.PlateSolve.Command),
	}
}

// run serves until ctx is done and then tears everything down.
func (a *app) run(ctx context.Context, holder *config.Holder) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return holder.Watch(gctx) })
	g.Go(func() error { return a.applyReloads(gctx, holder) })
	g.Go(func() error { return a.logEvents(gctx) })

	err := g.Wait()
	return errors.Join(err, a.close())
}

func (a *app) applyReloads(ctx context.Context, holder *config.Holder) error {
	ch := make(chan config.Config, 1)
	holder.RegisterListener(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-ch:
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.apply_failed").Msg("log level not applied")
			}
		}
	}
}

func (a *app) logEvents(ctx context.Context) error {
	sub, err := a.events.Subscribe(ctx, process.TopicStatus)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = sub.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			ev, ok := msg.(process.Event)
			if !ok {
				continue
			}
			a.logger.Debug().
				Str(log.FieldEvent, "process.transition").
				Str(log.FieldProcessID, ev.ProcessID).
				Str(log.FieldCategory, string(ev.Category)).
				Str(log.FieldOldState, string(ev.From)).
				Str(log.FieldNewState, string(ev.To)).
				Uint64("seq", ev.Seq).
				Msg("process status changed")
		}
	}
}

// close releases captures, processes, history and telemetry in that order.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.captures.Close(); err != nil {
		errs = append(errs, fmt.Errorf("captures: %w", err))
	}
	if err := a.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if err := a.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
