// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	restoreGlobalProvider(t)

	p, err := NewProvider(context.Background(), Config{ServiceName: "astrogate", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, p.tp)

	_, span := Tracer("process").Start(context.Background(), "run")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	restoreGlobalProvider(t)

	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "astrogate", ExporterType: "zipkin"})
	require.EqualError(t, err, "unsupported exporter type: zipkin (supported: grpc, http)")
}

func TestNewProvider_HTTPExporterBuildsLazily(t *testing.T) {
	restoreGlobalProvider(t)

	// the exporter only dials on export, so construction succeeds offline
	p, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "astrogate",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 0.5,
	})
	require.NoError(t, err)
	require.NotNil(t, p.tp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}

func TestNewProvider_FollowsSampledParent(t *testing.T) {
	restoreGlobalProvider(t)

	p, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "astrogate",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 0,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = p.Shutdown(ctx)
	})

	_, root := Tracer("process").Start(context.Background(), "run")
	assert.False(t, root.IsRecording())
	root.End()

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)
	_, child := Tracer("process").Start(ctx, "run")
	assert.True(t, child.IsRecording())
	child.End()
}

func TestTracer_UsesGlobalProvider(t *testing.T) {
	restoreGlobalProvider(t)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer("capture").Start(context.Background(), "capture.analyze")
	span.SetAttributes(CaptureAttributes("c-1", "analysis", false)...)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "capture.analyze", ended[0].Name())
	assert.Len(t, ended[0].Attributes(), 3)
}
