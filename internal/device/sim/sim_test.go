// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ManuGH/astrogate/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamera_ExposeShape(t *testing.T) {
	cam := NewCamera(CameraConfig{Width: 200, Height: 100, Stars: 10, Seed: 7})

	f, err := cam.Expose(context.Background(), device.ExposureRequest{Duration: time.Second, Binning: 2, ROI: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 50, f.Width)
	assert.Equal(t, 25, f.Height)
	assert.Equal(t, 16, f.BitDepth)
	assert.Len(t, f.Pixels, 50*25)
	assert.EqualValues(t, 1, cam.Exposures())
}

func TestCamera_Deterministic(t *testing.T) {
	req := device.ExposureRequest{Duration: time.Second, Binning: 1, ROI: 1}
	a, err := NewCamera(CameraConfig{Width: 64, Height: 64, Stars: 5, Noise: 10, Seed: 3}).Expose(context.Background(), req)
	require.NoError(t, err)
	b, err := NewCamera(CameraConfig{Width: 64, Height: 64, Stars: 5, Noise: 10, Seed: 3}).Expose(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Pixels, b.Pixels)
}

func TestCamera_ExposeCancelled(t *testing.T) {
	cam := NewCamera(CameraConfig{TimeScale: 1})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := cam.Expose(ctx, device.ExposureRequest{Duration: time.Minute, Binning: 1, ROI: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cam.Exposures())
}

func TestCamera_FailNext(t *testing.T) {
	cam := NewCamera(CameraConfig{})
	boom := errors.New("usb reset")
	cam.FailNext(boom)
	req := device.ExposureRequest{Binning: 1, ROI: 1}
	_, err := cam.Expose(context.Background(), req)
	require.ErrorIs(t, err, boom)
	_, err = cam.Expose(context.Background(), req)
	require.NoError(t, err)
}

func TestCamera_RejectsBadRequest(t *testing.T) {
	cam := NewCamera(CameraConfig{})
	_, err := cam.Expose(context.Background(), device.ExposureRequest{Binning: 0, ROI: 1})
	assert.Error(t, err)
	_, err = cam.Expose(context.Background(), device.ExposureRequest{Binning: 1, ROI: 1.5})
	assert.Error(t, err)
	_, err = cam.Expose(context.Background(), device.ExposureRequest{Binning: 1, ROI: math.NaN()})
	assert.Error(t, err)
}

func TestCooler_FollowsTarget(t *testing.T) {
	c := NewCooler(20, 10)
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }
	c.lastRead = clock
	ctx := context.Background()

	require.NoError(t, c.SetPower(ctx, true))
	require.NoError(t, c.SetTarget(ctx, -10))

	clock = clock.Add(time.Second)
	temp, err := c.Temperature(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10, temp, 0.001)

	clock = clock.Add(10 * time.Second)
	temp, _ = c.Temperature(ctx)
	assert.InDelta(t, -10, temp, 0.001)

	require.NoError(t, c.SetPower(ctx, false))
	clock = clock.Add(time.Second)
	temp, _ = c.Temperature(ctx)
	assert.InDelta(t, 0, temp, 0.001)
}
