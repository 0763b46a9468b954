// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"math"
	"sync"
	"time"
)

// Cooler follows its target at a fixed rate while powered and drifts back to
// ambient when unpowered.
type Cooler struct {
	mu       sync.Mutex
	ambient  float64
	current  float64
	target   float64
	power    bool
	rate     float64 // degrees per second
	lastRead time.Time
	now      func() time.Time
}

func NewCooler(ambient, ratePerSecond float64) *Cooler {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Cooler{
		ambient:  ambient,
		current:  ambient,
		target:   ambient,
		rate:     ratePerSecond,
		now:      time.Now,
		lastRead: time.Now(),
	}
}

func (c *Cooler) advanceLocked() {
	now := c.now()
	elapsed := now.Sub(c.lastRead).Seconds()
	c.lastRead = now
	goal := c.ambient
	if c.power {
		goal = c.target
	}
	step := c.rate * elapsed
	diff := goal - c.current
	if math.Abs(diff) <= step {
		c.current = goal
		return
	}
	c.current += math.Copysign(step, diff)
}

func (c *Cooler) Temperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	return c.current, nil
}

func (c *Cooler) SetTarget(ctx context.Context, celsius float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.target = celsius
	return nil
}

func (c *Cooler) SetPower(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
	c.power = on
	return nil
}

// Target returns the current setpoint and power state.
func (c *Cooler) Target() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.power
}

// Guider reports a constant guiding error.
type Guider struct {
	RMS float64
}

func (g Guider) RMSErrorArcsec(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return g.RMS, nil
}
