package sim

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultFrameRate approximates a display refresh rate.
const DefaultFrameRate = 60

// Clock drives a Machine at a fixed frame interval.
type Clock struct {
	machine  *Machine
	interval time.Duration
	frames   atomic.Uint64
}

// NewClock creates a clock ticking frameRate times per second.
func NewClock(m *Machine, frameRate int) *Clock {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Clock{
		machine:  m,
		interval: time.Second / time.Duration(frameRate),
	}
}

// Run ticks until ctx is done. Ticks while paused are skipped by the machine.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.machine.Step() {
				c.frames.Add(1)
			}
		}
	}
}

// Frames returns how many frames have been advanced.
func (c *Clock) Frames() uint64 {
	return c.frames.Load()
}
