package tracking

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// FallbackPolicy decides what the locator publishes when a frame has no detection.
type FallbackPolicy string

const (
	// FallbackCenter publishes the frame center, so both errors drop to zero
	// and the mount holds still.
	FallbackCenter FallbackPolicy = "center"

	// FallbackHold republishes the last detected position. Before the first
	// detection it behaves like FallbackCenter.
	FallbackHold FallbackPolicy = "hold"
)

// ParseFallback parses a policy name.
func ParseFallback(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackCenter, FallbackHold:
		return p, nil
	case "":
		return FallbackCenter, nil
	}
	return "", fmt.Errorf("unknown fallback policy %q (want center or hold)", s)
}

// Config holds the tracking parameters. Gains are fixed once a Tracker is built.
type Config struct {
	// PID gains
	Pan  state.Gains
	Tilt state.Gains

	// IntegralLimit bounds |integral| when positive. Zero leaves it unbounded.
	IntegralLimit float64

	// Timing. Zero means free-running: the loop yields to the scheduler
	// between iterations but never sleeps.
	ControlInterval time.Duration
	DriveInterval   time.Duration

	// Actuator boundary
	Range  ServoRange
	Invert bool // mount is mirrored: dispatched angle = -command

	// Locator
	FlipVertical bool // camera is mounted upside down
	Fallback     FallbackPolicy
	LostAfter    int // consecutive misses before logging a lost target
}

// DefaultConfig returns the gains and conventions of the stock Pan-Tilt HAT
// build with an upside-down camera.
func DefaultConfig() Config {
	return Config{
		Pan:  state.Gains{Proportional: 0.09, Integral: 0.08, Derivative: 0.002},
		Tilt: state.Gains{Proportional: 0.11, Integral: 0.10, Derivative: 0.002},

		ControlInterval: 0,
		DriveInterval:   0,

		Range:  DefaultServoRange(),
		Invert: true,

		FlipVertical: true,
		Fallback:     FallbackCenter,
		LostAfter:    5,
	}
}

// Gains returns the gains configured for an axis.
func (c Config) Gains(a state.Axis) state.Gains {
	if a == state.Tilt {
		return c.Tilt
	}
	return c.Pan
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Pan.Validate(); err != nil {
		return fmt.Errorf("pan: %w", err)
	}
	if err := c.Tilt.Validate(); err != nil {
		return fmt.Errorf("tilt: %w", err)
	}
	if c.IntegralLimit < 0 {
		return fmt.Errorf("integral limit must not be negative")
	}
	if c.ControlInterval < 0 || c.DriveInterval < 0 {
		return fmt.Errorf("loop intervals must not be negative")
	}
	if err := c.Range.Validate(); err != nil {
		return err
	}
	if _, err := ParseFallback(string(c.Fallback)); err != nil {
		return err
	}
	if c.LostAfter < 0 {
		return fmt.Errorf("lost-after must not be negative")
	}
	return nil
}
