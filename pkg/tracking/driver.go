package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// Actuator moves the mount. Angles are in degrees.
type Actuator interface {
	Enable(axis state.Axis, on bool) error
	SetAngle(axis state.Axis, degrees float64) error
}

// Driver forwards controller commands to the actuator.
//
// The command for each axis is mapped through the sign convention and then
// checked against the servo range. Angles outside the range are dropped for
// that iteration; the servo keeps its last valid position.
type Driver struct {
	store    *state.Store
	actuator Actuator
	limits   ServoRange
	invert   bool
	interval time.Duration
	log      *slog.Logger

	dispatched [len(state.Axes)]atomic.Uint64
	skipped    [len(state.Axes)]atomic.Uint64
}

// NewDriver creates a driver.
func NewDriver(store *state.Store, actuator Actuator, cfg Config, logger *slog.Logger) *Driver {
	return &Driver{
		store:    store,
		actuator: actuator,
		limits:   cfg.Range,
		invert:   cfg.Invert,
		interval: cfg.DriveInterval,
		log:      logger,
	}
}

// Angle maps a raw controller command to the actuator's sign convention.
func (d *Driver) Angle(command float64) float64 {
	if d.invert {
		return -command
	}
	return command
}

// Dispatched returns how many angles were sent for an axis.
func (d *Driver) Dispatched(a state.Axis) uint64 {
	return d.dispatched[a].Load()
}

// Skipped returns how many out-of-range angles were dropped for an axis.
func (d *Driver) Skipped(a state.Axis) uint64 {
	return d.skipped[a].Load()
}

// Step reads both commands and dispatches the ones in range.
func (d *Driver) Step() error {
	for _, a := range state.Axes {
		angle := d.Angle(d.store.Command(a))
		if !d.limits.Contains(angle) {
			d.skipped[a].Add(1)
			continue
		}
		if err := d.actuator.SetAngle(a, angle); err != nil {
			return fmt.Errorf("set %s angle %.2f: %w", a, angle, err)
		}
		d.dispatched[a].Add(1)
	}
	return nil
}

// Run dispatches commands until ctx is cancelled or the actuator fails.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Debug("driver started", "range", d.limits.String(), "invert", d.invert, "interval", d.interval)
	defer func() {
		d.log.Debug("driver stopped",
			"pan_dispatched", d.Dispatched(state.Pan), "pan_skipped", d.Skipped(state.Pan),
			"tilt_dispatched", d.Dispatched(state.Tilt), "tilt_skipped", d.Skipped(state.Tilt))
	}()

	var tick <-chan time.Time
	if d.interval > 0 {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick == nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}

		if err := d.Step(); err != nil {
			return err
		}
		if tick == nil {
			runtime.Gosched()
		}
	}
}
