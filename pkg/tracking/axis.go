package tracking

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// AxisController closes the loop for one axis: it reads the object and frame
// center for its axis, runs the PID update and publishes the command angle.
type AxisController struct {
	axis     state.Axis
	store    *state.Store
	pid      *PID
	interval time.Duration
	log      *slog.Logger

	updates atomic.Uint64
}

// NewAxisController creates the controller for an axis using the gains held
// by the store.
func NewAxisController(axis state.Axis, store *state.Store, cfg Config, logger *slog.Logger) *AxisController {
	pid := NewPID(store.Gains(axis))
	pid.IntegralLimit = cfg.IntegralLimit

	return &AxisController{
		axis:     axis,
		store:    store,
		pid:      pid,
		interval: cfg.ControlInterval,
		log:      logger.With("axis", axis.String()),
	}
}

// Axis returns the axis this controller drives.
func (c *AxisController) Axis() state.Axis {
	return c.axis
}

// Updates returns how many updates have run.
func (c *AxisController) Updates() uint64 {
	return c.updates.Load()
}

// Step runs a single update and returns the published command.
// Error is center - object, so it is zero when the object is centered.
func (c *AxisController) Step() float64 {
	return c.stepAt(c.pid.now())
}

func (c *AxisController) stepAt(at time.Time) float64 {
	err := float64(c.store.Center(c.axis) - c.store.ObjectAt(c.axis))
	output := c.pid.UpdateAt(err, at)
	c.store.SetCommand(c.axis, output)
	c.updates.Add(1)
	return output
}

// Run updates the axis until ctx is cancelled.
func (c *AxisController) Run(ctx context.Context) error {
	c.log.Debug("controller started",
		"kp", c.pid.Kp, "ki", c.pid.Ki, "kd", c.pid.Kd, "interval", c.interval)
	defer func() {
		c.log.Debug("controller stopped", "updates", c.updates.Load())
	}()

	if c.interval <= 0 {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			c.Step()
			runtime.Gosched()
		}
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Step()
		}
	}
}
