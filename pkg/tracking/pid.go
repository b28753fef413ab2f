package tracking

import (
	"math"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// PID is a proportional-integral-derivative controller driven by wall-clock time.
// It is not safe for concurrent use; each axis owns its own instance.
type PID struct {
	// Gains
	Kp float64
	Ki float64
	Kd float64

	// IntegralLimit bounds |integral| when positive
	IntegralLimit float64

	// State
	integral   float64
	prevError  float64
	lastUpdate time.Time
	started    bool

	now func() time.Time
}

// NewPID creates a controller with the given gains.
func NewPID(g state.Gains) *PID {
	return &PID{
		Kp:  g.Proportional,
		Ki:  g.Integral,
		Kd:  g.Derivative,
		now: time.Now,
	}
}

// Reset clears the accumulated state. The next update is treated as the first.
func (c *PID) Reset() {
	c.integral = 0
	c.prevError = 0
	c.lastUpdate = time.Time{}
	c.started = false
}

// Update feeds one error sample taken now and returns the control output.
func (c *PID) Update(err float64) float64 {
	return c.UpdateAt(err, c.now())
}

// UpdateAt feeds one error sample taken at the given time.
//
// The first sample has no elapsed time to integrate or differentiate over, so
// only the proportional term contributes. The same applies to any later sample
// whose timestamp does not advance.
func (c *PID) UpdateAt(err float64, at time.Time) float64 {
	if !c.started {
		c.started = true
		c.lastUpdate = at
		c.prevError = err
		return c.Kp * err
	}

	dt := at.Sub(c.lastUpdate).Seconds()
	c.lastUpdate = at

	var derivative float64
	if dt > 0 {
		c.integral += err * dt
		if c.IntegralLimit > 0 {
			c.integral = clamp(c.integral, -c.IntegralLimit, c.IntegralLimit)
		}
		derivative = (err - c.prevError) / dt
	}
	c.prevError = err

	output := c.Kp*err + c.Ki*c.integral + c.Kd*derivative
	if math.IsNaN(output) || math.IsInf(output, 0) {
		// Only reachable with a pathological dt; keep the last sane terms.
		return c.Kp*err + c.Ki*c.integral
	}
	return output
}

// Integral returns the accumulated integral term (before Ki).
func (c *PID) Integral() float64 {
	return c.integral
}

// PrevError returns the error seen on the last update.
func (c *PID) PrevError() float64 {
	return c.prevError
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
