// Package tracking runs the pan/tilt tracking loops: a locator that publishes
// where the object is, one PID controller per axis, and a driver that sends
// the resulting angles to the servos.
package tracking

import (
	"fmt"
	"math"
)

// Servo travel of the pan/tilt mount in degrees.
const (
	// DefaultServoMin is the lowest angle the servos accept.
	DefaultServoMin = -90.0

	// DefaultServoMax is the highest angle the servos accept.
	DefaultServoMax = 90.0
)

// ServoRange is a closed interval of angles, in degrees.
type ServoRange struct {
	Min float64 `toml:"min" json:"min"`
	Max float64 `toml:"max" json:"max"`
}

// DefaultServoRange returns [-90, 90].
func DefaultServoRange() ServoRange {
	return ServoRange{Min: DefaultServoMin, Max: DefaultServoMax}
}

// Contains reports whether v lies within the range, bounds included.
// NaN is never contained.
func (r ServoRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Validate checks that the range is finite and not inverted.
func (r ServoRange) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return fmt.Errorf("servo range must be finite, got [%v, %v]", r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("servo range min %v exceeds max %v", r.Min, r.Max)
	}
	return nil
}

func (r ServoRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}
