// Package servo drives the pan/tilt mount hardware.
//
// Interfaces are kept small so consumers depend only on what they use. The
// tracking driver needs Enabler and Positioner; the process entry point also
// closes the device.
package servo

import (
	"io"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// Enabler switches a servo's drive signal on or off.
type Enabler interface {
	Enable(axis state.Axis, on bool) error
}

// Positioner moves a servo to an angle in degrees.
type Positioner interface {
	SetAngle(axis state.Axis, degrees float64) error
}

// Actuator is the composite interface used by the tracker.
type Actuator interface {
	Enabler
	Positioner
}

// Device is an actuator that owns a hardware handle.
type Device interface {
	Actuator
	io.Closer
}

var _ Device = (*PanTiltHAT)(nil)
