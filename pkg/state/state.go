// Package state holds the process-wide values shared by the tracking loops.
//
// Every field has exactly one writer. Reads and writes of a single field are
// atomic, and a point's two coordinates are published together, but no lock
// spans fields: a reader may see the frame center from one
// locator iteration and the object position from the next. Tracking tolerates
// that skew, so the loops never block each other on the store.
package state

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Axis identifies one of the two mount axes.
type Axis int

const (
	// Pan rotates the mount horizontally and follows the X coordinate.
	Pan Axis = iota
	// Tilt rotates the mount vertically and follows the Y coordinate.
	Tilt
)

// Axes lists both axes in dispatch order.
var Axes = [...]Axis{Pan, Tilt}

func (a Axis) String() string {
	switch a {
	case Pan:
		return "pan"
	case Tilt:
		return "tilt"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Valid reports whether a is Pan or Tilt.
func (a Axis) Valid() bool {
	return a == Pan || a == Tilt
}

// Point is a pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Component returns the coordinate that the given axis follows.
func (p Point) Component(a Axis) int {
	if a == Tilt {
		return p.Y
	}
	return p.X
}

// Gains are the PID coefficients for one axis.
type Gains struct {
	Proportional float64 `json:"kp" toml:"kp"`
	Integral     float64 `json:"ki" toml:"ki"`
	Derivative   float64 `json:"kd" toml:"kd"`
}

// Validate rejects NaN and infinite gains.
func (g Gains) Validate() error {
	for name, v := range map[string]float64{"kp": g.Proportional, "ki": g.Integral, "kd": g.Derivative} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("gain %s must be finite, got %v", name, v)
		}
	}
	return nil
}

// float64 stored as IEEE-754 bits
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// point packed as two int32 coordinates, X in the high word
type atomicPoint struct {
	bits atomic.Uint64
}

func (p *atomicPoint) Load() Point {
	v := p.bits.Load()
	return Point{X: int(int32(uint32(v >> 32))), Y: int(int32(uint32(v)))}
}

func (p *atomicPoint) Store(pt Point) {
	p.bits.Store(uint64(uint32(int32(pt.X)))<<32 | uint64(uint32(int32(pt.Y))))
}

// Store is the shared state.
//
// Writers:
//   - frame center and object: the locator loop
//   - pan command: the pan controller
//   - tilt command: the tilt controller
//
// Gains are fixed at construction.
type Store struct {
	center atomicPoint
	object atomicPoint

	command [len(Axes)]atomicFloat
	gains   [len(Axes)]Gains
}

// New creates a zeroed store with the given per-axis gains.
func New(pan, tilt Gains) *Store {
	s := &Store{}
	s.gains[Pan] = pan
	s.gains[Tilt] = tilt
	return s
}

// SetFrameCenter publishes the center of the latest frame.
func (s *Store) SetFrameCenter(p Point) {
	s.center.Store(p)
}

// FrameCenter returns the last published frame center.
func (s *Store) FrameCenter() Point {
	return s.center.Load()
}

// Center returns the frame-center component followed by the axis.
func (s *Store) Center(a Axis) int {
	p := s.center.Load()
	if a == Tilt {
		return p.Y
	}
	return p.X
}

// SetObject publishes the object position.
func (s *Store) SetObject(p Point) {
	s.object.Store(p)
}

// Object returns the last published object position.
func (s *Store) Object() Point {
	return s.object.Load()
}

// ObjectAt returns the object component followed by the axis.
func (s *Store) ObjectAt(a Axis) int {
	p := s.object.Load()
	if a == Tilt {
		return p.Y
	}
	return p.X
}

// SetCommand publishes the raw controller output for an axis, in degrees.
func (s *Store) SetCommand(a Axis, degrees float64) {
	s.command[a].Store(degrees)
}

// Command returns the raw controller output for an axis, in degrees.
func (s *Store) Command(a Axis) float64 {
	return s.command[a].Load()
}

// Gains returns the controller gains for an axis.
func (s *Store) Gains(a Axis) Gains {
	return s.gains[a]
}

// Snapshot is a point-in-time copy of the store for logging and status.
// Fields come from independent loads and may mix iterations.
type Snapshot struct {
	FrameCenter Point   `json:"frame_center"`
	Object      Point   `json:"object"`
	Pan         float64 `json:"pan"`
	Tilt        float64 `json:"tilt"`
	PanGains    Gains   `json:"pan_gains"`
	TiltGains   Gains   `json:"tilt_gains"`
}

// Snapshot copies every field.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		FrameCenter: s.FrameCenter(),
		Object:      s.Object(),
		Pan:         s.Command(Pan),
		Tilt:        s.Command(Tilt),
		PanGains:    s.gains[Pan],
		TiltGains:   s.gains[Tilt],
	}
}
