// Package sim simulates the pan/tilt mount, its camera and a target so the
// tracker can run without hardware.
//
// The target sits at a fixed direction in the world. The camera points where
// the servos are, and the servos follow their commanded angle with a
// first-order lag. The target appears offset from the frame center in
// proportion to the pointing error.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// ErrOutOfRange means a commanded angle is outside the servo travel.
var ErrOutOfRange = errors.New("sim: angle out of range")

// Config describes the simulated scene.
type Config struct {
	Width, Height   int           // frame size in pixels
	PixelsPerDegree float64       // image displacement per degree of pointing error
	Target          [2]float64    // target direction in degrees, indexed by axis
	Lag             time.Duration // servo time constant
	FrameInterval   time.Duration // time between frames
	UpsideDown      bool          // camera mounted inverted; frames need a vertical flip
	TargetSize      int           // rendered target side in pixels
}

// DefaultConfig returns a 640x480 scene with the target up and to the right.
func DefaultConfig() Config {
	return Config{
		Width:           640,
		Height:          480,
		PixelsPerDegree: 8,
		Target:          [2]float64{state.Pan: 12, state.Tilt: 6},
		Lag:             50 * time.Millisecond,
		FrameInterval:   time.Second / 30,
		UpsideDown:      true,
		TargetSize:      40,
	}
}

// Plant is the simulated mechanism. It implements tracking.Actuator.
type Plant struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	commanded [2]float64
	actual    [2]float64
	enabled   [2]bool
	enables   [2]int
	disables  [2]int
	moves     [2]int
	target    [2]float64
	last      time.Time
}

// NewPlant creates a plant with both servos centered and disabled.
func NewPlant(cfg Config) *Plant {
	return &Plant{config: cfg, now: time.Now, target: cfg.Target}
}

// Config returns the scene description.
func (p *Plant) Config() Config {
	return p.config
}

// Enable switches a servo on or off. A disabled servo holds its position.
func (p *Plant) Enable(axis state.Axis, on bool) error {
	if !axis.Valid() {
		return fmt.Errorf("sim: unknown axis %d", int(axis))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.enabled[axis] = on
	if on {
		p.enables[axis]++
	} else {
		p.disables[axis]++
	}
	return nil
}

// SetAngle commands a servo. Angles outside [-90, 90] are rejected.
func (p *Plant) SetAngle(axis state.Axis, degrees float64) error {
	if !axis.Valid() {
		return fmt.Errorf("sim: unknown axis %d", int(axis))
	}
	if math.IsNaN(degrees) || degrees < -90 || degrees > 90 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, degrees)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.commanded[axis] = degrees
	p.moves[axis]++
	return nil
}

// advance integrates servo motion up to now. Callers hold mu.
func (p *Plant) advance() {
	now := p.now()
	if p.last.IsZero() {
		p.last = now
		return
	}
	dt := now.Sub(p.last)
	p.last = now
	if dt <= 0 {
		return
	}

	alpha := 1.0
	if p.config.Lag > 0 {
		alpha = 1 - math.Exp(-dt.Seconds()/p.config.Lag.Seconds())
	}
	for _, a := range state.Axes {
		if p.enabled[a] {
			p.actual[a] += (p.commanded[a] - p.actual[a]) * alpha
		}
	}
}

// Angle returns where a servo actually points.
func (p *Plant) Angle(axis state.Axis) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.actual[axis]
}

// Enabled reports whether a servo is driven.
func (p *Plant) Enabled(axis state.Axis) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[axis]
}

// EnableCounts returns how many times a servo was switched on and off.
func (p *Plant) EnableCounts(axis state.Axis) (on, off int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enables[axis], p.disables[axis]
}

// Moves returns how many angles were accepted for a servo.
func (p *Plant) Moves(axis state.Axis) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves[axis]
}

// MoveTarget places the target at a new direction.
func (p *Plant) MoveTarget(pan, tilt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = [2]float64{state.Pan: pan, state.Tilt: tilt}
}

// Offset returns the target's position relative to the frame center as the
// tracker sees it, after any flip.
func (p *Plant) Offset() (dx, dy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.offsetLocked()
}

func (p *Plant) offsetLocked() (dx, dy float64) {
	k := p.config.PixelsPerDegree
	return k * (p.target[state.Pan] - p.actual[state.Pan]),
		k * (p.target[state.Tilt] - p.actual[state.Tilt])
}

// observe renders the target position in upright frame coordinates.
func (p *Plant) observe() state.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	dx, dy := p.offsetLocked()
	return state.Point{
		X: p.config.Width/2 + int(math.Round(dx)),
		Y: p.config.Height/2 + int(math.Round(dy)),
	}
}
