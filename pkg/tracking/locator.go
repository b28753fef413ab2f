package tracking

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// Frame is a captured video frame. The locator owns it for one iteration and
// closes it afterwards.
type Frame interface {
	Size() image.Point
	FlipVertical() error
	Close() error
}

// VideoSource delivers frames. NextFrame blocks until a frame is available.
type VideoSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// Location is where a detector found the object.
type Location struct {
	Point state.Point     // object center, pixels
	Box   image.Rectangle // bounding region, pixels
}

// Detector finds the object in a frame. The hint is the frame center.
// found is false when nothing was detected; that is not an error.
type Detector interface {
	Locate(frame Frame, hint state.Point) (loc Location, found bool, err error)
}

// FrameObserver receives each processed frame before it is closed.
// It must not retain the frame.
type FrameObserver interface {
	ObserveFrame(frame Frame, loc Location, found bool)
}

// Locator captures frames and publishes the frame center and object position.
type Locator struct {
	source   VideoSource
	detector Detector
	store    *state.Store
	observer FrameObserver
	log      *slog.Logger

	flip      bool
	fallback  FallbackPolicy
	lostAfter int

	last      state.Point
	hasLast   bool
	misses    int
	frames    atomic.Uint64
	detected  atomic.Uint64
	missCount atomic.Int64
}

// NewLocator creates a locator.
func NewLocator(source VideoSource, detector Detector, store *state.Store, cfg Config, logger *slog.Logger) *Locator {
	fallback := cfg.Fallback
	if fallback == "" {
		fallback = FallbackCenter
	}
	return &Locator{
		source:    source,
		detector:  detector,
		store:     store,
		log:       logger,
		flip:      cfg.FlipVertical,
		fallback:  fallback,
		lostAfter: cfg.LostAfter,
	}
}

// SetObserver registers a frame observer. Call before Run.
func (l *Locator) SetObserver(o FrameObserver) {
	l.observer = o
}

// Frames returns how many frames have been processed.
func (l *Locator) Frames() uint64 {
	return l.frames.Load()
}

// Detections returns how many frames contained the object.
func (l *Locator) Detections() uint64 {
	return l.detected.Load()
}

// ConsecutiveMisses returns the length of the current run of frames without a detection.
func (l *Locator) ConsecutiveMisses() int {
	return int(l.missCount.Load())
}

// Step processes one frame.
func (l *Locator) Step(ctx context.Context) error {
	frame, err := l.source.NextFrame(ctx)
	if err != nil {
		return fmt.Errorf("next frame: %w", err)
	}
	defer frame.Close()

	if l.flip {
		if err := frame.FlipVertical(); err != nil {
			return fmt.Errorf("flip frame: %w", err)
		}
	}

	size := frame.Size()
	center := state.Point{X: size.X / 2, Y: size.Y / 2}

	loc, found, err := l.detector.Locate(frame, center)
	if err != nil {
		l.log.Debug("detection failed", "error", err)
		found = false
	}

	object := l.resolve(center, loc, found)

	l.store.SetFrameCenter(center)
	l.store.SetObject(object)

	l.frames.Add(1)
	if l.observer != nil {
		l.observer.ObserveFrame(frame, Location{Point: object, Box: loc.Box}, found)
	}
	return nil
}

// resolve applies the fallback policy and updates the miss counters.
func (l *Locator) resolve(center state.Point, loc Location, found bool) state.Point {
	if found {
		if l.lostAfter > 0 && l.misses >= l.lostAfter {
			l.log.Info("target reacquired", "x", loc.Point.X, "y", loc.Point.Y, "missed", l.misses)
		}
		l.misses = 0
		l.missCount.Store(0)
		l.detected.Add(1)
		l.last = loc.Point
		l.hasLast = true
		return loc.Point
	}

	l.misses++
	l.missCount.Store(int64(l.misses))
	if l.lostAfter > 0 && l.misses == l.lostAfter {
		l.log.Info("target lost", "misses", l.misses, "fallback", string(l.fallback))
	}

	if l.fallback == FallbackHold && l.hasLast {
		return l.last
	}
	return center
}

// Run processes frames until ctx is cancelled or the source fails.
func (l *Locator) Run(ctx context.Context) error {
	l.log.Debug("locator started", "flip", l.flip, "fallback", string(l.fallback))
	defer func() {
		l.log.Debug("locator stopped", "frames", l.frames.Load(), "detections", l.detected.Load())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.Step(ctx); err != nil {
			// A capture interrupted by shutdown is not a failure.
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
