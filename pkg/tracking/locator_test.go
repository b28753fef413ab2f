package tracking

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/teslashibe/go-pantilt/internal/log"
	"github.com/teslashibe/go-pantilt/pkg/state"
)

func newTestLocator(det Detector, cfg Config) (*Locator, *fakeSource, *state.Store) {
	src := &fakeSource{size: image.Pt(640, 480)}
	store := state.New(cfg.Pan, cfg.Tilt)
	return NewLocator(src, det, store, cfg, log.Discard()), src, store
}

func TestLocator_PublishesCenterAndObject(t *testing.T) {
	det := &scriptedDetector{results: []detectResult{found(420, 240)}}
	l, src, store := newTestLocator(det, DefaultConfig())

	if err := l.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if got := store.FrameCenter(); got != (state.Point{X: 320, Y: 240}) {
		t.Errorf("Expected center (320,240), got %+v", got)
	}
	if got := store.Object(); got != (state.Point{X: 420, Y: 240}) {
		t.Errorf("Expected object (420,240), got %+v", got)
	}
	if det.hints[0] != (state.Point{X: 320, Y: 240}) {
		t.Errorf("Expected frame center as hint, got %+v", det.hints[0])
	}
	if !src.frames[0].closed {
		t.Error("Expected frame to be closed after the iteration")
	}
}

func TestLocator_CenterUsesIntegerDivision(t *testing.T) {
	det := &scriptedDetector{}
	l, src, store := newTestLocator(det, DefaultConfig())
	src.size = image.Pt(641, 481)

	if err := l.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if got := store.FrameCenter(); got != (state.Point{X: 320, Y: 240}) {
		t.Errorf("Expected (320,240), got %+v", got)
	}
}

func TestLocator_FlipsBeforeDetection(t *testing.T) {
	det := &scriptedDetector{}
	cfg := DefaultConfig()

	l, _, _ := newTestLocator(det, cfg)
	_ = l.Step(context.Background())
	if !det.sawFlip[0] {
		t.Error("Expected detector to see a flipped frame")
	}

	cfg.FlipVertical = false
	l, _, _ = newTestLocator(det, cfg)
	_ = l.Step(context.Background())
	if det.sawFlip[1] {
		t.Error("Expected no flip when disabled")
	}
}

func TestLocator_FallbackCenter(t *testing.T) {
	det := &scriptedDetector{results: []detectResult{found(100, 50), missed()}}
	l, _, store := newTestLocator(det, DefaultConfig())

	_ = l.Step(context.Background())
	_ = l.Step(context.Background())

	if got := store.Object(); got != store.FrameCenter() {
		t.Errorf("Expected object snapped to center, got %+v", got)
	}
}

func TestLocator_FallbackHold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fallback = FallbackHold

	det := &scriptedDetector{results: []detectResult{found(100, 50), missed()}}
	l, _, store := newTestLocator(det, cfg)

	_ = l.Step(context.Background())
	_ = l.Step(context.Background())
	_ = l.Step(context.Background())

	if got := store.Object(); got != (state.Point{X: 100, Y: 50}) {
		t.Errorf("Expected last detection held, got %+v", got)
	}
	if l.ConsecutiveMisses() != 2 {
		t.Errorf("Expected 2 consecutive misses, got %d", l.ConsecutiveMisses())
	}
}

func TestLocator_FallbackHoldBeforeFirstDetection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fallback = FallbackHold

	l, _, store := newTestLocator(&scriptedDetector{}, cfg)
	_ = l.Step(context.Background())

	if got := store.Object(); got != store.FrameCenter() {
		t.Errorf("Expected center before any detection, got %+v", got)
	}
}

func TestLocator_DetectorErrorIsNoDetection(t *testing.T) {
	det := &scriptedDetector{results: []detectResult{{err: errors.New("bad model")}}}
	l, _, store := newTestLocator(det, DefaultConfig())

	if err := l.Step(context.Background()); err != nil {
		t.Fatalf("Detector errors should not fail the loop: %v", err)
	}
	if store.Object() != store.FrameCenter() {
		t.Error("Expected fallback after a detector error")
	}
}

func TestLocator_RunFailsWhenSourceFails(t *testing.T) {
	det := &scriptedDetector{}
	l, src, _ := newTestLocator(det, DefaultConfig())
	src.failAt = 3
	src.err = errCameraGone

	err := l.Run(context.Background())
	if !errors.Is(err, errCameraGone) {
		t.Fatalf("Expected camera error, got %v", err)
	}
	if l.Frames() != 3 {
		t.Errorf("Expected 3 frames before failure, got %d", l.Frames())
	}
}

func TestLocator_RunStopsOnCancel(t *testing.T) {
	l, _, _ := newTestLocator(&scriptedDetector{}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); err != nil {
		t.Errorf("Expected nil on cancellation, got %v", err)
	}
}

type recordingObserver struct {
	calls []bool
}

func (o *recordingObserver) ObserveFrame(_ Frame, _ Location, found bool) {
	o.calls = append(o.calls, found)
}

func TestLocator_NotifiesObserver(t *testing.T) {
	det := &scriptedDetector{results: []detectResult{found(1, 1), missed()}}
	l, _, _ := newTestLocator(det, DefaultConfig())
	obs := &recordingObserver{}
	l.SetObserver(obs)

	_ = l.Step(context.Background())
	_ = l.Step(context.Background())

	if len(obs.calls) != 2 || !obs.calls[0] || obs.calls[1] {
		t.Errorf("Unexpected observer calls %v", obs.calls)
	}
}
