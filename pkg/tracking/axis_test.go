package tracking

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-pantilt/internal/log"
	"github.com/teslashibe/go-pantilt/pkg/state"
)

func TestAxisController_ErrorSignConvention(t *testing.T) {
	cfg := DefaultConfig()
	store := state.New(cfg.Pan, cfg.Tilt)
	store.SetFrameCenter(state.Point{X: 320, Y: 240})
	store.SetObject(state.Point{X: 420, Y: 200})

	pan := NewAxisController(state.Pan, store, cfg, log.Discard())
	tilt := NewAxisController(state.Tilt, store, cfg, log.Discard())

	panOut := pan.stepAt(t0)
	tiltOut := tilt.stepAt(t0)

	// object right of center => negative pan error
	if !floatEquals(panOut, 0.09*-100) {
		t.Errorf("Expected pan %v, got %v", 0.09*-100, panOut)
	}
	// object above center => positive tilt error
	if !floatEquals(tiltOut, 0.11*40) {
		t.Errorf("Expected tilt %v, got %v", 0.11*40, tiltOut)
	}
	if store.Command(state.Pan) != panOut || store.Command(state.Tilt) != tiltOut {
		t.Error("Expected outputs published to the store")
	}
}

func TestAxisController_OutputIsNotClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pan.Proportional = 10
	store := state.New(cfg.Pan, cfg.Tilt)
	store.SetFrameCenter(state.Point{X: 320, Y: 240})
	store.SetObject(state.Point{X: 0, Y: 240})

	c := NewAxisController(state.Pan, store, cfg, log.Discard())
	if out := c.stepAt(t0); out != 3200 {
		t.Errorf("Expected unclamped 3200, got %v", out)
	}
}

// 30 updates per second for one second with the object 100px right of center.
func TestAxisController_PanScenario(t *testing.T) {
	cfg := DefaultConfig()
	store := state.New(cfg.Pan, cfg.Tilt)
	store.SetFrameCenter(state.Point{X: 320, Y: 240})
	store.SetObject(state.Point{X: 420, Y: 240})

	c := NewAxisController(state.Pan, store, cfg, log.Discard())

	at := t0
	prev := math.Inf(1)
	for i := 0; i < 30; i++ {
		out := c.stepAt(at)
		if out >= 0 {
			t.Fatalf("Iteration %d: expected negative output, got %v", i, out)
		}
		if out > prev {
			t.Fatalf("Iteration %d: expected non-increasing output, %v -> %v", i, prev, out)
		}
		prev = out
		at = at.Add(time.Second / 30)
	}

	// P = -9, I ~ 0.08 * -100 * (29/30)
	want := 0.09*-100 + 0.08*-100*(29.0/30.0)
	if math.Abs(prev-want) > 1e-6 {
		t.Errorf("Expected about %v after one second, got %v", want, prev)
	}

	d := NewDriver(store, newMockActuator(), cfg, log.Discard())
	if angle := d.Angle(prev); angle <= 0 {
		t.Errorf("Expected a positive dispatched pan angle, got %v", angle)
	}
}

func TestAxisController_RunWithInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ControlInterval = time.Millisecond
	store := state.New(cfg.Pan, cfg.Tilt)
	c := NewAxisController(state.Tilt, store, cfg, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if c.Updates() == 0 {
		t.Error("Expected at least one update")
	}
}
