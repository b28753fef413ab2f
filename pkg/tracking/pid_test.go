package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPID_FirstUpdateIsProportionalOnly(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 0.09, Integral: 0.08, Derivative: 0.002})

	out := c.UpdateAt(-100, t0)

	if math.IsNaN(out) || math.IsInf(out, 0) {
		t.Fatalf("Expected finite output on first update, got %v", out)
	}
	if !floatEquals(out, -9) {
		t.Errorf("Expected Kp*error = -9, got %v", out)
	}
	if c.Integral() != 0 {
		t.Errorf("Expected no integral after first update, got %v", c.Integral())
	}
}

func TestPID_StandardUpdate(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 1, Integral: 0.5, Derivative: 0.25})

	c.UpdateAt(10, t0)
	out := c.UpdateAt(20, t0.Add(500*time.Millisecond))

	// integral = 20*0.5 = 10, derivative = (20-10)/0.5 = 20
	want := 1*20.0 + 0.5*10 + 0.25*20
	if !floatEquals(out, want) {
		t.Errorf("Expected %v, got %v", want, out)
	}
	if !floatEquals(c.Integral(), 10) {
		t.Errorf("Expected integral 10, got %v", c.Integral())
	}
	if c.PrevError() != 20 {
		t.Errorf("Expected prevError 20, got %v", c.PrevError())
	}
}

func TestPID_ZeroElapsedTimeStaysFinite(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 0.09, Integral: 0.08, Derivative: 0.002})

	c.UpdateAt(-100, t0)
	out := c.UpdateAt(50, t0)

	if math.IsNaN(out) || math.IsInf(out, 0) {
		t.Fatalf("Expected finite output with dt=0, got %v", out)
	}
	if !floatEquals(out, 0.09*50) {
		t.Errorf("Expected proportional-only output, got %v", out)
	}
}

func TestPID_ZeroErrorConvergesToZero(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 0.09, Integral: 0.08, Derivative: 0.002})

	at := t0
	for i := 0; i < 100; i++ {
		out := c.UpdateAt(0, at)
		if out != 0 {
			t.Fatalf("Iteration %d: expected zero output for zero error, got %v", i, out)
		}
		at = at.Add(33 * time.Millisecond)
	}
}

func TestPID_ZeroErrorAfterOffsetDecaysDerivative(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 0.09, Integral: 0, Derivative: 0.002})

	at := t0
	c.UpdateAt(-100, at)
	at = at.Add(33 * time.Millisecond)
	spike := math.Abs(c.UpdateAt(0, at))

	var last float64
	for i := 0; i < 10; i++ {
		at = at.Add(33 * time.Millisecond)
		last = c.UpdateAt(0, at)
	}

	if spike == 0 {
		t.Fatal("Expected a derivative kick when the error changes")
	}
	if last != 0 {
		t.Errorf("Expected output to settle at zero without integral, got %v", last)
	}
}

func TestPID_IntegralLimit(t *testing.T) {
	c := NewPID(state.Gains{Integral: 1})
	c.IntegralLimit = 5

	at := t0
	for i := 0; i < 100; i++ {
		c.UpdateAt(10, at)
		at = at.Add(time.Second)
	}

	if c.Integral() != 5 {
		t.Errorf("Expected integral clamped to 5, got %v", c.Integral())
	}
}

func TestPID_Reset(t *testing.T) {
	c := NewPID(state.Gains{Proportional: 1, Integral: 1, Derivative: 1})
	c.UpdateAt(10, t0)
	c.UpdateAt(10, t0.Add(time.Second))

	c.Reset()
	out := c.UpdateAt(3, t0.Add(2*time.Second))

	if out != 3 {
		t.Errorf("Expected first-update behaviour after Reset, got %v", out)
	}
}
