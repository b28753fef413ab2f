package state

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ZeroValues(t *testing.T) {
	s := New(Gains{}, Gains{})

	assert.Equal(t, Point{}, s.FrameCenter())
	assert.Equal(t, Point{}, s.Object())
	assert.Zero(t, s.Command(Pan))
	assert.Zero(t, s.Command(Tilt))
}

func TestStore_AxisComponents(t *testing.T) {
	s := New(Gains{}, Gains{})
	s.SetFrameCenter(Point{X: 320, Y: 240})
	s.SetObject(Point{X: 420, Y: 200})

	assert.Equal(t, 320, s.Center(Pan))
	assert.Equal(t, 240, s.Center(Tilt))
	assert.Equal(t, 420, s.ObjectAt(Pan))
	assert.Equal(t, 200, s.ObjectAt(Tilt))
}

func TestStore_ReadsAreStable(t *testing.T) {
	s := New(Gains{Proportional: 0.09}, Gains{Proportional: 0.11})
	s.SetFrameCenter(Point{X: 10, Y: 20})
	s.SetObject(Point{X: 30, Y: 40})
	s.SetCommand(Pan, -12.5)
	s.SetCommand(Tilt, 3.25)

	first := s.Snapshot()
	for i := 0; i < 100; i++ {
		require.Equal(t, first, s.Snapshot())
	}
	assert.Equal(t, -12.5, s.Command(Pan))
	assert.Equal(t, 0.11, s.Gains(Tilt).Proportional)
}

func TestStore_CommandPreservesSpecialFloats(t *testing.T) {
	s := New(Gains{}, Gains{})

	s.SetCommand(Pan, math.Inf(-1))
	assert.True(t, math.IsInf(s.Command(Pan), -1))

	s.SetCommand(Tilt, -0.0)
	assert.Equal(t, math.Float64bits(-0.0), math.Float64bits(s.Command(Tilt)))
}

// One writer per field, many readers; run with -race.
func TestStore_ConcurrentSingleWriter(t *testing.T) {
	s := New(Gains{}, Gains{})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			s.SetObject(Point{X: i, Y: i})
			s.SetFrameCenter(Point{X: 320, Y: 240})
		}
		close(stop)
	}()

	for _, a := range Axes {
		wg.Add(1)
		go func(a Axis) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				err := float64(s.Center(a) - s.ObjectAt(a))
				s.SetCommand(a, err)
			}
		}(a)
	}

	wg.Wait()
	assert.Equal(t, Point{X: 9999, Y: 9999}, s.Object())
}

func TestAxis_String(t *testing.T) {
	assert.Equal(t, "pan", Pan.String())
	assert.Equal(t, "tilt", Tilt.String())
	assert.Equal(t, "axis(7)", Axis(7).String())
	assert.False(t, Axis(7).Valid())
}

func TestGains_Validate(t *testing.T) {
	assert.NoError(t, Gains{Proportional: 0.09, Integral: 0.08, Derivative: 0.002}.Validate())
	assert.Error(t, Gains{Proportional: math.NaN()}.Validate())
	assert.Error(t, Gains{Derivative: math.Inf(1)}.Validate())
}

func TestStore_PointsAreNeverTorn(t *testing.T) {
	s := New(Gains{}, Gains{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20000; i++ {
			s.SetObject(Point{X: i, Y: -i})
		}
	}()

	for {
		p := s.Object()
		if p.X != -p.Y {
			t.Fatalf("torn object read %+v", p)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestStore_NegativeCoordinates(t *testing.T) {
	s := New(Gains{}, Gains{})
	s.SetObject(Point{X: -15, Y: 7})
	s.SetFrameCenter(Point{X: 320, Y: -1})

	assert.Equal(t, Point{X: -15, Y: 7}, s.Object())
	assert.Equal(t, -15, s.ObjectAt(Pan))
	assert.Equal(t, -1, s.Center(Tilt))
}
