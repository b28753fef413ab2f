package tracking

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/teslashibe/go-pantilt/pkg/state"
)

// fakeFrame is an in-memory frame of a fixed size.
type fakeFrame struct {
	size    image.Point
	flipped bool
	closed  bool
}

func (f *fakeFrame) Size() image.Point   { return f.size }
func (f *fakeFrame) FlipVertical() error { f.flipped = !f.flipped; return nil }
func (f *fakeFrame) Close() error        { f.closed = true; return nil }

// fakeSource hands out frames of one size, optionally failing after n frames.
type fakeSource struct {
	mu     sync.Mutex
	size   image.Point
	failAt int
	err    error
	served int
	frames []*fakeFrame
}

func (s *fakeSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && s.served >= s.failAt {
		return nil, s.err
	}
	s.served++
	f := &fakeFrame{size: s.size}
	s.frames = append(s.frames, f)
	return f, nil
}

// scriptedDetector returns the next scripted result on each call and repeats
// the last one when the script runs out.
type scriptedDetector struct {
	mu      sync.Mutex
	results []detectResult
	calls   int
	hints   []state.Point
	sawFlip []bool
}

type detectResult struct {
	loc   Location
	found bool
	err   error
}

func (d *scriptedDetector) Locate(frame Frame, hint state.Point) (Location, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hints = append(d.hints, hint)
	if ff, ok := frame.(*fakeFrame); ok {
		d.sawFlip = append(d.sawFlip, ff.flipped)
	}
	if len(d.results) == 0 {
		return Location{}, false, nil
	}
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	r := d.results[i]
	return r.loc, r.found, r.err
}

func found(x, y int) detectResult {
	return detectResult{
		loc:   Location{Point: state.Point{X: x, Y: y}, Box: image.Rect(x-10, y-10, x+10, y+10)},
		found: true,
	}
}

func missed() detectResult { return detectResult{} }

// mockActuator records every call.
type mockActuator struct {
	mu         sync.Mutex
	enables    []enableCall
	angles     map[state.Axis][]float64
	enableErr  error
	setErr     error
	setErrAxis state.Axis
}

type enableCall struct {
	axis state.Axis
	on   bool
}

func newMockActuator() *mockActuator {
	return &mockActuator{angles: map[state.Axis][]float64{}}
}

func (m *mockActuator) Enable(axis state.Axis, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enables = append(m.enables, enableCall{axis, on})
	if on && m.enableErr != nil {
		return m.enableErr
	}
	return nil
}

func (m *mockActuator) SetAngle(axis state.Axis, degrees float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil && axis == m.setErrAxis {
		return m.setErr
	}
	m.angles[axis] = append(m.angles[axis], degrees)
	return nil
}

func (m *mockActuator) disableCount(axis state.Axis) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.enables {
		if c.axis == axis && !c.on {
			n++
		}
	}
	return n
}

func (m *mockActuator) angleCount(axis state.Axis) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.angles[axis])
}

func (m *mockActuator) lastAngle(axis state.Axis) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.angles[axis]
	if len(a) == 0 {
		return 0, false
	}
	return a[len(a)-1], true
}

var errCameraGone = errors.New("camera unplugged")
