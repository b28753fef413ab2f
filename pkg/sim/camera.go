package sim

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/teslashibe/go-pantilt/pkg/state"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

// Camera renders frames of the plant's scene. It implements tracking.VideoSource.
type Camera struct {
	plant *Plant
}

// NewCamera attaches a camera to the plant.
func NewCamera(p *Plant) *Camera {
	return &Camera{plant: p}
}

// NextFrame waits one frame interval and captures the scene.
func (c *Camera) NextFrame(ctx context.Context) (tracking.Frame, error) {
	cfg := c.plant.config
	if cfg.FrameInterval > 0 {
		t := time.NewTimer(cfg.FrameInterval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	pos := c.plant.observe()
	if cfg.UpsideDown {
		pos.Y = cfg.Height - 1 - pos.Y
	}
	return &Frame{
		size:   image.Pt(cfg.Width, cfg.Height),
		target: pos,
		side:   cfg.TargetSize,
	}, nil
}

// Frame is a synthetic frame holding only the target position.
type Frame struct {
	size   image.Point
	target state.Point
	side   int
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point { return f.size }

// FlipVertical mirrors the frame top to bottom.
func (f *Frame) FlipVertical() error {
	f.target.Y = f.size.Y - 1 - f.target.Y
	return nil
}

// Close is a no-op.
func (f *Frame) Close() error { return nil }

// Box returns the target's bounding box.
func (f *Frame) Box() image.Rectangle {
	h := f.side / 2
	return image.Rect(f.target.X-h, f.target.Y-h, f.target.X+h, f.target.Y+h)
}

// Visible reports whether the target center is inside the frame.
func (f *Frame) Visible() bool {
	return image.Pt(f.target.X, f.target.Y).In(image.Rectangle{Max: f.size})
}

// Image renders the frame as a dark background with a bright square target.
func (f *Frame) Image() image.Image {
	img := image.NewGray(image.Rectangle{Max: f.size})
	for i := range img.Pix {
		img.Pix[i] = 32
	}
	box := f.Box().Intersect(img.Bounds())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	return img
}

// Detector finds the target in simulated frames. It implements tracking.Detector.
type Detector struct{}

// Locate reports the target when it is inside the frame.
func (Detector) Locate(frame tracking.Frame, _ state.Point) (tracking.Location, bool, error) {
	f, ok := frame.(*Frame)
	if !ok || !f.Visible() {
		return tracking.Location{}, false, nil
	}
	return tracking.Location{Point: f.target, Box: f.Box()}, true, nil
}
