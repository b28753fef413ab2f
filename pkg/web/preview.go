package web

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-pantilt/pkg/camera"
	"github.com/teslashibe/go-pantilt/pkg/hub"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

// Preview turns processed frames into JPEG messages on the camera hub.
// It implements tracking.FrameObserver and is called from the locator loop,
// so frames are only encoded while a client is watching and no faster than
// the configured rate.
type Preview struct {
	hub     *hub.Hub
	quality int
	period  time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

var _ tracking.FrameObserver = (*Preview)(nil)

// NewPreview creates an observer. fps <= 0 disables encoding.
func NewPreview(h *hub.Hub, fps, quality int, logger *slog.Logger) *Preview {
	var period time.Duration
	if fps > 0 {
		period = time.Second / time.Duration(fps)
	}
	if quality < 1 || quality > 100 {
		quality = 70
	}
	return &Preview{hub: h, quality: quality, period: period, log: logger, now: time.Now}
}

// due reports whether a frame should be encoded now.
func (p *Preview) due() bool {
	if p.period <= 0 || p.hub.ClientCount() == 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.period {
		return false
	}
	p.last = now
	return true
}

// ObserveFrame encodes the frame with the detection box drawn on it.
func (p *Preview) ObserveFrame(frame tracking.Frame, loc tracking.Location, found bool) {
	if !p.due() {
		return
	}
	data, err := encode(frame, loc, found, p.quality)
	if err != nil {
		p.log.Debug("preview encode failed", "error", err)
		return
	}
	if data != nil {
		p.hub.BroadcastBinary(data)
	}
}

var (
	boxColor    = color.RGBA{G: 255, A: 255}
	centerColor = color.RGBA{R: 255, A: 255}
)

// encode supports gocv-backed frames and frames that render to an image.
// Other frames produce nil.
func encode(frame tracking.Frame, loc tracking.Location, found bool, quality int) ([]byte, error) {
	switch f := frame.(type) {
	case interface{ Mat() gocv.Mat }:
		m := f.Mat()
		if found {
			gocv.Rectangle(&m, loc.Box, boxColor, 2)
		}
		gocv.Circle(&m, image.Pt(loc.Point.X, loc.Point.Y), 4, centerColor, -1)
		return camera.EncodeJPEG(m, quality)

	case interface{ Image() image.Image }:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}
