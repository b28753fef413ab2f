package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

var (
	// ErrStreamClosed means the device stopped delivering frames and could not be reopened.
	ErrStreamClosed = errors.New("video stream closed")
	// ErrInvalidConfig wraps capture configuration problems.
	ErrInvalidConfig = errors.New("invalid camera config")
)

// capture is the subset of gocv.VideoCapture the source needs.
type capture interface {
	Read(m *gocv.Mat) bool
	Close() error
}

type opener func(cfg Config) (capture, error)

func openDevice(cfg Config) (capture, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("device %s did not open", cfg.Device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}
	return vc, nil
}

// Source delivers frames from a video device. It implements tracking.VideoSource.
// A failed read triggers one reopen attempt before the stream is reported closed.
type Source struct {
	config Config
	open   opener
	log    *slog.Logger

	mu     sync.Mutex
	dev    capture
	closed bool
	frames uint64
}

// Open opens the device and waits for the sensor to settle.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	return openWith(ctx, cfg, logger, openDevice)
}

func openWith(ctx context.Context, cfg Config, logger *slog.Logger, open opener) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera", "device", cfg.Device)

	dev, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cfg.Device, err)
	}
	logger.Info("camera opened", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)

	if cfg.Warmup > 0 {
		select {
		case <-time.After(cfg.Warmup):
		case <-ctx.Done():
			dev.Close()
			return nil, ctx.Err()
		}
	}

	return &Source{config: cfg, open: open, log: logger, dev: dev}, nil
}

// Config returns the capture configuration.
func (s *Source) Config() Config {
	return s.config
}

// NextFrame blocks until the device delivers a frame.
func (s *Source) NextFrame(ctx context.Context) (tracking.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}

	mat := gocv.NewMat()
	if s.dev.Read(&mat) && !mat.Empty() {
		s.frames++
		return &Frame{mat: mat}, nil
	}

	s.log.Warn("capture failed, reopening", "frames", s.frames)
	s.dev.Close()
	dev, err := s.open(s.config)
	if err != nil {
		mat.Close()
		s.dev = nil
		s.closed = true
		return nil, fmt.Errorf("%w: reopen: %v", ErrStreamClosed, err)
	}
	s.dev = dev

	if s.dev.Read(&mat) && !mat.Empty() {
		s.frames++
		s.log.Info("camera reopened")
		return &Frame{mat: mat}, nil
	}

	mat.Close()
	s.closed = true
	return nil, ErrStreamClosed
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.dev == nil {
		return nil
	}
	dev := s.dev
	s.dev = nil
	return dev.Close()
}

// Frame is a captured image. It implements tracking.Frame and detection.MatFrame.
type Frame struct {
	mat gocv.Mat
}

// Mat returns the underlying matrix. It is only valid until Close.
func (f *Frame) Mat() gocv.Mat {
	return f.mat
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

// FlipVertical mirrors the frame top to bottom in place.
func (f *Frame) FlipVertical() error {
	if f.mat.Empty() {
		return errors.New("flip empty frame")
	}
	gocv.Flip(f.mat, &f.mat, 0)
	return nil
}

// Close frees the frame.
func (f *Frame) Close() error {
	return f.mat.Close()
}

// EncodeJPEG compresses the frame for preview.
func EncodeJPEG(m gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
