// Package detection finds the tracked object in camera frames.
//
// Every backend runs on gocv and implements tracking.Detector. Frames must be
// backed by a gocv.Mat (see MatFrame); the camera package provides such frames.
package detection

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-pantilt/pkg/state"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

var (
	// ErrMissingDetectorConfig means the classifier or model file is absent or unusable.
	ErrMissingDetectorConfig = errors.New("missing detector configuration")
	// ErrUnsupportedFrame means the frame carries no gocv.Mat.
	ErrUnsupportedFrame = errors.New("frame is not backed by a gocv.Mat")
	// ErrUnknownKind means the backend name is not recognised.
	ErrUnknownKind = errors.New("unknown detector kind")
)

// Detection is one candidate found in a frame, in pixels.
type Detection struct {
	Box        image.Rectangle
	Confidence float64 // 0-1; cascade detections report 1
	ClassID    int
	ClassName  string
}

// Center returns the center point of the bounding box.
func (d Detection) Center() state.Point {
	return state.Point{
		X: d.Box.Min.X + d.Box.Dx()/2,
		Y: d.Box.Min.Y + d.Box.Dy()/2,
	}
}

// Area returns the area of the bounding box.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// Location converts the detection into the tracker's representation.
func (d Detection) Location() tracking.Location {
	return tracking.Location{Point: d.Center(), Box: d.Box}
}

// SelectBest picks the candidate to track.
// Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		rel := 0.0
		if maxArea > 0 {
			rel = float64(dets[i].Area()) / float64(maxArea)
		}
		score := dets[i].Confidence*0.7 + rel*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}

// MatFrame is implemented by frames that carry a gocv.Mat.
type MatFrame interface {
	Mat() gocv.Mat
}

func matOf(f tracking.Frame) (gocv.Mat, error) {
	mf, ok := f.(MatFrame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("%w: %T", ErrUnsupportedFrame, f)
	}
	return mf.Mat(), nil
}

// locate reduces candidates to the one the tracker follows.
func locate(dets []Detection) (tracking.Location, bool) {
	best := SelectBest(dets)
	if best == nil {
		return tracking.Location{}, false
	}
	return best.Location(), true
}

// Kind names a detection backend.
type Kind string

const (
	KindCascade Kind = "cascade"
	KindYuNet   Kind = "yunet"
	KindYOLO    Kind = "yolo"
)

// ParseKind validates a backend name. Empty means cascade.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindCascade, nil
	case KindCascade, KindYuNet, KindYOLO:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config holds detector configuration.
type Config struct {
	Kind             Kind
	ModelPath        string  // cascade XML or ONNX model
	Class            string  // YOLO class to follow; empty follows any class
	ConfidenceThresh float64 // minimum confidence (default 0.5)
	NMSThresh        float64 // YOLO non-max suppression threshold
	InputWidth       int     // model input width
	InputHeight      int     // model input height

	// Haar cascade parameters.
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// DefaultConfig returns defaults for the given backend.
func DefaultConfig(kind Kind) Config {
	cfg := Config{
		Kind:             kind,
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		ScaleFactor:      1.05,
		MinNeighbors:     9,
		MinSize:          30,
	}
	switch kind {
	case KindYuNet:
		cfg.ModelPath = "models/face_detection_yunet.onnx"
		cfg.InputWidth, cfg.InputHeight = 320, 320
	case KindYOLO:
		cfg.ModelPath = "models/yolov8n.onnx"
		cfg.Class = "person"
		cfg.InputWidth, cfg.InputHeight = 640, 640
	default:
		cfg.Kind = KindCascade
		cfg.ModelPath = "haarcascade_frontalface_default.xml"
	}
	return cfg
}

// Backend is a detector holding native resources.
type Backend interface {
	tracking.Detector
	io.Closer
}

// checkArtifact verifies the classifier or model file is a readable regular file.
func checkArtifact(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: no model path", ErrMissingDetectorConfig)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingDetectorConfig, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrMissingDetectorConfig, path)
	}
	return nil
}

// Open loads the configured backend.
func Open(cfg Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "detector", "kind", string(cfg.Kind))

	switch cfg.Kind {
	case KindCascade, "":
		return NewCascade(cfg, logger)
	case KindYuNet:
		return NewYuNet(cfg, logger)
	case KindYOLO:
		return NewYOLO(cfg, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}
