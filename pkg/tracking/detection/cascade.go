package detection

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-pantilt/pkg/state"
	"github.com/teslashibe/go-pantilt/pkg/tracking"
)

// CascadeDetector finds objects with an OpenCV Haar cascade.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	config     Config
	log        *slog.Logger
	mu         sync.Mutex
}

// NewCascade loads the classifier definition at cfg.ModelPath.
func NewCascade(cfg Config, logger *slog.Logger) (*CascadeDetector, error) {
	if err := checkArtifact(cfg.ModelPath); err != nil {
		return nil, err
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.ModelPath) {
		classifier.Close()
		return nil, fmt.Errorf("%w: cannot load cascade %s", ErrMissingDetectorConfig, cfg.ModelPath)
	}

	logger.Info("cascade loaded", "path", cfg.ModelPath)
	return &CascadeDetector{classifier: classifier, config: cfg, log: logger}, nil
}

// Detect returns every candidate in the frame.
func (d *CascadeDetector) Detect(frame tracking.Frame) ([]Detection, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		0,
		image.Pt(d.config.MinSize, d.config.MinSize),
		image.Pt(0, 0),
	)
	d.mu.Unlock()

	dets := make([]Detection, 0, len(rects))
	for _, r := range rects {
		dets = append(dets, Detection{Box: r, Confidence: 1})
	}
	if len(dets) > 0 {
		d.log.Debug("cascade hits", "count", len(dets))
	}
	return dets, nil
}

// Locate implements tracking.Detector. All cascade hits score equally, so
// the largest one wins.
func (d *CascadeDetector) Locate(frame tracking.Frame, _ state.Point) (tracking.Location, bool, error) {
	dets, err := d.Detect(frame)
	if err != nil {
		return tracking.Location{}, false, err
	}
	loc, ok := locate(dets)
	return loc, ok, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
