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

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	log      *slog.Logger
	mu       sync.Mutex // protects inference
	size     image.Point
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(cfg Config, logger *slog.Logger) (*YuNetDetector, error) {
	if err := checkArtifact(cfg.ModelPath); err != nil {
		return nil, err
	}

	// The input size is updated per frame.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	logger.Info("yunet loaded", "path", cfg.ModelPath)
	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		log:      logger,
		size:     image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect returns every face in the frame.
func (d *YuNetDetector) Detect(frame tracking.Frame) ([]Detection, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if sz := image.Pt(img.Cols(), img.Rows()); sz != d.size {
		d.detector.SetInputSize(sz)
		d.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Each row: x, y, w, h, five landmark pairs, score.
	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		dets = append(dets, yunetRow(
			faces.GetFloatAt(r, 0),
			faces.GetFloatAt(r, 1),
			faces.GetFloatAt(r, 2),
			faces.GetFloatAt(r, 3),
			faces.GetFloatAt(r, 14),
		))
	}

	if len(dets) > 0 {
		d.log.Debug("yunet faces", "count", len(dets))
	}
	return dets, nil
}

func yunetRow(x, y, w, h, score float32) Detection {
	return Detection{
		Box:        image.Rect(int(x), int(y), int(x+w), int(y+h)),
		Confidence: float64(score),
		ClassName:  "face",
	}
}

// Locate implements tracking.Detector.
func (d *YuNetDetector) Locate(frame tracking.Frame, _ state.Point) (tracking.Location, bool, error) {
	dets, err := d.Detect(frame)
	if err != nil {
		return tracking.Location{}, false, err
	}
	loc, ok := locate(dets)
	return loc, ok, nil
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
