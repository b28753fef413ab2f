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

// YOLODetector uses YOLOv8 for general object detection, optionally
// restricted to one COCO class.
type YOLODetector struct {
	net       gocv.Net
	config    Config
	classID   int // -1 accepts every class
	log       *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads a YOLOv8 ONNX model.
func NewYOLO(cfg Config, logger *slog.Logger) (*YOLODetector, error) {
	classID := -1
	if cfg.Class != "" {
		classID = ClassIndex(cfg.Class)
		if classID < 0 {
			return nil, fmt.Errorf("%w: unknown class %q", ErrMissingDetectorConfig, cfg.Class)
		}
	}
	if err := checkArtifact(cfg.ModelPath); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: cannot load model %s", ErrMissingDetectorConfig, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger.Info("yolo loaded", "path", cfg.ModelPath, "class", cfg.Class)
	return &YOLODetector{
		net:       net,
		config:    cfg,
		classID:   classID,
		log:       logger,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect returns every object of the configured class in the frame.
func (d *YOLODetector) Detect(frame tracking.Frame) ([]Detection, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Forward returns an N-dimensional blob, so Rows and Cols are -1.
	n, attrs, err := yoloShape(output.Size())
	if err != nil {
		return nil, err
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read yolo output: %w", err)
	}

	sx := float32(img.Cols()) / float32(d.config.InputWidth)
	sy := float32(img.Rows()) / float32(d.config.InputHeight)
	cands := yoloCandidates(data, n, attrs, float32(d.config.ConfidenceThresh), sx, sy, d.classID)
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	confs := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		confs[i] = float32(c.Confidence)
	}
	indices := gocv.NMSBoxes(boxes, confs, float32(d.config.ConfidenceThresh), float32(d.config.NMSThresh))

	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		dets = append(dets, cands[idx])
	}
	d.log.Debug("yolo objects", "count", len(dets))
	return dets, nil
}

// yoloShape reads the detection count and per-detection attribute count from
// a YOLOv8 output shape, [1, attrs, n] or [attrs, n]. Each detection carries 4
// box values followed by one score per class.
func yoloShape(sz []int) (n, attrs int, err error) {
	switch {
	case len(sz) == 3 && sz[0] == 1:
		attrs, n = sz[1], sz[2]
	case len(sz) == 2:
		attrs, n = sz[0], sz[1]
	default:
		return 0, 0, fmt.Errorf("unexpected yolo output shape %v", sz)
	}
	if attrs < 5 || n < 1 {
		return 0, 0, fmt.Errorf("unexpected yolo output shape %v", sz)
	}
	return n, attrs, nil
}

// yoloCandidates decodes a transposed YOLOv8 tensor of n detections with
// attrs values each. Boxes are scaled by sx, sy into frame pixels.
func yoloCandidates(data []float32, n, attrs int, thresh, sx, sy float32, classID int) []Detection {
	if attrs < 5 || len(data) < n*attrs {
		return nil
	}

	var out []Detection
	for i := 0; i < n; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < attrs; c++ {
			if s := data[c*n+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < thresh {
			continue
		}
		if classID >= 0 && bestID != classID {
			continue
		}

		cx, cy := data[i], data[n+i]
		w, h := data[2*n+i], data[3*n+i]
		out = append(out, Detection{
			Box: image.Rect(
				int((cx-w/2)*sx), int((cy-h/2)*sy),
				int((cx+w/2)*sx), int((cy+h/2)*sy),
			),
			Confidence: float64(best),
			ClassID:    bestID,
			ClassName:  className(bestID),
		})
	}
	return out
}

// Locate implements tracking.Detector.
func (d *YOLODetector) Locate(frame tracking.Frame, _ state.Point) (tracking.Location, bool, error) {
	dets, err := d.Detect(frame)
	if err != nil {
		return tracking.Location{}, false, err
	}
	loc, ok := locate(dets)
	return loc, ok, nil
}

// Close releases the detector resources.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// ClassIndex returns the COCO index of name, or -1.
func ClassIndex(name string) int {
	for i, c := range COCOClasses {
		if c == name {
			return i
		}
	}
	return -1
}

func className(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return ""
	}
	return COCOClasses[id]
}
