// Package pdf provides PDF translation functionality with AI-powered layout detection
package pdf

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"latex-translator/internal/logger"
)

// docLayoutYOLOClasses maps the DocLayout-YOLO-DocStructBench class indices
// to element kinds, in the model's training label order.
var docLayoutYOLOClasses = []ElementKind{
	KindText,
	KindDocumentTitle,
	KindParagraphTitle,
	KindImage,
	KindTableCaption,
	KindTable,
	KindTable,
	KindFigureCaption,
	KindFootnote,
	KindChemicalFormula,
	KindAlgorithm,
}

const (
	layoutInputSize       = 1024
	layoutConfidenceFloor = 0.25
	layoutNMSIoUThreshold = 0.45
)

// LayoutDetector assigns element kinds and bounding boxes to regions of a
// rasterized page, either via an ONNX DocLayout-YOLO model or, when no model
// is configured or loading fails, a rule-based fallback built on extracted
// text rows.
type LayoutDetector struct {
	modelPath string
	session   *ort.DynamicAdvancedSession
	enabled   bool
}

// LayoutDetectorConfig holds configuration for layout detector
type LayoutDetectorConfig struct {
	ModelPath string
	Enabled   bool
}

// NewLayoutDetector creates a new layout detector
func NewLayoutDetector(config LayoutDetectorConfig) (*LayoutDetector, error) {
	detector := &LayoutDetector{
		modelPath: config.ModelPath,
		enabled:   config.Enabled,
	}

	if config.Enabled {
		if err := detector.loadModel(); err != nil {
			logger.Warn("failed to load layout detection model, falling back to rule-based detection",
				logger.Err(err))
			detector.enabled = false
		}
	}

	return detector, nil
}

// loadModel initializes the ONNX runtime session for the DocLayout-YOLO
// model. The runtime environment is process-wide and shared across every
// LayoutDetector instance.
func (d *LayoutDetector) loadModel() error {
	if d.modelPath == "" {
		return fmt.Errorf("model path not specified")
	}
	if _, err := os.Stat(d.modelPath); err != nil {
		return fmt.Errorf("model file not found: %w", err)
	}

	if err := ensureONNXEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(d.modelPath, []string{"images"}, []string{"output0"}, nil)
	if err != nil {
		return fmt.Errorf("failed to create onnx session: %w", err)
	}
	d.session = session

	logger.Info("layout detection model loaded", logger.String("path", d.modelPath))
	return nil
}

var onnxEnvInitialized bool

// ensureONNXEnvironment initializes the onnxruntime environment exactly
// once per process; it is shared by every component that loads an ONNX
// model (layout detection, reading order).
func ensureONNXEnvironment() error {
	if onnxEnvInitialized {
		return nil
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	onnxEnvInitialized = true
	return nil
}

// DetectLayout detects layout elements on one page, given its rasterized
// image. pdfPath and pageNum are carried through only for logging and the
// rule-based fallback's text extraction.
func (d *LayoutDetector) DetectLayout(pdfPath string, pageNum int, pageImg image.Image) ([]LayoutElement, error) {
	if !d.enabled || pageImg == nil {
		return d.detectLayoutRuleBased(pdfPath, pageNum)
	}

	elements, err := d.detectLayoutAI(pageImg, pageNum)
	if err != nil {
		logger.Warn("AI layout detection failed, falling back to rule-based",
			logger.Int("page", pageNum), logger.Err(err))
		return d.detectLayoutRuleBased(pdfPath, pageNum)
	}
	return elements, nil
}

// detectLayoutAI runs the ONNX model: preprocess to 1024x1024, inference,
// NMS, rescale boxes back to the source image size.
func (d *LayoutDetector) detectLayoutAI(pageImg image.Image, pageNum int) ([]LayoutElement, error) {
	bounds := pageImg.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	input, err := PreprocessImage(pageImg, layoutInputSize)
	if err != nil {
		return nil, fmt.Errorf("preprocess failed: %w", err)
	}

	inputShape := ort.NewShape(1, 3, layoutInputSize, layoutInputSize)
	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputShape := ort.NewShape(1, int64(len(docLayoutYOLOClasses)+4), 0)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := outputTensor.GetData()
	elements, err := PostprocessDetections(raw, origW, origH)
	if err != nil {
		return nil, err
	}
	for i := range elements {
		elements[i].ElementID = fmt.Sprintf("%d-%d", pageNum, i+1)
		elements[i].BBox.PageNum = pageNum
	}
	return elements, nil
}

// detectLayoutRuleBased uses the embedded-text extractor as a fallback
// layout source when no ONNX model is configured.
func (d *LayoutDetector) detectLayoutRuleBased(pdfPath string, pageNum int) ([]LayoutElement, error) {
	logger.Info("detecting layout with rule-based method",
		logger.String("pdf", filepath.Base(pdfPath)),
		logger.Int("page", pageNum))

	parser := NewPDFParser("")
	allElements, err := parser.ExtractText(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	var pageElements []LayoutElement
	for _, el := range allElements {
		if el.BBox.PageNum == pageNum {
			pageElements = append(pageElements, el)
		}
	}

	logger.Info("rule-based detection complete", logger.Int("elements", len(pageElements)))
	return pageElements, nil
}

// PreprocessImage resizes img to targetSize x targetSize, normalizes to
// [0,1], and returns it in CHW float32 layout for ONNX input.
func PreprocessImage(img image.Image, targetSize int) ([]float32, error) {
	resized := resizeImage(img, targetSize, targetSize)

	data := make([]float32, 3*targetSize*targetSize)
	plane := targetSize * targetSize
	for y := 0; y < targetSize; y++ {
		for x := 0; x < targetSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*targetSize + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return data, nil
}

// resizeImage performs nearest-neighbor resize; layout detection confidence
// is dominated by the model's own tolerance, not interpolation quality.
func resizeImage(img image.Image, w, h int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcY := bounds.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*srcW/w
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// detection is one raw YOLO box before NMS, already rescaled to absolute
// pixel coordinates in the source image and held in center format
// (cx, cy, w, h).
type detection struct {
	classIdx     int
	confidence   float32
	cx, cy, w, h float64
}

// decodeBox turns one detection's raw four-value box into absolute
// center-format (cx, cy, w, h) pixel coordinates in the source image.
//
// The common case is the model's native center-format box (cx, cy, w, h)
// relative to the 1024x1024 input frame, which is rescaled directly. Some
// DocLayout-YOLO export variants instead emit corner coordinates
// ([x1,y1,x2,y2]) or coordinates normalized into [0,1] with no indication of
// the frame they were computed against; when all four raw values fall in
// [0,1] they are treated as normalized against an assumed 1000x1000 frame,
// and the corner-vs-width/height ambiguity is resolved the same way the
// original layout detector resolves it for its own detection backend: a
// second pair smaller than the first means it was already (w, h) rather than
// (x2, y2).
func decodeBox(c0, c1, c2, c3 float32, imgWidth, imgHeight int) (cx, cy, w, h float64) {
	a, b, c, d := float64(c0), float64(c1), float64(c2), float64(c3)

	if a >= 0 && a <= 1 && b >= 0 && b <= 1 && c >= 0 && c <= 1 && d >= 0 && d <= 1 {
		const assumedFrame = 1000.0
		a, b, c, d = a*assumedFrame, b*assumedFrame, c*assumedFrame, d*assumedFrame

		var x0, y0, width, height float64
		if c < a || d < b {
			x0, y0, width, height = a, b, c, d
		} else {
			x0, y0 = a, b
			width, height = c-a, d-b
		}
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}

		scaleX, scaleY := float64(imgWidth)/assumedFrame, float64(imgHeight)/assumedFrame
		return (x0 + width/2) * scaleX, (y0 + height/2) * scaleY, width * scaleX, height * scaleY
	}

	scaleX, scaleY := float64(imgWidth)/float64(layoutInputSize), float64(imgHeight)/float64(layoutInputSize)
	return a * scaleX, b * scaleY, c * scaleX, d * scaleY
}

// PostprocessDetections parses raw YOLO output (shape
// [1, 4+numClasses, numAnchors] flattened), applies confidence filtering and
// NMS, and scales boxes from the model's input frame back to
// (imgWidth, imgHeight).
func PostprocessDetections(rawOutput []float32, imgWidth, imgHeight int) ([]LayoutElement, error) {
	numClasses := len(docLayoutYOLOClasses)
	stride := 4 + numClasses
	if stride == 0 || len(rawOutput)%stride != 0 {
		return nil, fmt.Errorf("unexpected detection output length %d for stride %d", len(rawOutput), stride)
	}
	numAnchors := len(rawOutput) / stride

	var detections []detection
	for a := 0; a < numAnchors; a++ {
		base := a * stride
		cx, cy, w, h := decodeBox(rawOutput[base], rawOutput[base+1], rawOutput[base+2], rawOutput[base+3], imgWidth, imgHeight)

		bestClass, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			score := rawOutput[base+4+c]
			if score > bestScore {
				bestScore, bestClass = score, c
			}
		}
		if bestClass < 0 || bestScore < layoutConfidenceFloor {
			continue
		}
		detections = append(detections, detection{classIdx: bestClass, confidence: bestScore, cx: cx, cy: cy, w: w, h: h})
	}

	kept := nonMaxSuppress(detections, layoutNMSIoUThreshold)

	elements := make([]LayoutElement, 0, len(kept))
	for _, det := range kept {
		x0 := det.cx - det.w/2
		y0 := det.cy - det.h/2

		kind := KindText
		if det.classIdx >= 0 && det.classIdx < len(docLayoutYOLOClasses) {
			kind = docLayoutYOLOClasses[det.classIdx]
		}

		elements = append(elements, LayoutElement{
			Kind:       kind,
			BBox:       BoundingBox{X: x0, Y: y0, Width: det.w, Height: det.h},
			Confidence: float64(det.confidence),
		})
	}
	return elements, nil
}

// nonMaxSuppress greedily keeps the highest-confidence box in each
// overlapping cluster, per class.
func nonMaxSuppress(dets []detection, iouThreshold float32) []detection {
	if len(dets) == 0 {
		return nil
	}

	sort.Slice(dets, func(i, j int) bool { return dets[i].confidence > dets[j].confidence })

	kept := make([]detection, 0, len(dets))
	suppressed := make([]bool, len(dets))

	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] || dets[j].classIdx != dets[i].classIdx {
				continue
			}
			if iou(dets[i], dets[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b detection) float32 {
	ax0, ay0, ax1, ay1 := a.cx-a.w/2, a.cy-a.h/2, a.cx+a.w/2, a.cy+a.h/2
	bx0, by0, bx1, by1 := b.cx-b.w/2, b.cy-b.h/2, b.cx+b.w/2, b.cy+b.h/2

	ix0, iy0 := math.Max(ax0, bx0), math.Max(ay0, by0)
	ix1, iy1 := math.Min(ax1, bx1), math.Min(ay1, by1)

	iw, ih := ix1-ix0, iy1-iy0
	if iw <= 0 || ih <= 0 {
		return 0
	}
	intersection := iw * ih
	union := a.w*a.h + b.w*b.h - intersection
	if union <= 0 {
		return 0
	}
	return float32(intersection / union)
}

// DownloadModel downloads the DocLayout-YOLO model if not present. Actual
// retrieval is left to the deployment's model-provisioning step; this only
// establishes the expected local path and refuses to silently proceed
// without one.
func DownloadModel(modelPath string) error {
	if _, err := os.Stat(modelPath); err == nil {
		logger.Info("model already exists", logger.String("path", modelPath))
		return nil
	}

	modelDir := filepath.Dir(modelPath)
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	return NewPDFError(ErrModelLoadFailed, "layout model not found and automatic download is not configured",
		fmt.Errorf("expected model at %s", modelPath))
}
