package pdf

import (
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"latex-translator/internal/logger"
)

const (
	rotationInputSize = 224

	angle0   = 0
	angle90  = 90
	angle180 = 180
	angle270 = 270
)

// rotationClassToAngle maps the PP-LCNet-style orientation classifier's
// output class index to a rotation angle, in the model's training label
// order (angleLabels lists the same labels and sizes the output tensor).
var rotationClassToAngle = map[int]int{0: angle0, 1: angle90, 2: angle180, 3: angle270}
var angleLabels = []string{"0", "90", "180", "270"}

// rotationSessionCache is the process-wide cache of loaded rotation models,
// keyed by "PP-LCNet_x1_0_doc_ori_<modelDir>_<device>" so two detectors
// pointed at the same model and device share one ONNX session.
var (
	rotationSessionCache   = map[string]*ort.DynamicAdvancedSession{}
	rotationSessionCacheMu sync.Mutex
)

// RotationDetector classifies a rasterized page's orientation (0/90/180/270)
// and, for non-zero angles other than 180, rotates the image back upright
// in place. 180-degree detections are suppressed per the documented
// operator decision to never auto-rotate a page that merely looks inverted.
type RotationDetector struct {
	modelDir string
	useGPU   bool
	enabled  bool
	session  *ort.DynamicAdvancedSession
}

// NewRotationDetector creates a detector bound to modelDir. If modelDir is
// empty the detector is disabled and DetectRotation always reports angle 0.
func NewRotationDetector(modelDir string, useGPU bool) (*RotationDetector, error) {
	d := &RotationDetector{modelDir: modelDir, useGPU: useGPU}
	if modelDir == "" {
		return d, nil
	}
	if err := d.loadModel(); err != nil {
		logger.Warn("failed to load rotation detection model, disabling rotation detection",
			logger.Err(err))
		return d, nil
	}
	d.enabled = true
	return d, nil
}

func (d *RotationDetector) cacheKey() string {
	device := "cpu"
	if d.useGPU {
		device = "gpu"
	}
	return fmt.Sprintf("PP-LCNet_x1_0_doc_ori_%s_%s", d.modelDir, device)
}

// loadModel loads the ONNX orientation classifier, consulting the process
// cache before creating a new session.
func (d *RotationDetector) loadModel() error {
	if _, err := os.Stat(d.modelDir); err != nil {
		return fmt.Errorf("rotation model directory not found: %w", err)
	}

	key := d.cacheKey()

	rotationSessionCacheMu.Lock()
	defer rotationSessionCacheMu.Unlock()

	if cached, ok := rotationSessionCache[key]; ok {
		logger.Info("rotation detection model loaded from cache")
		d.session = cached
		return nil
	}

	if err := ensureONNXEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	modelPath := d.modelDir + "/inference.onnx"
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("rotation model file not found: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"x"}, []string{"softmax_0.tmp_0"}, nil)
	if err != nil {
		return fmt.Errorf("failed to create rotation onnx session: %w", err)
	}

	rotationSessionCache[key] = session
	d.session = session
	logger.Info("rotation detection model loaded", logger.String("path", modelPath))
	return nil
}

// DetectRotation classifies pageImg's orientation and returns the detected
// angle plus the (possibly rotated-in-place) image. When detection fails or
// is disabled, it returns angle 0 and the original image unchanged — a
// rotation-detection failure never aborts page processing.
func (d *RotationDetector) DetectRotation(pageImg image.Image, pageNum int) (int, image.Image) {
	if !d.enabled || pageImg == nil {
		return angle0, pageImg
	}

	angle, err := d.classifyAngle(pageImg)
	if err != nil {
		logger.Warn("rotation detection failed, leaving page as-is",
			logger.Int("page", pageNum), logger.Err(err))
		return angle0, pageImg
	}

	if angle == angle180 {
		logger.Info("detected 180-degree rotation, suppressing per policy", logger.Int("page", pageNum))
		return angle0, pageImg
	}
	if angle == angle0 {
		return angle0, pageImg
	}

	logger.Info("rotating page upright", logger.Int("page", pageNum), logger.Int("angle", angle))
	return angle, rotateInverse(pageImg, angle)
}

// classifyAngle runs the orientation classifier on img and maps the index of
// its highest-scoring class to an angle; an index outside
// rotationClassToAngle yields angle 0.
func (d *RotationDetector) classifyAngle(img image.Image) (int, error) {
	input, err := PreprocessImage(img, rotationInputSize)
	if err != nil {
		return angle0, fmt.Errorf("preprocess failed: %w", err)
	}

	inputShape := ort.NewShape(1, 3, rotationInputSize, rotationInputSize)
	inputTensor, err := ort.NewTensor(inputShape, input)
	if err != nil {
		return angle0, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputShape := ort.NewShape(1, int64(len(angleLabels)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return angle0, fmt.Errorf("failed to allocate output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return angle0, fmt.Errorf("inference failed: %w", err)
	}

	scores := outputTensor.GetData()
	bestClass, bestScore := -1, float32(-1)
	for i, s := range scores {
		if s > bestScore {
			bestScore, bestClass = s, i
		}
	}
	if bestClass < 0 {
		return angle0, fmt.Errorf("no class scores returned")
	}

	angle, ok := rotationClassToAngle[bestClass]
	if !ok {
		return angle0, nil
	}
	return angle, nil
}

// rotateInverse undoes the detected orientation: a page detected as rotated
// 90 degrees clockwise is rotated 90 degrees counter-clockwise to restore
// upright reading order, and vice versa for 270.
func rotateInverse(img image.Image, detectedAngle int) image.Image {
	switch detectedAngle {
	case angle90:
		return rotateImage90(img, false)
	case angle270:
		return rotateImage90(img, true)
	default:
		return img
	}
}

// rotateImage90 rotates img 90 degrees; clockwise selects the direction.
func rotateImage90(img image.Image, clockwise bool) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			if clockwise {
				dx, dy = h-1-y, x
			} else {
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// AccumulateRotation folds a newly-detected angle into a page's existing
// accumulated rotation, matching the original's modular-360 bookkeeping so
// repeated detection passes stay consistent.
func AccumulateRotation(existing, detected int) int {
	return ((existing+detected)%360 + 360) % 360
}

