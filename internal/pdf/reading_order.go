package pdf

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/lo"
	ort "github.com/yalue/onnxruntime_go"

	"latex-translator/internal/logger"
)

const (
	clsTokenID = 0
	unkTokenID = 3
	eosTokenID = 2

	orderCoordSpace = 1000
)

// orderSessionCache is the process-wide cache of loaded reading-order
// models, mirroring the Rotation Detector's (modelPath, device) keying.
var (
	orderSessionCache   = map[string]*ort.DynamicAdvancedSession{}
	orderSessionCacheMu sync.Mutex
)

// ReadingOrderAnalyzer predicts the natural reading sequence of a page's
// layout elements using a LayoutLMv3-style bbox-classification model.
type ReadingOrderAnalyzer struct {
	modelPath string
	useGPU    bool
	enabled   bool
	session   *ort.DynamicAdvancedSession
}

// NewReadingOrderAnalyzer creates an analyzer bound to modelPath. An empty
// modelPath disables model inference; AnalyzePage then falls back to
// top-to-bottom, left-to-right geometric ordering.
func NewReadingOrderAnalyzer(modelPath string, useGPU bool) (*ReadingOrderAnalyzer, error) {
	a := &ReadingOrderAnalyzer{modelPath: modelPath, useGPU: useGPU}
	if modelPath == "" {
		return a, nil
	}
	if err := a.loadModel(); err != nil {
		logger.Warn("failed to load reading-order model, falling back to geometric ordering", logger.Err(err))
		return a, nil
	}
	a.enabled = true
	return a, nil
}

func (a *ReadingOrderAnalyzer) loadModel() error {
	if _, err := os.Stat(a.modelPath); err != nil {
		return fmt.Errorf("reading-order model path not found: %w", err)
	}

	device := "cpu"
	if a.useGPU {
		device = "gpu"
	}
	key := fmt.Sprintf("%s_%s", a.modelPath, device)

	orderSessionCacheMu.Lock()
	defer orderSessionCacheMu.Unlock()

	if cached, ok := orderSessionCache[key]; ok {
		logger.Info("reading-order model loaded from cache")
		a.session = cached
		return nil
	}

	if err := ensureONNXEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	modelFile := filepath.Join(a.modelPath, "model.onnx")
	if _, err := os.Stat(modelFile); err != nil {
		return fmt.Errorf("reading-order model file not found: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelFile,
		[]string{"input_ids", "bbox", "attention_mask"}, []string{"logits"}, nil)
	if err != nil {
		return fmt.Errorf("failed to create reading-order onnx session: %w", err)
	}

	orderSessionCache[key] = session
	a.session = session
	logger.Info("reading-order model loaded", logger.String("path", modelFile))
	return nil
}

// AnalyzePage returns the reading-order permutation for one page's layout
// elements, given the page's rasterized pixel dimensions for coordinate
// normalization.
func (a *ReadingOrderAnalyzer) AnalyzePage(elements []LayoutElement, pageWidth, pageHeight int) []ReadingOrderElement {
	if len(elements) == 0 {
		return nil
	}
	if pageWidth <= 0 || pageHeight <= 0 {
		return geometricOrder(elements)
	}

	boxes := make([][4]int, len(elements))
	for i, el := range elements {
		boxes[i] = normalizeToOrderSpace(el.BBox, pageWidth, pageHeight)
	}

	if !a.enabled {
		return geometricOrder(elements)
	}

	orders, err := a.predictOrder(boxes)
	if err != nil {
		logger.Warn("reading-order inference failed, falling back to geometric ordering", logger.Err(err))
		return geometricOrder(elements)
	}

	result := make([]ReadingOrderElement, 0, len(orders))
	for i, orderIdx := range orders {
		if orderIdx < 0 || orderIdx >= len(elements) {
			continue
		}
		result = append(result, ReadingOrderElement{
			ElementID:  elements[orderIdx].ElementID,
			OrderIndex: i,
			Confidence: 1.0,
		})
	}
	return result
}

// normalizeToOrderSpace clamps bbox to the page image and rescales it to
// the model's 0..1000 coordinate space.
func normalizeToOrderSpace(bbox BoundingBox, pageWidth, pageHeight int) [4]int {
	x1 := clampF(bbox.X, 0, float64(pageWidth))
	y1 := clampF(bbox.Y, 0, float64(pageHeight))
	x2 := clampF(bbox.X+bbox.Width, 0, float64(pageWidth))
	y2 := clampF(bbox.Y+bbox.Height, 0, float64(pageHeight))

	xScale := float64(orderCoordSpace) / float64(pageWidth)
	yScale := float64(orderCoordSpace) / float64(pageHeight)

	left := int(clampF(roundF(x1*xScale), 0, orderCoordSpace))
	top := int(clampF(roundF(y1*yScale), 0, orderCoordSpace))
	right := int(clampF(roundF(x2*xScale), float64(left+1), orderCoordSpace))
	bottom := int(clampF(roundF(y2*yScale), float64(top+1), orderCoordSpace))

	return [4]int{left, top, right, bottom}
}

func roundF(v float64) float64 {
	if v < 0 {
		return float64(int(v - 0.5))
	}
	return float64(int(v + 0.5))
}

// predictOrder runs the ONNX model framed with a leading CLS token and
// trailing EOS token (BboxesMasks), then decodes its output.
func (a *ReadingOrderAnalyzer) predictOrder(boxes [][4]int) ([]int, error) {
	n := len(boxes)
	seqLen := n + 2

	bbox := make([]int64, seqLen*4)
	inputIDs := make([]int64, seqLen)
	attentionMask := make([]int64, seqLen)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1
	for i, b := range boxes {
		pos := i + 1
		inputIDs[pos] = unkTokenID
		attentionMask[pos] = 1
		bbox[pos*4], bbox[pos*4+1], bbox[pos*4+2], bbox[pos*4+3] = int64(b[0]), int64(b[1]), int64(b[2]), int64(b[3])
	}
	inputIDs[seqLen-1] = eosTokenID
	attentionMask[seqLen-1] = 1

	idShape := ort.NewShape(1, int64(seqLen))
	idTensor, err := ort.NewTensor(idShape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build input_ids tensor: %w", err)
	}
	defer idTensor.Destroy()

	bboxShape := ort.NewShape(1, int64(seqLen), 4)
	bboxTensor, err := ort.NewTensor(bboxShape, bbox)
	if err != nil {
		return nil, fmt.Errorf("failed to build bbox tensor: %w", err)
	}
	defer bboxTensor.Destroy()

	maskTensor, err := ort.NewTensor(idShape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to build attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputShape := ort.NewShape(1, int64(seqLen), int64(n))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate logits tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := a.session.Run(
		[]ort.Value{idTensor, bboxTensor, maskTensor},
		[]ort.Value{outputTensor},
	); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return decodeReadingOrder(outputTensor.GetData(), seqLen, n), nil
}

// decodeReadingOrder mirrors the original's decode(): slice logits to the
// bbox rows/columns (dropping CLS/EOS), take each row's ascending argsort,
// then repeatedly resolve duplicate order claims by keeping the highest
// logit and reassigning the losers to their next-best candidate.
func decodeReadingOrder(logits []float32, seqLen, n int) []int {
	if n == 0 {
		return nil
	}

	// orders[row] holds row's candidate order indices, ascending by logit
	// (so popping the tail yields the current best guess).
	orders := make([][]int, n)
	for row := 0; row < n; row++ {
		base := (row + 1) * n // skip CLS row, only first n logit columns matter
		type scored struct {
			idx   int
			score float32
		}
		scores := make([]scored, n)
		for col := 0; col < n; col++ {
			scores[col] = scored{idx: col, score: logits[base+col]}
		}
		sort.SliceStable(scores, func(i, j int) bool { return scores[i].score < scores[j].score })
		candidates := make([]int, n)
		for i, s := range scores {
			candidates[i] = s.idx
		}
		orders[row] = candidates
	}

	ret := make([]int, n)
	for row := range ret {
		ret[row] = pop(&orders[row])
	}

	for {
		grouped := lo.GroupBy(lo.Range(n), func(row int) int { return ret[row] })
		conflicted := false
		for order, rows := range grouped {
			if len(rows) <= 1 {
				continue
			}
			conflicted = true
			base := func(row int) float32 { return logits[(row+1)*n+order] }
			sort.SliceStable(rows, func(i, j int) bool { return base(rows[i]) > base(rows[j]) })
			for _, row := range rows[1:] {
				ret[row] = pop(&orders[row])
			}
		}
		if !conflicted {
			break
		}
	}
	return ret
}

func pop(s *[]int) int {
	n := len(*s)
	if n == 0 {
		return 0
	}
	last := (*s)[n-1]
	*s = (*s)[:n-1]
	return last
}

// geometricOrder is the fallback used when no reading-order model is
// configured or inference fails: sort elements top-to-bottom, then
// left-to-right within a row band.
func geometricOrder(elements []LayoutElement) []ReadingOrderElement {
	indices := lo.Range(len(elements))
	sort.SliceStable(indices, func(i, j int) bool {
		a, b := elements[indices[i]].BBox, elements[indices[j]].BBox
		const rowBand = 10.0
		if a.Y < b.Y-rowBand || a.Y > b.Y+rowBand {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	result := make([]ReadingOrderElement, len(elements))
	for orderIdx, elIdx := range indices {
		result[orderIdx] = ReadingOrderElement{
			ElementID:  elements[elIdx].ElementID,
			OrderIndex: orderIdx,
			Confidence: 0.5,
		}
	}
	return result
}

// elementKindColors assigns a fill color per kind for reading-order
// visualization, the PART IV audit supplement.
var elementKindColors = map[ElementKind]color.RGBA{
	KindText:           {R: 255, G: 165, B: 0, A: 255},
	KindParagraphTitle: {R: 0, G: 255, B: 0, A: 255},
	KindImage:          {R: 0, G: 0, B: 255, A: 255},
	KindTable:          {R: 255, G: 165, B: 0, A: 255},
	KindFigureCaption:  {R: 255, G: 0, B: 0, A: 255},
	KindTableCaption:   {R: 0, G: 255, B: 128, A: 255},
}

// VisualizeReadingOrder draws each element's bounding box and order index
// over a copy of the page image, for debugging the analyzer's output.
func VisualizeReadingOrder(pageImg image.Image, elements []LayoutElement, order []ReadingOrderElement, outputPath string) error {
	bounds := pageImg.Bounds()
	canvas := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			canvas.Set(x, y, pageImg.At(x, y))
		}
	}

	orderByID := make(map[string]int, len(order))
	for _, o := range order {
		orderByID[o.ElementID] = o.OrderIndex
	}

	for _, el := range elements {
		c, ok := elementKindColors[el.Kind]
		if !ok {
			c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		drawBoxOutline(canvas, el.BBox, c)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create visualization directory: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create visualization file: %w", err)
	}
	defer file.Close()
	return png.Encode(file, canvas)
}

// drawBoxOutline draws a one-pixel-thick rectangle outline in c around bbox.
func drawBoxOutline(img *image.RGBA, bbox BoundingBox, c color.RGBA) {
	x0, y0 := int(bbox.X), int(bbox.Y)
	x1, y1 := int(bbox.X+bbox.Width), int(bbox.Y+bbox.Height)
	bounds := img.Bounds()

	for x := x0; x <= x1; x++ {
		setIfInBounds(img, bounds, x, y0, c)
		setIfInBounds(img, bounds, x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		setIfInBounds(img, bounds, x0, y, c)
		setIfInBounds(img, bounds, x1, y, c)
	}
}

func setIfInBounds(img *image.RGBA, bounds image.Rectangle, x, y int, c color.RGBA) {
	if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
		img.Set(x, y, c)
	}
}
