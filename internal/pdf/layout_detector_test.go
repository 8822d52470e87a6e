package pdf

import (
	"os"
	"testing"
)

func TestLayoutDetectorRuleBased(t *testing.T) {
	testPDF := "../../testdata/test.pdf"
	if _, err := os.Stat(testPDF); os.IsNotExist(err) {
		t.Skip("test PDF not found")
	}

	detector, err := NewLayoutDetector(LayoutDetectorConfig{
		ModelPath: "",
		Enabled:   false, // Use rule-based
	})
	if err != nil {
		t.Fatalf("NewLayoutDetector failed: %v", err)
	}

	elements, err := detector.DetectLayout(testPDF, 1, nil)
	if err != nil {
		t.Fatalf("DetectLayout failed: %v", err)
	}
	if len(elements) == 0 {
		t.Fatal("should detect at least one element")
	}

	for _, elem := range elements {
		if elem.Kind == "" {
			t.Error("element kind should not be empty")
		}
		if elem.Confidence <= 0.0 {
			t.Error("confidence should be positive")
		}
		if elem.BBox.PageNum != 1 {
			t.Errorf("expected page 1, got %d", elem.BBox.PageNum)
		}
		if elem.BBox.Width <= 0.0 || elem.BBox.Height <= 0.0 {
			t.Error("bounding box should have positive width and height")
		}
	}
}

func TestNonMaxSuppressDropsOverlapping(t *testing.T) {
	dets := []detection{
		{classIdx: 0, confidence: 0.9, cx: 100, cy: 100, w: 50, h: 50},
		{classIdx: 0, confidence: 0.8, cx: 105, cy: 105, w: 50, h: 50}, // heavily overlaps the first
		{classIdx: 0, confidence: 0.7, cx: 400, cy: 400, w: 50, h: 50}, // disjoint
	}

	kept := nonMaxSuppress(dets, 0.45)

	if len(kept) != 2 {
		t.Fatalf("expected 2 surviving detections, got %d", len(kept))
	}
	if kept[0].confidence != 0.9 {
		t.Errorf("expected highest-confidence detection to survive first, got %v", kept[0].confidence)
	}
}

func TestNonMaxSuppressKeepsDifferentClasses(t *testing.T) {
	dets := []detection{
		{classIdx: 0, confidence: 0.9, cx: 100, cy: 100, w: 50, h: 50},
		{classIdx: 1, confidence: 0.85, cx: 100, cy: 100, w: 50, h: 50}, // same box, different class
	}

	kept := nonMaxSuppress(dets, 0.45)

	if len(kept) != 2 {
		t.Fatalf("expected both class-distinct detections to survive, got %d", len(kept))
	}
}

func TestIoUIdenticalBoxes(t *testing.T) {
	a := detection{cx: 50, cy: 50, w: 20, h: 20}
	b := detection{cx: 50, cy: 50, w: 20, h: 20}
	if got := iou(a, b); got < 0.99 {
		t.Errorf("IoU of identical boxes = %f, want ~1.0", got)
	}
}

func TestIoUDisjointBoxes(t *testing.T) {
	a := detection{cx: 0, cy: 0, w: 10, h: 10}
	b := detection{cx: 1000, cy: 1000, w: 10, h: 10}
	if got := iou(a, b); got != 0 {
		t.Errorf("IoU of disjoint boxes = %f, want 0", got)
	}
}

func TestPostprocessDetectionsRejectsBadStride(t *testing.T) {
	_, err := PostprocessDetections([]float32{1, 2, 3}, 100, 100)
	if err == nil {
		t.Error("expected error for malformed detection output")
	}
}

func TestPostprocessDetectionsScalesToImageSize(t *testing.T) {
	numClasses := len(docLayoutYOLOClasses)
	stride := 4 + numClasses

	raw := make([]float32, stride)
	raw[0], raw[1], raw[2], raw[3] = 512, 512, 200, 100 // centered box in 1024x1024 space
	raw[4] = 0.9                                        // class 0 confidence

	elements, err := PostprocessDetections(raw, 2048, 2048) // 2x upscale
	if err != nil {
		t.Fatalf("PostprocessDetections failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	if elements[0].BBox.Width != 400 {
		t.Errorf("expected width scaled to 400, got %f", elements[0].BBox.Width)
	}
}

func TestPostprocessDetectionsNormalizedCornerFormat(t *testing.T) {
	numClasses := len(docLayoutYOLOClasses)
	stride := 4 + numClasses

	raw := make([]float32, stride)
	raw[0], raw[1], raw[2], raw[3] = 0.125, 0.25, 0.375, 0.5 // normalized [x1,y1,x2,y2], all in [0,1], exact in float32
	raw[4] = 0.9

	elements, err := PostprocessDetections(raw, 1000, 1000)
	if err != nil {
		t.Fatalf("PostprocessDetections failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	// assumed 1000x1000 frame scaled 1:1 into a 1000x1000 image: x1=125,y1=250,x2=375,y2=500
	got := elements[0].BBox
	if got.X != 125 || got.Y != 250 || got.Width != 250 || got.Height != 250 {
		t.Errorf("expected bbox {125,250,250,250}, got %+v", got)
	}
}

func TestPostprocessDetectionsNormalizedWidthHeightFormat(t *testing.T) {
	numClasses := len(docLayoutYOLOClasses)
	stride := 4 + numClasses

	raw := make([]float32, stride)
	raw[0], raw[1], raw[2], raw[3] = 0.5, 0.5, 0.125, 0.125 // normalized [x,y,w,h]: w,h < x,y so resolved as width/height, not corners
	raw[4] = 0.9

	elements, err := PostprocessDetections(raw, 1000, 1000)
	if err != nil {
		t.Fatalf("PostprocessDetections failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	got := elements[0].BBox
	if got.X != 500 || got.Y != 500 || got.Width != 125 || got.Height != 125 {
		t.Errorf("expected bbox {500,500,125,125}, got %+v", got)
	}
}

func TestDownloadModelMissingFails(t *testing.T) {
	err := DownloadModel(t.TempDir() + "/nonexistent/model.onnx")
	if err == nil {
		t.Error("expected error when model is missing and no download source is configured")
	}
}
