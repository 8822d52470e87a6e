package pdf

import (
	"context"
	"testing"
)

func TestNewPageProcessorWiresStages(t *testing.T) {
	order, _ := NewReadingOrderAnalyzer("", false)
	parser, err := NewContentParser(nil, 1, false)
	if err != nil {
		t.Fatalf("NewContentParser failed: %v", err)
	}
	pp := NewPageProcessor(nil, order, parser)
	if pp.order != order || pp.content != parser {
		t.Error("expected PageProcessor to hold the given stage instances")
	}
}

func TestProcessFailsFastOnMissingImage(t *testing.T) {
	order, _ := NewReadingOrderAnalyzer("", false)
	parser, _ := NewContentParser(nil, 1, false)
	pp := NewPageProcessor(nil, order, parser)

	_, err := pp.Process(context.Background(), "nonexistent.pdf", PDFPage{PageNum: 1, ImagePath: "/does/not/exist.png"}, t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing page image")
	}
}
