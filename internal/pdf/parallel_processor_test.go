package pdf

import (
	"context"
	"testing"

	"latex-translator/internal/memmgr"
)

func newNoopPageProcessor() (*PageProcessor, error) {
	order, _ := NewReadingOrderAnalyzer("", false)
	parser, err := NewContentParser(nil, 1, false)
	if err != nil {
		return nil, err
	}
	return NewPageProcessor(nil, order, parser), nil
}

func TestNewParallelDocumentProcessorDefaultsWorkers(t *testing.T) {
	p := NewParallelDocumentProcessor(newNoopPageProcessor, memmgr.New(75, 90), 0)
	if p.maxWorkers < 1 {
		t.Errorf("expected positive default maxWorkers, got %d", p.maxWorkers)
	}
}

func TestProcessPagesRecordsFailureForPagesMissingImages(t *testing.T) {
	p := NewParallelDocumentProcessor(newNoopPageProcessor, memmgr.New(75, 90), 2)
	pages := []PDFPage{
		{PageNum: 1, ImagePath: "/does/not/exist-1.png"},
		{PageNum: 2, ImagePath: "/does/not/exist-2.png"},
	}

	results := p.ProcessPages(context.Background(), "nonexistent.pdf", pages, t.TempDir())
	if len(results) != len(pages) {
		t.Fatalf("expected one result per input page, got %d", len(results))
	}
	for i, r := range results {
		if !r.Failed {
			t.Errorf("expected page %d to be marked Failed, got %+v", pages[i].PageNum, r)
		}
		if r.PageNum != pages[i].PageNum {
			t.Errorf("expected result %d to preserve PageNum %d, got %d", i, pages[i].PageNum, r.PageNum)
		}
	}
}

func TestProcessPagesEmptyInput(t *testing.T) {
	p := NewParallelDocumentProcessor(newNoopPageProcessor, memmgr.New(75, 90), 2)
	results := p.ProcessPages(context.Background(), "nonexistent.pdf", nil, t.TempDir())
	if results != nil {
		t.Errorf("expected nil results for no pages, got %v", results)
	}
}
