package pdf

import (
	"context"

	"github.com/pkg/errors"
)

// PageProcessor runs the three per-page analysis stages — layout detection,
// reading-order analysis, content parsing — in strict sequence for one page.
// It owns no state of its own beyond the shared stage instances, so one
// PageProcessor can safely be reused (or shared read-only) across pages; the
// stages it wraps each hold their own model session internally.
type PageProcessor struct {
	layout  *LayoutDetector
	order   *ReadingOrderAnalyzer
	content *ContentParser
}

// NewPageProcessor wires the three stage instances together. Any of layout
// or order may be nil only if their respective detectors were constructed
// disabled (empty model path); content must always be non-nil.
func NewPageProcessor(layout *LayoutDetector, order *ReadingOrderAnalyzer, content *ContentParser) *PageProcessor {
	return &PageProcessor{layout: layout, order: order, content: content}
}

// Process runs layout detection, reading-order analysis, and content parsing
// for one page, in that order, returning a PageResult. imagesDir is the
// job's shared output directory for saved element images.
func (p *PageProcessor) Process(ctx context.Context, pdfPath string, page PDFPage, imagesDir string) (PageResult, error) {
	pageImg, err := loadImage(page.ImagePath)
	if err != nil {
		return PageResult{}, errors.Wrapf(err, "page %d: failed to load rasterized image", page.PageNum)
	}

	layout, err := p.layout.DetectLayout(pdfPath, page.PageNum, pageImg)
	if err != nil {
		return PageResult{}, errors.Wrapf(err, "page %d: layout detection failed", page.PageNum)
	}

	order := p.order.AnalyzePage(layout, page.Width, page.Height)

	content, err := p.content.ParsePage(ctx, page, layout, order, imagesDir)
	if err != nil {
		return PageResult{}, errors.Wrapf(err, "page %d: content parsing failed", page.PageNum)
	}

	return PageResult{
		PageNum: page.PageNum,
		Layout:  layout,
		Order:   order,
		Content: &content,
	}, nil
}
