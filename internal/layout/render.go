// Render builds a layout-preserving translated PDF: each source page's
// raster is kept as a background image, the original foreign-text regions
// are covered, and translated text is redrawn using the per-region
// CalculateLayout result so it lands back inside the original bounding box.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	gopdf "github.com/VantageDataChat/GoPDF2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Region is one translated text region to redraw on top of a page
// background, in PDF points (72/inch), top-left origin.
type Region struct {
	ElementID string
	Text      string
	X, Y      float64
	Width     float64
	Height    float64
	FontSize  float64
	Language  string
}

// PageInput is one page's background raster plus the regions to redraw on
// top of it.
type PageInput struct {
	PageNum             int
	WidthPt, HeightPt   float64
	BackgroundImagePath string
	Regions             []Region
}

// DocumentRenderer stitches a sequence of PageInputs into one translated PDF:
// GoPDF2 draws each page (background image plus re-flowed regions) to its
// own single-page file under workDir, and pdfcpu merges those pages into the
// final document.
type DocumentRenderer struct {
	workDir  string
	fontPath string
	fontName string
}

// NewDocumentRenderer creates a renderer that embeds the TrueType font at
// fontPath (registered internally as fontName) and writes intermediate
// per-page files under workDir.
func NewDocumentRenderer(workDir, fontPath, fontName string) *DocumentRenderer {
	return &DocumentRenderer{workDir: workDir, fontPath: fontPath, fontName: fontName}
}

// RenderToPDF lays out and draws every page, then stitches the result into
// outputPath. A single page's draw failure is recorded in the returned error
// slice rather than aborting the rest of the document.
func (r *DocumentRenderer) RenderToPDF(pages []PageInput, outputPath string) ([]string, error) {
	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create render work directory: %w", err)
	}

	var pagePaths []string
	var pageErrors []string
	for _, page := range pages {
		pagePath := filepath.Join(r.workDir, fmt.Sprintf("page-%04d.pdf", page.PageNum))
		if err := r.renderPage(page, pagePath); err != nil {
			pageErrors = append(pageErrors, fmt.Sprintf("page %d: %v", page.PageNum, err))
			continue
		}
		pagePaths = append(pagePaths, pagePath)
	}

	if len(pagePaths) == 0 {
		return pageErrors, fmt.Errorf("no pages rendered successfully")
	}
	if len(pagePaths) == 1 {
		if err := os.Rename(pagePaths[0], outputPath); err != nil {
			return pageErrors, fmt.Errorf("failed to place single-page output: %w", err)
		}
		return pageErrors, nil
	}
	if err := api.MergeCreateFile(pagePaths, outputPath, false, nil); err != nil {
		return pageErrors, fmt.Errorf("failed to stitch pages into %s: %w", outputPath, err)
	}
	return pageErrors, nil
}

// renderPage draws one page's background image and its redrawn regions,
// re-flowing each region's text through CalculateLayout so it fits back
// inside the region's original bounding box.
func (r *DocumentRenderer) renderPage(page PageInput, outPath string) error {
	doc := gopdf.GoPdf{}
	doc.Start(gopdf.Config{PageSize: gopdf.Rect{W: page.WidthPt, H: page.HeightPt}})
	doc.AddPage()

	if page.BackgroundImagePath != "" {
		if err := doc.Image(page.BackgroundImagePath, 0, 0, &gopdf.Rect{W: page.WidthPt, H: page.HeightPt}); err != nil {
			return fmt.Errorf("failed to place background image: %w", err)
		}
	}

	if r.fontPath != "" {
		if err := doc.AddTTFFont(r.fontName, r.fontPath); err != nil {
			return fmt.Errorf("failed to load font: %w", err)
		}
	}

	for _, region := range page.Regions {
		if err := r.drawRegion(&doc, region); err != nil {
			return fmt.Errorf("region %s: %w", region.ElementID, err)
		}
	}

	if err := doc.WritePdf(outPath); err != nil {
		return fmt.Errorf("failed to write page PDF: %w", err)
	}
	return nil
}

// drawRegion computes the adaptive layout for region.Text within its
// bounding box, covers the box with white, and draws each line, wrapped at
// the resulting font size, at that font size.
func (r *DocumentRenderer) drawRegion(doc *gopdf.GoPdf, region Region) error {
	renderer, err := NewRenderer(nil, region.FontSize)
	if err != nil {
		return err
	}

	seg := renderer.CalculateLayout(region.Text, region.X, region.Y,
		region.X+region.Width, region.Y+region.Height, region.Language)
	fitted, err := NewRenderer(nil, seg.FontSize)
	if err != nil {
		return err
	}
	lines := fitted.SplitTextIntoLines(region.Text, region.Width)

	doc.SetFillColor(255, 255, 255)
	doc.RectFromUpperLeftWithStyle(region.X, region.Y, region.Width, region.Height, "F")
	doc.SetTextColor(0, 0, 0)

	if r.fontName != "" {
		if err := doc.SetFont(r.fontName, "", seg.FontSize); err != nil {
			return fmt.Errorf("failed to set font: %w", err)
		}
	}

	y := region.Y
	for _, line := range lines {
		if y+seg.LineHeight > region.Y+region.Height+seg.LineHeight*minLineHeightRatio {
			break
		}
		doc.SetX(region.X)
		doc.SetY(y)
		if err := doc.Cell(nil, line); err != nil {
			return fmt.Errorf("failed to draw line: %w", err)
		}
		y += seg.LineHeight
	}
	return nil
}
