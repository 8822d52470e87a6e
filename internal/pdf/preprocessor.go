package pdf

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"latex-translator/internal/logger"
)

const preprocessorDPI = 200

// Preprocessor rasterizes every page of a PDF at a fixed DPI, extracts
// embedded text for language detection, and runs rotation detection on each
// page image before the rest of the pipeline ever sees it.
type Preprocessor struct {
	converter *PDFToImageConverter
	rotation  *RotationDetector
	tempDir   string
}

// NewPreprocessor creates a Preprocessor writing rasterized pages under
// tempDir, using rotationDetector (which may be a disabled no-op detector
// created with an empty model directory).
func NewPreprocessor(tempDir string, rotationDetector *RotationDetector) *Preprocessor {
	return &Preprocessor{
		converter: NewPDFToImageConverter(preprocessorDPI),
		rotation:  rotationDetector,
		tempDir:   tempDir,
	}
}

// ProcessResult is the Preprocessor's output for one document: every page
// plus the document-wide detected language used as a fallback for pages
// whose own text is too short to classify.
type ProcessResult struct {
	Pages            []PDFPage
	DocumentLanguage string
}

// Process rasterizes, language-tags, and rotation-corrects every page of
// pdfPath. A single page's failure does not abort the document: the page is
// still returned, with default language and rotation-detection skipped.
func (p *Preprocessor) Process(pdfPath string) (ProcessResult, error) {
	pageCount, err := ExtractPDFInfoWithPDFCPU(pdfPath)
	if err != nil {
		return ProcessResult{}, NewPDFError(ErrExtractFailed, "failed to read PDF page count", err)
	}

	logger.Info("preprocessing started",
		logger.String("pdf", filepath.Base(pdfPath)), logger.Int("pages", pageCount))

	parser := NewPDFParser("")
	pageTexts := make([]string, pageCount)
	var documentText strings.Builder
	for i := 0; i < pageCount; i++ {
		text, err := parser.ExtractPageText(pdfPath, i+1)
		if err != nil {
			logger.Warn("failed to extract page text for language detection",
				logger.Int("page", i+1), logger.Err(err))
			continue
		}
		pageTexts[i] = text
		if strings.TrimSpace(text) != "" {
			documentText.WriteString(text)
			documentText.WriteString("\n")
		}
	}

	documentLanguage := "zh-cn"
	if strings.TrimSpace(documentText.String()) != "" {
		documentLanguage = detectLanguage(documentText.String())
	}
	logger.Info("document language detected", logger.String("language", documentLanguage))

	pages := make([]PDFPage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		pageNum := i + 1

		img, err := p.converter.ConvertPage(pdfPath, pageNum)
		if err != nil {
			logger.Warn("page rasterization failed, page will have no image",
				logger.Int("page", pageNum), logger.Err(err))
			pages = append(pages, PDFPage{
				PageNum:          pageNum,
				DPI:              preprocessorDPI,
				DetectedLanguage: documentLanguage,
			})
			continue
		}

		bounds := img.Bounds()
		page := PDFPage{
			PageNum:       pageNum,
			Width:         bounds.Dx(),
			Height:        bounds.Dy(),
			DPI:           preprocessorDPI,
			ExtractedText: pageTexts[i],
		}

		pageLanguage := documentLanguage
		if strings.TrimSpace(pageTexts[i]) != "" {
			detected := detectLanguage(pageTexts[i])
			if detected != "unknown" {
				pageLanguage = detected
			}
		}
		page.DetectedLanguage = pageLanguage

		if p.rotation != nil {
			angle, rotatedImg := p.rotation.DetectRotation(img, pageNum)
			if angle != angle0 {
				page.Rotation = AccumulateRotation(page.Rotation, angle)
				img = rotatedImg
			}
		}

		imagePath, err := p.savePageImage(img, pageNum)
		if err != nil {
			logger.Warn("failed to persist rasterized page", logger.Int("page", pageNum), logger.Err(err))
		} else {
			page.ImagePath = imagePath
		}

		pages = append(pages, page)
		logger.Info("page preprocessed", logger.Int("page", pageNum), logger.String("language", pageLanguage))
	}

	return ProcessResult{Pages: pages, DocumentLanguage: documentLanguage}, nil
}

// savePageImage persists the final (rotation-corrected) page raster as a PNG
// under tempDir so downstream stages (layout detection, content parsing)
// can reopen it by path rather than carrying the decoded image in memory.
func (p *Preprocessor) savePageImage(img image.Image, pageNum int) (string, error) {
	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	imagePath := filepath.Join(p.tempDir, fmt.Sprintf("page_%d.png", pageNum))
	file, err := os.Create(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to create page image file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("failed to encode page image: %w", err)
	}
	return imagePath, nil
}

// detectLanguage classifies text by zh/en character presence since the pack
// carries no langdetect-equivalent library: any Han-range character marks a
// document zh-cn unless Latin letters are also present, in which case it is
// zh-en-mixed; Latin-only text is "en"; anything else unclassifiable.
func detectLanguage(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 10 {
		return "unknown"
	}

	hasChinese, hasEnglish := false, false
	for _, r := range trimmed {
		if unicode.Is(unicode.Han, r) {
			hasChinese = true
		} else if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasEnglish = true
		}
		if hasChinese && hasEnglish {
			break
		}
	}

	switch {
	case hasChinese && hasEnglish:
		return "zh-en-mixed"
	case hasChinese:
		return "zh-cn"
	case hasEnglish:
		return "en"
	default:
		return "unknown"
	}
}
