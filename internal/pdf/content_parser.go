package pdf

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/nikolalohinski/gonja"

	"latex-translator/internal/logger"
	"latex-translator/internal/modelapi"
)

// skippedKinds are dropped silently before reaching the model: running
// header/footer chrome and page numbers carry no document content.
var skippedKinds = map[ElementKind]bool{
	KindPageNumber: true,
	KindHeader:     true,
	KindFooter:     true,
}

// imageKinds are always saved to disk as an image rather than sent through
// the vision model for transcription.
var imageKinds = map[ElementKind]bool{
	KindImage:           true,
	KindChart:           true,
	KindChemicalFormula: true,
}

// hyphenationRepairKinds get their markdown passed through repairHyphenation.
var hyphenationRepairKinds = map[ElementKind]bool{
	KindText:           true,
	KindParagraphTitle: true,
	KindDocumentTitle:  true,
	KindAbstract:       true,
	KindFigureCaption:  true,
	KindTableCaption:   true,
	KindChartCaption:   true,
}

// ContentParser converts each page's layout elements, in reading order, into
// Markdown content blocks: images are saved directly, everything else goes
// through the shared vision model with a kind-specific prompt.
type ContentParser struct {
	model        *modelapi.Interface
	tableAsImage bool
	maxParallel  int
	prompts      map[ElementKind]string
}

// NewContentParser creates a parser backed by model, rendering its five
// prompt templates (the text template doubling as the default) once at
// construction.
func NewContentParser(model *modelapi.Interface, maxParallel int, tableAsImage bool) (*ContentParser, error) {
	prompts, err := renderPromptTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to render content prompts: %w", err)
	}
	if maxParallel <= 0 {
		maxParallel = modelapi.DefaultPoolSize
	}
	return &ContentParser{model: model, tableAsImage: tableAsImage, maxParallel: maxParallel, prompts: prompts}, nil
}

// ParsePage converts one page's layout elements into content blocks, ordered
// per readingOrder. imagesDir is the job's shared "images/" output directory.
func (c *ContentParser) ParsePage(ctx context.Context, page PDFPage, elements []LayoutElement, readingOrder []ReadingOrderElement, imagesDir string) (ContentParsingResult, error) {
	if page.ImagePath == "" {
		return ContentParsingResult{}, NewPDFErrorWithPage(ErrContentFailed, "page image path is empty", page.PageNum, nil)
	}

	pageImg, err := loadImage(page.ImagePath)
	if err != nil {
		return ContentParsingResult{}, NewPDFErrorWithPage(ErrContentFailed, "failed to read page image", page.PageNum, err)
	}

	elementByID := make(map[string]LayoutElement, len(elements))
	for _, el := range elements {
		elementByID[el.ElementID] = el
	}

	blocksByOrder := make(map[int]ContentBlock)
	var blocksMu sync.Mutex
	var failed []string
	var failedMu sync.Mutex
	successCount := 0

	type pendingVision struct {
		element    LayoutElement
		imagePath  string
		orderIndex int
	}
	var pending []pendingVision

	for _, orderElem := range readingOrder {
		el, ok := elementByID[orderElem.ElementID]
		if !ok {
			failed = append(failed, orderElem.ElementID)
			continue
		}
		if skippedKinds[el.Kind] {
			successCount++
			continue
		}

		croppedPath, err := c.saveCroppedElement(pageImg, el, page.PageNum)
		if err != nil {
			logger.Warn("failed to crop element image",
				logger.String("element", el.ElementID), logger.Err(err))
			failed = append(failed, el.ElementID)
			continue
		}

		if c.shouldSaveAsImage(el.Kind) {
			block, err := c.processImageElement(el, croppedPath, imagesDir)
			if err != nil {
				logger.Error("failed to process image element", err, logger.String("element", el.ElementID))
				failed = append(failed, el.ElementID)
				continue
			}
			blocksByOrder[orderElem.OrderIndex] = block
			successCount++
			continue
		}

		pending = append(pending, pendingVision{element: el, imagePath: croppedPath, orderIndex: orderElem.OrderIndex})
	}

	for start := 0; start < len(pending); start += c.maxParallel {
		end := start + c.maxParallel
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		imagePaths := make([]string, len(batch))
		systemPrompts := make([]string, len(batch))
		userPrompts := make([]string, len(batch))
		for i, p := range batch {
			imagePaths[i] = p.imagePath
			userPrompts[i] = c.promptFor(p.element.Kind)
		}

		results := c.model.ParallelVision(ctx, imagePaths, systemPrompts, userPrompts)

		for i, p := range batch {
			markdown := results[i]
			if markdown == "" {
				failedMu.Lock()
				failed = append(failed, p.element.ElementID)
				failedMu.Unlock()
				continue
			}
			if hyphenationRepairKinds[p.element.Kind] {
				markdown = repairHyphenation(markdown)
			}
			blocksMu.Lock()
			blocksByOrder[p.orderIndex] = ContentBlock{
				ElementID:   p.element.ElementID,
				Kind:        p.element.Kind,
				RawMarkdown: markdown,
				Confidence:  p.element.Confidence,
				PageNum:     page.PageNum,
				OrderIndex:  p.orderIndex,
			}
			blocksMu.Unlock()
			successCount++
		}
	}

	orderIndices := make([]int, 0, len(blocksByOrder))
	for idx := range blocksByOrder {
		orderIndices = append(orderIndices, idx)
	}
	sort.Ints(orderIndices)

	blocks := make([]ContentBlock, 0, len(orderIndices))
	for _, idx := range orderIndices {
		blocks = append(blocks, blocksByOrder[idx])
	}

	return ContentParsingResult{
		PageNum:        page.PageNum,
		ContentBlocks:  blocks,
		SuccessCount:   successCount,
		FailedElements: failed,
	}, nil
}

func (c *ContentParser) shouldSkipElement(kind ElementKind) bool {
	return skippedKinds[kind]
}

func (c *ContentParser) shouldSaveAsImage(kind ElementKind) bool {
	if kind == KindTable {
		return c.tableAsImage
	}
	return imageKinds[kind]
}

// saveCroppedElement crops pageImg to el's bounding box and writes it as a
// PNG under a per-page temp directory, returning its path.
func (c *ContentParser) saveCroppedElement(pageImg image.Image, el LayoutElement, pageNum int) (string, error) {
	bounds := pageImg.Bounds()
	clamped := el.BBox.Clamp(float64(bounds.Dx()), float64(bounds.Dy()))

	rect := image.Rect(int(clamped.X), int(clamped.Y), int(clamped.X+clamped.Width), int(clamped.Y+clamped.Height))
	cropped := image.NewRGBA(rect.Sub(rect.Min))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			cropped.Set(x-rect.Min.X, y-rect.Min.Y, pageImg.At(x, y))
		}
	}

	dir := filepath.Join(os.TempDir(), fmt.Sprintf("content_parser_page_%d", pageNum))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, el.ElementID+".png")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := png.Encode(file, cropped); err != nil {
		return "", err
	}
	return path, nil
}

// processImageElement copies a cropped element image into the job's
// "images/" output directory and wraps it in a centered, half-scale HTML
// image tag rather than sending it through the vision model.
func (c *ContentParser) processImageElement(el LayoutElement, croppedPath, imagesDir string) (ContentBlock, error) {
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return ContentBlock{}, err
	}

	filename := el.ElementID + ".png"
	savePath := filepath.Join(imagesDir, filename)

	src, err := os.Open(croppedPath)
	if err != nil {
		return ContentBlock{}, err
	}
	defer src.Close()

	dst, err := os.Create(savePath)
	if err != nil {
		return ContentBlock{}, err
	}
	defer dst.Close()

	img, err := image.Decode(src)
	if err != nil {
		return ContentBlock{}, err
	}
	if err := png.Encode(dst, img); err != nil {
		return ContentBlock{}, err
	}

	fileInfo, err := os.Stat(savePath)
	if err != nil {
		return ContentBlock{}, err
	}
	bounds := img.Bounds()
	relPath := "images/" + filename

	markdown := fmt.Sprintf(`<div style="text-align:center;"><img src="%s" style="zoom:50%%;" /></div>`, relPath)
	if hyphenationRepairKinds[el.Kind] {
		markdown = repairHyphenation(markdown)
	}

	return ContentBlock{
		ElementID:   el.ElementID,
		Kind:        el.Kind,
		RawMarkdown: markdown,
		Confidence:  el.Confidence,
		ImageInfo: &ImageInfo{
			ElementID:    el.ElementID,
			OriginalBBox: el.BBox,
			SavedPath:    relPath,
			Width:        bounds.Dx(),
			Height:       bounds.Dy(),
			Format:       "PNG",
			FileSizeB:    fileInfo.Size(),
		},
	}, nil
}

func (c *ContentParser) promptFor(kind ElementKind) string {
	if prompt, ok := c.prompts[kind]; ok {
		return prompt
	}
	return c.prompts[KindText] // default prompt
}

// repairHyphenation merges a word split across a hyphenated line break,
// skipping merges where the hyphen is likely part of a math expression or
// citation rather than a genuine word break.
func repairHyphenation(text string) string {
	hasHyphenBreak := strings.Contains(text, "-\n")
	if !hasHyphenBreak {
		for _, line := range strings.Split(text, "\n") {
			if strings.HasSuffix(strings.TrimRight(line, " \t"), "-") {
				hasHyphenBreak = true
				break
			}
		}
	}
	if !hasHyphenBreak {
		return text
	}

	lines := strings.Split(text, "\n")
	var resultLines []string

	for i := 0; i < len(lines); i++ {
		current := strings.TrimRight(lines[i], " \t")

		if strings.HasSuffix(current, "-") && i+1 < len(lines) {
			next := strings.TrimLeft(lines[i+1], " \t")
			skipMerge := false

			if len(current) > 1 {
				charBeforeHyphen := rune(current[len(current)-2])
				if unicode.IsDigit(charBeforeHyphen) || strings.ContainsRune(`\${}[]()^_*`, charBeforeHyphen) {
					skipMerge = true
				}
			}
			if next != "" && !skipMerge {
				firstChar := rune(next[0])
				if !unicode.IsLetter(firstChar) && firstChar != '\'' {
					skipMerge = true
				}
			}

			if !skipMerge {
				nextFirstWord := next
				rest := ""
				if idx := strings.Index(next, " "); idx >= 0 {
					nextFirstWord = next[:idx]
					rest = next[idx+1:]
				}
				merged := current[:len(current)-1] + nextFirstWord
				resultLines = append(resultLines, merged)
				if rest == "" && next != "" {
					i++
				} else {
					lines[i+1] = rest
				}
				continue
			}
			resultLines = append(resultLines, current)
			continue
		}
		resultLines = append(resultLines, current)
	}

	var paragraphs []string
	var current []string
	for _, l := range resultLines {
		if strings.TrimSpace(l) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, " "))
				current = nil
			}
			continue
		}
		current = append(current, l)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}

	return strings.Join(paragraphs, "\n\n")
}

// renderPromptTemplates renders the per-kind transcription prompts through
// gonja once at startup; none currently interpolate variables, but routing
// them through the template engine keeps future per-document customization
// (e.g. a language hint) a one-line change rather than a new code path.
func renderPromptTemplates() (map[ElementKind]string, error) {
	sources := map[ElementKind]string{
		KindText:      defaultTranscriptionPromptSource,
		KindTable:     tablePromptSource,
		KindCodeBlock: codeBlockPromptSource,
		KindAlgorithm: algorithmPromptSource,
		KindTOC:       tocPromptSource,
	}

	rendered := make(map[ElementKind]string, len(sources))
	for kind, source := range sources {
		tpl, err := gonja.FromString(source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template for %s: %w", kind, err)
		}
		out, err := tpl.Execute(gonja.Context{})
		if err != nil {
			return nil, fmt.Errorf("failed to render prompt template for %s: %w", kind, err)
		}
		rendered[kind] = out
	}
	return rendered, nil
}

const defaultTranscriptionPromptSource = `Transcribe all text and mathematical notation in the provided image exactly, as Markdown with inline LaTeX ($...$) for inline math and $$...$$ for display math on its own line. Preserve paragraph breaks and heading levels. Never alter the content of a math expression delimited by $ or $$. Output only the transcription, no commentary, and never wrap the output in a code fence.`

const tablePromptSource = `Transcribe the table in the provided image as a Markdown table, preserving multi-level headers as multiple header rows rather than flattening them, preserving merged-cell groupings, and keeping every data row. Use LaTeX ($...$) for any mathematical notation or Greek letters within cells. Represent empty cells as empty, and a lone dash as a dash. Output only the table, no commentary, and never wrap it in a code fence.`

const codeBlockPromptSource = `Transcribe the code in the provided image into a Markdown code block, identifying the programming language for the fence tag. Preserve indentation, comments, and blank lines exactly. Output only the code block, no commentary.`

const algorithmPromptSource = `Transcribe the algorithm in the provided image as a $$...$$ LaTeX block using an aligned environment, preserving its name, inputs, outputs, numbered steps, and control structures (if/while/for). Output only the LaTeX block, no commentary.`

const tocPromptSource = `Transcribe the table of contents in the provided image as Markdown, preserving the heading hierarchy and page numbers exactly. Output only the transcription, no commentary.`
