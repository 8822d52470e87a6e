package pdf

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"latex-translator/internal/logger"
)

var imgSrcPattern = regexp.MustCompile(`<img src="(.*?)"(.*?)/>`)

// DocumentAssembler merges every page's content blocks into one globally
// ordered document, rewrites headings per the Heading-Level Analyzer's
// verdicts, normalizes image paths, and optionally translates the result.
type DocumentAssembler struct {
	translator *Translator
}

// NewDocumentAssembler creates an assembler. translator may be nil, in
// which case Assemble never translates even if translationEnabled is true.
func NewDocumentAssembler(translator *Translator) *DocumentAssembler {
	return &DocumentAssembler{translator: translator}
}

// Assemble combines pageResults (one per processed page) and headingLevels
// into a single AssembledDocument.
func (a *DocumentAssembler) Assemble(ctx context.Context, pageResults []PageResult, headingLevels []HeadingLevel, documentLanguage string, translationEnabled bool, targetLanguage string) AssembledDocument {
	start := time.Now()

	ordered := organizeByReadingOrder(pageResults)
	images := extractImageInfo(ordered)
	ordered = applyHeadingLevels(ordered, headingLevels)

	if translationEnabled && targetLanguage != "" {
		if a.translator != nil {
			translated, err := a.translator.TranslateBlocks(ctx, ordered, targetLanguage)
			if err != nil {
				logger.Error("translation failed, keeping source content", err)
			} else {
				ordered = translated
			}
		} else {
			logger.Warn("translation enabled but no translator configured")
		}
	}

	totalElements, successfulElements := 0, 0
	var failedElements []string
	for _, pr := range pageResults {
		if pr.Content == nil {
			continue
		}
		totalElements += len(pr.Content.ContentBlocks)
		successfulElements += pr.Content.SuccessCount
		failedElements = append(failedElements, pr.Content.FailedElements...)
	}

	return AssembledDocument{
		DetectedLanguage:     documentLanguage,
		TotalPages:           len(pageResults),
		OrderedContentBlocks: ordered,
		HeadingLevels:        headingLevels,
		Images:               images,
		TranslationEnabled:   translationEnabled,
		TargetLanguage:       targetLanguage,
		TotalElements:        totalElements,
		SuccessfulElements:   successfulElements,
		FailedElements:       failedElements,
		TotalProcessingTime:  time.Since(start),
	}
}

// organizeByReadingOrder concatenates every page's content blocks in page
// order, then reorders any image blocks among themselves by the numeric
// (page, element-index) pair encoded in their element IDs ("{page}-{index}")
// so that images interleaved across a near-simultaneous parse still land in
// a stable, predictable sequence relative to each other.
func organizeByReadingOrder(pageResults []PageResult) []ContentBlock {
	sorted := make([]PageResult, len(pageResults))
	copy(sorted, pageResults)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageNum < sorted[j].PageNum })

	var all []ContentBlock
	for _, pr := range sorted {
		if pr.Content != nil {
			all = append(all, pr.Content.ContentBlocks...)
		}
	}

	type indexedBlock struct {
		index int
		block ContentBlock
	}
	var imageBlocks []indexedBlock
	for i, b := range all {
		if b.ImageInfo != nil || isImageMarkdown(b.RawMarkdown) {
			imageBlocks = append(imageBlocks, indexedBlock{index: i, block: b})
		}
	}
	if len(imageBlocks) == 0 {
		return all
	}

	sortedImages := make([]indexedBlock, len(imageBlocks))
	copy(sortedImages, imageBlocks)
	sort.Slice(sortedImages, func(i, j int) bool {
		pi, ei := elementNumbers(sortedImages[i].block.ElementID)
		pj, ej := elementNumbers(sortedImages[j].block.ElementID)
		if pi != pj {
			return pi < pj
		}
		return ei < ej
	})

	for k := range imageBlocks {
		all[imageBlocks[k].index] = sortedImages[k].block
	}
	return all
}

func isImageMarkdown(markdown string) bool {
	return strings.Contains(markdown, `<img src="`) && strings.Contains(markdown, `style="zoom:`)
}

// elementNumbers parses a "{page}-{index}" element ID; unparseable IDs sort
// first via (0, 0).
func elementNumbers(elementID string) (int, int) {
	parts := strings.SplitN(elementID, "-", 2)
	if len(parts) < 2 {
		return 0, 0
	}
	page, err1 := strconv.Atoi(parts[0])
	index, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return page, index
}

// extractImageInfo collects every block's ImageInfo, normalizing saved
// paths to forward slashes under "images/" and keeping each block's
// raw_markdown image reference in sync with the normalized path.
func extractImageInfo(blocks []ContentBlock) []ImageInfo {
	var images []ImageInfo
	for i := range blocks {
		block := &blocks[i]
		if block.ImageInfo == nil {
			continue
		}

		block.ImageInfo.SavedPath = normalizeImagePath(block.ImageInfo.SavedPath)
		if loc := imgSrcPattern.FindStringSubmatchIndex(block.RawMarkdown); loc != nil {
			md := block.RawMarkdown
			block.RawMarkdown = md[:loc[0]] + `<img src="` + block.ImageInfo.SavedPath + `"` + md[loc[4]:loc[5]] + `/>` + md[loc[1]:]
		}
		images = append(images, *block.ImageInfo)
	}
	return images
}

func normalizeImagePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if !strings.HasPrefix(path, "images/") {
		parts := strings.Split(path, "/")
		path = "images/" + parts[len(parts)-1]
	}
	return path
}

// applyHeadingLevels rewrites DOCUMENT_TITLE/PARAGRAPH_TITLE blocks'
// markdown with "#" prefixes matching their semantic level; a semantic
// level of 0 demotes the block to plain text.
func applyHeadingLevels(blocks []ContentBlock, headingLevels []HeadingLevel) []ContentBlock {
	levelByID := make(map[string]int, len(headingLevels))
	for _, hl := range headingLevels {
		levelByID[hl.ElementID] = hl.SemanticLevel
	}

	updated := make([]ContentBlock, len(blocks))
	for i, b := range blocks {
		level, ok := levelByID[b.ElementID]
		if !ok || (b.Kind != KindDocumentTitle && b.Kind != KindParagraphTitle) {
			updated[i] = b
			continue
		}

		rawText := strings.TrimLeft(strings.TrimLeft(b.RawMarkdown, "#"), " ")
		if level > 0 {
			b.RawMarkdown = strings.Repeat("#", level) + " " + rawText
		} else {
			b.RawMarkdown = rawText
			b.Kind = KindText
		}
		updated[i] = b
	}
	return updated
}
