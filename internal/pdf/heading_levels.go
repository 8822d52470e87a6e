package pdf

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"latex-translator/internal/logger"
	"latex-translator/internal/modelapi"
)

const headingLevelSystemPrompt = "You are a document-structure analyst specializing in heading hierarchy."

var headingLevelPattern = regexp.MustCompile(`(\d+)\s*:\s*(\d+)`)

// HeadingLevelAnalyzer assigns a 1-6 semantic heading level to each
// document/paragraph title, either with a text model or, when none is
// configured, a fixed document_title=1 / paragraph_title=2 default.
type HeadingLevelAnalyzer struct {
	model *modelapi.Interface
}

// NewHeadingLevelAnalyzer creates an analyzer. model may be nil, in which
// case every heading gets its default level with confidence 1.0.
func NewHeadingLevelAnalyzer(model *modelapi.Interface) *HeadingLevelAnalyzer {
	return &HeadingLevelAnalyzer{model: model}
}

// Analyze assigns levels to every DOCUMENT_TITLE/PARAGRAPH_TITLE block found
// across blocks, in the order given. Any failure while classifying with the
// model falls back to default levels for the whole batch.
func (a *HeadingLevelAnalyzer) Analyze(ctx context.Context, blocks []ContentBlock) []HeadingLevel {
	headings := make([]ContentBlock, 0)
	for _, b := range blocks {
		if b.Kind == KindDocumentTitle || b.Kind == KindParagraphTitle {
			headings = append(headings, b)
		}
	}
	if len(headings) == 0 {
		return nil
	}

	if a.model == nil {
		logger.Info("heading-level model disabled, using default levels", logger.Int("headings", len(headings)))
		return defaultHeadingLevels(headings)
	}

	levels, err := a.classifyWithModel(ctx, headings)
	if err != nil {
		logger.Error("AI heading classification failed, falling back to defaults", err)
		return defaultHeadingLevels(headings)
	}
	return levels
}

func defaultHeadingLevels(headings []ContentBlock) []HeadingLevel {
	levels := make([]HeadingLevel, len(headings))
	for i, b := range headings {
		level := defaultLevelFor(b.Kind)
		levels[i] = HeadingLevel{ElementID: b.ElementID, OriginalLevel: level, SemanticLevel: level, Confidence: 1.0}
	}
	return levels
}

func defaultLevelFor(kind ElementKind) int {
	if kind == KindDocumentTitle {
		return 1
	}
	return 2
}

func (a *HeadingLevelAnalyzer) classifyWithModel(ctx context.Context, headings []ContentBlock) ([]HeadingLevel, error) {
	texts := make([]string, len(headings))
	for i, b := range headings {
		texts[i] = strings.TrimSpace(b.RawMarkdown)
	}

	response, err := a.model.Chat(ctx, headingLevelSystemPrompt, buildHeadingLevelPrompt(texts))
	if err != nil {
		return nil, err
	}

	semanticLevels := parseHeadingLevelResponse(response, len(texts))

	levels := make([]HeadingLevel, len(headings))
	for i, b := range headings {
		original := defaultLevelFor(b.Kind)
		levels[i] = HeadingLevel{
			ElementID:     b.ElementID,
			OriginalLevel: original,
			SemanticLevel: semanticLevels[i],
			Confidence:    0.8,
		}
	}
	return levels, nil
}

func buildHeadingLevelPrompt(headingTexts []string) string {
	var list strings.Builder
	for i, text := range headingTexts {
		fmt.Fprintf(&list, "%d. %s\n", i+1, text)
	}

	return fmt.Sprintf(`Analyze the hierarchy of the following headings and assign each a level from 1 to 6 (1 is the highest level).

Headings:
%s
Guidelines:
1. The document's overall title is usually level 1
2. Chapter headings are usually level 2-3
3. Section headings are usually level 3-4
4. Subsection headings are usually level 4-5
5. Specific content headings are usually level 5-6

Respond with one line per heading in this exact format:
1: [level]
2: [level]
...

Example:
1: 1
2: 2
3: 3
`, list.String())
}

// parseHeadingLevelResponse extracts "index: level" pairs via regexp,
// defaulting any missing or out-of-range (not 1-6) entry to level 2.
func parseHeadingLevelResponse(response string, expectedCount int) []int {
	matches := headingLevelPattern.FindAllStringSubmatch(response, -1)

	levelsByIndex := make(map[int]int, len(matches))
	for _, m := range matches {
		index, err1 := strconv.Atoi(m[1])
		level, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		if level < 1 || level > 6 {
			level = 2
		}
		levelsByIndex[index] = level
	}

	levels := make([]int, expectedCount)
	for i := range levels {
		if level, ok := levelsByIndex[i+1]; ok {
			levels[i] = level
		} else {
			levels[i] = 2
		}
	}
	return levels
}
