// Package layout reconstructs paragraph flow for translated text dropped
// back into a fixed-size source bounding box: measuring glyph widths,
// wrapping lines, and shrinking font size/line height when the translation
// runs longer than the original.
package layout

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/width"
)

// BlockKind distinguishes a run of plain text from an atomic math span that
// must never be split across a line wrap.
type BlockKind string

const (
	BlockText BlockKind = "text"
	BlockMath BlockKind = "math"
)

// TextBlock is one positioned run within a laid-out paragraph.
type TextBlock struct {
	Kind     BlockKind
	Content  string
	X, Y     float64
	Width    float64
	Height   float64
	FontSize float64
}

// Segment is the computed layout for one text region: its bounding box plus
// the font size and line height chosen to fit the wrapped text inside it.
type Segment struct {
	X0, Y0, X1, Y1 float64
	Width, Height  float64
	FontSize       float64
	LineHeight     float64
	HasLineBreak   bool
}

// FontAdjustment is an advisory suggestion for a region's font size before
// any actual layout/shrink pass runs, based on target language and region
// area alone.
type FontAdjustment struct {
	SuggestedFontSize   float64
	SuggestedLineHeight float64
	FontRatio           float64
	AreaRatio           float64
}

var langLineHeight = map[string]float64{
	"zh-cn": 1.2, "zh-tw": 1.2, "ja": 1.0, "ko": 1.1, "en": 1.1,
	"ar": 1.0, "ru": 0.9, "uk": 0.9, "th": 0.9,
}

var langFontRatio = map[string]float64{
	"zh-cn": 1.0, "zh-tw": 1.0, "ja": 0.95, "ko": 0.95, "en": 0.9,
	"ar": 1.1, "ru": 0.85, "de": 0.85, "fr": 0.85,
}

const (
	minLineHeightRatio = 0.9
	minFontSizeRatio   = 0.5
	lineFillRatio      = 0.95
)

var mathPattern = regexp.MustCompile(`\$[^$]+\$`)

// Renderer measures and wraps text for one loaded font face. A nil face is
// valid: CharWidth then falls back to a script-aware heuristic so layout
// can still be estimated without a font file on disk.
type Renderer struct {
	face           font.Face
	fontSize       float64
	charWidthCache map[rune]float64
}

// NewRenderer parses fontData (TrueType/OpenType) at size points and builds
// a Renderer around it. Passing nil fontData returns a heuristic-only
// Renderer with no face.
func NewRenderer(fontData []byte, size float64) (*Renderer, error) {
	if fontData == nil {
		return &Renderer{fontSize: size, charWidthCache: make(map[rune]float64)}, nil
	}

	parsed, err := opentype.Parse(fontData)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	return &Renderer{face: face, fontSize: size, charWidthCache: make(map[rune]float64)}, nil
}

// LanguageLineHeight returns the line-height multiplier for a language code,
// defaulting to 1.1 for anything not in the table.
func LanguageLineHeight(language string) float64 {
	if v, ok := langLineHeight[language]; ok {
		return v
	}
	return 1.1
}

// CharWidth returns r's advance width at the renderer's font size, using the
// loaded face's glyph metrics when available and an east-asian-width-aware
// heuristic otherwise.
func (r *Renderer) CharWidth(ch rune) float64 {
	if w, ok := r.charWidthCache[ch]; ok {
		return w
	}

	w := r.measureChar(ch)
	r.charWidthCache[ch] = w
	return w
}

func (r *Renderer) measureChar(ch rune) float64 {
	if r.face != nil {
		if advance, ok := r.face.GlyphAdvance(ch); ok {
			return fixedToFloat(advance)
		}
	}
	return estimateCharWidth(ch, r.fontSize)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64.0
}

// estimateCharWidth falls back to a script-aware average when no glyph
// metrics are available: a fullwidth/wide east-asian rune is treated as
// occupying a full em, a narrow/halfwidth or ASCII rune as roughly half.
func estimateCharWidth(ch rune, fontSize float64) float64 {
	switch {
	case unicode.IsSpace(ch):
		return fontSize * 0.3
	case unicode.IsDigit(ch):
		return fontSize * 0.5
	}

	switch width.LookupRune(ch).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return fontSize
	case width.EastAsianAmbiguous:
		return fontSize * 0.8
	default:
		return fontSize * 0.55
	}
}

// TextWidth sums CharWidth over every rune in s.
func (r *Renderer) TextWidth(s string) float64 {
	total := 0.0
	for _, ch := range s {
		total += r.CharWidth(ch)
	}
	return total
}

// CalculateLayout wraps text to fit bbox, first trying to shrink line
// height, then shrinking font size (bounded at half the starting size) if
// line-height compression alone can't make it fit.
func (r *Renderer) CalculateLayout(text string, x0, y0, x1, y1 float64, language string) Segment {
	width := x1 - x0
	height := y1 - y0

	lines := r.SplitTextIntoLines(text, width)
	lineCount := len(lines)

	lineHeightRatio := LanguageLineHeight(language)
	baseLineHeight := r.fontSize * lineHeightRatio
	neededHeight := float64(lineCount) * baseLineHeight

	adjustedFontSize := r.fontSize
	adjustedLineHeight := baseLineHeight

	if neededHeight > height && lineCount > 0 {
		adjustedLineHeight = height / float64(lineCount)

		if adjustedLineHeight < r.fontSize*minLineHeightRatio {
			adjustedFontSize = height / (float64(lineCount) * lineHeightRatio)
			if adjustedFontSize < r.fontSize*minFontSizeRatio {
				adjustedFontSize = r.fontSize * minFontSizeRatio
			}

			shrunk := &Renderer{face: r.face, fontSize: adjustedFontSize, charWidthCache: make(map[rune]float64)}
			lines = shrunk.SplitTextIntoLines(text, width)
			lineCount = len(lines)
			if lineCount > 0 {
				adjustedLineHeight = height / float64(lineCount)
			} else {
				adjustedLineHeight = baseLineHeight
			}
		}
	}

	return Segment{
		X0: x0, Y0: y0, X1: x1, Y1: y1,
		Width: width, Height: height,
		FontSize:     adjustedFontSize,
		LineHeight:   adjustedLineHeight,
		HasLineBreak: lineCount > 1,
	}
}

// SplitTextIntoLines wraps text to maxWidth, treating each $...$ math span
// as an indivisible unit and refusing to start a line with a CJK closing
// punctuation mark (pulling it back onto the previous line instead).
func (r *Renderer) SplitTextIntoLines(text string, maxWidth float64) []string {
	var lines []string

	for _, paragraph := range strings.Split(text, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, r.wrapParagraph(paragraph, maxWidth)...)
	}
	return lines
}

func (r *Renderer) wrapParagraph(paragraph string, maxWidth float64) []string {
	if !strings.Contains(paragraph, "$") {
		return r.wrapPlainText(paragraph, maxWidth)
	}

	var lines []string
	var currentLine strings.Builder
	currentWidth := 0.0

	parts := splitMathSegments(paragraph)
	for _, part := range parts {
		if part.kind == BlockText {
			for _, ch := range part.content {
				chWidth := r.CharWidth(ch)
				if currentWidth+chWidth <= maxWidth*lineFillRatio {
					currentLine.WriteRune(ch)
					currentWidth += chWidth
					continue
				}
				if isLineStartProhibited(ch) && currentLine.Len() > 0 {
					lines = append(lines, currentLine.String()+string(ch))
					currentLine.Reset()
					currentWidth = 0
					continue
				}
				if strings.TrimSpace(currentLine.String()) != "" {
					lines = append(lines, strings.TrimRight(currentLine.String(), " "))
				}
				currentLine.Reset()
				currentLine.WriteRune(ch)
				currentWidth = chWidth
			}
			continue
		}

		formulaWidth := EstimateFormulaWidth(part.content, r.fontSize)
		needsSpace := currentLine.Len() > 0 &&
			!strings.HasSuffix(currentLine.String(), " ") &&
			!strings.HasSuffix(currentLine.String(), "(") &&
			!strings.HasSuffix(currentLine.String(), "[")
		spaceWidth := 0.0
		if needsSpace {
			spaceWidth = r.CharWidth(' ')
		}

		if currentWidth+formulaWidth+spaceWidth <= maxWidth*lineFillRatio {
			if needsSpace {
				currentLine.WriteString(" ")
				currentWidth += spaceWidth
			}
			currentLine.WriteString(part.content)
			currentWidth += formulaWidth
		} else {
			if strings.TrimSpace(currentLine.String()) != "" {
				lines = append(lines, strings.TrimRight(currentLine.String(), " "))
			}
			currentLine.Reset()
			currentLine.WriteString(part.content)
			currentWidth = formulaWidth
		}
	}

	if strings.TrimSpace(currentLine.String()) != "" {
		lines = append(lines, strings.TrimRight(currentLine.String(), " "))
	}
	return lines
}

func (r *Renderer) wrapPlainText(paragraph string, maxWidth float64) []string {
	var lines []string
	var currentLine strings.Builder

	for _, ch := range paragraph {
		testLine := currentLine.String() + string(ch)
		if r.TextWidth(testLine) <= maxWidth*lineFillRatio {
			currentLine.WriteRune(ch)
			continue
		}

		if currentLine.Len() == 0 {
			lines = append(lines, string(ch))
			continue
		}
		if isLineStartProhibited(ch) {
			lines = append(lines, currentLine.String()+string(ch))
			currentLine.Reset()
			continue
		}
		lines = append(lines, currentLine.String())
		currentLine.Reset()
		currentLine.WriteRune(ch)
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}
	return lines
}

type textOrMath struct {
	kind    BlockKind
	content string
}

func splitMathSegments(paragraph string) []textOrMath {
	matches := mathPattern.FindAllStringIndex(paragraph, -1)
	if matches == nil {
		return []textOrMath{{kind: BlockText, content: paragraph}}
	}

	var parts []textOrMath
	lastEnd := 0
	for _, m := range matches {
		if m[0] > lastEnd {
			parts = append(parts, textOrMath{kind: BlockText, content: paragraph[lastEnd:m[0]]})
		}
		parts = append(parts, textOrMath{kind: BlockMath, content: paragraph[m[0]:m[1]]})
		lastEnd = m[1]
	}
	if lastEnd < len(paragraph) {
		parts = append(parts, textOrMath{kind: BlockText, content: paragraph[lastEnd:]})
	}
	return parts
}

// lineStartProhibited holds CJK punctuation that a line may never begin
// with; a wrap that would otherwise start a line on one of these pulls it
// back onto the end of the previous line instead.
const lineStartProhibited = "，。！？；：、）】》％‰″℃」』〉〕〗〙〛︶︸︺︼︾﹀﹂﹄﹚﹜﹞）］｝"

func isLineStartProhibited(ch rune) bool {
	switch ch {
	case '"', '”', '\'', '’':
		return true
	}
	return strings.ContainsRune(lineStartProhibited, ch)
}

// EstimateFormulaWidth approximates a $...$ LaTeX span's rendered width by
// counting visible characters (skipping control sequences and braces) and
// applying a few known-command corrections, since the glyphs a formula
// actually renders to never pass through CharWidth.
func EstimateFormulaWidth(formulaText string, fontSize float64) float64 {
	content := strings.Trim(formulaText, "$")

	visibleChars := 0.0
	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '\\':
			i++
			start := i
			for i < len(runes) && unicode.IsLetter(runes[i]) {
				i++
			}
			cmd := string(runes[start:i])
			visibleChars += latexCommandWidth(cmd)
			i--
		case runes[i] == '{' || runes[i] == '}' || runes[i] == '_' || runes[i] == '^':
			// control characters occupy no horizontal space of their own
		case runes[i] == ' ':
			// LaTeX spacing is not rendered literally
		default:
			visibleChars++
		}
	}

	if strings.Contains(content, `\frac`) {
		visibleChars = max(visibleChars*0.7, 5)
	}
	if strings.Contains(content, `\sqrt`) {
		visibleChars += 2
	}
	if strings.ContainsAny(content, "^_") {
		visibleChars *= 0.9
	}

	estimated := visibleChars * fontSize * 0.8
	minWidth := fontSize * 2
	return max(estimated, minWidth)
}

func latexCommandWidth(cmd string) float64 {
	switch cmd {
	case "sum", "int", "lim", "sin", "cos", "tan", "log", "exp":
		return 3
	case "frac", "sqrt", "left", "right":
		return 1
	case "pm", "mp", "pi":
		return 1
	case "alpha", "beta", "gamma", "delta", "sigma", "omega":
		return 1
	default:
		return 0
	}
}

// SuggestFontAdjustment advises a starting font size and line height for a
// region before any wrap/shrink pass, from target language and how much
// text a region of this size would typically hold.
func SuggestFontAdjustment(text string, x0, y0, x1, y1, fontSize float64, language string) FontAdjustment {
	width := x1 - x0
	height := y1 - y0

	fontRatio := 1.0
	if v, ok := langFontRatio[language]; ok {
		fontRatio = v
	}
	suggested := fontSize * fontRatio

	areaRatio := (width * height) / (fontSize * fontSize * 20)
	switch {
	case areaRatio < 0.5:
		suggested *= 0.8
	case areaRatio > 2.0:
		suggested *= 1.1
	}

	return FontAdjustment{
		SuggestedFontSize:   suggested,
		SuggestedLineHeight: suggested * LanguageLineHeight(language),
		FontRatio:           fontRatio,
		AreaRatio:           areaRatio,
	}
}
