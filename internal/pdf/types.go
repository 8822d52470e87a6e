// Package pdf implements the PDF-to-Markdown pipeline: rasterization,
// rotation detection, layout detection, reading-order analysis, content
// parsing, heading-level analysis, translation, document assembly, and
// output generation.
package pdf

import "time"

// ElementKind is the closed enumeration of layout element kinds.
type ElementKind string

const (
	KindDocumentTitle   ElementKind = "document_title"
	KindParagraphTitle  ElementKind = "paragraph_title"
	KindText            ElementKind = "text"
	KindAbstract        ElementKind = "abstract"
	KindTOC             ElementKind = "toc"
	KindReference       ElementKind = "reference"
	KindFootnote        ElementKind = "footnote"
	KindHeader          ElementKind = "header"
	KindFooter          ElementKind = "footer"
	KindPageNumber      ElementKind = "page_number"
	KindAsideText       ElementKind = "aside_text"
	KindImage           ElementKind = "image"
	KindChart           ElementKind = "chart"
	KindTable           ElementKind = "table"
	KindFigureCaption   ElementKind = "figure_caption"
	KindTableCaption    ElementKind = "table_caption"
	KindChartCaption    ElementKind = "chart_caption"
	KindChemicalFormula ElementKind = "chemical_formula"
	KindAlgorithm       ElementKind = "algorithm"
	KindCodeBlock       ElementKind = "code_block"
)

// BoundingBox is pixel coordinates in the page image space at the pipeline's
// working DPI. Width and height must be positive; callers clamp boxes inside
// page bounds before use.
type BoundingBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	PageNum int     `json:"page_num"`
}

// Valid reports whether the box satisfies the width>0 ∧ height>0 invariant.
func (b BoundingBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Clamp returns b constrained inside [0,pageW]x[0,pageH], keeping width and
// height at least 1.
func (b BoundingBox) Clamp(pageW, pageH float64) BoundingBox {
	x0 := clampF(b.X, 0, pageW)
	y0 := clampF(b.Y, 0, pageH)
	x1 := clampF(b.X+b.Width, 0, pageW)
	y1 := clampF(b.Y+b.Height, 0, pageH)
	if x1-x0 < 1 {
		x1 = x0 + 1
	}
	if y1-y0 < 1 {
		y1 = y0 + 1
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, PageNum: b.PageNum}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PDFInfo is the basic file-level summary produced before any page work
// starts: page count, size on disk, and whether the PDF carries extractable
// text (vs. scanned-image-only) used to steer the rasterization fallback.
type PDFInfo struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
	IsTextPDF bool   `json:"is_text_pdf"`
}

// PDFPage describes one rasterized page. Rotation may be mutated by the
// Rotation Detector; the page record is never destroyed before the Output
// Manager completes.
type PDFPage struct {
	PageNum          int     `json:"page_num"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	DPI              int     `json:"dpi"`
	Rotation         int     `json:"rotation"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	ImagePath        string  `json:"image_path"`
	ExtractedText    string  `json:"-"`
}

// LayoutElement is a typed bounding box produced by the Layout Detector.
// ElementID is "{page_num}-{index}" and is globally unique and
// lexicographically orderable by (page_num, index).
type LayoutElement struct {
	ElementID  string      `json:"element_id"`
	Kind       ElementKind `json:"kind"`
	BBox       BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
}

// ReadingOrderElement associates a layout element with its position in the
// page's reading-order permutation.
type ReadingOrderElement struct {
	ElementID  string  `json:"element_id"`
	OrderIndex int     `json:"order_index"`
	Confidence float64 `json:"confidence"`
}

// ImageInfo records a region saved to disk as an image by the Content Parser.
type ImageInfo struct {
	ElementID    string      `json:"element_id"`
	OriginalBBox BoundingBox `json:"original_bbox"`
	SavedPath    string      `json:"saved_path"` // always under "images/"
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Format       string      `json:"format"`
	FileSizeB    int64       `json:"file_size"`
}

// ContentBlock is the unit of Markdown produced by the Content Parser, one
// per kept element (header/footer/page_number are dropped silently).
type ContentBlock struct {
	ElementID     string      `json:"element_id"`
	Kind          ElementKind `json:"kind"`
	RawMarkdown   string      `json:"raw_markdown"`
	TransMarkdown string      `json:"trans_markdown,omitempty"`
	ImageInfo     *ImageInfo  `json:"image_info,omitempty"`
	Confidence    float64     `json:"confidence"`
	PageNum       int         `json:"page_num"`
	OrderIndex    int         `json:"order_index"`
}

// HeadingLevel is the Heading-Level Analyzer's verdict for one heading block.
// SemanticLevel=0 demotes an "apparent heading" to body text.
type HeadingLevel struct {
	ElementID     string  `json:"element_id"`
	OriginalLevel int     `json:"original_level"` // 1 or 2
	SemanticLevel int     `json:"semantic_level"` // 0..6
	Confidence    float64 `json:"confidence"`
}

// PageResult is the per-page triple the Parallel Document Processor is
// responsible for producing, one per input page, in page order.
type PageResult struct {
	PageNum       int
	Layout        []LayoutElement
	Order         []ReadingOrderElement
	Content       *ContentParsingResult
	Failed        bool
	FailureReason string
}

// ContentParsingResult is the Content Parser's per-page output.
type ContentParsingResult struct {
	PageNum        int
	ContentBlocks  []ContentBlock
	SuccessCount   int
	FailedElements []string
}

// AssembledDocument is the Document Assembler's global output.
type AssembledDocument struct {
	DetectedLanguage     string         `json:"detected_language"`
	TotalPages           int            `json:"total_pages"`
	OrderedContentBlocks []ContentBlock `json:"ordered_content_blocks"`
	HeadingLevels        []HeadingLevel `json:"heading_levels"`
	Images               []ImageInfo    `json:"images"`
	TranslationEnabled   bool           `json:"translation_enabled"`
	TargetLanguage       string         `json:"target_language,omitempty"`
	TotalElements        int            `json:"total_elements"`
	SuccessfulElements   int            `json:"successful_elements"`
	FailedElements       []string       `json:"failed_elements"`
	TotalProcessingTime  time.Duration  `json:"total_processing_time"`
}

// OutputConfiguration controls which Markdown variants the Output Manager
// writes.
type OutputConfiguration struct {
	OutputDir             string   `json:"output_dir"`
	BaseFilename          string   `json:"base_filename"`
	IncludeTranslation    bool     `json:"include_translation"`
	TargetLanguage        string   `json:"target_language"`
	TranslatedOnly        bool     `json:"translated_only"`
	BilingualOutput       bool     `json:"bilingual_output"`
	TableAsImage          bool     `json:"table_as_image"`
	DebugMode             bool     `json:"debug_mode"`
	OriginalOutputOptions []string `json:"original_output_options,omitempty"`
}

// OutputFile records one file the Output Manager wrote.
type OutputFile struct {
	FileType  string    `json:"file_type"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// OutputResult is the Output Manager's return value.
type OutputResult struct {
	OutputFiles     []OutputFile `json:"output_files"`
	ImagePaths      []string     `json:"image_paths"`
	ProcessingTime  time.Duration `json:"processing_time"`
	Errors          []string     `json:"errors"`
	Warnings        []string     `json:"warnings"`
	OutputDirectory string       `json:"output_directory"`
}

// TaskStatus is the async-job status surfaced through the (out-of-scope)
// HTTP collaborator. Process-local; not persisted across restarts.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskRecord is the in-model shape of an async job, per spec §3/§6. The HTTP
// surface that serves it is an external collaborator out of scope here.
type TaskRecord struct {
	TaskID            string         `json:"task_id"`
	Status            TaskStatus     `json:"status"`
	Progress          float64        `json:"progress"`
	Message           string         `json:"message"`
	CreatedAt         time.Time      `json:"created_at"`
	Filename          string         `json:"filename"`
	FileSize          int64          `json:"file_size"`
	ResultFile        string         `json:"result_file,omitempty"`
	Error             string         `json:"error,omitempty"`
	ProcessingOptions map[string]any `json:"processing_options,omitempty"`
}

// CacheEntry is one cached translation (PART IV supplement #1).
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheFile is the on-disk shape of the translation cache.
type CacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// PDFErrorCode enumerates the pdf package's own internal error codes,
// distinct from the top-level taxonomy in internal/errors (which governs
// cross-stage propagation policy per spec §7).
type PDFErrorCode string

const (
	ErrPDFNotFound     PDFErrorCode = "PDF_NOT_FOUND"
	ErrPDFInvalid      PDFErrorCode = "PDF_INVALID"
	ErrPDFCorrupted    PDFErrorCode = "PDF_CORRUPTED"
	ErrExtractFailed   PDFErrorCode = "EXTRACT_FAILED"
	ErrTranslateFailed PDFErrorCode = "TRANSLATE_FAILED"
	ErrCacheFailed     PDFErrorCode = "CACHE_FAILED"
	ErrAPIFailed       PDFErrorCode = "API_FAILED"
	ErrModelLoadFailed PDFErrorCode = "MODEL_LOAD_FAILED"
	ErrLayoutFailed    PDFErrorCode = "LAYOUT_FAILED"
	ErrOrderFailed     PDFErrorCode = "ORDER_FAILED"
	ErrContentFailed   PDFErrorCode = "CONTENT_FAILED"
	ErrOutputFailed    PDFErrorCode = "OUTPUT_FAILED"
)

// PDFError is the pdf package's internal error type.
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"`
	Cause   error        `json:"-"`
}

func (e *PDFError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *PDFError) Unwrap() error { return e.Cause }

// NewPDFError creates a new PDFError with the given code, message, and
// optional cause.
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{Code: code, Message: message, Cause: cause}
}

// NewPDFErrorWithPage creates a new PDFError with page information.
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{Code: code, Message: message, Page: page, Cause: cause}
}

// NewPDFErrorWithDetails creates a new PDFError carrying a details string
// (e.g. an upstream API error message) alongside the cause.
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{Code: code, Message: message, Details: details, Cause: cause}
}
