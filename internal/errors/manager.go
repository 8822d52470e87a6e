// Package errors defines the pipeline's error taxonomy and the page-level
// retry bookkeeping used by the Parallel Document Processor.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the six-member error taxonomy every stage classifies its failures
// into. Only ConfigError and an all-worker ModelLoadError abort the job;
// every other kind is contained at the element or page boundary and recorded.
type Kind string

const (
	KindConfig         Kind = "config_error"
	KindModelLoad      Kind = "model_load_error"
	KindModelCall      Kind = "model_call_error"
	KindContentParse   Kind = "content_parse_error"
	KindPageProcessing Kind = "page_processing_error"
	KindOutput         Kind = "output_error"
)

// TypedError carries a taxonomy Kind plus a wrapped cause. pkgerrors.Wrap
// attaches a stack at the point of creation so a page's root cause survives
// retry and sequential-fallback paths.
type TypedError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TypedError) Unwrap() error { return e.Cause }

func newTyped(kind Kind, message string, cause error) *TypedError {
	if cause != nil {
		cause = pkgerrors.Wrap(cause, string(kind))
	}
	return &TypedError{Kind: kind, Message: message, Cause: cause}
}

// NewConfigError reports a malformed or incomplete Configuration. Always
// aborts the job: nothing downstream can proceed without valid configuration.
func NewConfigError(message string, cause error) *TypedError {
	return newTyped(KindConfig, message, cause)
}

// NewModelLoadError reports failure to load or initialize a model backend
// (ONNX session, remote client). Aborts the job only when every worker hits
// it; a single worker's load failure degrades that worker to its fallback.
func NewModelLoadError(message string, cause error) *TypedError {
	return newTyped(KindModelLoad, message, cause)
}

// NewModelCallError reports a failed inference/chat/translation call.
// Contained at the element or batch boundary.
func NewModelCallError(message string, cause error) *TypedError {
	return newTyped(KindModelCall, message, cause)
}

// NewContentParseError reports failure to turn one element into Markdown.
// Contained at the element boundary; the page continues with the element
// recorded as failed.
func NewContentParseError(message string, cause error) *TypedError {
	return newTyped(KindContentParse, message, cause)
}

// NewPageProcessingError reports a page that failed end to end (E, F, or G
// raised past containment). Contained at the page boundary per §7: the
// document job continues, the page is retried once, then recorded failed.
func NewPageProcessingError(message string, cause error) *TypedError {
	return newTyped(KindPageProcessing, message, cause)
}

// NewOutputError reports failure while writing Markdown/image/manifest
// output. Contained at the document boundary; does not roll back pages
// already processed.
func NewOutputError(message string, cause error) *TypedError {
	return newTyped(KindOutput, message, cause)
}

// Classify returns the Kind of err if it (or something it wraps) is a
// *TypedError, and false otherwise.
func Classify(err error) (Kind, bool) {
	var te *TypedError
	if stderrors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsAborting reports whether err's kind must abort the whole job rather than
// being contained at its stage boundary, per the §7 propagation policy.
func IsAborting(err error) bool {
	kind, ok := Classify(err)
	return ok && (kind == KindConfig || kind == KindModelLoad)
}

// ============================================================================
// Page-level retry bookkeeping (Parallel Document Processor, component I)
// ============================================================================

// PageStage names the pipeline stage a page failure occurred in.
type PageStage string

const (
	StagePreprocess   PageStage = "preprocess"
	StageRotation     PageStage = "rotation"
	StageLayout       PageStage = "layout"
	StageReadingOrder PageStage = "reading_order"
	StageContentParse PageStage = "content_parse"
	StageHeadingLevel PageStage = "heading_level"
	StageTranslate    PageStage = "translate"
	StageAssemble     PageStage = "assemble"
	StageEmit         PageStage = "emit"
)

// PageErrorRecord is one page's failure history within a document job.
type PageErrorRecord struct {
	PageID     string    `json:"page_id"` // "{document_id}-{page_num}"
	DocumentID string    `json:"document_id"`
	PageNum    int       `json:"page_num"`
	Stage      PageStage `json:"stage"`
	ErrorMsg   string    `json:"error_msg"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
	LastRetry  time.Time `json:"last_retry"`
	Resolved   bool      `json:"resolved"`
}

// PageErrorTracker records page-level failures across a document job's
// retry-then-sequential-fallback path and persists them to disk so a
// completeness audit can be produced after the job finishes.
type PageErrorTracker struct {
	baseDir string
	mu      sync.RWMutex
	records map[string]*PageErrorRecord
}

// NewPageErrorTracker creates a tracker rooted at baseDir. An empty baseDir
// defaults to a directory under the user's home.
func NewPageErrorTracker(baseDir string) (*PageErrorTracker, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".latex-translator", "page-errors")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create page-errors directory: %w", err)
	}

	t := &PageErrorTracker{baseDir: baseDir, records: make(map[string]*PageErrorRecord)}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordFailure records or updates a page's failure. Calling it again for the
// same documentID+pageNum increments the retry count.
func (t *PageErrorTracker) RecordFailure(documentID string, pageNum int, stage PageStage, errorMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := fmt.Sprintf("%s-%d", documentID, pageNum)
	record := &PageErrorRecord{
		PageID:     id,
		DocumentID: documentID,
		PageNum:    pageNum,
		Stage:      stage,
		ErrorMsg:   errorMsg,
		Timestamp:  time.Now(),
	}
	if existing, ok := t.records[id]; ok {
		record.RetryCount = existing.RetryCount + 1
		record.LastRetry = time.Now()
	}
	t.records[id] = record
	return t.save()
}

// Resolve marks a page as having succeeded on retry, so it drops out of the
// completeness audit's failure list.
func (t *PageErrorTracker) Resolve(documentID string, pageNum int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := fmt.Sprintf("%s-%d", documentID, pageNum)
	if record, ok := t.records[id]; ok {
		record.Resolved = true
		return t.save()
	}
	return nil
}

// UnresolvedForDocument returns every unresolved failure for documentID,
// ordered by page number, for the completeness audit (PART IV supplement 4).
func (t *PageErrorTracker) UnresolvedForDocument(documentID string) []*PageErrorRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*PageErrorRecord
	for _, record := range t.records {
		if record.DocumentID == documentID && !record.Resolved {
			recordCopy := *record
			out = append(out, &recordCopy)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].PageNum > out[j].PageNum; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ClearDocument removes every record belonging to documentID, once its job
// has finished and the audit has been written.
func (t *PageErrorTracker) ClearDocument(documentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, record := range t.records {
		if record.DocumentID == documentID {
			delete(t.records, id)
		}
	}
	return t.save()
}

func (t *PageErrorTracker) load() error {
	filePath := filepath.Join(t.baseDir, "page_errors.json")

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read page-errors file: %w", err)
	}

	var records []*PageErrorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal page-errors: %w", err)
	}
	for _, record := range records {
		t.records[record.PageID] = record
	}
	return nil
}

func (t *PageErrorTracker) save() error {
	records := make([]*PageErrorRecord, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, record)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal page-errors: %w", err)
	}

	filePath := filepath.Join(t.baseDir, "page_errors.json")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write page-errors file: %w", err)
	}
	return nil
}
