package pdf

import (
	"context"
	"runtime"
	"sync"

	"github.com/samber/lo"

	"latex-translator/internal/logger"
	"latex-translator/internal/memmgr"
)

const (
	memoryHighWatermark     = 75.0
	memoryCriticalWatermark = 90.0
	adaptiveBatchCap        = 6
	completenessWarnRate    = 0.1
)

// ParallelDocumentProcessor fans a document's pages out across a pool of
// PageProcessor instances, choosing a conservative or adaptive batch size
// from current memory pressure, retrying each failed page once, and falling
// back to fully sequential processing if the batched run itself errors.
type ParallelDocumentProcessor struct {
	newPageProcessor func() (*PageProcessor, error)
	memory           *memmgr.Manager
	maxWorkers       int
}

// NewParallelDocumentProcessor creates a processor backed by newPageProcessor,
// a factory invoked once per worker to give every goroutine its own model
// sessions. maxWorkers<=0 defaults to min(runtime.NumCPU(), 4).
func NewParallelDocumentProcessor(newPageProcessor func() (*PageProcessor, error), memory *memmgr.Manager, maxWorkers int) *ParallelDocumentProcessor {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
		if maxWorkers > 4 {
			maxWorkers = 4
		}
	}
	return &ParallelDocumentProcessor{newPageProcessor: newPageProcessor, memory: memory, maxWorkers: maxWorkers}
}

// ProcessPages runs the full E→F→G pipeline over every page, returning
// exactly one PageResult per input page, in page order. A page that never
// succeeds (even after one retry) is still returned, with Failed=true and
// FailureReason set, rather than dropped from the result.
func (p *ParallelDocumentProcessor) ProcessPages(ctx context.Context, pdfPath string, pages []PDFPage, imagesDir string) []PageResult {
	workers := p.maxWorkers
	if len(pages) < workers {
		workers = len(pages)
	}
	if workers < 1 {
		return nil
	}

	batchSize := adaptiveBatchCap
	if workers < batchSize {
		batchSize = workers
	}
	if info, err := p.memory.GetMemoryInfo(); err == nil && info.Percent > memoryHighWatermark {
		batchSize = workers / 2
		if batchSize < 1 {
			batchSize = 1
		}
		logger.Info("memory pressure high, using conservative batch size",
			logger.Float64("percentUsed", info.Percent), logger.Int("batchSize", batchSize))
	}

	results := make([]*PageResult, len(pages))
	ok := p.processInBatches(ctx, pdfPath, pages, imagesDir, batchSize, results)
	if !ok {
		logger.Warn("batched parallel processing failed, falling back to sequential processing")
		p.processSequentially(ctx, pdfPath, pages, imagesDir, results)
	}

	p.verifyCompleteness(pages, results)

	return lo.Map(results, func(r *PageResult, idx int) PageResult {
		if r != nil {
			return *r
		}
		return PageResult{PageNum: pages[idx].PageNum, Failed: true, FailureReason: "page was never attempted"}
	})
}

// processInBatches walks pages batchSize at a time, processing each batch in
// parallel and writing results into the shared results slice by index. A
// batch found above memoryCriticalWatermark after a forced cleanup is
// degraded to fully serial (size-1) processing for that batch only.
// processInBatches returns false only if constructing the worker pool itself
// fails.
func (p *ParallelDocumentProcessor) processInBatches(ctx context.Context, pdfPath string, pages []PDFPage, imagesDir string, batchSize int, results []*PageResult) bool {
	processors := make([]*PageProcessor, batchSize)
	for i := range processors {
		pp, err := p.newPageProcessor()
		if err != nil {
			logger.Error("failed to construct page processor pool", err)
			return false
		}
		processors[i] = pp
	}

	for start := 0; start < len(pages); start += batchSize {
		end := start + batchSize
		if end > len(pages) {
			end = len(pages)
		}

		if p.degradeToSerial() {
			for i := start; i < end; i++ {
				p.processPageWithRetry(ctx, pdfPath, pages[i], imagesDir, processors[0], results, i)
			}
		} else {
			var wg sync.WaitGroup
			for i := start; i < end; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					pp := processors[(idx-start)%len(processors)]
					p.processPageWithRetry(ctx, pdfPath, pages[idx], imagesDir, pp, results, idx)
				}(i)
			}
			wg.Wait()
		}

		p.memory.CleanupIfNeeded(false)
		logger.Info("batch complete", logger.Int("processed", end), logger.Int("total", len(pages)))
	}

	return true
}

// degradeToSerial checks memory pressure before a batch: if usage is above
// memoryCriticalWatermark, it forces a cleanup and re-checks, reporting
// true only if usage is still critical afterward, in which case the caller
// must fall back to processing that batch one page at a time.
func (p *ParallelDocumentProcessor) degradeToSerial() bool {
	info, err := p.memory.GetMemoryInfo()
	if err != nil || info.Percent <= memoryCriticalWatermark {
		return false
	}

	logger.Warn("memory usage critical, forcing cleanup before batch", logger.Float64("percentUsed", info.Percent))
	p.memory.CleanupIfNeeded(true)

	info, err = p.memory.GetMemoryInfo()
	if err == nil && info.Percent > memoryCriticalWatermark {
		logger.Warn("memory still critical after cleanup, degrading batch to serial", logger.Float64("percentUsed", info.Percent))
		return true
	}
	return false
}

// processPageWithRetry processes one page, retrying once (after a forced
// memory cleanup) on failure, and writes the outcome into results[idx] —
// either the successful result or a Failed=true stub, never leaving the slot
// nil.
func (p *ParallelDocumentProcessor) processPageWithRetry(ctx context.Context, pdfPath string, page PDFPage, imagesDir string, pp *PageProcessor, results []*PageResult, idx int) {
	result, err := pp.Process(ctx, pdfPath, page, imagesDir)
	if err != nil {
		logger.Error("page processing failed, retrying once", err, logger.Int("page", page.PageNum))
		p.memory.CleanupIfNeeded(true)
		result, err = pp.Process(ctx, pdfPath, page, imagesDir)
		if err != nil {
			logger.Error("page processing retry failed", err, logger.Int("page", page.PageNum))
			results[idx] = &PageResult{PageNum: page.PageNum, Failed: true, FailureReason: err.Error()}
			return
		}
	}
	results[idx] = &result
}

// processSequentially is the last-resort path: one page at a time, with an
// unconditional forced memory cleanup before each, guaranteeing every page is
// at least attempted.
func (p *ParallelDocumentProcessor) processSequentially(ctx context.Context, pdfPath string, pages []PDFPage, imagesDir string, results []*PageResult) {
	pp, err := p.newPageProcessor()
	if err != nil {
		logger.Error("failed to construct sequential page processor", err)
		return
	}

	for i, page := range pages {
		p.memory.CleanupIfNeeded(true)
		result, err := pp.Process(ctx, pdfPath, page, imagesDir)
		if err != nil {
			logger.Error("sequential page processing failed", err, logger.Int("page", page.PageNum))
			results[i] = &PageResult{PageNum: page.PageNum, Failed: true, FailureReason: err.Error()}
			continue
		}
		results[i] = &result
	}
}

// verifyCompleteness logs a summary of how many pages produced a successful
// result and warns if the failure rate exceeds completenessWarnRate.
func (p *ParallelDocumentProcessor) verifyCompleteness(pages []PDFPage, results []*PageResult) {
	var failedPages []int
	for i, r := range results {
		if r == nil || r.Failed {
			failedPages = append(failedPages, pages[i].PageNum)
		}
	}
	if len(failedPages) == 0 {
		logger.Info("all pages processed successfully", logger.Int("total", len(pages)))
		return
	}

	logger.Warn("some pages did not complete processing", logger.Int("failedCount", len(failedPages)))
	failureRate := float64(len(failedPages)) / float64(len(pages))
	if failureRate > completenessWarnRate {
		logger.Error("page failure rate exceeds threshold", nil, logger.Float64("rate", failureRate))
	}
}
