// Package modelapi is the shared adapter every pipeline stage calls through
// to reach a vision/text LLM endpoint: retries, a bounded parallel-call pool,
// and markdown-fence stripping live here once instead of in every caller.
package modelapi

import (
	"context"
	"encoding/base64"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"latex-translator/internal/errors"
	"latex-translator/internal/logger"
)

const (
	// DefaultMaxRetries is the per-call retry budget before an error is
	// returned to the caller.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the base backoff delay between retries.
	DefaultRetryDelay = 3 * time.Second
	// DefaultPoolSize is the shared parallel-call worker pool size (§5).
	DefaultPoolSize = 15
)

// Config configures an Interface's remote endpoint and call behavior.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	PoolSize   int
}

// Interface is the thread-safe, retrying adapter to one chat/vision model
// endpoint, shared across a document job's worker goroutines.
type Interface struct {
	chatModel  *openai.ChatModel
	model      string
	maxRetries int
	retryDelay time.Duration
	sem        chan struct{}
}

// New creates an Interface backed by an OpenAI-compatible chat model.
func New(ctx context.Context, cfg Config) (*Interface, error) {
	modelCfg := &openai.ChatModelConfig{Model: cfg.Model, APIKey: cfg.APIKey}
	if cfg.BaseURL != "" {
		modelCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, errors.NewModelLoadError("failed to create model interface", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	logger.Info("model interface initialized",
		logger.String("model", cfg.Model), logger.Int("poolSize", poolSize))

	return &Interface{
		chatModel:  chatModel,
		model:      cfg.Model,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sem:        make(chan struct{}, poolSize),
	}, nil
}

// Chat sends a single system/user prompt pair and returns the stripped
// response text, retrying transient failures.
func (in *Interface) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	in.sem <- struct{}{}
	defer func() { <-in.sem }()
	return in.callWithRetry(ctx, buildTextMessages(systemPrompt, userPrompt))
}

// Vision sends one image plus a prompt pair to the model and returns the
// stripped response text.
func (in *Interface) Vision(ctx context.Context, imagePath, systemPrompt, userPrompt string) (string, error) {
	in.sem <- struct{}{}
	defer func() { <-in.sem }()

	messages, err := buildVisionMessages(imagePath, systemPrompt, userPrompt)
	if err != nil {
		return "", errors.NewModelCallError("failed to prepare vision request", err)
	}
	return in.callWithRetry(ctx, messages)
}

// ParallelChat runs Chat over every (systemPrompt, userPrompt) pair
// concurrently, bounded by the shared pool. A failed index returns "" at
// that position rather than aborting the batch — the caller decides what a
// missing result means for its own element.
func (in *Interface) ParallelChat(ctx context.Context, systemPrompts, userPrompts []string) []string {
	return in.parallel(len(systemPrompts), func(i int) (string, error) {
		return in.Chat(ctx, systemPrompts[i], userPrompts[i])
	})
}

// ParallelVision runs Vision over every (imagePath, systemPrompt, userPrompt)
// triple concurrently, bounded by the shared pool.
func (in *Interface) ParallelVision(ctx context.Context, imagePaths, systemPrompts, userPrompts []string) []string {
	return in.parallel(len(imagePaths), func(i int) (string, error) {
		return in.Vision(ctx, imagePaths[i], systemPrompts[i], userPrompts[i])
	})
}

func (in *Interface) parallel(n int, call func(i int) (string, error)) []string {
	results := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := call(i)
			if err != nil {
				logger.Error("parallel model call failed", err, logger.Int("index", i))
				results[i] = ""
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()
	return results
}

// callWithRetry invokes the chat model, retrying transient failures with
// exponential backoff up to maxRetries times.
func (in *Interface) callWithRetry(ctx context.Context, messages []*schema.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= in.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * in.retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := in.chatModel.Generate(ctx, messages)
		if err == nil && resp != nil {
			return stripMarkdownFence(resp.Content), nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.NewModelCallError("model returned no response", nil)
		}
		if !isRetryableError(lastErr) {
			break
		}
	}
	return "", errors.NewModelCallError("model call failed after retries", lastErr)
}

// isRetryableError reports whether a failure is worth retrying: timeouts,
// rate limits, and transient 5xx-shaped errors, not malformed requests.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	retryableSubstrings := []string{
		"timeout", "rate limit", "too many requests", "connection reset",
		"temporarily unavailable", "503", "502", "504", "context deadline exceeded",
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// stripMarkdownFence removes a single leading/trailing ``` or ```markdown
// fence some models wrap their output in, leaving the raw content.
func stripMarkdownFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func buildTextMessages(systemPrompt, userPrompt string) []*schema.Message {
	var messages []*schema.Message
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	messages = append(messages, schema.UserMessage(userPrompt))
	return messages
}

// buildVisionMessages wraps userPrompt's text alongside a base64 data URL for
// the image at imagePath, in the OpenAI-compatible multi-part message shape.
func buildVisionMessages(imagePath, systemPrompt, userPrompt string) ([]*schema.Message, error) {
	dataURL, err := encodeImageAsDataURL(imagePath)
	if err != nil {
		return nil, err
	}

	var messages []*schema.Message
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	messages = append(messages, &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: userPrompt},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL: dataURL,
				},
			},
		},
	})
	return messages, nil
}

func encodeImageAsDataURL(imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	mimeType := "image/png"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".webp":
		mimeType = "image/webp"
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return "data:" + mimeType + ";base64," + encoded, nil
}

// Close releases resources held by the interface (currently a no-op; the
// semaphore and chat model need no explicit teardown).
func (in *Interface) Close() error { return nil }
