package pdf

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"latex-translator/internal/logger"
)

// TranslationBatchSize is the number of content blocks grouped into one
// model call. Fixed per spec rather than context-window-adaptive: the
// <content>/<translated> wrapper protocol is what keeps blocks aligned, not
// character budget.
const TranslationBatchSize = 10

// nontranslatableKinds never get sent to the model; they pass through with
// an empty TransMarkdown.
var nontranslatableKinds = map[ElementKind]bool{
	KindImage: true,
	KindChart: true,
}

var translatedBlockPattern = regexp.MustCompile(`(?s)<translated>(.*?)</translated>`)

// Translator batch-translates ContentBlocks into a target language while
// preserving Markdown structure and inline math, per the content/translated
// wrapper-tag protocol.
type Translator struct {
	chatModel *openai.ChatModel
	cache     *TranslationCache
}

// TranslatorConfig configures the chat model backing the Translator.
type TranslatorConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	CachePath  string
}

// NewTranslator creates a Translator backed by an OpenAI-compatible chat
// model. ctx is used only to construct the client, not to bound later calls.
func NewTranslator(ctx context.Context, cfg TranslatorConfig) (*Translator, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		modelCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, NewPDFError(ErrModelLoadFailed, "failed to create translation chat model", err)
	}

	cache := NewTranslationCache(cfg.CachePath)
	if err := cache.Load(); err != nil {
		logger.Warn("failed to load translation cache, starting empty", logger.Err(err))
	}

	return &Translator{chatModel: chatModel, cache: cache}, nil
}

// TranslateBlocks translates blocks into targetLanguage in place, returning a
// new slice with TransMarkdown populated. Non-translatable kinds and empty
// blocks pass through untouched (TransMarkdown=""). A failure confined to one
// batch leaves that batch's blocks with TransMarkdown="" — the original text
// is never substituted as a false translation.
func (t *Translator) TranslateBlocks(ctx context.Context, blocks []ContentBlock, targetLanguage string) ([]ContentBlock, error) {
	if len(blocks) == 0 {
		return blocks, nil
	}

	passthrough := make([]ContentBlock, len(blocks))
	copy(passthrough, blocks)

	var toTranslate, rest []ContentBlock
	for _, b := range passthrough {
		if nontranslatableKinds[b.Kind] || strings.TrimSpace(b.RawMarkdown) == "" {
			rest = append(rest, b)
			continue
		}
		toTranslate = append(toTranslate, b)
	}

	cached, uncached := t.cache.FilterCached(toTranslate, targetLanguage)

	translated := make([]ContentBlock, 0, len(uncached))
	for i := 0; i < len(uncached); i += TranslationBatchSize {
		end := i + TranslationBatchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch := uncached[i:end]

		result, err := t.translateBatch(ctx, batch, targetLanguage)
		if err != nil {
			logger.Warn("translation batch failed, blocks left untranslated",
				logger.Int("batchStart", i), logger.Int("batchSize", len(batch)), logger.Err(err))
			for _, b := range batch {
				b.TransMarkdown = ""
				translated = append(translated, b)
			}
			continue
		}
		for _, b := range result {
			t.cache.Set(b.RawMarkdown, targetLanguage, b.TransMarkdown)
		}
		translated = append(translated, result...)
	}

	if err := t.cache.Save(); err != nil {
		logger.Warn("failed to persist translation cache", logger.Err(err))
	}

	out := make([]ContentBlock, 0, len(blocks))
	out = append(out, rest...)
	out = append(out, cached...)
	out = append(out, translated...)
	sortContentBlocksByPosition(out)
	return out, nil
}

func sortContentBlocksByPosition(blocks []ContentBlock) {
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0; j-- {
			a, b := blocks[j-1], blocks[j]
			if a.PageNum > b.PageNum || (a.PageNum == b.PageNum && a.OrderIndex > b.OrderIndex) {
				blocks[j-1], blocks[j] = blocks[j], blocks[j-1]
			} else {
				break
			}
		}
	}
}

// translateBatch sends one batch (<= TranslationBatchSize blocks) to the
// model wrapped in <content> tags and parses the <translated> response.
func (t *Translator) translateBatch(ctx context.Context, batch []ContentBlock, targetLanguage string) ([]ContentBlock, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	messages := []*schema.Message{
		schema.SystemMessage(t.buildSystemPrompt(targetLanguage)),
		schema.UserMessage(t.buildUserPrompt(batch)),
	}

	resp, err := t.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, NewPDFError(ErrAPIFailed, "translation API call failed", err)
	}
	if resp == nil {
		return nil, NewPDFError(ErrAPIFailed, "translation API returned no response", nil)
	}

	segments := extractTranslatedSegments(resp.Content, len(batch))

	result := make([]ContentBlock, len(batch))
	for i, b := range batch {
		b.TransMarkdown = segments[i]
		result[i] = b
	}
	return result, nil
}

// extractTranslatedSegments regex-extracts <translated> payloads in order,
// padding with "" if the model returned fewer than expected and truncating
// (discarding) the extras if it returned more.
func extractTranslatedSegments(response string, expected int) []string {
	matches := translatedBlockPattern.FindAllStringSubmatch(response, -1)

	segments := make([]string, 0, len(matches))
	for _, m := range matches {
		segments = append(segments, strings.TrimSpace(m[1]))
	}

	if len(segments) == expected {
		return segments
	}

	result := make([]string, expected)
	if len(segments) < expected {
		copy(result, segments)
		return result
	}
	copy(result, segments[:expected])
	return result
}

func (t *Translator) buildSystemPrompt(targetLanguage string) string {
	return fmt.Sprintf(`You are a professional technical translator. Translate the content of each
<content> block into %s.

CRITICAL RULES:
1. Preserve all Markdown formatting (headings, lists, tables, emphasis) exactly.
2. Preserve inline math and LaTeX expressions exactly, untranslated.
3. Preserve code blocks, identifiers, and URLs exactly, untranslated.
4. Translate each block independently; never merge blocks or drop any.
5. Return exactly one <translated>...</translated> element per input <content> block,
   in the same order, with nothing else in your response.`, targetLanguage)
}

func (t *Translator) buildUserPrompt(batch []ContentBlock) string {
	var sb strings.Builder
	for i, b := range batch {
		sb.WriteString("<content id=\"")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("\">\n")
		sb.WriteString(b.RawMarkdown)
		sb.WriteString("\n</content>\n")
	}
	return sb.String()
}

// Close flushes the translation cache to disk.
func (t *Translator) Close() error {
	return t.cache.Save()
}

// CacheSize reports the number of cached translations.
func (t *Translator) CacheSize() int {
	return t.cache.Size()
}
