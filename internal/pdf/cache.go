package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// TranslationCache persists translation results keyed by (text, target
// language) so the Translator can skip a batch API call for content it has
// already translated. Purely additive: it never changes what the Translator
// returns, only how often it calls the model (SPEC_FULL.md PART IV #1).
type TranslationCache struct {
	cachePath string
	cache     map[string]CacheEntry // hash -> CacheEntry
	mu        sync.RWMutex
}

// NewTranslationCache creates a new translation cache backed by the file at
// cachePath (empty path disables persistence).
func NewTranslationCache(cachePath string) *TranslationCache {
	return &TranslationCache{
		cachePath: cachePath,
		cache:     make(map[string]CacheEntry),
	}
}

// ComputeHash returns the SHA-256 hex digest of text scoped to language, so
// the same source text translated to two different languages never collides.
func (c *TranslationCache) ComputeHash(text, language string) string {
	hash := sha256.Sum256([]byte(language + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached translation for text in language, if present.
func (c *TranslationCache) Get(text, language string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[c.ComputeHash(text, language)]
	if !ok {
		return "", false
	}
	return entry.Translation, true
}

// Set stores translation for text in language.
func (c *TranslationCache) Set(text, language, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := c.ComputeHash(text, language)
	c.cache[hash] = CacheEntry{
		Hash:        hash,
		Original:    text,
		Translation: translation,
		Language:    language,
		CreatedAt:   time.Now(),
	}
}

// Load reads the cache file from disk, tolerating a missing file.
func (c *TranslationCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachePath == "" {
		return nil
	}
	if _, err := os.Stat(c.cachePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return NewPDFError(ErrCacheFailed, "failed to read cache file", err)
	}

	var cacheFile CacheFile
	if err := json.Unmarshal(data, &cacheFile); err != nil {
		return NewPDFError(ErrCacheFailed, "failed to parse cache file", err)
	}

	c.cache = make(map[string]CacheEntry, len(cacheFile.Entries))
	for _, entry := range cacheFile.Entries {
		c.cache[entry.Hash] = entry
	}
	return nil
}

// Save persists the cache to disk.
func (c *TranslationCache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cachePath == "" {
		return nil
	}

	entries := make([]CacheEntry, 0, len(c.cache))
	for _, entry := range c.cache {
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(CacheFile{Version: "1.0", Entries: entries}, "", "  ")
	if err != nil {
		return NewPDFError(ErrCacheFailed, "failed to marshal cache", err)
	}
	if err := os.WriteFile(c.cachePath, data, 0644); err != nil {
		return NewPDFError(ErrCacheFailed, "failed to write cache file", err)
	}
	return nil
}

// FilterCached splits blocks into those with a cached translation (their
// TransMarkdown field is filled in) and those still needing translation.
func (c *TranslationCache) FilterCached(blocks []ContentBlock, language string) (cached, uncached []ContentBlock) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached = make([]ContentBlock, 0, len(blocks))
	uncached = make([]ContentBlock, 0, len(blocks))

	for _, block := range blocks {
		if entry, ok := c.cache[c.ComputeHash(block.RawMarkdown, language)]; ok {
			block.TransMarkdown = entry.Translation
			cached = append(cached, block)
		} else {
			uncached = append(uncached, block)
		}
	}
	return cached, uncached
}

// Size returns the number of entries in the cache.
func (c *TranslationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear empties the cache.
func (c *TranslationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]CacheEntry)
}

// GetCachePath returns the cache file path.
func (c *TranslationCache) GetCachePath() string {
	return c.cachePath
}

// SetCachePath sets the cache file path.
func (c *TranslationCache) SetCachePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachePath = path
}
