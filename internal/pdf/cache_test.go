package pdf

import (
	"os"
	"path/filepath"
	"testing"
)

// TestComputeHashConsistency tests that repeated ComputeHash calls for the
// same (text, language) pair return the same value.
func TestComputeHashConsistency(t *testing.T) {
	cache := NewTranslationCache("")

	testCases := []struct {
		name string
		text string
	}{
		{"empty string", ""},
		{"simple text", "Hello, World!"},
		{"chinese text", "你好，世界！"},
		{"special characters", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"unicode", "🎉🎊🎁"},
		{"long text", "This is a very long text that should still produce consistent hash values across multiple calls to ComputeHash function."},
		{"whitespace", "   \t\n\r   "},
		{"mixed content", "Hello 你好 123 !@# 🎉"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hash1 := cache.ComputeHash(tc.text, "zh")
			hash2 := cache.ComputeHash(tc.text, "zh")
			hash3 := cache.ComputeHash(tc.text, "zh")

			if hash1 != hash2 || hash2 != hash3 {
				t.Errorf("ComputeHash not consistent for %q: got %s, %s, %s", tc.text, hash1, hash2, hash3)
			}
			if len(hash1) != 64 {
				t.Errorf("Expected hash length 64, got %d", len(hash1))
			}
		})
	}
}

// TestComputeHashScopedByLanguage verifies the same text translated to two
// languages never collides in the cache.
func TestComputeHashScopedByLanguage(t *testing.T) {
	cache := NewTranslationCache("")

	hZh := cache.ComputeHash("Hello", "zh")
	hFr := cache.ComputeHash("Hello", "fr")
	if hZh == hFr {
		t.Errorf("hashes for the same text in different languages must differ")
	}
}

func TestComputeHashDifferentTexts(t *testing.T) {
	cache := NewTranslationCache("")

	texts := []string{"Hello", "hello", "Hello ", " Hello", "Hello!", "World"}

	hashes := make(map[string]string)
	for _, text := range texts {
		hash := cache.ComputeHash(text, "zh")
		if existingText, exists := hashes[hash]; exists {
			t.Errorf("Hash collision: %q and %q both produce hash %s", text, existingText, hash)
		}
		hashes[hash] = text
	}
}

func TestCacheSetGet(t *testing.T) {
	cache := NewTranslationCache("")

	testCases := []struct {
		text        string
		translation string
	}{
		{"Hello", "你好"},
		{"World", "世界"},
		{"This is a test", "这是一个测试"},
		{"", "empty string"},
		{"Special chars: !@#$%", "特殊字符：!@#$%"},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			cache.Set(tc.text, "zh", tc.translation)

			got, ok := cache.Get(tc.text, "zh")
			if !ok {
				t.Errorf("Get(%q) returned not found after Set", tc.text)
			}
			if got != tc.translation {
				t.Errorf("Get(%q) = %q, want %q", tc.text, got, tc.translation)
			}
		})
	}
}

func TestCacheGetNotFound(t *testing.T) {
	cache := NewTranslationCache("")

	_, ok := cache.Get("non-existent", "zh")
	if ok {
		t.Error("Get should return false for non-existent key")
	}
}

func TestCacheOverwrite(t *testing.T) {
	cache := NewTranslationCache("")

	cache.Set("test", "zh", "translation1")
	cache.Set("test", "zh", "translation2")

	got, ok := cache.Get("test", "zh")
	if !ok {
		t.Error("Get should return true after Set")
	}
	if got != "translation2" {
		t.Errorf("Get = %q, want %q", got, "translation2")
	}
}

func TestCacheSaveLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "cache_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cachePath := filepath.Join(tmpDir, "test_cache.json")

	cache1 := NewTranslationCache(cachePath)
	testData := map[string]string{
		"Hello":          "你好",
		"World":          "世界",
		"This is a test": "这是一个测试",
		"Special: !@#$%": "特殊：!@#$%",
		"Unicode: 🎉🎊🎁": "emoji",
	}

	for text, translation := range testData {
		cache1.Set(text, "zh", translation)
	}

	if err := cache1.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cache2 := NewTranslationCache(cachePath)
	if err := cache2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for text, expectedTranslation := range testData {
		got, ok := cache2.Get(text, "zh")
		if !ok {
			t.Errorf("After Load, Get(%q) returned not found", text)
			continue
		}
		if got != expectedTranslation {
			t.Errorf("After Load, Get(%q) = %q, want %q", text, got, expectedTranslation)
		}
	}

	if cache1.Size() != cache2.Size() {
		t.Errorf("Cache sizes don't match: original=%d, loaded=%d", cache1.Size(), cache2.Size())
	}
}

func TestCacheLoadNonExistent(t *testing.T) {
	cache := NewTranslationCache("/non/existent/path/cache.json")

	if err := cache.Load(); err != nil {
		t.Errorf("Load should not error for non-existent file: %v", err)
	}
	if cache.Size() != 0 {
		t.Errorf("Cache should be empty after loading non-existent file, got size %d", cache.Size())
	}
}

func TestCacheLoadEmptyPath(t *testing.T) {
	cache := NewTranslationCache("")

	if err := cache.Load(); err != nil {
		t.Errorf("Load should not error for empty path: %v", err)
	}
}

func TestCacheSaveEmptyPath(t *testing.T) {
	cache := NewTranslationCache("")
	cache.Set("test", "zh", "translation")

	if err := cache.Save(); err != nil {
		t.Errorf("Save should not error for empty path: %v", err)
	}
}

// TestFilterCached verifies len(cached)+len(uncached) == len(blocks).
func TestFilterCached(t *testing.T) {
	cache := NewTranslationCache("")

	cache.Set("cached text 1", "zh", "缓存文本1")
	cache.Set("cached text 2", "zh", "缓存文本2")

	blocks := []ContentBlock{
		{ElementID: "1-0", PageNum: 1, RawMarkdown: "cached text 1"},
		{ElementID: "1-1", PageNum: 1, RawMarkdown: "uncached text 1"},
		{ElementID: "1-2", PageNum: 1, RawMarkdown: "cached text 2"},
		{ElementID: "2-0", PageNum: 2, RawMarkdown: "uncached text 2"},
		{ElementID: "2-1", PageNum: 2, RawMarkdown: "uncached text 3"},
	}

	cached, uncached := cache.FilterCached(blocks, "zh")

	if len(cached)+len(uncached) != len(blocks) {
		t.Errorf("FilterCached: len(cached)=%d + len(uncached)=%d != len(blocks)=%d",
			len(cached), len(uncached), len(blocks))
	}
	if len(cached) != 2 {
		t.Errorf("Expected 2 cached blocks, got %d", len(cached))
	}
	if len(uncached) != 3 {
		t.Errorf("Expected 3 uncached blocks, got %d", len(uncached))
	}

	for _, block := range cached {
		expectedTranslation, _ := cache.Get(block.RawMarkdown, "zh")
		if block.TransMarkdown != expectedTranslation {
			t.Errorf("Cached block %s has wrong translation: got %q, want %q",
				block.ElementID, block.TransMarkdown, expectedTranslation)
		}
	}
}

func TestFilterCachedEmpty(t *testing.T) {
	cache := NewTranslationCache("")
	cache.Set("some text", "zh", "一些文本")

	cached, uncached := cache.FilterCached([]ContentBlock{}, "zh")

	if len(cached) != 0 {
		t.Errorf("Expected 0 cached blocks for empty input, got %d", len(cached))
	}
	if len(uncached) != 0 {
		t.Errorf("Expected 0 uncached blocks for empty input, got %d", len(uncached))
	}
}

func TestFilterCachedAllCached(t *testing.T) {
	cache := NewTranslationCache("")
	cache.Set("text 1", "zh", "文本1")
	cache.Set("text 2", "zh", "文本2")

	blocks := []ContentBlock{
		{ElementID: "1-0", PageNum: 1, RawMarkdown: "text 1"},
		{ElementID: "1-1", PageNum: 1, RawMarkdown: "text 2"},
	}

	cached, uncached := cache.FilterCached(blocks, "zh")

	if len(cached) != 2 {
		t.Errorf("Expected 2 cached blocks, got %d", len(cached))
	}
	if len(uncached) != 0 {
		t.Errorf("Expected 0 uncached blocks, got %d", len(uncached))
	}
}

func TestFilterCachedNoneCached(t *testing.T) {
	cache := NewTranslationCache("")

	blocks := []ContentBlock{
		{ElementID: "1-0", PageNum: 1, RawMarkdown: "text 1"},
		{ElementID: "1-1", PageNum: 1, RawMarkdown: "text 2"},
	}

	cached, uncached := cache.FilterCached(blocks, "zh")

	if len(cached) != 0 {
		t.Errorf("Expected 0 cached blocks, got %d", len(cached))
	}
	if len(uncached) != 2 {
		t.Errorf("Expected 2 uncached blocks, got %d", len(uncached))
	}
}

func TestCacheSize(t *testing.T) {
	cache := NewTranslationCache("")

	if cache.Size() != 0 {
		t.Errorf("New cache should have size 0, got %d", cache.Size())
	}

	cache.Set("text1", "zh", "translation1")
	if cache.Size() != 1 {
		t.Errorf("Cache should have size 1, got %d", cache.Size())
	}

	cache.Set("text2", "zh", "translation2")
	if cache.Size() != 2 {
		t.Errorf("Cache should have size 2, got %d", cache.Size())
	}

	cache.Set("text1", "zh", "new translation")
	if cache.Size() != 2 {
		t.Errorf("Cache should still have size 2 after overwrite, got %d", cache.Size())
	}
}

func TestCacheClear(t *testing.T) {
	cache := NewTranslationCache("")
	cache.Set("text1", "zh", "translation1")
	cache.Set("text2", "zh", "translation2")

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Cache should be empty after Clear, got size %d", cache.Size())
	}

	_, ok := cache.Get("text1", "zh")
	if ok {
		t.Error("Get should return false after Clear")
	}
}

func TestCachePathMethods(t *testing.T) {
	cache := NewTranslationCache("/original/path")

	if cache.GetCachePath() != "/original/path" {
		t.Errorf("GetCachePath = %q, want %q", cache.GetCachePath(), "/original/path")
	}

	cache.SetCachePath("/new/path")
	if cache.GetCachePath() != "/new/path" {
		t.Errorf("After SetCachePath, GetCachePath = %q, want %q", cache.GetCachePath(), "/new/path")
	}
}
