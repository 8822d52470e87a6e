package pdf

import "testing"

func TestDetectLanguageShortTextIsUnknown(t *testing.T) {
	if got := detectLanguage("hi"); got != "unknown" {
		t.Errorf("detectLanguage(short) = %q, want unknown", got)
	}
}

func TestDetectLanguageChineseOnly(t *testing.T) {
	if got := detectLanguage("这是一个测试文档，包含足够的中文字符。"); got != "zh-cn" {
		t.Errorf("detectLanguage(chinese) = %q, want zh-cn", got)
	}
}

func TestDetectLanguageEnglishOnly(t *testing.T) {
	if got := detectLanguage("This is an English test document with enough characters."); got != "en" {
		t.Errorf("detectLanguage(english) = %q, want en", got)
	}
}

func TestDetectLanguageMixed(t *testing.T) {
	if got := detectLanguage("This document 包含中文和英文 mixed together for testing."); got != "zh-en-mixed" {
		t.Errorf("detectLanguage(mixed) = %q, want zh-en-mixed", got)
	}
}

func TestDetectLanguageUnclassifiable(t *testing.T) {
	if got := detectLanguage("1234567890 !@#$%^&*()_+-=[]{}|;:,.<>?"); got != "unknown" {
		t.Errorf("detectLanguage(symbols) = %q, want unknown", got)
	}
}
