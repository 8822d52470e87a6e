package modelapi

import (
	"errors"
	"strings"
	"testing"
)

func TestStripMarkdownFencePlain(t *testing.T) {
	got := stripMarkdownFence("# Heading\n\nBody text")
	want := "# Heading\n\nBody text"
	if got != want {
		t.Errorf("stripMarkdownFence() = %q, want %q", got, want)
	}
}

func TestStripMarkdownFenceWithLanguageTag(t *testing.T) {
	got := stripMarkdownFence("```markdown\n# Heading\n\nBody text\n```")
	want := "# Heading\n\nBody text"
	if got != want {
		t.Errorf("stripMarkdownFence() = %q, want %q", got, want)
	}
}

func TestStripMarkdownFenceBareFence(t *testing.T) {
	got := stripMarkdownFence("```\nsome content\n```")
	want := "some content"
	if got != want {
		t.Errorf("stripMarkdownFence() = %q, want %q", got, want)
	}
}

func TestStripMarkdownFenceUnterminatedKeepsContent(t *testing.T) {
	input := "```markdown\nno closing fence here"
	got := stripMarkdownFence(input)
	if !strings.Contains(got, "no closing fence here") {
		t.Errorf("stripMarkdownFence() dropped content: %q", got)
	}
}

func TestIsRetryableErrorTransient(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{errors.New("request timeout"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("invalid api key"), false},
		{errors.New("malformed request body"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := isRetryableError(c.err); got != c.retryable {
			t.Errorf("isRetryableError(%v) = %v, want %v", c.err, got, c.retryable)
		}
	}
}

func TestBuildTextMessagesIncludesSystemAndUser(t *testing.T) {
	messages := buildTextMessages("be concise", "translate this")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[1].Content != "translate this" {
		t.Errorf("expected user message content %q, got %q", "translate this", messages[1].Content)
	}
}

func TestBuildTextMessagesOmitsEmptySystemPrompt(t *testing.T) {
	messages := buildTextMessages("", "translate this")
	if len(messages) != 1 {
		t.Fatalf("expected 1 message when system prompt is empty, got %d", len(messages))
	}
}

func TestParallelPreservesOrderAndSubstitutesFailures(t *testing.T) {
	in := &Interface{sem: make(chan struct{}, DefaultPoolSize)}
	results := in.parallel(4, func(i int) (string, error) {
		if i == 2 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	want := []string{"ok", "ok", "", "ok"}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %q, want %q", i, results[i], want[i])
		}
	}
}
