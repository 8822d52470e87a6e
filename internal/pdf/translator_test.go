package pdf

import (
	"strings"
	"testing"
)

func TestExtractTranslatedSegmentsExactCount(t *testing.T) {
	resp := "<translated>Hello</translated>\n<translated>World</translated>"
	segments := extractTranslatedSegments(resp, 2)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0] != "Hello" || segments[1] != "World" {
		t.Errorf("unexpected segments: %v", segments)
	}
}

func TestExtractTranslatedSegmentsPadsShort(t *testing.T) {
	resp := "<translated>Hello</translated>"
	segments := extractTranslatedSegments(resp, 3)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[0] != "Hello" || segments[1] != "" || segments[2] != "" {
		t.Errorf("unexpected segments: %v", segments)
	}
}

func TestExtractTranslatedSegmentsTruncatesOverflow(t *testing.T) {
	resp := "<translated>A</translated><translated>B</translated><translated>C</translated>"
	segments := extractTranslatedSegments(resp, 2)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0] != "A" || segments[1] != "B" {
		t.Errorf("expected the extra segment discarded, got %v", segments)
	}
}

func TestExtractTranslatedSegmentsNoMatches(t *testing.T) {
	segments := extractTranslatedSegments("the model said nothing useful", 2)
	if len(segments) != 2 || segments[0] != "" || segments[1] != "" {
		t.Errorf("expected two empty segments, got %v", segments)
	}
}

func TestBuildUserPromptWrapsEachBlock(t *testing.T) {
	tr := &Translator{}
	blocks := []ContentBlock{
		{ElementID: "1-1", RawMarkdown: "first"},
		{ElementID: "1-2", RawMarkdown: "second"},
	}
	prompt := tr.buildUserPrompt(blocks)

	if strings.Count(prompt, "<content") != 2 {
		t.Errorf("expected 2 <content> tags, got prompt: %s", prompt)
	}
	if !strings.Contains(prompt, "first") || !strings.Contains(prompt, "second") {
		t.Errorf("prompt missing block content: %s", prompt)
	}
}

func TestSortContentBlocksByPosition(t *testing.T) {
	blocks := []ContentBlock{
		{ElementID: "c", PageNum: 2, OrderIndex: 0},
		{ElementID: "a", PageNum: 1, OrderIndex: 1},
		{ElementID: "b", PageNum: 1, OrderIndex: 0},
	}
	sortContentBlocksByPosition(blocks)

	want := []string{"b", "a", "c"}
	for i, id := range want {
		if blocks[i].ElementID != id {
			t.Errorf("position %d: got %q, want %q", i, blocks[i].ElementID, id)
		}
	}
}

func TestNontranslatableKindsSkipped(t *testing.T) {
	if !nontranslatableKinds[KindImage] {
		t.Error("KindImage should be non-translatable")
	}
	if !nontranslatableKinds[KindChart] {
		t.Error("KindChart should be non-translatable")
	}
	if nontranslatableKinds[KindText] {
		t.Error("KindText should be translatable")
	}
}
