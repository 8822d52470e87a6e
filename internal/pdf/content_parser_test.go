package pdf

import "testing"

func TestShouldSkipElementHeaderFooterPageNumber(t *testing.T) {
	c := &ContentParser{}
	for _, kind := range []ElementKind{KindHeader, KindFooter, KindPageNumber} {
		if !c.shouldSkipElement(kind) {
			t.Errorf("expected %v to be skipped", kind)
		}
	}
	if c.shouldSkipElement(KindText) {
		t.Error("expected KindText not to be skipped")
	}
}

func TestShouldSaveAsImageAlwaysForImageChartFormula(t *testing.T) {
	c := &ContentParser{tableAsImage: false}
	for _, kind := range []ElementKind{KindImage, KindChart, KindChemicalFormula} {
		if !c.shouldSaveAsImage(kind) {
			t.Errorf("expected %v to always save as image", kind)
		}
	}
	if c.shouldSaveAsImage(KindTable) {
		t.Error("expected table not to save as image when tableAsImage is false")
	}
}

func TestShouldSaveAsImageTableWhenConfigured(t *testing.T) {
	c := &ContentParser{tableAsImage: true}
	if !c.shouldSaveAsImage(KindTable) {
		t.Error("expected table to save as image when tableAsImage is true")
	}
}

func TestRenderPromptTemplatesCoversAllKinds(t *testing.T) {
	prompts, err := renderPromptTemplates()
	if err != nil {
		t.Fatalf("renderPromptTemplates failed: %v", err)
	}
	for _, kind := range []ElementKind{KindText, KindTable, KindCodeBlock, KindAlgorithm, KindTOC} {
		if prompts[kind] == "" {
			t.Errorf("expected non-empty prompt for %v", kind)
		}
	}
}

func TestPromptForFallsBackToDefault(t *testing.T) {
	c := &ContentParser{prompts: map[ElementKind]string{KindText: "default prompt"}}
	if got := c.promptFor(KindParagraphTitle); got != "default prompt" {
		t.Errorf("promptFor(unmapped kind) = %q, want fallback to default", got)
	}
}

func TestRepairHyphenationMergesSplitWord(t *testing.T) {
	in := "This is a hyphen-\nated word split across lines."
	out := repairHyphenation(in)
	if want := "This is a hyphenated word split across lines."; out != want {
		t.Errorf("repairHyphenation() = %q, want %q", out, want)
	}
}

func TestRepairHyphenationSkipsDigitBeforeHyphen(t *testing.T) {
	in := "See equation 3-\n4 for details."
	out := repairHyphenation(in)
	if out == "See equation 34 for details." {
		t.Error("expected digit-preceded hyphen not to be merged")
	}
}

func TestRepairHyphenationNoOpWithoutHyphenBreak(t *testing.T) {
	in := "No line break hyphenation here at all."
	if got := repairHyphenation(in); got != in {
		t.Errorf("repairHyphenation(no hyphen) = %q, want unchanged %q", got, in)
	}
}

func TestRepairHyphenationReassemblesParagraphs(t *testing.T) {
	in := "First line\nsecond line.\n\nNew para-\ngraph here."
	out := repairHyphenation(in)
	if out != "First line second line.\n\nNew paragraph here." {
		t.Errorf("repairHyphenation(paragraphs) = %q", out)
	}
}
