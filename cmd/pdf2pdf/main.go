package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"latex-translator/internal/config"
	"latex-translator/internal/layout"
	"latex-translator/internal/memmgr"
	"latex-translator/internal/modelapi"
	"latex-translator/internal/pdf"
)

const defaultRegionFontSize = 11.0

func main() {
	inputFlag := flag.String("input", "", "PDF file to translate (required)")
	outputFlag := flag.String("output", "", "output PDF path (default: <input>-translated.pdf)")
	configFlag := flag.String("config", "", "path to config.json (default: ~/.config/RapidPaperTrans/config.json)")
	targetLangFlag := flag.String("lang", "zh-CN", "target language for translation")
	fontFlag := flag.String("font", "", "path to a TrueType font covering the target language's script (required)")
	workersFlag := flag.Int("workers", 0, "max parallel pages (0 = use config default)")

	flag.Parse()

	if *inputFlag == "" || *fontFlag == "" {
		fmt.Println("Usage: pdf2pdf -input <file.pdf> -font <font.ttf> [-lang zh-CN] [-output out.pdf]")
		os.Exit(1)
	}
	if _, err := os.Stat(*inputFlag); err != nil {
		fmt.Printf("Error: input PDF not found: %s\n", *inputFlag)
		os.Exit(1)
	}
	if _, err := os.Stat(*fontFlag); err != nil {
		fmt.Printf("Error: font file not found: %s\n", *fontFlag)
		os.Exit(1)
	}

	if err := run(*inputFlag, *outputFlag, *configFlag, *targetLangFlag, *fontFlag, *workersFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPDF, outputPath, configPath, targetLang, fontPath string, workers int) error {
	ctx := context.Background()

	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := mgr.GetConfig()
	if workers <= 0 {
		workers = cfg.MaxConcurrent
	}

	baseFilename := strings.TrimSuffix(filepath.Base(inputPDF), filepath.Ext(inputPDF))
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputPDF), baseFilename+"-translated.pdf")
	}
	workDir := filepath.Join(os.TempDir(), "pdf2pdf-"+baseFilename)
	imagesDir := filepath.Join(workDir, "images")

	fmt.Printf("Input:  %s\n", inputPDF)
	fmt.Printf("Output: %s\n", outputPath)
	fmt.Printf("Target: %s\n", targetLang)

	rotationDetector, err := pdf.NewRotationDetector(cfg.RotationModelDir, false)
	if err != nil {
		return fmt.Errorf("failed to initialize rotation detector: %w", err)
	}
	preprocessor := pdf.NewPreprocessor(workDir, rotationDetector)

	fmt.Println("Preprocessing pages...")
	processed, err := preprocessor.Process(inputPDF)
	if err != nil {
		return fmt.Errorf("preprocessing failed: %w", err)
	}

	model, err := modelapi.New(ctx, modelapi.Config{
		BaseURL:  mgr.GetBaseURL(),
		APIKey:   mgr.GetAPIKey(),
		Model:    cfg.ContentModelName,
		PoolSize: cfg.ModelPoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model interface: %w", err)
	}

	orderAnalyzer, err := pdf.NewReadingOrderAnalyzer(cfg.OrderModelDir, false)
	if err != nil {
		return fmt.Errorf("failed to initialize reading-order analyzer: %w", err)
	}

	newPageProcessor := func() (*pdf.PageProcessor, error) {
		layoutDetector, err := pdf.NewLayoutDetector(pdf.LayoutDetectorConfig{
			ModelPath: cfg.LayoutModelDir,
			Enabled:   cfg.LayoutModelType == config.BackendLocal && cfg.LayoutModelDir != "",
		})
		if err != nil {
			return nil, err
		}
		contentParser, err := pdf.NewContentParser(model, workers, false)
		if err != nil {
			return nil, err
		}
		return pdf.NewPageProcessor(layoutDetector, orderAnalyzer, contentParser), nil
	}

	memManager := memmgr.New(75.0, 90.0)
	docProcessor := pdf.NewParallelDocumentProcessor(newPageProcessor, memManager, workers)

	fmt.Println("Processing pages...")
	pageResults := docProcessor.ProcessPages(ctx, inputPDF, processed.Pages, imagesDir)
	succeeded := 0
	for _, pr := range pageResults {
		if !pr.Failed {
			succeeded++
		}
	}
	fmt.Printf("  %d/%d pages succeeded\n", succeeded, len(processed.Pages))

	var allBlocks []pdf.ContentBlock
	for _, pr := range pageResults {
		if pr.Content != nil {
			allBlocks = append(allBlocks, pr.Content.ContentBlocks...)
		}
	}

	translator, err := pdf.NewTranslator(ctx, pdf.TranslatorConfig{
		APIKey:    mgr.GetAPIKey(),
		BaseURL:   mgr.GetBaseURL(),
		Model:     cfg.TranslationModelName,
		CachePath: cfg.CachePath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize translator: %w", err)
	}
	defer translator.Close()

	translated, err := translator.TranslateBlocks(ctx, allBlocks, targetLang)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}

	translationByElement := make(map[string]string, len(translated))
	for _, b := range translated {
		if b.TransMarkdown != "" {
			translationByElement[b.ElementID] = b.TransMarkdown
		}
	}

	pages := buildPageInputs(pageResults, processed.Pages, translationByElement, cfg.DPI)

	fmt.Println("Rendering translated PDF...")
	renderer := layout.NewDocumentRenderer(filepath.Join(workDir, "render"), fontPath, "target")
	pageErrors, err := renderer.RenderToPDF(pages, outputPath)
	if err != nil {
		return fmt.Errorf("PDF rendering failed: %w", err)
	}
	for _, e := range pageErrors {
		fmt.Printf("  warning: %s\n", e)
	}

	fmt.Println("\n=== Translation Complete ===")
	fmt.Printf("  output: %s\n", outputPath)
	fmt.Printf("  pages:  %d\n", len(pages))
	return nil
}

// buildPageInputs correlates each page's LayoutElement bounding boxes
// (pixels, at dpi) with its translated ContentBlock text (by ElementID),
// converting pixel coordinates to PDF points (72/inch).
func buildPageInputs(pageResults []pdf.PageResult, pages []pdf.PDFPage, translations map[string]string, dpi int) []layout.PageInput {
	if dpi <= 0 {
		dpi = 200
	}
	toPt := func(px float64) float64 { return px * 72.0 / float64(dpi) }

	pageByNum := make(map[int]pdf.PDFPage, len(pages))
	for _, p := range pages {
		pageByNum[p.PageNum] = p
	}

	var inputs []layout.PageInput
	for _, pr := range pageResults {
		page, ok := pageByNum[pr.PageNum]
		if !ok {
			continue
		}

		var regions []layout.Region
		for _, el := range pr.Layout {
			text, ok := translations[el.ElementID]
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			regions = append(regions, layout.Region{
				ElementID: el.ElementID,
				Text:      text,
				X:         toPt(el.BBox.X),
				Y:         toPt(el.BBox.Y),
				Width:     toPt(el.BBox.Width),
				Height:    toPt(el.BBox.Height),
				FontSize:  defaultRegionFontSize,
				Language:  page.DetectedLanguage,
			})
		}

		inputs = append(inputs, layout.PageInput{
			PageNum:             pr.PageNum,
			WidthPt:             toPt(float64(page.Width)),
			HeightPt:            toPt(float64(page.Height)),
			BackgroundImagePath: page.ImagePath,
			Regions:             regions,
		})
	}
	return inputs
}
