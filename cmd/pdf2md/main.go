package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"latex-translator/internal/config"
	"latex-translator/internal/logger"
	"latex-translator/internal/memmgr"
	"latex-translator/internal/modelapi"
	"latex-translator/internal/pdf"
)

func main() {
	inputFlag := flag.String("input", "", "PDF file to convert (required)")
	outputDirFlag := flag.String("output", "", "output directory (default: alongside the input PDF)")
	configFlag := flag.String("config", "", "path to config.json (default: ~/.config/RapidPaperTrans/config.json)")
	targetLangFlag := flag.String("lang", "", "target language for translation, e.g. zh-CN (empty disables translation)")
	translatedOnlyFlag := flag.Bool("translated-only", false, "write only the translated Markdown, not the source")
	bilingualFlag := flag.Bool("bilingual", false, "write an interleaved source/translation Markdown file")
	tableAsImageFlag := flag.Bool("table-as-image", false, "save tables as cropped images instead of transcribing them")
	debugFlag := flag.Bool("debug", false, "write a debug document-structure JSON alongside the output")
	workersFlag := flag.Int("workers", 0, "max parallel pages (0 = use config default)")

	flag.Parse()

	if *inputFlag == "" {
		fmt.Println("Usage: pdf2md -input <file.pdf> [-output dir] [-lang zh-CN] [-translated-only] [-bilingual]")
		os.Exit(1)
	}
	if _, err := os.Stat(*inputFlag); err != nil {
		fmt.Printf("Error: input PDF not found: %s\n", *inputFlag)
		os.Exit(1)
	}

	if err := run(*inputFlag, *outputDirFlag, *configFlag, *targetLangFlag,
		*translatedOnlyFlag, *bilingualFlag, *tableAsImageFlag, *debugFlag, *workersFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPDF, outputDir, configPath, targetLang string,
	translatedOnly, bilingual, tableAsImage, debug bool, workers int) error {

	ctx := context.Background()

	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := mgr.GetConfig()

	if validation := config.Validate(cfg); !validation.Valid {
		return fmt.Errorf("invalid configuration: %s", strings.Join(validation.Violations, "; "))
	}

	if workers <= 0 {
		workers = cfg.MaxConcurrent
	}
	translate := targetLang != ""

	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(inputPDF), "output")
	}
	baseFilename := strings.TrimSuffix(filepath.Base(inputPDF), filepath.Ext(inputPDF))
	workDir := filepath.Join(os.TempDir(), "pdf2md-"+baseFilename)
	imagesDir := filepath.Join(outputDir, "images")

	fmt.Printf("Input:  %s\n", inputPDF)
	fmt.Printf("Output: %s\n", outputDir)
	if translate {
		fmt.Printf("Target: %s\n", targetLang)
	}

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
	fmt.Printf("  %d pages, detected language: %s\n", len(processed.Pages), processed.DocumentLanguage)

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
		contentParser, err := pdf.NewContentParser(model, workers, tableAsImage)
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
	headingAnalyzer := pdf.NewHeadingLevelAnalyzer(model)
	headingLevels := headingAnalyzer.Analyze(ctx, allBlocks)

	var translator *pdf.Translator
	if translate {
		translator, err = pdf.NewTranslator(ctx, pdf.TranslatorConfig{
			APIKey:    mgr.GetAPIKey(),
			BaseURL:   mgr.GetBaseURL(),
			Model:     cfg.TranslationModelName,
			CachePath: cfg.CachePath,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize translator: %w", err)
		}
		defer translator.Close()
	}

	assembler := pdf.NewDocumentAssembler(translator)
	doc := assembler.Assemble(ctx, pageResults, headingLevels, processed.DocumentLanguage, translate, targetLang)

	outputConfig := pdf.OutputConfiguration{
		OutputDir:          outputDir,
		BaseFilename:       baseFilename,
		IncludeTranslation: translate,
		TargetLanguage:     targetLang,
		TranslatedOnly:     translatedOnly,
		BilingualOutput:    bilingual,
		TableAsImage:       tableAsImage,
		DebugMode:          debug,
	}

	outputManager := pdf.NewOutputManager()
	result := outputManager.Generate(doc, outputConfig)

	for _, w := range result.Warnings {
		logger.Warn("output warning", logger.String("warning", w))
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("output generation had errors: %s", strings.Join(result.Errors, "; "))
	}

	fmt.Println("\n=== Conversion Complete ===")
	for _, f := range result.OutputFiles {
		fmt.Printf("  %-12s %s (%d bytes)\n", f.FileType, f.FilePath, f.SizeBytes)
	}
	fmt.Printf("  images:      %d saved\n", len(result.ImagePaths))
	fmt.Printf("  elements:    %d/%d successful\n", doc.SuccessfulElements, doc.TotalElements)
	fmt.Printf("  time:        %s\n", result.ProcessingTime)
	return nil
}
