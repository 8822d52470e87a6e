package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"latex-translator/internal/logger"
)

// OutputManager writes an AssembledDocument to disk as one or more Markdown
// files (source, translated, bilingual) and copies every referenced element
// image into the output directory's images/ subfolder.
type OutputManager struct{}

// NewOutputManager creates an Output Manager.
func NewOutputManager() *OutputManager {
	return &OutputManager{}
}

// Generate writes doc to disk per config, returning the set of files
// produced and any non-fatal warnings. A failure writing one file is
// recorded in OutputResult.Errors rather than aborting the others.
func (m *OutputManager) Generate(doc AssembledDocument, config OutputConfiguration) OutputResult {
	start := time.Now()

	outputDir, imageDir, debugDir, err := m.prepareDirectories(config.OutputDir, config.DebugMode)
	if err != nil {
		return OutputResult{Errors: []string{err.Error()}, OutputDirectory: config.OutputDir}
	}

	imagePaths := m.copyImages(doc, imageDir)

	var files []OutputFile
	var errs []string
	var warnings []string

	if !config.TranslatedOnly {
		path := filepath.Join(outputDir, config.BaseFilename+".md")
		if file, err := m.saveMarkdown(path, "markdown", generateMarkdown(doc, false)); err != nil {
			errs = append(errs, err.Error())
		} else {
			files = append(files, file)
		}
	}

	if config.IncludeTranslation && doc.TranslationEnabled {
		if config.TranslatedOnly || !config.BilingualOutput {
			path := filepath.Join(outputDir, config.BaseFilename+"-translated.md")
			if file, err := m.saveMarkdown(path, "translated", generateMarkdown(doc, true)); err != nil {
				errs = append(errs, err.Error())
			} else {
				files = append(files, file)
			}
		}
		if config.BilingualOutput {
			path := filepath.Join(outputDir, config.BaseFilename+"-bilingual.md")
			if file, err := m.saveMarkdown(path, "bilingual", generateBilingualMarkdown(doc)); err != nil {
				errs = append(errs, err.Error())
			} else {
				files = append(files, file)
			}
		}
	} else if config.IncludeTranslation && !doc.TranslationEnabled {
		warnings = append(warnings, "translation output requested but the document has translation disabled")
	}

	if config.DebugMode && debugDir != "" {
		if err := m.writeDebugStructure(doc, debugDir); err != nil {
			logger.Warn("failed to write debug structure file", logger.Err(err))
		}
	}

	return OutputResult{
		OutputFiles:     files,
		ImagePaths:      imagePaths,
		ProcessingTime:  time.Since(start),
		Errors:          errs,
		Warnings:        warnings,
		OutputDirectory: outputDir,
	}
}

func (m *OutputManager) prepareDirectories(outputDir string, debugMode bool) (string, string, string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", "", "", fmt.Errorf("failed to create output directory: %w", err)
	}
	imageDir := filepath.Join(outputDir, "images")
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return "", "", "", fmt.Errorf("failed to create image directory: %w", err)
	}

	debugDir := ""
	if debugMode {
		debugDir = filepath.Join(outputDir, "debug", uuid.NewString())
		if err := os.MkdirAll(debugDir, 0755); err != nil {
			return "", "", "", fmt.Errorf("failed to create debug directory: %w", err)
		}
	}
	return outputDir, imageDir, debugDir, nil
}

// copyImages copies every image referenced in doc into imageDir, skipping
// (not erroring on) a source file that no longer exists or an image already
// present at the destination.
func (m *OutputManager) copyImages(doc AssembledDocument, imageDir string) []string {
	var paths []string
	for _, img := range doc.Images {
		if img.SavedPath == "" {
			continue
		}
		if _, err := os.Stat(img.SavedPath); err != nil {
			continue
		}

		filename := filepath.Base(img.SavedPath)
		destPath := filepath.Join(imageDir, filename)

		if _, err := os.Stat(destPath); err == nil {
			paths = append(paths, destPath)
			continue
		}

		if err := copyFile(img.SavedPath, destPath); err != nil {
			logger.Error("failed to copy element image", err,
				logger.String("source", img.SavedPath), logger.String("dest", destPath))
			continue
		}
		paths = append(paths, destPath)
	}
	return paths
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (m *OutputManager) saveMarkdown(path, fileType, content string) (OutputFile, error) {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return OutputFile{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return OutputFile{}, err
	}
	logger.Info("output file written", logger.String("path", path), logger.Int64("bytes", info.Size()))
	return OutputFile{FileType: fileType, FilePath: path, SizeBytes: info.Size(), CreatedAt: time.Now()}, nil
}

// generateMarkdown joins every content block's source (or, if
// useTranslation, translated-falling-back-to-source) text with blank lines.
func generateMarkdown(doc AssembledDocument, useTranslation bool) string {
	var lines []string
	for _, block := range doc.OrderedContentBlocks {
		text := block.RawMarkdown
		if useTranslation && block.TransMarkdown != "" {
			text = block.TransMarkdown
		}
		if strings.TrimSpace(text) != "" {
			lines = append(lines, text, "")
		}
	}
	return strings.Join(lines, "\n")
}

// generateBilingualMarkdown interleaves each block's source text, its
// translation, and a horizontal rule when both are present.
func generateBilingualMarkdown(doc AssembledDocument) string {
	var lines []string
	for _, block := range doc.OrderedContentBlocks {
		if strings.TrimSpace(block.RawMarkdown) != "" {
			lines = append(lines, block.RawMarkdown, "")
		}
		if strings.TrimSpace(block.TransMarkdown) != "" {
			lines = append(lines, block.TransMarkdown, "")
		}
		if block.RawMarkdown != "" && block.TransMarkdown != "" {
			lines = append(lines, "---", "")
		}
	}
	return strings.Join(lines, "\n")
}

type debugStructure struct {
	DetectedLanguage    string   `json:"detected_language"`
	TotalPages          int      `json:"total_pages"`
	TotalBlocks         int      `json:"total_blocks"`
	TranslationEnabled  bool     `json:"translation_enabled"`
	TargetLanguage      string   `json:"target_language"`
	TotalElements       int      `json:"total_elements"`
	SuccessfulElements  int      `json:"successful_elements"`
	FailedElements      []string `json:"failed_elements"`
	TotalProcessingTime string   `json:"total_processing_time"`
}

func (m *OutputManager) writeDebugStructure(doc AssembledDocument, debugDir string) error {
	structure := debugStructure{
		DetectedLanguage:    doc.DetectedLanguage,
		TotalPages:          doc.TotalPages,
		TotalBlocks:         len(doc.OrderedContentBlocks),
		TranslationEnabled:  doc.TranslationEnabled,
		TargetLanguage:      doc.TargetLanguage,
		TotalElements:       doc.TotalElements,
		SuccessfulElements:  doc.SuccessfulElements,
		FailedElements:      doc.FailedElements,
		TotalProcessingTime: doc.TotalProcessingTime.String(),
	}

	data, err := json.MarshalIndent(structure, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(debugDir, "document_structure.json"), data, 0644)
}
