// Package config provides configuration management for the PDF translation
// pipeline. Configuration is stored in a single JSON file:
// ~/.config/RapidPaperTrans/config.json
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"latex-translator/internal/errors"
	"latex-translator/internal/logger"
	"latex-translator/internal/pdf"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "config.json"
	// AppName is the application name used for the config directory
	AppName = "RapidPaperTrans"
	// EnvAPIKey is the environment variable name for the model API key
	EnvAPIKey = "OPENAI_API_KEY"
	// EnvBaseURL is the environment variable name for the model API base URL
	EnvBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI-compatible API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultContentModelName is the default vision/text model for content parsing
	DefaultContentModelName = "gpt-4o"
	// DefaultTranslationModelName is the default model used by the Translator
	DefaultTranslationModelName = "gpt-4o-mini"
	// DefaultHeadingModelName is the default model used by the Heading-Level Analyzer
	DefaultHeadingModelName = "gpt-4o-mini"
	// DefaultMaxConcurrent is the default Parallel Document Processor worker count
	DefaultMaxConcurrent = 4
	// DefaultModelPoolSize is the Model Interface's shared parallel-call pool size (§5)
	DefaultModelPoolSize = 15
	// DefaultDPI is the Preprocessor's fixed rasterization resolution
	DefaultDPI = 200
)

// ModelBackend selects where a model-backed component runs inference.
type ModelBackend string

const (
	// BackendLocal runs inference in-process against a local ONNX model file.
	BackendLocal ModelBackend = "local"
	// BackendDockerAI calls a remote OpenAI-compatible endpoint (e.g. a
	// sidecar inference container).
	BackendDockerAI ModelBackend = "docker_ai"
)

// Configuration is the full set of pipeline settings (§6): the remote model
// endpoint, concurrency, per-stage backend selection and model assets, and
// the Output Manager's OutputConfiguration.
type Configuration struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"api_key"`
	MaxConcurrent int    `json:"max_concurrent"`
	ModelPoolSize int    `json:"model_pool_size"`
	DPI           int    `json:"dpi"`

	RotationModelType ModelBackend `json:"rotation_model_type"`
	RotationModelDir  string       `json:"rotation_model_dir"`

	LayoutModelType ModelBackend `json:"layout_model_type"`
	LayoutModelDir  string       `json:"layout_model_dir"`

	OrderModelType ModelBackend `json:"order_model_type"`
	OrderModelDir  string       `json:"order_model_dir"`

	ContentModelType ModelBackend `json:"content_model_type"`
	ContentModelName string       `json:"content_model_name"`

	HeadingModelName     string `json:"heading_model_name"`
	TranslationModelName string `json:"translation_model_name"`

	WorkDirectory string `json:"work_directory"`
	CachePath     string `json:"cache_path"`
	LastInput     string `json:"last_input"`

	Output pdf.OutputConfiguration `json:"output"`
}

// ModelManifest describes one local model asset directory, read from a YAML
// sidecar (file name, checksum, device) the way the original's PaddleX
// inference.yml was read.
type ModelManifest struct {
	File     string `yaml:"file"`
	Checksum string `yaml:"checksum"`
	Device   string `yaml:"device"`
}

// LoadModelManifest reads the YAML sidecar at modelDir/manifest.yaml.
func LoadModelManifest(modelDir string) (*ModelManifest, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, "manifest.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read model manifest: %w", err)
	}
	var m ModelManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model manifest: %w", err)
	}
	return &m, nil
}

// ConfigManager loads, persists, and validates a Configuration.
type ConfigManager struct {
	configPath string
	config     *Configuration
	mu         sync.RWMutex
}

// getConfigDir returns the config directory for the application:
// ~/.config/RapidPaperTrans
func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// GetConfigDir returns the config directory (exported for external use).
func GetConfigDir() (string, error) {
	return getConfigDir()
}

// NewConfigManager creates a ConfigManager. An empty configPath resolves to
// the default path in the system config directory; a relative path is
// resolved under that same directory; an absolute path is used as-is.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	var finalPath string

	switch {
	case configPath == "":
		configDir, err := getConfigDir()
		if err != nil {
			return nil, errors.NewConfigError("failed to get config directory", err)
		}
		finalPath = filepath.Join(configDir, DefaultConfigFileName)
	case filepath.IsAbs(configPath):
		finalPath = configPath
	default:
		configDir, err := getConfigDir()
		if err != nil {
			return nil, errors.NewConfigError("failed to get config directory", err)
		}
		finalPath = filepath.Join(configDir, filepath.Base(configPath))
	}

	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewConfigError("failed to create config directory", err)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", finalPath))
	m := &ConfigManager{configPath: finalPath, config: defaultConfig()}
	_ = m.Load()
	return m, nil
}

// defaultConfig returns a Configuration with default values.
func defaultConfig() *Configuration {
	return &Configuration{
		BaseURL:              DefaultBaseURL,
		MaxConcurrent:        DefaultMaxConcurrent,
		ModelPoolSize:        DefaultModelPoolSize,
		DPI:                  DefaultDPI,
		RotationModelType:    BackendLocal,
		LayoutModelType:      BackendLocal,
		OrderModelType:       BackendLocal,
		ContentModelType:     BackendDockerAI,
		ContentModelName:     DefaultContentModelName,
		HeadingModelName:     DefaultHeadingModelName,
		TranslationModelName: DefaultTranslationModelName,
		Output: pdf.OutputConfiguration{
			IncludeTranslation: false,
			TableAsImage:       false,
		},
	}
}

// Load loads configuration from the config file. A missing or malformed file
// falls back to defaults rather than failing the caller.
func (m *ConfigManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = defaultConfig()
		} else {
			return errors.NewConfigError("failed to read config file", err)
		}
	} else {
		cfg := &Configuration{}
		if err := json.Unmarshal(data, cfg); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig()
		} else {
			m.config = cfg
		}
	}

	applyDefaults(m.config)
	return nil
}

// applyDefaults fills zero-valued fields with their defaults, mirroring the
// teacher's load-then-backfill convention.
func applyDefaults(cfg *Configuration) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.ModelPoolSize <= 0 {
		cfg.ModelPoolSize = DefaultModelPoolSize
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.ContentModelName == "" {
		cfg.ContentModelName = DefaultContentModelName
	}
	if cfg.HeadingModelName == "" {
		cfg.HeadingModelName = DefaultHeadingModelName
	}
	if cfg.TranslationModelName == "" {
		cfg.TranslationModelName = DefaultTranslationModelName
	}
}

// Save persists the current configuration to the config file.
func (m *ConfigManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *ConfigManager) saveLocked() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewConfigError("failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return errors.NewConfigError("failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return errors.NewConfigError("failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the model API key: the config file value if set,
// otherwise the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil && m.config.APIKey != "" {
		return m.config.APIKey
	}
	return os.Getenv(EnvAPIKey)
}

// SetAPIKey sets the model API key and persists it.
func (m *ConfigManager) SetAPIKey(key string) error {
	m.mu.Lock()
	if m.config == nil {
		m.config = defaultConfig()
	}
	m.config.APIKey = key
	m.mu.Unlock()
	return m.Save()
}

// GetBaseURL returns the model API base URL: the config file value, else the
// environment variable, else the default.
func (m *ConfigManager) GetBaseURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil && m.config.BaseURL != "" {
		return m.config.BaseURL
	}
	if envURL := os.Getenv(EnvBaseURL); envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig replaces the entire configuration in memory (callers must Save
// explicitly to persist it).
func (m *ConfigManager) SetConfig(cfg *Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetMaxConcurrent returns the Parallel Document Processor's configured
// worker count.
func (m *ConfigManager) GetMaxConcurrent() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil && m.config.MaxConcurrent > 0 {
		return m.config.MaxConcurrent
	}
	return DefaultMaxConcurrent
}

// GetWorkDirectory returns the configured scratch/work directory.
func (m *ConfigManager) GetWorkDirectory() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil {
		return m.config.WorkDirectory
	}
	return ""
}

// GetLastInput returns the last processed input path.
func (m *ConfigManager) GetLastInput() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config != nil {
		return m.config.LastInput
	}
	return ""
}

// SetLastInput sets the last processed input path and saves silently.
func (m *ConfigManager) SetLastInput(input string) {
	m.mu.Lock()
	if m.config == nil {
		m.config = defaultConfig()
	}
	m.config.LastInput = input
	m.mu.Unlock()
	_ = m.Save()
}

// ValidationResult accumulates every configuration violation found, rather
// than failing on the first, matching the teacher's validation convention.
type ValidationResult struct {
	Valid      bool
	Violations []string
}

// Validate checks cfg against the rules in §6: positive MaxConcurrent;
// non-empty BaseURL/APIKey when a component is remote; non-empty model names
// for remote components.
func Validate(cfg *Configuration) ValidationResult {
	var violations []string

	if cfg.MaxConcurrent <= 0 {
		violations = append(violations, "max_concurrent must be positive")
	}

	// Content parsing always goes through the Model Interface's remote chat/
	// vision endpoint; rotation/layout/order may instead run a local ONNX
	// model and skip the remote-endpoint requirement.
	usesRemote := cfg.ContentModelType == BackendDockerAI

	localComponents := []struct {
		name    string
		backend ModelBackend
		dir     string
	}{
		{"rotation", cfg.RotationModelType, cfg.RotationModelDir},
		{"layout", cfg.LayoutModelType, cfg.LayoutModelDir},
		{"order", cfg.OrderModelType, cfg.OrderModelDir},
	}

	for _, c := range localComponents {
		if c.backend == BackendDockerAI {
			usesRemote = true
		}
	}

	if usesRemote {
		if cfg.BaseURL == "" {
			violations = append(violations, "base_url must be set when a component uses the docker_ai backend")
		}
		if cfg.APIKey == "" && os.Getenv(EnvAPIKey) == "" {
			violations = append(violations, "api_key must be set (or "+EnvAPIKey+" exported) when a component uses the docker_ai backend")
		}
	}

	if cfg.ContentModelType == BackendDockerAI && cfg.ContentModelName == "" {
		violations = append(violations, "content_model_name must be set for the docker_ai backend")
	}

	for _, c := range localComponents {
		if c.backend == BackendLocal && c.dir == "" {
			violations = append(violations, fmt.Sprintf("%s_model_dir must be set for the local backend", c.name))
		}
	}

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}
