package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigManager(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		customPath := filepath.Join(t.TempDir(), "test-config.json")
		cm, err := NewConfigManager(customPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if cm.GetConfigPath() != customPath {
			t.Errorf("expected config path %s, got %s", customPath, cm.GetConfigPath())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		cm, err := NewConfigManager("")
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if cm.GetConfigPath() == "" {
			t.Error("expected non-empty config path")
		}
	})
}

func TestConfigManager_LoadSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	t.Run("Load with non-existent file uses defaults", func(t *testing.T) {
		cm, err := NewConfigManager(configPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if err := cm.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		cfg := cm.GetConfig()
		if cfg.ContentModelName != DefaultContentModelName {
			t.Errorf("expected default content model %s, got %s", DefaultContentModelName, cfg.ContentModelName)
		}
		if cfg.MaxConcurrent != DefaultMaxConcurrent {
			t.Errorf("expected default concurrency %d, got %d", DefaultMaxConcurrent, cfg.MaxConcurrent)
		}
	})

	t.Run("Save creates config file", func(t *testing.T) {
		cm, err := NewConfigManager(configPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}

		cm.SetConfig(&Configuration{
			APIKey:               "test-api-key",
			ContentModelName:     "gpt-4o",
			TranslationModelName: "gpt-4o-mini",
			MaxConcurrent:        4,
			WorkDirectory:        "/tmp/work",
		})

		if err := cm.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Error("config file was not created")
		}
	})

	t.Run("Load reads saved config", func(t *testing.T) {
		cm, err := NewConfigManager(configPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if err := cm.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		cfg := cm.GetConfig()
		if cfg.APIKey != "test-api-key" {
			t.Errorf("expected API key 'test-api-key', got '%s'", cfg.APIKey)
		}
		if cfg.WorkDirectory != "/tmp/work" {
			t.Errorf("expected work directory '/tmp/work', got '%s'", cfg.WorkDirectory)
		}
	})

	t.Run("Load with invalid JSON uses defaults", func(t *testing.T) {
		invalidConfigPath := filepath.Join(tmpDir, "invalid-config.json")
		if err := os.WriteFile(invalidConfigPath, []byte("invalid json"), 0644); err != nil {
			t.Fatalf("failed to write invalid config: %v", err)
		}

		cm, err := NewConfigManager(invalidConfigPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if err := cm.Load(); err != nil {
			t.Fatalf("Load should not fail with invalid JSON: %v", err)
		}

		cfg := cm.GetConfig()
		if cfg.ContentModelName != DefaultContentModelName {
			t.Errorf("expected default content model after invalid JSON, got %s", cfg.ContentModelName)
		}
	})
}

func TestConfigManager_GetAPIKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.json")

	t.Run("returns config file value when set", func(t *testing.T) {
		cm, err := NewConfigManager(configPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		cm.SetConfig(&Configuration{APIKey: "config-api-key"})
		if got := cm.GetAPIKey(); got != "config-api-key" {
			t.Errorf("expected 'config-api-key', got '%s'", got)
		}
	})

	t.Run("falls back to environment variable", func(t *testing.T) {
		originalEnv := os.Getenv(EnvAPIKey)
		defer os.Setenv(EnvAPIKey, originalEnv)
		os.Setenv(EnvAPIKey, "env-api-key")

		cm, err := NewConfigManager(configPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		cm.SetConfig(&Configuration{APIKey: ""})
		if got := cm.GetAPIKey(); got != "env-api-key" {
			t.Errorf("expected 'env-api-key', got '%s'", got)
		}
	})
}

func TestConfigManager_SetAPIKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.json")

	cm, err := NewConfigManager(configPath)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	if err := cm.SetAPIKey("new-api-key"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	if cm.GetAPIKey() != "new-api-key" {
		t.Errorf("expected 'new-api-key', got '%s'", cm.GetAPIKey())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	var saved Configuration
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("failed to parse saved config: %v", err)
	}
	if saved.APIKey != "new-api-key" {
		t.Errorf("expected saved API key 'new-api-key', got '%s'", saved.APIKey)
	}
}

func TestConfigManager_SaveCreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

	cm, err := NewConfigManager(configPath)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	if err := cm.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created in nested directory")
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid local-only config", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.ContentModelType = BackendLocal
		cfg.RotationModelDir = "/models/rotation"
		cfg.LayoutModelDir = "/models/layout"
		cfg.OrderModelDir = "/models/order"
		result := Validate(cfg)
		if !result.Valid {
			t.Errorf("expected valid config, got violations: %v", result.Violations)
		}
	})

	t.Run("zero concurrency flagged", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.MaxConcurrent = 0
		cfg.RotationModelDir, cfg.LayoutModelDir, cfg.OrderModelDir = "a", "b", "c"
		cfg.ContentModelType = BackendLocal
		result := Validate(cfg)
		if result.Valid {
			t.Error("expected invalid config for zero max_concurrent")
		}
	})

	t.Run("remote backend without api key flagged", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.APIKey = ""
		os.Unsetenv(EnvAPIKey)
		cfg.ContentModelType = BackendDockerAI
		cfg.ContentModelName = "gpt-4o"
		result := Validate(cfg)
		if result.Valid {
			t.Error("expected invalid config when docker_ai backend has no api_key")
		}
	})

	t.Run("local backend without model dir flagged", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.ContentModelType = BackendLocal
		cfg.RotationModelDir = ""
		result := Validate(cfg)
		found := false
		for _, v := range result.Violations {
			if v == "rotation_model_dir must be set for the local backend" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected rotation_model_dir violation, got: %v", result.Violations)
		}
	})
}
