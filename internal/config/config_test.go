package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	// Point config loading at a path that does not exist so stray
	// config.yaml files on disk cannot leak into tests.
	t.Setenv("LOSORT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ANTHROPIC_API_KEY", "test-anthropic-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setMinimalEnv(t)

	cfg := LoadConfig()

	if cfg.DBPath != "./losort.db" {
		t.Errorf("DBPath = %s, want ./losort.db", cfg.DBPath)
	}
	if cfg.ModsDataPath != "./mods_data.json" {
		t.Errorf("ModsDataPath = %s, want ./mods_data.json", cfg.ModsDataPath)
	}
	if cfg.OracleProvider != "anthropic" {
		t.Errorf("OracleProvider = %s, want anthropic", cfg.OracleProvider)
	}
	if cfg.SampleSize != 4 {
		t.Errorf("SampleSize = %d, want 4", cfg.SampleSize)
	}
	if cfg.OracleConcurrency != 4 {
		t.Errorf("OracleConcurrency = %d, want 4", cfg.OracleConcurrency)
	}
	if cfg.OracleMaxAttempts != 3 {
		t.Errorf("OracleMaxAttempts = %d, want 3", cfg.OracleMaxAttempts)
	}
	if cfg.OracleBackoffMS != 500 {
		t.Errorf("OracleBackoffMS = %d, want 500", cfg.OracleBackoffMS)
	}
	if cfg.RefreshCron != "" {
		t.Errorf("RefreshCron = %s, want empty", cfg.RefreshCron)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	setMinimalEnv(t)

	yamlPath := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("db_path: /tmp/custom.db\nsample_size: 2\noracle_model: test-model\n")
	if err := os.WriteFile(yamlPath, content, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("LOSORT_CONFIG", yamlPath)

	cfg := LoadConfig()

	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("DBPath = %s, want /tmp/custom.db", cfg.DBPath)
	}
	if cfg.SampleSize != 2 {
		t.Errorf("SampleSize = %d, want 2", cfg.SampleSize)
	}
	if cfg.OracleModel != "test-model" {
		t.Errorf("OracleModel = %s, want test-model", cfg.OracleModel)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	setMinimalEnv(t)

	yamlPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("db_path: /tmp/from_yaml.db\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("LOSORT_CONFIG", yamlPath)
	t.Setenv("DB_PATH", "/tmp/from_env.db")
	t.Setenv("ORACLE_CONCURRENCY", "8")

	cfg := LoadConfig()

	if cfg.DBPath != "/tmp/from_env.db" {
		t.Errorf("DBPath = %s, want /tmp/from_env.db", cfg.DBPath)
	}
	if cfg.OracleConcurrency != 8 {
		t.Errorf("OracleConcurrency = %d, want 8", cfg.OracleConcurrency)
	}
}

func TestLoadConfigOpenAIProvider(t *testing.T) {
	t.Setenv("LOSORT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ORACLE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-openai-key")

	cfg := LoadConfig()

	if cfg.OracleProvider != "openai" {
		t.Errorf("OracleProvider = %s, want openai", cfg.OracleProvider)
	}
	if cfg.OpenAIAPIKey != "test-openai-key" {
		t.Errorf("OpenAIAPIKey = %s, want test-openai-key", cfg.OpenAIAPIKey)
	}
}
