package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath       string `yaml:"db_path"`
	ModsDataPath string `yaml:"mods_data_path"`

	OracleProvider  string `yaml:"oracle_provider"`
	OracleModel     string `yaml:"oracle_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	SampleSize        int `yaml:"sample_size"`
	OracleConcurrency int `yaml:"oracle_concurrency"`
	OracleMaxAttempts int `yaml:"oracle_max_attempts"`
	OracleBackoffMS   int `yaml:"oracle_backoff_ms"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	// RefreshCron re-imports mods_data.json on a schedule (5-field cron
	// expression). Empty disables the scheduler.
	RefreshCron string `yaml:"refresh_cron"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("LOSORT_CONFIG"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ModsDataPath, "MODS_DATA_PATH")
	envOverride(&cfg.OracleProvider, "ORACLE_PROVIDER")
	envOverride(&cfg.OracleModel, "ORACLE_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.SampleSize, "SAMPLE_SIZE")
	envOverrideInt(&cfg.OracleConcurrency, "ORACLE_CONCURRENCY")
	envOverrideInt(&cfg.OracleMaxAttempts, "ORACLE_MAX_ATTEMPTS")
	envOverrideInt(&cfg.OracleBackoffMS, "ORACLE_BACKOFF_MS")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.RefreshCron, "REFRESH_CRON")

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./losort.db"
	}
	if cfg.ModsDataPath == "" {
		cfg.ModsDataPath = "./mods_data.json"
	}
	if cfg.OracleProvider == "" {
		cfg.OracleProvider = "anthropic"
	}
	if cfg.SampleSize == 0 {
		cfg.SampleSize = 4
	}
	if cfg.OracleConcurrency == 0 {
		cfg.OracleConcurrency = 4
	}
	if cfg.OracleMaxAttempts == 0 {
		cfg.OracleMaxAttempts = 3
	}
	if cfg.OracleBackoffMS == 0 {
		cfg.OracleBackoffMS = 500
	}

	switch cfg.OracleProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when oracle_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when oracle_provider=openai")
		}
	default:
		log.Fatalf("oracle_provider must be 'anthropic' or 'openai', got '%s'", cfg.OracleProvider)
	}

	if cfg.SampleSize < 1 {
		log.Fatalf("invalid sample_size '%d': must be >= 1", cfg.SampleSize)
	}
	if cfg.OracleConcurrency < 1 {
		log.Fatalf("invalid oracle_concurrency '%d': must be >= 1", cfg.OracleConcurrency)
	}
	if cfg.OracleMaxAttempts < 1 {
		log.Fatalf("invalid oracle_max_attempts '%d': must be >= 1", cfg.OracleMaxAttempts)
	}
	if cfg.OracleBackoffMS < 0 {
		log.Fatalf("invalid oracle_backoff_ms '%d': must be >= 0", cfg.OracleBackoffMS)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
