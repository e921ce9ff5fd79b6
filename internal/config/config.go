package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the paperdex retrieval service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds corpus store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds corpus key layout settings.
type StorageConfig struct {
	KeyPrefix   string `yaml:"key_prefix"`
	CacheTTLSec int    `yaml:"embedding_cache_ttl_sec"` // 0 = no expiry
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig holds completion provider settings for the expansion and
// reranking stages.
type LLMConfig struct {
	APIKey      string      `yaml:"api_key"`
	BaseURL     string      `yaml:"base_url"`
	Model       string      `yaml:"model"`
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float32     `yaml:"temperature"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig holds the exponential backoff policy for outbound LLM calls.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
}

// RetrievalConfig holds the pipeline knobs.
type RetrievalConfig struct {
	TopK                 int     `yaml:"top_k"`
	NCandidates          int     `yaml:"n_candidates"`
	Alpha                float64 `yaml:"alpha"`
	EnableQueryExpansion *bool   `yaml:"enable_query_expansion"`
	EnableReranking      *bool   `yaml:"enable_reranking"`
	PreviewChars         int     `yaml:"preview_chars"`
}

// QueryExpansionEnabled resolves the toggle (default true).
func (r *RetrievalConfig) QueryExpansionEnabled() bool {
	return r.EnableQueryExpansion == nil || *r.EnableQueryExpansion
}

// RerankingEnabled resolves the toggle (default true).
func (r *RetrievalConfig) RerankingEnabled() bool {
	return r.EnableReranking == nil || *r.EnableReranking
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// A hybrid query blocks on up to two LLM round-trips with retries.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "paperdex:"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.NCandidates <= 0 {
		c.Retrieval.NCandidates = 15
	}
	if c.Retrieval.Alpha == 0 {
		c.Retrieval.Alpha = 0.5
	}
	if c.Retrieval.PreviewChars <= 0 {
		c.Retrieval.PreviewChars = 300
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 256
	}
	if c.LLM.Retry.MaxAttempts <= 0 {
		c.LLM.Retry.MaxAttempts = 3
	}
	if c.LLM.Retry.InitialDelayMS <= 0 {
		c.LLM.Retry.InitialDelayMS = 500
	}
	if c.LLM.Retry.Multiplier <= 1 {
		c.LLM.Retry.Multiplier = 2.0
	}
	if c.LLM.Retry.MaxDelayMS <= 0 {
		c.LLM.Retry.MaxDelayMS = 8000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be in [0,1], got %g", c.Retrieval.Alpha)
	}
	if c.Retrieval.NCandidates < c.Retrieval.TopK {
		return fmt.Errorf(
			"retrieval.n_candidates (%d) must be >= retrieval.top_k (%d)",
			c.Retrieval.NCandidates, c.Retrieval.TopK,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
