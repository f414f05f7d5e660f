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

// Config holds the faqsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for the operator surface
// (retrieve, internal FAQ authoring, reindex).
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

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL              string `yaml:"url"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings. An empty api_key
// disables vector search entirely; keyword search keeps working.
type EmbeddingConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	MaxInputChars int    `yaml:"max_input_chars"`
}

// SearchConfig holds the retrieval scoring policy and limits. The scoring
// constants are one deliberate, versioned policy; tune them here rather
// than in code.
type SearchConfig struct {
	DefaultLimit            int     `yaml:"default_limit"`
	KeywordRowsPerPartition int     `yaml:"keyword_rows_per_partition"`
	ChunkPoolMultiplier     int     `yaml:"chunk_pool_multiplier"`
	DirectSearchLimit       int     `yaml:"direct_search_limit"`
	TagBrowseLimit          int     `yaml:"tag_browse_limit"`
	TimeoutSec              int     `yaml:"timeout_sec"`
	PublicBaseScore         float64 `yaml:"public_base_score"`
	InternalBaseScore       float64 `yaml:"internal_base_score"`
	QuestionMatchBonus      float64 `yaml:"question_match_bonus"`
	QuestionTokenBonus      float64 `yaml:"question_token_bonus"`
	ContentTokenBonus       float64 `yaml:"content_token_bonus"`
	VectorScoreFloor        float64 `yaml:"vector_score_floor"`
	VectorScoreCeiling      float64 `yaml:"vector_score_ceiling"`
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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 7500
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 5
	}
	if c.Search.KeywordRowsPerPartition <= 0 {
		c.Search.KeywordRowsPerPartition = 10
	}
	if c.Search.ChunkPoolMultiplier <= 0 {
		c.Search.ChunkPoolMultiplier = 3
	}
	if c.Search.DirectSearchLimit <= 0 {
		c.Search.DirectSearchLimit = 8
	}
	if c.Search.TagBrowseLimit <= 0 {
		c.Search.TagBrowseLimit = 20
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 5
	}
	if c.Search.PublicBaseScore == 0 {
		c.Search.PublicBaseScore = 0.6
	}
	if c.Search.InternalBaseScore == 0 {
		c.Search.InternalBaseScore = 0.9
	}
	if c.Search.QuestionMatchBonus == 0 {
		c.Search.QuestionMatchBonus = 0.4
	}
	if c.Search.QuestionTokenBonus == 0 {
		c.Search.QuestionTokenBonus = 0.2
	}
	if c.Search.ContentTokenBonus == 0 {
		c.Search.ContentTokenBonus = 0.1
	}
	if c.Search.VectorScoreFloor == 0 {
		c.Search.VectorScoreFloor = 0.4
	}
	if c.Search.VectorScoreCeiling == 0 {
		c.Search.VectorScoreCeiling = 0.99
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Search.VectorScoreFloor >= c.Search.VectorScoreCeiling {
		return fmt.Errorf("search.vector_score_floor must be below search.vector_score_ceiling")
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
