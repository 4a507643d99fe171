// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.archon/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: LLM model, embedder model, temperature, max tokens
//   - Retrieval: retrieval_k, vector dimensionality, chunk size/overlap
//   - Storage: PostgreSQL connection (see storage.go)
//   - Ingestion: repository list, sync interval, GitHub token
//
// Security: sensitive values (database password, GitHub token) are masked in
// MarshalJSON. Validation is fail-fast with sentinel errors (validation.go).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to the configured output
	// dimensionality (Matryoshka Representation Learning); the pgvector
	// schema dimension must match VectorDimensions.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultVectorDimensions is the embedding dimensionality the documents
	// table is created with. Changing it requires a new collection.
	DefaultVectorDimensions = 768

	// DefaultRetrievalK is the default number of chunks retrieved per query.
	DefaultRetrievalK = 5

	// DefaultChunkSize and DefaultChunkOverlap control document chunking,
	// in characters. Overlap must stay below chunk size.
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Repository describes one GitHub repository whose documentation is indexed.
type Repository struct {
	URL    string   `mapstructure:"url" json:"url"`
	Branch string   `mapstructure:"branch" json:"branch"`
	Paths  []string `mapstructure:"paths" json:"paths"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	EmbedderModel    string `mapstructure:"embedder_model" json:"embedder_model"`
	VectorDimensions int    `mapstructure:"vector_db_dimensions" json:"vector_db_dimensions"`
	RetrievalK       int    `mapstructure:"retrieval_k" json:"retrieval_k"`
	ChunkSize        int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Ingestion configuration
	Repositories []Repository  `mapstructure:"repositories" json:"repositories"`
	SyncInterval time.Duration `mapstructure:"sync_interval" json:"sync_interval"` // 0 disables the scheduler
	GitHubToken  string        `mapstructure:"github_token" json:"github_token"`   // SENSITIVE: masked in MarshalJSON
	IngestWorkers int          `mapstructure:"ingest_workers" json:"ingest_workers"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".archon")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing configuration file is not an error, defaults apply
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on invalid values
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("vector_db_dimensions", DefaultVectorDimensions)
	viper.SetDefault("retrieval_k", DefaultRetrievalK)
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// Ingestion defaults
	viper.SetDefault("sync_interval", "0s")
	viper.SetDefault("ingest_workers", 4)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "archon")
	viper.SetDefault("postgres_password", "archon_dev_password")
	viper.SetDefault("postgres_db_name", "archon")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", ":8080")
}

// bindEnvVariables binds sensitive environment variables explicitly.
//
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate checks
// its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("github_token", "GITHUB_TOKEN")
	mustBind("model_name", "ARCHON_MODEL_NAME")
	mustBind("embedder_model", "ARCHON_EMBEDDER_MODEL")
	mustBind("listen_addr", "ARCHON_LISTEN_ADDR")
	mustBind("sync_interval", "ARCHON_SYNC_INTERVAL")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep two characters on
// each side for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GitHubToken = maskSecret(a.GitHubToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash".
func (c *Config) FullModelName() string {
	return "googleai/" + c.ModelName
}

// FullEmbedderModel returns the embedder model identifier as registered with
// the Google AI plugin.
func (c *Config) FullEmbedderModel() string {
	return c.EmbedderModel
}
