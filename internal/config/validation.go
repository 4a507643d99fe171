package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrievalK indicates retrieval_k is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval_k")

	// ErrInvalidDimensions indicates vector_db_dimensions is out of range.
	ErrInvalidDimensions = errors.New("invalid vector dimensions")

	// ErrInvalidChunking indicates chunk_size/chunk_overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRepository indicates a repository entry is malformed.
	ErrInvalidRepository = errors.New("invalid repository")

	// ErrInvalidWorkers indicates ingest_workers is out of range.
	ErrInvalidWorkers = errors.New("invalid ingest workers")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key is required for all AI operations. Read directly by Genkit.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalK < 1 || c.RetrievalK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidRetrievalK, c.RetrievalK)
	}

	if c.VectorDimensions < 1 || c.VectorDimensions > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidDimensions, c.VectorDimensions)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d (chunk_size %d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	for i, repo := range c.Repositories {
		if err := validateRepository(repo); err != nil {
			return fmt.Errorf("repositories[%d]: %w", i, err)
		}
	}

	if c.IngestWorkers < 1 {
		return fmt.Errorf("%w: ingest_workers must be positive, got %d", ErrInvalidWorkers, c.IngestWorkers)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	// Warn but don't block - user might be in dev
	if c.PostgresPassword == "archon_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// validateRepository checks one repository entry.
func validateRepository(repo Repository) error {
	if repo.URL == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidRepository)
	}
	if !strings.HasPrefix(repo.URL, "https://github.com/") {
		return fmt.Errorf("%w: url must be a GitHub URL, got %q", ErrInvalidRepository, repo.URL)
	}
	if repo.Branch == "" {
		return fmt.Errorf("%w: branch cannot be empty for %s", ErrInvalidRepository, repo.URL)
	}
	if len(repo.Paths) == 0 {
		return fmt.Errorf("%w: paths must contain at least one path for %s", ErrInvalidRepository, repo.URL)
	}
	return nil
}
