package config

import (
	"errors"
	"os"
	"testing"
)

// validBaseConfig returns a Config with all required fields set.
func validBaseConfig() *Config {
	return &Config{
		ModelName:        "gemini-2.5-flash",
		Temperature:      0.7,
		MaxTokens:        2048,
		EmbedderModel:    "gemini-embedding-001",
		VectorDimensions: 768,
		RetrievalK:       5,
		ChunkSize:        1000,
		ChunkOverlap:     200,
		IngestWorkers:    4,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "archon",
		PostgresPassword: "test_password",
		PostgresDBName:   "archon",
		PostgresSSLMode:  "disable",
	}
}

// setAPIKey sets GEMINI_API_KEY for the test and restores it afterwards.
func setAPIKey(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-api-key")
}

func TestValidateSuccess(t *testing.T) {
	setAPIKey(t)

	cfg := validBaseConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with valid config: %v", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() error = %v, want ErrConfigNil", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")

	cfg := validBaseConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing GEMINI_API_KEY, got nil")
	}
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("error should be ErrMissingAPIKey, got: %v", err)
	}
}

func TestValidateModelName(t *testing.T) {
	setAPIKey(t)

	cfg := validBaseConfig()
	cfg.ModelName = ""

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidModelName) {
		t.Errorf("error should be ErrInvalidModelName, got: %v", err)
	}
}

func TestValidateTemperature(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name        string
		temperature float32
		wantErr     bool
	}{
		{name: "valid min", temperature: 0.0},
		{name: "valid mid", temperature: 1.0},
		{name: "valid max", temperature: 2.0},
		{name: "invalid negative", temperature: -0.1, wantErr: true},
		{name: "invalid too high", temperature: 2.1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Temperature = tt.temperature

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidTemperature) {
				t.Errorf("error should be ErrInvalidTemperature, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for temperature %.2f: %v", tt.temperature, err)
			}
		})
	}
}

func TestValidateMaxTokens(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name      string
		maxTokens int
		wantErr   bool
	}{
		{name: "valid min", maxTokens: 1},
		{name: "valid max", maxTokens: 2097152},
		{name: "invalid zero", maxTokens: 0, wantErr: true},
		{name: "invalid negative", maxTokens: -1, wantErr: true},
		{name: "invalid too high", maxTokens: 2097153, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.MaxTokens = tt.maxTokens

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidMaxTokens) {
				t.Errorf("error should be ErrInvalidMaxTokens, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for max_tokens %d: %v", tt.maxTokens, err)
			}
		})
	}
}

func TestValidateRetrievalK(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name    string
		k       int
		wantErr bool
	}{
		{name: "valid min", k: 1},
		{name: "valid max", k: 100},
		{name: "invalid zero", k: 0, wantErr: true},
		{name: "invalid too high", k: 101, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.RetrievalK = tt.k

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRetrievalK) {
				t.Errorf("error should be ErrInvalidRetrievalK, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for retrieval_k %d: %v", tt.k, err)
			}
		})
	}
}

func TestValidateVectorDimensions(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name    string
		dims    int
		wantErr bool
	}{
		{name: "valid default", dims: 768},
		{name: "valid max", dims: 4096},
		{name: "invalid zero", dims: 0, wantErr: true},
		{name: "invalid too high", dims: 4097, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.VectorDimensions = tt.dims

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidDimensions) {
				t.Errorf("error should be ErrInvalidDimensions, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for dimensions %d: %v", tt.dims, err)
			}
		})
	}
}

func TestValidateChunking(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "valid defaults", size: 1000, overlap: 200},
		{name: "valid zero overlap", size: 100, overlap: 0},
		{name: "invalid zero size", size: 0, overlap: 0, wantErr: true},
		{name: "invalid negative overlap", size: 100, overlap: -1, wantErr: true},
		{name: "invalid overlap equals size", size: 100, overlap: 100, wantErr: true},
		{name: "invalid overlap exceeds size", size: 100, overlap: 150, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.ChunkSize = tt.size
			cfg.ChunkOverlap = tt.overlap

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidChunking) {
				t.Errorf("error should be ErrInvalidChunking, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for size %d overlap %d: %v", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestValidateIngestWorkers(t *testing.T) {
	setAPIKey(t)

	cfg := validBaseConfig()
	cfg.IngestWorkers = 0

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidWorkers) {
		t.Errorf("error should be ErrInvalidWorkers, got: %v", err)
	}
}

func TestValidateRepositories(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name    string
		repo    Repository
		wantErr bool
	}{
		{
			name: "valid",
			repo: Repository{URL: "https://github.com/archonhq/archon", Branch: "main", Paths: []string{"docs"}},
		},
		{
			name:    "empty url",
			repo:    Repository{Branch: "main", Paths: []string{"docs"}},
			wantErr: true,
		},
		{
			name:    "non github url",
			repo:    Repository{URL: "https://gitlab.com/a/b", Branch: "main", Paths: []string{"docs"}},
			wantErr: true,
		},
		{
			name:    "empty branch",
			repo:    Repository{URL: "https://github.com/archonhq/archon", Paths: []string{"docs"}},
			wantErr: true,
		},
		{
			name:    "no paths",
			repo:    Repository{URL: "https://github.com/archonhq/archon", Branch: "main"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Repositories = []Repository{tt.repo}

			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRepository) {
				t.Errorf("error should be ErrInvalidRepository, got: %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidatePostgres(t *testing.T) {
	setAPIKey(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "empty host", mutate: func(c *Config) { c.PostgresHost = "" }, wantErr: ErrInvalidPostgresHost},
		{name: "port zero", mutate: func(c *Config) { c.PostgresPort = 0 }, wantErr: ErrInvalidPostgresPort},
		{name: "port too high", mutate: func(c *Config) { c.PostgresPort = 70000 }, wantErr: ErrInvalidPostgresPort},
		{name: "empty db name", mutate: func(c *Config) { c.PostgresDBName = "" }, wantErr: ErrInvalidPostgresDBName},
		{name: "empty password", mutate: func(c *Config) { c.PostgresPassword = "" }, wantErr: ErrInvalidPostgresPassword},
		{name: "short password", mutate: func(c *Config) { c.PostgresPassword = "short" }, wantErr: ErrInvalidPostgresPassword},
		{name: "bad ssl mode", mutate: func(c *Config) { c.PostgresSSLMode = "prefer" }, wantErr: ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
