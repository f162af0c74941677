package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the knowledgebase. It is constructed
// once by Load and passed down the call chain; callers that need fresh
// values after the environment changes call Load again for a new instance.
type Config struct {
	// Hosted database (REST/RPC interface)
	DatabaseURL string
	DatabaseKey string
	TablePrefix string

	// Embedding provider
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	OllamaURL     string
	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Search
	DefaultMatchCount   int
	SimilarityThreshold float64
	SemanticWeight      float64

	// Agent memory (empty = single-tenant mode, no agent auth)
	AgentName   string
	AgentAPIKey string

	// Web UI
	WebAddr string
}

// Load reads configuration from environment variables and returns a Config.
// If a .env file exists in the current directory or a parent (up to a small
// depth limit), it is loaded first; variables already set in the environment
// take precedence over .env values.
func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		DatabaseURL:       os.Getenv("SUPABASE_URL"),
		DatabaseKey:       os.Getenv("SUPABASE_KEY"),
		TablePrefix:       getEnv("TABLE_PREFIX", "kb"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AgentName:         os.Getenv("OPENCLAW_AGENT_NAME"),
		AgentAPIKey:       os.Getenv("OPENCLAW_AGENT_KEY"),
		WebAddr:           getEnv("WEB_ADDR", ":8080"),
	}

	var err error
	if cfg.EmbeddingDimensions, err = getEnvInt("EMBEDDING_DIMENSIONS", 768); err != nil {
		return nil, err
	}
	timeoutSecs, err := getEnvInt("EMBEDDING_TIMEOUT", 120)
	if err != nil {
		return nil, err
	}
	cfg.EmbeddingTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.DefaultMatchCount, err = getEnvInt("DEFAULT_MATCH_COUNT", 10); err != nil {
		return nil, err
	}
	if cfg.SimilarityThreshold, err = getEnvFloat("SIMILARITY_THRESHOLD", 0.5); err != nil {
		return nil, err
	}
	if cfg.SemanticWeight, err = getEnvFloat("SEMANTIC_WEIGHT", 0.7); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable and returns a list of
// problems. An empty slice means the configuration is valid.
func (c *Config) Validate() []string {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "SUPABASE_URL is required")
	}
	if c.DatabaseKey == "" {
		errs = append(errs, "SUPABASE_KEY is required")
	}
	switch c.EmbeddingProvider {
	case "google":
		if c.GoogleAPIKey == "" {
			errs = append(errs, "GOOGLE_API_KEY is required when EMBEDDING_PROVIDER=google")
		}
	case "openai", "custom":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai|custom")
		}
	}
	return errs
}

// loadDotenv loads the nearest .env file: current directory first, then
// parent directories up to a small depth limit.
func loadDotenv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}
