package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is built once at startup and
// injected into every component that needs it; nothing reads the environment
// after LoadConfig returns.
type Config struct {
	Database   DatabaseConfig
	Convert    ConvertConfig
	LLM        LLMConfig
	Quality    QualityConfig
	Chunking   ChunkingConfig
	Similarity SimilarityConfig
	Workers    WorkerConfig
	Paths      PathConfig
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Type             string // "postgres" | "sqlite"
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConvertConfig holds conversion-provider configuration.
type ConvertConfig struct {
	// ProviderOrder is the fallback chain, highest priority first.
	ProviderOrder []string
	// AcceptThreshold stops the chain at the first result scoring >= it.
	AcceptThreshold float32
	// Concurrent tries all providers at once instead of walking the chain.
	Concurrent bool
	// CallTimeout bounds each provider call; elapsing is treated as
	// the provider being unavailable.
	CallTimeout time.Duration
	MaxFileSize int64

	// local provider binaries
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int

	// remote provider endpoint
	RemoteEndpoint string
	RemoteAPIKey   string
	RemotePageRate float64 // USD per page
}

// LLMConfig holds gateway configuration.
type LLMConfig struct {
	Backend             string // "openai" | "gemini"
	APIKey              string
	BaseURL             string
	ClassificationModel string
	ExtractionModel     string
	EmbeddingModel      string
	Temperature         float32
	Timeout             time.Duration
	// ModelRates maps model name -> [input, output] USD per 1k tokens.
	ModelRates map[string][2]float64
}

// QualityConfig holds acceptance thresholds.
type QualityConfig struct {
	ClassificationConfidence float32
	ExtractionQuality        float32
	MinSimilarDocuments      int
	MaxSimilarDocuments      int
}

// ChunkingConfig controls splitting of oversized documents.
type ChunkingConfig struct {
	Enabled            bool
	ExtensiveThreshold int
	MaxChunkSize       int
	Overlap            int
}

// SimilarityConfig configures the vector-store collaborator.
type SimilarityConfig struct {
	Enabled bool
	DSN     string // pgvector database; empty reuses Database.DSN
	Dim     int
}

// WorkerConfig bounds the async processing pool.
type WorkerConfig struct {
	Count          int
	QueueSize      int
	ProcessTimeout time.Duration
}

// PathConfig holds configuration file locations.
type PathConfig struct {
	CatalogFile string
	PromptsFile string
	UploadDir   string
	OutputDir   string
}

// LoadConfig loads configuration from the environment (and .env, if present).
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Type:             getEnv("DATABASE_TYPE", "sqlite"),
			DSN:              getEnv("DATABASE_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "./data/docetl.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Convert: ConvertConfig{
			ProviderOrder:   getEnvAsList("PROVIDER_ORDER", []string{"local", "remote"}),
			AcceptThreshold: getEnvAsFloat32("PROVIDER_QUALITY_THRESHOLD", 0.7),
			Concurrent:      getEnvAsBool("PROVIDER_CONCURRENT_FALLBACK", false),
			CallTimeout:     getEnvAsDuration("PROVIDER_CALL_TIMEOUT", 90*time.Second),
			MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 10<<20),
			Pdftotext:       getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:        getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:       getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:   getEnv("TESSERACT_LANG", "por"),
			DPI:             getEnvAsInt("OCR_DPI", 300),
			RemoteEndpoint:  getEnv("REMOTE_CONVERTER_ENDPOINT", ""),
			RemoteAPIKey:    getEnv("REMOTE_CONVERTER_API_KEY", ""),
			RemotePageRate:  getEnvAsFloat64("REMOTE_CONVERTER_PAGE_RATE", 0.0015),
		},
		LLM: LLMConfig{
			Backend:             getEnv("LLM_BACKEND", "openai"),
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			BaseURL:             getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ClassificationModel: getEnv("CLASSIFICATION_MODEL", "gpt-4o-mini"),
			ExtractionModel:     getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Temperature:         getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:             getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			ModelRates:          defaultModelRates(),
		},
		Quality: QualityConfig{
			ClassificationConfidence: getEnvAsFloat32("CLASSIFICATION_CONFIDENCE_THRESHOLD", 0.8),
			ExtractionQuality:        getEnvAsFloat32("EXTRACTION_QUALITY_THRESHOLD", 0.7),
			MinSimilarDocuments:      getEnvAsInt("MIN_SIMILAR_DOCUMENTS", 3),
			MaxSimilarDocuments:      getEnvAsInt("MAX_SIMILAR_DOCUMENTS", 5),
		},
		Chunking: ChunkingConfig{
			Enabled:            getEnvAsBool("ENABLE_CHUNKING", true),
			ExtensiveThreshold: getEnvAsInt("EXTENSIVE_DOCUMENT_THRESHOLD", 10000),
			MaxChunkSize:       getEnvAsInt("MAX_CHUNK_SIZE", 3000),
			Overlap:            getEnvAsInt("CHUNK_OVERLAP_SIZE", 200),
		},
		Similarity: SimilarityConfig{
			Enabled: getEnvAsBool("SIMILARITY_ENABLED", false),
			DSN:     getEnv("SIMILARITY_DATABASE_URL", ""),
			Dim:     getEnvAsInt("EMBEDDING_DIM", 1536),
		},
		Workers: WorkerConfig{
			Count:          getEnvAsInt("MAX_WORKERS", 4),
			QueueSize:      getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 5*time.Minute),
		},
		Paths: PathConfig{
			CatalogFile: getEnv("CATALOG_FILE", ""),
			PromptsFile: getEnv("PROMPTS_FILE", ""),
			UploadDir:   getEnv("UPLOAD_DIR", "./data/uploads"),
			OutputDir:   getEnv("OUTPUT_DIR", "./data/output"),
		},
	}
}

// defaultModelRates is the per-model USD cost per 1k tokens [input, output].
func defaultModelRates() map[string][2]float64 {
	return map[string][2]float64{
		"gpt-4o-mini":            {0.00015, 0.0006},
		"gpt-4-turbo":            {0.01, 0.03},
		"gpt-4":                  {0.03, 0.06},
		"gpt-3.5-turbo":          {0.001, 0.002},
		"gemini-1.5-flash":       {0.000075, 0.0003},
		"text-embedding-3-small": {0.00002, 0},
		"text-embedding-3-large": {0.00013, 0},
	}
}

// Validate validates the loaded configuration. Unknown provider names and
// out-of-range thresholds must fail here, not mid-pipeline.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DATABASE_URL is required for postgres", ErrInvalidInput)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return NewAppError("CONFIG_ERROR", "SQLITE_PATH is required for sqlite", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown DATABASE_TYPE %q", c.Database.Type), ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if len(c.Convert.ProviderOrder) == 0 {
		return NewAppError("CONFIG_ERROR", "PROVIDER_ORDER must name at least one provider", ErrInvalidInput)
	}
	for _, th := range []float32{
		c.Convert.AcceptThreshold,
		c.Quality.ClassificationConfidence,
		c.Quality.ExtractionQuality,
	} {
		if th < 0 || th > 1 {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("threshold %v outside [0,1]", th), ErrInvalidInput)
		}
	}
	if c.Chunking.MaxChunkSize <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return NewAppError("CONFIG_ERROR", "chunk overlap must be >= 0 and smaller than chunk size", ErrInvalidInput)
	}
	if c.Workers.Count <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_WORKERS must be > 0", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
