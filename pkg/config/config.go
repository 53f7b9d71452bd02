package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv"
)

// Config holds all ingestion configuration
type Config struct {
	Ingest    IngestConfig
	Templates TemplateConfig
	Database  DatabaseConfig
	Dedup     DedupConfig
	Reconcile ReconcileConfig
	Score     ScoreConfig
	OCR       OCRConfig
}

type IngestConfig struct {
	// MaxFileSizeBytes caps any uploaded statement file.
	MaxFileSizeBytes int64
	// MaxPDFSizeBytes caps PDFs separately; they are the heaviest path.
	MaxPDFSizeBytes int64
	// StageTimeout bounds a single extraction stage.
	StageTimeout time.Duration
	// DefaultCurrency applies when a file carries no currency code.
	DefaultCurrency string
}

type TemplateConfig struct {
	// Dir holds the bank template YAML definitions.
	Dir string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Enabled switches persisted fingerprint lookups on.
	Enabled bool
}

type DedupConfig struct {
	// AmountPrecision is the decimal precision amounts are rounded to
	// before fingerprinting.
	AmountPrecision int
}

type ReconcileConfig struct {
	// Strict fails a batch when any named check fails.
	Strict bool
	// BalanceTolerance is the acceptable running-balance drift.
	BalanceTolerance string
	// MaxGapDays is the largest acceptable gap between transactions.
	MaxGapDays int
}

type ScoreConfig struct {
	// ReviewThreshold is the overall score below which a transaction is
	// flagged for manual review.
	ReviewThreshold float64
	// AmountCeiling marks amounts beyond it as outliers.
	AmountCeiling float64
}

type OCRConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Ingest: IngestConfig{
			MaxFileSizeBytes: getEnvAsInt64("INGEST_MAX_FILE_SIZE_BYTES", 25<<20),
			MaxPDFSizeBytes:  getEnvAsInt64("INGEST_MAX_PDF_SIZE_BYTES", 50<<20),
			StageTimeout:     getEnvAsDuration("INGEST_STAGE_TIMEOUT", 2*time.Minute),
			DefaultCurrency:  getEnv("INGEST_DEFAULT_CURRENCY", "EUR"),
		},
		Templates: TemplateConfig{
			Dir: getEnv("TEMPLATE_DIR", "templates"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "ledgerlift"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			Enabled:  getEnvAsBool("POSTGRES_ENABLED", false),
		},
		Dedup: DedupConfig{
			AmountPrecision: getEnvAsInt("DEDUP_AMOUNT_PRECISION", 2),
		},
		Reconcile: ReconcileConfig{
			Strict:           getEnvAsBool("RECONCILE_STRICT", false),
			BalanceTolerance: getEnv("RECONCILE_BALANCE_TOLERANCE", "0.01"),
			MaxGapDays:       getEnvAsInt("RECONCILE_MAX_GAP_DAYS", 90),
		},
		Score: ScoreConfig{
			ReviewThreshold: getEnvAsFloat("SCORE_REVIEW_THRESHOLD", 0.70),
			AmountCeiling:   getEnvAsFloat("SCORE_AMOUNT_CEILING", 1_000_000),
		},
		OCR: OCRConfig{
			Enabled: getEnvAsBool("OCR_ENABLED", false),
		},
	}

	if cfg.Score.ReviewThreshold <= 0 || cfg.Score.ReviewThreshold > 1 {
		return nil, fmt.Errorf("SCORE_REVIEW_THRESHOLD must be in (0, 1], got %v", cfg.Score.ReviewThreshold)
	}
	if cfg.Ingest.MaxFileSizeBytes <= 0 {
		return nil, fmt.Errorf("INGEST_MAX_FILE_SIZE_BYTES must be positive")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
