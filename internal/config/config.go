package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ingest/internal/logger"
)

// Backend names accepted by BLOB_BACKEND, OCR_PROVIDER and RECORD_BACKEND.
const (
	BlobGCS    = "gcs"
	BlobMemory = "memory"

	OCRVision     = "vision"
	OCRDocumentAI = "documentai"
	OCRNone       = "none"

	RecordMongo    = "mongo"
	RecordPostgres = "postgres"
	RecordSQLite   = "sqlite"
	RecordSheets   = "sheets"
	RecordMemory   = "memory"
)

// DefaultBatchSize is the item limit per batch when BATCH_SIZE is unset.
const DefaultBatchSize = 2

type Config struct {
	// Blob storage
	BlobBackend         string
	RawBucket           string
	ArchiveBucket       string
	ArchiveStorageClass string

	// OCR
	OCRProvider           string
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Record store
	RecordBackend        string
	MongoURI             string
	MongoDatabase        string
	MongoCollection      string
	DatabaseURL          string
	SQLitePath           string
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Batch processing
	BatchSize        int
	BatchWorkers     int
	JPEGQuality      int
	AddressRulesFile string

	// HTTP
	HTTPAddr       string
	MaxBodyBytes   int64
	RequestTimeout time.Duration

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		BlobBackend:           getEnv("BLOB_BACKEND", BlobGCS),
		RawBucket:             getEnv("RAW_BUCKET", ""),
		ArchiveBucket:         getEnv("ARCHIVE_BUCKET", ""),
		ArchiveStorageClass:   getEnv("ARCHIVE_STORAGE_CLASS", "ARCHIVE"),
		OCRProvider:           getEnv("OCR_PROVIDER", OCRVision),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		RecordBackend:         getEnv("RECORD_BACKEND", RecordMongo),
		MongoURI:              getEnv("MONGODB_URI", ""),
		MongoDatabase:         getEnv("MONGODB_DATABASE", "ocr_results"),
		MongoCollection:       getEnv("MONGODB_COLLECTION", "batches"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SQLitePath:            getEnv("SQLITE_PATH", "batches.db"),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "Batches"),
		BatchSize:             getEnvAsInt("BATCH_SIZE", DefaultBatchSize),
		BatchWorkers:          getEnvAsInt("BATCH_WORKERS", 1),
		JPEGQuality:           getEnvAsInt("JPEG_QUALITY", 75),
		AddressRulesFile:      getEnv("ADDRESS_RULES_FILE", ""),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		MaxBodyBytes:          int64(getEnvAsInt("MAX_BODY_BYTES", 6<<20)),
		RequestTimeout:        getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.BlobBackend {
	case BlobGCS, BlobMemory:
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobGCS, BlobMemory, c.BlobBackend)
	}
	if c.RawBucket == "" {
		return fmt.Errorf("RAW_BUCKET is required")
	}
	if c.ArchiveBucket == "" {
		return fmt.Errorf("ARCHIVE_BUCKET is required")
	}

	switch c.OCRProvider {
	case OCRVision, OCRNone:
	case OCRDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for OCR_PROVIDER=%s", OCRDocumentAI)
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for OCR_PROVIDER=%s", OCRDocumentAI)
		}
	default:
		return fmt.Errorf("unknown OCR_PROVIDER %q", c.OCRProvider)
	}

	switch c.RecordBackend {
	case RecordMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for RECORD_BACKEND=%s", RecordMongo)
		}
	case RecordPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for RECORD_BACKEND=%s", RecordPostgres)
		}
	case RecordSheets:
		if c.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL is required for RECORD_BACKEND=%s", RecordSheets)
		}
	case RecordSQLite, RecordMemory:
	default:
		return fmt.Errorf("unknown RECORD_BACKEND %q", c.RecordBackend)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
