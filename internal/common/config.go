package common

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Reader    ReaderConfig
	Extractor ExtractorConfig
	Pipeline  PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr      string
	UploadDir string
}

// StoreConfig holds result store configuration
type StoreConfig struct {
	DBPath string
}

// ReaderConfig holds OCR/text-extraction configuration
type ReaderConfig struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int
	MaxPages      int
	TSVConfidence bool
}

// ExtractorConfig holds inference service configuration
type ExtractorConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	Workers     int
	QueueSize   int
	JobTimeout  time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	OutputDir   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      getEnv("HTTP_ADDR", ":8080"),
			UploadDir: getEnv("UPLOAD_DIR", "./data/uploads"),
		},
		Store: StoreConfig{
			DBPath: getEnv("DB_PATH", "./data/docvision.db"),
		},
		Reader: ReaderConfig{
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
			TSVConfidence: getEnvAsBool("OCR_TSV_CONFIDENCE", true),
		},
		Extractor: ExtractorConfig{
			BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   getEnv("OLLAMA_MODEL", "mistral-small3.1:24b-2503-fp16"),
			Timeout: getEnvAsDuration("OLLAMA_TIMEOUT", 300*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:     getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:   getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			JobTimeout:  getEnvAsDuration("PIPELINE_JOB_TIMEOUT", 10*time.Minute),
			MaxAttempts: getEnvAsInt("EXTRACT_MAX_ATTEMPTS", 3),
			RetryBase:   getEnvAsDuration("EXTRACT_RETRY_BASE", 500*time.Millisecond),
			OutputDir:   getEnv("OUTPUT_DIR", "./data/outputs"),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Extractor.BaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL is required")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be positive")
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
