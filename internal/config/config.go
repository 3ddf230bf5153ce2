package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	AppEnv             string
	APIKey             string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Directories
	UploadDir string
	OutputDir string
	LogDir    string
	TempDir   string // empty = os temp dir

	// Pipeline
	RenderConcurrency int

	// Jobs
	JobScheduler string // "spawn" runs one goroutine per job, "queue" feeds a Redis-backed worker pool
	JobWorkers   int
	RedisURL     string

	// Storage mirror (Supabase-compatible; optional)
	StorageURL          string
	StorageKey          string
	StorageUploadBucket string
	StorageOutputBucket string
	OutputURLExpireSecs int

	// Speech synthesis
	TTSProvider string // "openai", "gemini", or "auto"
	OpenAIKey   string
	GeminiKey   string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		AppEnv:              getEnv("APP_ENV", "dev"),
		APIKey:              getEnv("API_KEY", ""),
		CorsAllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:           getEnv("OUTPUT_DIR", "output"),
		LogDir:              getEnv("LOG_DIR", "logs"),
		TempDir:             getEnv("TEMP_DIR", ""),
		RenderConcurrency:   getEnvInt("RENDER_CONCURRENCY", 4),
		JobScheduler:        getEnv("JOB_SCHEDULER", "spawn"),
		JobWorkers:          getEnvInt("JOB_WORKERS", 4),
		RedisURL:            getEnv("REDIS_URL", ""),
		StorageURL:          getEnv("STORAGE_URL", ""),
		StorageKey:          getEnv("STORAGE_KEY", ""),
		StorageUploadBucket: getEnv("STORAGE_UPLOAD_BUCKET", "uploads"),
		StorageOutputBucket: getEnv("STORAGE_OUTPUT_BUCKET", "output"),
		OutputURLExpireSecs: getEnvInt("OUTPUT_URL_EXPIRE_SECONDS", 86400),
		TTSProvider:         getEnv("TTS_PROVIDER", "auto"),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
	}

	// Validate required fields
	switch cfg.JobScheduler {
	case "spawn", "queue":
	default:
		return nil, fmt.Errorf("JOB_SCHEDULER must be \"spawn\" or \"queue\", got %q", cfg.JobScheduler)
	}

	if cfg.JobScheduler == "queue" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when JOB_SCHEDULER=queue")
	}

	switch cfg.TTSProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when TTS_PROVIDER=openai")
		}
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when TTS_PROVIDER=gemini")
		}
	case "auto":
		// No key required; narration requests without a configured provider
		// fall back to silent video with a warning.
	default:
		return nil, fmt.Errorf("TTS_PROVIDER must be \"openai\", \"gemini\" or \"auto\", got %q", cfg.TTSProvider)
	}

	return cfg, nil
}

// StorageEnabled reports whether uploads and outputs should be mirrored to
// the remote storage service. Dev environments keep everything local even
// when credentials are present.
func (c *Config) StorageEnabled() bool {
	return c.StorageURL != "" && c.StorageKey != "" && c.AppEnv != "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
