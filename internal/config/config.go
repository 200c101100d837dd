package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agroassist server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	ML       MLConfig
	Pipeline PipelineConfig
	Uploads  UploadsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// GeminiConfig configures the explanation service client.
type GeminiConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Language string
}

// MLConfig points at the model artifacts and label tables loaded at startup.
type MLConfig struct {
	DiseaseModelPath    string
	CropModelPath       string
	FertilizerModelPath string

	CropLabelsPath       string
	FertilizerLabelsPath string
	SoilTypesPath        string
}

// PipelineConfig tunes the background job workers.
type PipelineConfig struct {
	Workers   int
	QueueSize int
	JobLease  time.Duration
}

type UploadsConfig struct {
	Dir string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("AGRO_PORT", 8080),
			Env:  envString("AGRO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Gemini: GeminiConfig{
			APIKey:   os.Getenv("GEMINI_API_KEY"),
			Model:    envString("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL:  envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Timeout:  envDurationSecs("GEMINI_TIMEOUT_SECS", 60*time.Second),
			Language: envString("RESPONSE_LANGUAGE", "français"),
		},
		ML: MLConfig{
			DiseaseModelPath:     os.Getenv("DISEASE_MODEL_PATH"),
			CropModelPath:        os.Getenv("CROP_MODEL_PATH"),
			FertilizerModelPath:  os.Getenv("FERTILIZER_MODEL_PATH"),
			CropLabelsPath:       os.Getenv("CROP_LABELS_PATH"),
			FertilizerLabelsPath: os.Getenv("FERTILIZER_LABELS_PATH"),
			SoilTypesPath:        os.Getenv("SOIL_TYPES_PATH"),
		},
		Pipeline: PipelineConfig{
			Workers:   envInt("PIPELINE_WORKERS", 4),
			QueueSize: envInt("PIPELINE_QUEUE_SIZE", 256),
			JobLease:  envDurationSecs("PIPELINE_JOB_LEASE_SECS", 10*time.Minute),
		},
		Uploads: UploadsConfig{
			Dir: envString("UPLOADS_DIR", "uploads"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// requiredPaths lists env vars that must point at ML artifacts, in the order
// they are reported when missing.
var requiredPaths = []string{
	"DISEASE_MODEL_PATH",
	"CROP_MODEL_PATH",
	"FERTILIZER_MODEL_PATH",
	"CROP_LABELS_PATH",
	"FERTILIZER_LABELS_PATH",
	"SOIL_TYPES_PATH",
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	paths := map[string]string{
		"DISEASE_MODEL_PATH":     c.ML.DiseaseModelPath,
		"CROP_MODEL_PATH":        c.ML.CropModelPath,
		"FERTILIZER_MODEL_PATH":  c.ML.FertilizerModelPath,
		"CROP_LABELS_PATH":       c.ML.CropLabelsPath,
		"FERTILIZER_LABELS_PATH": c.ML.FertilizerLabelsPath,
		"SOIL_TYPES_PATH":        c.ML.SoilTypesPath,
	}
	for _, name := range requiredPaths {
		if paths[name] == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1, got %d", c.Pipeline.Workers)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
