package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AWS        AWSConfig
	Ingest     IngestConfig
	Processing ProcessingConfig
	Streaming  StreamingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the segment archive bucket. An empty
// bucket disables archival.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SegmentsBucket  string
}

// IngestConfig bounds channel ingestion runs.
type IngestConfig struct {
	ChannelIDs            []string // comma-separated in env
	MaxConcurrentChannels int
	MaxRetries            int
	RetryDelay            time.Duration
	MaxVideosPerChannel   int
}

// ProcessingConfig holds worker and media pipeline settings.
type ProcessingConfig struct {
	WorkDir           string
	SegmentSeconds    float64
	SampleRate        int
	BatchSize         int
	MaxConcurrentJobs int
	PollInterval      time.Duration
	CleanupTempFiles  bool
}

// StreamingConfig holds live matcher settings.
type StreamingConfig struct {
	SampleRate     int
	BufferDuration float64
	HopDuration    float64
	MinMatchScore  float64
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/echotrace?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "echotrace"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SegmentsBucket:  getEnv("AWS_S3_SEGMENTS_BUCKET", ""),
		},
		Ingest: IngestConfig{
			ChannelIDs:            splitTrim(getEnv("CHANNEL_IDS", ""), ","),
			MaxConcurrentChannels: getEnvInt("MAX_CONCURRENT_CHANNELS", 3),
			MaxRetries:            getEnvInt("CHANNEL_MAX_RETRIES", 3),
			RetryDelay:            time.Duration(getEnvInt("CHANNEL_RETRY_DELAY_SEC", 10)) * time.Second,
			MaxVideosPerChannel:   getEnvInt("MAX_VIDEOS_PER_CHANNEL", 50),
		},
		Processing: ProcessingConfig{
			WorkDir:           getEnv("PROCESSING_WORK_DIR", os.TempDir()),
			SegmentSeconds:    getEnvFloat("SEGMENT_SECONDS", 30),
			SampleRate:        getEnvInt("SAMPLE_RATE", 22050),
			BatchSize:         getEnvInt("JOB_BATCH_SIZE", 5),
			MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),
			PollInterval:      time.Duration(getEnvInt("JOB_POLL_INTERVAL_SEC", 15)) * time.Second,
			CleanupTempFiles:  getEnvBool("CLEANUP_TEMP_FILES", true),
		},
		Streaming: StreamingConfig{
			SampleRate:     getEnvInt("STREAM_SAMPLE_RATE", 22050),
			BufferDuration: getEnvFloat("STREAM_BUFFER_DURATION_SEC", 3.0),
			HopDuration:    getEnvFloat("STREAM_HOP_DURATION_SEC", 0.5),
			MinMatchScore:  getEnvFloat("STREAM_MIN_MATCH_SCORE", 0),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
