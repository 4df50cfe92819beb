package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	StorageDriverFS = "fs"
	StorageDriverS3 = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	LogFile        string
	DatabaseURL    string
	DBMaxConns     int
	StoreDriver    string
	MigrateOnStart bool
	JWTSecret      string

	StorageDriver     string
	StoragePath       string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiScorerModel string
	GenerationTimeout time.Duration
	QualityTimeout    time.Duration
	RetryBackoff      time.Duration
	InterItemDelay    time.Duration

	CreditCostPhoto     int
	CreditCostVideo     int
	DailyFreeCredits    int
	AnonymousDailyLimit int
	MaxImagesPerJob     int
	MaxImageBytes       int64

	PendingStaleAfter    time.Duration
	ProcessingStaleAfter time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// A .env or .env.local file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		LogFile:        os.Getenv("LOG_FILE"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 10),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiScorerModel: getEnv("GEMINI_SCORER_MODEL", "gemini-2.5-flash"),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 60)),
		QualityTimeout:    time.Second * time.Duration(getEnvInt("QUALITY_TIMEOUT_SECONDS", 20)),
		RetryBackoff:      time.Millisecond * time.Duration(getEnvInt("RETRY_BACKOFF_MS", 2000)),
		InterItemDelay:    time.Millisecond * time.Duration(getEnvInt("INTER_ITEM_DELAY_MS", 1500)),

		CreditCostPhoto:     getEnvInt("CREDIT_COST_PHOTO", 1),
		CreditCostVideo:     getEnvInt("CREDIT_COST_VIDEO", 2),
		DailyFreeCredits:    getEnvInt("DAILY_FREE_CREDITS", 3),
		AnonymousDailyLimit: getEnvInt("ANONYMOUS_DAILY_LIMIT", 3),
		MaxImagesPerJob:     getEnvInt("MAX_IMAGES_PER_JOB", 10),
		MaxImageBytes:       int64(getEnvInt("MAX_IMAGE_BYTES", 10<<20)),

		PendingStaleAfter:    time.Second * time.Duration(getEnvInt("PENDING_STALE_SECONDS", 60)),
		ProcessingStaleAfter: time.Second * time.Duration(getEnvInt("PROCESSING_STALE_SECONDS", 300)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
	case StorageDriverS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
