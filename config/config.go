package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// StorageDriver selects the repository backend: "postgres" or "memory".
	StorageDriver    string
	DBConnectRetries int

	HTTPAddr           string
	LogMode            string
	CORSAllowedOrigins []string

	ImportConcurrency int
	ImportRateLimitMs int
	ImportCSVPath     string
	ExportCSVPath     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "listing"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "listing123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listing_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 10),

		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		LogMode:            getEnv("LOG_MODE", "development"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		ImportConcurrency: getEnvInt("IMPORT_CONCURRENCY", 4),
		ImportRateLimitMs: getEnvInt("IMPORT_RATE_LIMIT_MS", 0),
		ImportCSVPath:     getEnv("IMPORT_CSV_PATH", "./data/listings.csv"),
		ExportCSVPath:     getEnv("EXPORT_CSV_PATH", "./output/price_history.csv"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
