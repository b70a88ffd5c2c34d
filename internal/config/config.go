package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"
)

type Config struct {
	Server   ServerConfig
	GitHub   GitHubConfig
	Cache    CacheConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Admin    AdminConfig
	App      AppConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	CORSOrigins []string
}

type GitHubConfig struct {
	APIBaseURL   string
	Token        string
	Owner        string
	ExcludedRepo string
	Timeout      time.Duration
}

type CacheConfig struct {
	Backend       string
	Key           string
	MaxAge        time.Duration
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type DatabaseConfig struct {
	Path string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	To       string
}

type AdminConfig struct {
	Username string
	Password string
}

type AppConfig struct {
	ContentPath string
	Version     string
}

// Load reads the environment once. A .env file in the working directory is
// applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", ""),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		GitHub: GitHubConfig{
			APIBaseURL:   getEnv("GITHUB_API_URL", "https://api.github.com"),
			Token:        getEnv("GITHUB_TOKEN", ""),
			Owner:        getEnv("GITHUB_OWNER", "jp1648"),
			ExcludedRepo: getEnv("GITHUB_EXCLUDE", "website2"),
			Timeout:      getEnvAsDuration("GITHUB_TIMEOUT", 0),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", CacheBackendSQLite),
			Key:           getEnv("CACHE_KEY", "github_projects"),
			MaxAge:        getEnvAsDuration("CACHE_MAX_AGE", 24*time.Hour),
			Dir:           getEnv("CACHE_DIR", "cache"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "portfolio.db"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			To:       getEnv("TO_EMAIL", ""),
		},
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", "admin123"),
		},
		App: AppConfig{
			ContentPath: getEnv("CONTENT_PATH", ""),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.GitHub.Owner == "" {
		return fmt.Errorf("GITHUB_OWNER is required")
	}

	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendRedis, CacheBackendFile, CacheBackendMemory:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of sqlite, redis, file, memory; got %q", c.Cache.Backend)
	}

	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("CACHE_MAX_AGE must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
