package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from the
// environment (optionally seeded from .env); a YAML file named by
// CONFIG_FILE is applied on top.
type Config struct {
	// HTTP API
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`

	// Infrastructure
	SQLitePath     string        `yaml:"sqlite_path"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisResultTTL time.Duration `yaml:"redis_result_ttl"`

	// Compute
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheCapacity  int           `yaml:"cache_capacity"`
	ComputeWorkers int           `yaml:"compute_workers"`

	// Admin
	AdminTOTPSecret string `yaml:"admin_totp_secret"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":9095"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SQLitePath:     getEnv("SQLITE_PATH", "data/bars.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisResultTTL: time.Duration(getEnvInt("REDIS_RESULT_TTL_SEC", 1800)) * time.Second,

		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_MS", 5000)) * time.Millisecond,
		CacheCapacity:  getEnvInt("CACHE_CAPACITY", 50),
		ComputeWorkers: getEnvInt("COMPUTE_WORKERS", 4),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: http_addr is empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %v", c.CacheTTL)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("config: cache capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.ComputeWorkers <= 0 {
		return fmt.Errorf("config: compute workers must be positive, got %d", c.ComputeWorkers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
