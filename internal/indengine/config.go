package indengine

import (
	"time"

	"quantlab/config"
)

// Config holds the settings the indicator service runs with.
type Config struct {
	HTTPAddr string

	SQLitePath     string // empty disables the bar store
	RedisAddr      string // empty disables result publishing
	RedisPassword  string
	RedisResultTTL time.Duration

	CacheTTL       time.Duration
	CacheCapacity  int
	ComputeWorkers int

	// AdminTOTPSecret, when set, guards administrative endpoints with a
	// time-based one-time code.
	AdminTOTPSecret string

	HealthInterval time.Duration
}

// ConfigFrom maps the application configuration onto the service's.
func ConfigFrom(c *config.Config) Config {
	return Config{
		HTTPAddr:        c.HTTPAddr,
		SQLitePath:      c.SQLitePath,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		RedisResultTTL:  c.RedisResultTTL,
		CacheTTL:        c.CacheTTL,
		CacheCapacity:   c.CacheCapacity,
		ComputeWorkers:  c.ComputeWorkers,
		AdminTOTPSecret: c.AdminTOTPSecret,
		HealthInterval:  15 * time.Second,
	}
}

func (c Config) workers() int {
	if c.ComputeWorkers <= 0 {
		return 4
	}
	return c.ComputeWorkers
}
