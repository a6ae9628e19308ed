// Package config loads the engine configuration from an optional YAML file
// with environment variable overrides. A .env file, if present, is loaded
// first so local development matches deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"databaseUrl"`
	DBMaxConns  int32  `yaml:"dbMaxConns"`
	MetricsAddr string `yaml:"metricsAddr"`

	Watchdog struct {
		IntervalSeconds int `yaml:"intervalSeconds"`
		Workers         int `yaml:"workers"`
	} `yaml:"watchdog"`

	// StreamSymbols are the markets the shared miniTicker stream caches
	// last prices for, e.g. ["BTCUSDT", "ETHUSDT"].
	StreamSymbols []string `yaml:"streamSymbols"`
}

func defaults() *Config {
	c := &Config{
		DBMaxConns:  10,
		MetricsAddr: ":9100",
	}
	c.Watchdog.IntervalSeconds = 10
	c.Watchdog.Workers = 4
	return c
}

// Load reads CONFIG_PATH (default config.yaml) if it exists and applies
// environment overrides on top. DATABASE_URL is the only required value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DBMaxConns = int32(n)
		}
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("WATCHDOG_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Watchdog.IntervalSeconds = n
		}
	}
	if v := os.Getenv("WATCHDOG_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Watchdog.Workers = n
		}
	}
	if v := os.Getenv("STREAM_SYMBOLS"); v != "" {
		c.StreamSymbols = c.StreamSymbols[:0]
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.StreamSymbols = append(c.StreamSymbols, s)
			}
		}
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return c, nil
}

// WatchdogInterval returns the loop interval as a duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.IntervalSeconds) * time.Second
}
