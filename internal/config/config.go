// Package config loads server settings from an optional YAML file with
// environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"fleetnav/internal/opt"
)

type Config struct {
	Addr        string     `yaml:"addr"`
	DatabaseURL string     `yaml:"databaseUrl"`
	RedisURL    string     `yaml:"redisUrl"`
	AuthMode    string     `yaml:"authMode"` // "dev" or "hmac"
	AuthSecret  string     `yaml:"authSecret"`
	Optimizer   opt.Config `yaml:"optimizer"`
}

func Default() Config {
	return Config{
		Addr:      ":8080",
		AuthMode:  "dev",
		Optimizer: opt.DefaultConfig(),
	}
}

// Load reads path if it exists, then applies env overrides. An empty
// path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Optimizer.Validate(); err != nil {
		return cfg, fmt.Errorf("config: optimizer: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		cfg.AuthMode = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("OPT_ANTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.Ants = n
		}
	}
	if v := os.Getenv("OPT_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimizer.Iterations = n
		}
	}
	if v := os.Getenv("OPT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Optimizer.Seed = n
		}
	}
}
