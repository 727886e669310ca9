package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Executor ExecutorConfig `yaml:"executor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GetHost returns the configured host, defaulting to all interfaces.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}
	return s.Host
}

// DatabaseConfig holds the MySQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds the API key every /api request must present.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// ExecutorConfig holds flow executor settings.
type ExecutorConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// TickInterval returns the executor period, defaulting to 100ms.
func (e ExecutorConfig) TickInterval() time.Duration {
	if e.TickIntervalMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(e.TickIntervalMs) * time.Millisecond
}

// Load reads an optional yaml file, then applies environment overrides.
// A missing file is not an error: everything can come from the environment.
func Load(path string) (*Config, error) {
	// .env is a developer convenience; ignore when absent.
	_ = godotenv.Load()

	cfg := &Config{
		Server:   ServerConfig{Port: 3000},
		Executor: ExecutorConfig{TickIntervalMs: 100},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.APIKey == "" {
		return nil, fmt.Errorf("SEGFLOW_API_KEY is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SEGFLOW_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SEGFLOW_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Executor.TickIntervalMs = ms
		}
	}
}
