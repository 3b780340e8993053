package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig collects every knob the arena server reads at startup.
// Values come from an optional YAML file (CONFIG_FILE) with environment
// variables taking precedence.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	IdentityBaseURL string `yaml:"identity_base_url"`

	MoveValidation bool     `yaml:"move_validation"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	EgressBuffer int `yaml:"egress_buffer"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:   ":3001",
		EgressBuffer: 32,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("IDENTITY_BASE_URL")); v != "" {
		cfg.IdentityBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_VALIDATION")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MoveValidation = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("EGRESS_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EgressBuffer = n
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	return cfg, nil
}
