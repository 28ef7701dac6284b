package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PairingConfig controls the activation code lifecycle.
type PairingConfig struct {
	TTL              time.Duration `yaml:"ttl"`                // code validity window
	CodeLength       int           `yaml:"code_length"`        // characters per code
	ClaimLimitCode   int           `yaml:"claim_limit_code"`   // claim attempts per code per window
	ClaimLimitCaller int           `yaml:"claim_limit_caller"` // claim attempts per caller per window
	ClaimWindow      time.Duration `yaml:"claim_window"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	Retention        time.Duration `yaml:"retention"` // keep terminal rows this long after expiry
	StatusCacheTTL   time.Duration `yaml:"status_cache_ttl"`
}

type SecurityConfig struct {
	ConsumeAPIKey   string        `yaml:"consume_api_key"` // bearer token for the trusted consume caller
	SessionSignKey  string        `yaml:"session_sign_key"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pairing  PairingConfig  `yaml:"pairing"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML config at path and applies defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Pairing.TTL <= 0 {
		cfg.Pairing.TTL = 15 * time.Minute
	}
	if cfg.Pairing.CodeLength <= 0 {
		cfg.Pairing.CodeLength = 6
	}
	if cfg.Pairing.ClaimLimitCode <= 0 {
		cfg.Pairing.ClaimLimitCode = 10
	}
	if cfg.Pairing.ClaimLimitCaller <= 0 {
		cfg.Pairing.ClaimLimitCaller = 30
	}
	if cfg.Pairing.ClaimWindow <= 0 {
		cfg.Pairing.ClaimWindow = cfg.Pairing.TTL
	}
	if cfg.Pairing.SweepInterval <= 0 {
		cfg.Pairing.SweepInterval = time.Minute
	}
	if cfg.Pairing.Retention <= 0 {
		cfg.Pairing.Retention = 24 * time.Hour
	}
	if cfg.Pairing.StatusCacheTTL <= 0 {
		cfg.Pairing.StatusCacheTTL = 2 * time.Second
	}
	if cfg.Security.SessionLifetime <= 0 {
		cfg.Security.SessionLifetime = 30 * 24 * time.Hour
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Security.SessionSignKey == "" && !c.Runtime.Dev {
		return errors.New("security.session_sign_key is required outside dev mode")
	}
	return nil
}
