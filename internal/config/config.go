package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tutorboard/pkg/database"
)

// Config holds the full runtime configuration. Defaults cover local
// development; environment variables prefixed TUTORBOARD_ override them.
type Config struct {
	Database  *database.Config `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Pricing   *PricingConfig   `json:"pricing"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig carries the HS256 secret shared with the account service.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type PricingConfig struct {
	RefreshInterval time.Duration `json:"refresh_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: database.DefaultConfig(),
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			JWTSecret: "",
		},
		Pricing: &PricingConfig{
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// Load reads an optional .env file, then builds the configuration from
// defaults and environment overrides. The JWT secret has no default and
// must come from the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if host := os.Getenv("TUTORBOARD_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("TUTORBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("TUTORBOARD_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("TUTORBOARD_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	if path := os.Getenv("TUTORBOARD_DATABASE_PATH"); path != "" {
		cfg.Database.DatabasePath = path
	}
	if conns := os.Getenv("TUTORBOARD_DATABASE_MAX_CONNECTIONS"); conns != "" {
		if n, err := strconv.Atoi(conns); err == nil {
			cfg.Database.MaxConnections = n
		}
	}

	if interval := os.Getenv("TUTORBOARD_WEBSOCKET_PING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.WebSocket.PingInterval = d
		}
	}
	if timeout := os.Getenv("TUTORBOARD_WEBSOCKET_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebSocket.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("TUTORBOARD_WEBSOCKET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.WebSocket.WriteTimeout = d
		}
	}
	if size := os.Getenv("TUTORBOARD_WEBSOCKET_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}

	if secret := os.Getenv("TUTORBOARD_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if interval := os.Getenv("TUTORBOARD_PRICING_REFRESH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Pricing.RefreshInterval = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required (TUTORBOARD_JWT_SECRET)")
	}

	if c.Pricing == nil || c.Pricing.RefreshInterval < 0 {
		return fmt.Errorf("pricing refresh interval must not be negative")
	}

	return nil
}
