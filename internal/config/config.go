package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	API       APIConfig
	Redis     RedisConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// APIConfig describes the REST backend that stores messages
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type RedisConfig struct {
	URI          string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// Enabled reports whether presence tracking and rate limiting should use Redis
func (r RedisConfig) Enabled() bool {
	return r.URI != ""
}

type WebSocketConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	MaxMessageSize int64
	// Connections allowed per client IP per minute, 0 disables the limit
	RateLimit int
}

type LogConfig struct {
	Level  string
	Format string
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// Validate checks the settings the relay cannot run without
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL %q is not an absolute URL", c.API.BaseURL)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be positive, got %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("RELAY_MAX_MESSAGE_SIZE must be positive, got %d", c.WebSocket.MaxMessageSize)
	}
	return nil
}

// LoadConfig reads settings from the environment, after loading a .env file when one exists
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	v := viper.New()
	v.SetDefault("RELAY_HOST", "")
	v.SetDefault("RELAY_PORT", "3000")
	v.SetDefault("RELAY_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("RELAY_IDLE_TIMEOUT", 120*time.Second)
	v.SetDefault("RELAY_API_TIMEOUT", 10*time.Second)
	v.SetDefault("RELAY_USER_AGENT", "Socket-Chat-Dispatch V1")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("RELAY_SEND_BUFFER", 256)
	v.SetDefault("RELAY_MAX_MESSAGE_SIZE", 64*1024)
	v.SetDefault("RELAY_WS_RATE_LIMIT", 30)
	v.SetDefault("RELAY_LOG_LEVEL", "info")
	v.SetDefault("RELAY_LOG_FORMAT", "text")
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("RELAY_HOST"),
			Port:         v.GetString("RELAY_PORT"),
			ReadTimeout:  v.GetDuration("RELAY_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("RELAY_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("RELAY_IDLE_TIMEOUT"),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
			Timeout:   v.GetDuration("RELAY_API_TIMEOUT"),
			UserAgent: v.GetString("RELAY_USER_AGENT"),
		},
		Redis: RedisConfig{
			URI:          v.GetString("REDIS_URL"),
			MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
			SendBuffer:     v.GetInt("RELAY_SEND_BUFFER"),
			MaxMessageSize: v.GetInt64("RELAY_MAX_MESSAGE_SIZE"),
			RateLimit:      v.GetInt("RELAY_WS_RATE_LIMIT"),
		},
		Log: LogConfig{
			Level:  v.GetString("RELAY_LOG_LEVEL"),
			Format: v.GetString("RELAY_LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
