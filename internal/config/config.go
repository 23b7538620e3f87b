// Package config loads the formrelay configuration from a TOML file and the
// process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/busybox42/formrelay/internal/delivery"
)

// Config represents the application configuration.
type Config struct {
	Server struct {
		Listen         string   `toml:"listen"`
		WebRoot        string   `toml:"web_root"`
		Environment    string   `toml:"environment"`
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"server"`

	Upload struct {
		Dir string `toml:"dir"`
	} `toml:"upload"`

	Email struct {
		Host           string `toml:"host"`
		Port           int    `toml:"port"`
		Secure         bool   `toml:"secure"` // implicit TLS on the primary port
		Username       string `toml:"username"`
		Password       string `toml:"password"`
		Sender         string `toml:"sender"`
		Recipient      string `toml:"recipient"`
		FallbackPort   int    `toml:"fallback_port"`
		AttemptTimeout int    `toml:"attempt_timeout"` // seconds
	} `toml:"email"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"logging"`

	RateLimit struct {
		Enabled           bool    `toml:"enabled"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		Burst             int     `toml:"burst"`
	} `toml:"rate_limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Listen = ":3000"
	cfg.Server.WebRoot = "./web/static"
	cfg.Server.Environment = "development"

	cfg.Upload.Dir = "./uploads"

	cfg.Email.Port = 465
	cfg.Email.Secure = true
	cfg.Email.FallbackPort = 587
	cfg.Email.AttemptTimeout = 30

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 5.0
	cfg.RateLimit.Burst = 10

	return cfg
}

// FindConfigFile looks for a configuration file in common locations.
func FindConfigFile(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("config file not found at specified path: %s", configPath)
	}

	locations := []string{
		"./formrelay.conf",
		"./config/formrelay.conf",
		os.ExpandEnv("$HOME/.formrelay.conf"),
		"/etc/formrelay/formrelay.conf",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}

	return "", fmt.Errorf("no config file found")
}

// LoadConfig loads the configuration: defaults first, then the TOML file if
// one is found, then environment variable overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	configFile, err := FindConfigFile(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing TOML configuration: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays the recognized environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Listen = ":" + v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Server.Environment = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Upload.Dir = v
	}
	if v := os.Getenv("EMAIL_HOST"); v != "" {
		c.Email.Host = v
	}
	if v := os.Getenv("EMAIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Email.Port = port
		}
	}
	if v := os.Getenv("EMAIL_SECURE"); v != "" {
		c.Email.Secure = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EMAIL_USER"); v != "" {
		c.Email.Username = v
		if c.Email.Sender == "" {
			c.Email.Sender = v
		}
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv("RECIPIENT_EMAIL"); v != "" {
		c.Email.Recipient = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if c.Email.Host == "" {
		problems = append(problems, "email host is required")
	}
	if c.Email.Port <= 0 || c.Email.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid email port %d", c.Email.Port))
	}
	if c.Email.Sender == "" {
		problems = append(problems, "sender email is required")
	}
	if c.Email.Recipient == "" {
		problems = append(problems, "recipient email is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Production reports whether this is a production-designated environment.
// TLS certificate verification against the SMTP provider is strict only here.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// AttemptTimeout returns the per-attempt delivery timeout.
func (c *Config) AttemptTimeout() time.Duration {
	if c.Email.AttemptTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Email.AttemptTimeout) * time.Second
}

// Transports builds the immutable primary and fallback transport
// configurations. The fallback reuses the credentials on the other port/TLS
// posture: providers that reject implicit TLS on 465 often accept STARTTLS on
// 587, and the other way around.
func (c *Config) Transports() (primary, fallback delivery.TransportConfig) {
	insecure := !c.Production()

	primary = delivery.TransportConfig{
		Host:               c.Email.Host,
		Port:               c.Email.Port,
		ImplicitTLS:        c.Email.Secure,
		Username:           c.Email.Username,
		Password:           c.Email.Password,
		InsecureSkipVerify: insecure,
	}

	fallbackPort := c.Email.FallbackPort
	if fallbackPort == 0 {
		if c.Email.Secure {
			fallbackPort = 587
		} else {
			fallbackPort = 465
		}
	}

	fallback = delivery.TransportConfig{
		Host:               c.Email.Host,
		Port:               fallbackPort,
		ImplicitTLS:        !c.Email.Secure,
		Username:           c.Email.Username,
		Password:           c.Email.Password,
		InsecureSkipVerify: insecure,
	}

	return primary, fallback
}

// EnsureUploadDirectory creates the managed upload directory if missing.
func (c *Config) EnsureUploadDirectory() error {
	if err := os.MkdirAll(c.Upload.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	return nil
}

// SaveConfig writes the configuration to a file in TOML format.
func (c *Config) SaveConfig(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
