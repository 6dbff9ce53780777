// Package config provides configuration management for TaskFlow.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for TaskFlow.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Board   BoardConfig   `mapstructure:"board"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// StorageConfig holds persistence gateway configuration.
// Driver selects the record store: memory, sqlite, or postgres.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AuthConfig holds the simulated credential policy and token lifetimes.
type AuthConfig struct {
	MinPasswordLength int `mapstructure:"minPasswordLength"`
	AccessTokenTTL    int `mapstructure:"accessTokenTTL"`   // in seconds
	RefreshTokenTTL   int `mapstructure:"refreshTokenTTL"`  // in seconds
	RefreshInterval   int `mapstructure:"refreshInterval"`  // in seconds
	RefreshThreshold  int `mapstructure:"refreshThreshold"` // in seconds
}

// BoardConfig holds the artificial delay model for board mutations.
type BoardConfig struct {
	SaveDelay    int `mapstructure:"saveDelay"`    // in milliseconds
	ReorderDelay int `mapstructure:"reorderDelay"` // in milliseconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// AccessTokenTTLDuration returns the access token lifetime as a time.Duration.
func (a *AuthConfig) AccessTokenTTLDuration() time.Duration {
	return time.Duration(a.AccessTokenTTL) * time.Second
}

// RefreshTokenTTLDuration returns the refresh token lifetime as a time.Duration.
func (a *AuthConfig) RefreshTokenTTLDuration() time.Duration {
	return time.Duration(a.RefreshTokenTTL) * time.Second
}

// RefreshIntervalDuration returns the refresh poll interval as a time.Duration.
func (a *AuthConfig) RefreshIntervalDuration() time.Duration {
	return time.Duration(a.RefreshInterval) * time.Second
}

// RefreshThresholdDuration returns the refresh threshold as a time.Duration.
func (a *AuthConfig) RefreshThresholdDuration() time.Duration {
	return time.Duration(a.RefreshThreshold) * time.Second
}

// SaveDelayDuration returns the create/update/delete delay as a time.Duration.
func (b *BoardConfig) SaveDelayDuration() time.Duration {
	return time.Duration(b.SaveDelay) * time.Millisecond
}

// ReorderDelayDuration returns the move/reorder delay as a time.Duration.
func (b *BoardConfig) ReorderDelayDuration() time.Duration {
	return time.Duration(b.ReorderDelay) * time.Millisecond
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "taskflow.db")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.user", "taskflow")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.dbName", "taskflow")
	v.SetDefault("storage.sslMode", "disable")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "taskflow")
	v.SetDefault("nats.maxReconnects", 10)

	// Auth defaults match the simulated credential check in the source app
	v.SetDefault("auth.minPasswordLength", 4)
	v.SetDefault("auth.accessTokenTTL", 30)
	v.SetDefault("auth.refreshTokenTTL", 7*24*60*60)
	v.SetDefault("auth.refreshInterval", 5)
	v.SetDefault("auth.refreshThreshold", 5)

	// Board defaults: 800ms for create/update/delete/load, 300ms for
	// move/reorder so drag gestures stay responsive
	v.SetDefault("board.saveDelay", 800)
	v.SetDefault("board.reorderDelay", 300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix TASKFLOW_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/taskflow/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskflow/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks the configuration for invalid values.
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage driver: %q", cfg.Storage.Driver)
	}
	if cfg.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("invalid auth.minPasswordLength: %d", cfg.Auth.MinPasswordLength)
	}
	if cfg.Board.SaveDelay < 0 || cfg.Board.ReorderDelay < 0 {
		return fmt.Errorf("board delays must not be negative")
	}
	return nil
}
