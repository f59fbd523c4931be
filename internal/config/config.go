// Package config loads the YAML configuration of the mqrpc command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/srand/mqrpc"
	"github.com/srand/mqrpc/serialization"
)

const (
	ModeDirect     = "direct"
	ModeConcurrent = "concurrent"

	DefaultAddress = "tcp://127.0.0.1:13777"
)

// Config configures both ends of a demo connection.
type Config struct {
	// Address is the endpoint served or called, scheme://rest.
	Address string `yaml:"address"`

	// Mode selects the server: direct serves one request at a time,
	// concurrent dispatches on a worker pool.
	Mode string `yaml:"mode"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	// Timeout bounds how long clients wait for a reply. Zero waits forever.
	Timeout    time.Duration `yaml:"timeout"`
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// RateLimit caps requests per second served. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	Serializer string `yaml:"serializer"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`

	// Development switches to the human readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Address:    DefaultAddress,
		Mode:       ModeConcurrent,
		Workers:    mqrpc.DefaultWorkers,
		QueueSize:  mqrpc.DefaultQueueSize,
		DefaultTTL: mqrpc.DefaultTTL,
		Serializer: serialization.JSONName,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads and validates the configuration file at path. Fields missing
// from the file keep their defaults; unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and names.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	switch c.Mode {
	case ModeDirect, ModeConcurrent:
	default:
		return fmt.Errorf("mode %q must be %s or %s", c.Mode, ModeDirect, ModeConcurrent)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size cannot be negative, got %d", c.QueueSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive, got %s", c.DefaultTTL)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return errors.New("rate_burst must be positive when rate_limit is set")
	}
	if _, err := serialization.ByName(c.Serializer); err != nil {
		return err
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// ClientOptions returns the options for clients of the configured endpoint.
func (c *Config) ClientOptions(logger *zap.Logger) ([]mqrpc.Option, error) {
	serializer, err := serialization.ByName(c.Serializer)
	if err != nil {
		return nil, err
	}
	return []mqrpc.Option{
		mqrpc.WithLogger(logger),
		mqrpc.WithSerializer(serializer),
		mqrpc.WithTimeout(c.Timeout),
		mqrpc.WithDefaultTTL(c.DefaultTTL),
	}, nil
}

// ServerOptions returns the options for a server of the configured endpoint.
func (c *Config) ServerOptions(logger *zap.Logger) ([]mqrpc.Option, error) {
	serializer, err := serialization.ByName(c.Serializer)
	if err != nil {
		return nil, err
	}
	opts := []mqrpc.Option{
		mqrpc.WithLogger(logger),
		mqrpc.WithSerializer(serializer),
		mqrpc.WithWorkers(c.Workers),
		mqrpc.WithQueueSize(c.QueueSize),
	}
	if c.RateLimit > 0 {
		opts = append(opts, mqrpc.WithRateLimit(c.RateLimit, c.RateBurst))
	}
	return opts, nil
}
