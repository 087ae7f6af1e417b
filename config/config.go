/*
Package config loads the server configuration from a YAML file.

Every field has a default, so a missing file or a partial file is fine:

	server:
	  address: ":50005"
	  max_connections: 0
	  max_line_bytes: 65536
	cache:
	  size: 10
	  policy: FIFO
	storage:
	  path: kvstorage.txt
	  write_mode: write-through
	log:
	  level: info
	  format: text
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/krisalay/kv-cache-server/eviction"
	"github.com/krisalay/kv-cache-server/server"
	"github.com/krisalay/kv-cache-server/storage"
	"github.com/krisalay/kv-cache-server/writepolicy"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full server configuration.
type Config struct {
	Server struct {
		Address        string `yaml:"address"`
		MaxConnections int    `yaml:"max_connections"`
		MaxLineBytes   int    `yaml:"max_line_bytes"`
	} `yaml:"server"`

	Cache struct {
		Size   int    `yaml:"size"`
		Policy string `yaml:"policy"`
	} `yaml:"cache"`

	Storage struct {
		Path      string `yaml:"path"`
		WriteMode string `yaml:"write_mode"`
	} `yaml:"storage"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.Server.Address = server.DefaultAddress
	c.Server.MaxLineBytes = server.DefaultMaxLineBytes
	c.Cache.Size = 10
	c.Cache.Policy = string(eviction.FIFO)
	c.Storage.Path = storage.DefaultPath
	c.Storage.WriteMode = string(writepolicy.WriteThrough)
	c.Log.Level = "info"
	c.Log.Format = "text"
	return &c
}

/*
Load reads path over the defaults.

A missing file is not an error: the defaults are returned as is. The result
is validated.
*/
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that has a fixed domain.
func (c *Config) Validate() error {
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("%w: server.max_connections must be >= 0", ErrInvalid)
	}
	if c.Server.MaxLineBytes < 0 {
		return fmt.Errorf("%w: server.max_line_bytes must be >= 0", ErrInvalid)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("%w: cache.size must be >= 0", ErrInvalid)
	}
	if _, err := eviction.ParsePolicyType(c.Cache.Policy); err != nil {
		return fmt.Errorf("%w: cache.policy: %w", ErrInvalid, err)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is empty", ErrInvalid)
	}
	if _, err := writepolicy.ParseMode(c.Storage.WriteMode); err != nil {
		return fmt.Errorf("%w: storage.write_mode: %w", ErrInvalid, err)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// PolicyType returns the parsed eviction policy. Call after Validate.
func (c *Config) PolicyType() eviction.PolicyType {
	p, _ := eviction.ParsePolicyType(c.Cache.Policy)
	return p
}

// WriteMode returns the parsed write mode. Call after Validate.
func (c *Config) WriteMode() writepolicy.Mode {
	m, _ := writepolicy.ParseMode(c.Storage.WriteMode)
	return m
}

// ServerConfig returns the transport settings.
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Address:        c.Server.Address,
		MaxConnections: c.Server.MaxConnections,
		MaxLineBytes:   c.Server.MaxLineBytes,
	}
}

// ParseLogLevel maps debug, info, warn and error to a slog level. Empty means info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := ParseLogLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(c.Log.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
