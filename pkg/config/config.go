package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/kterm/internal/journal"
	"github.com/srg/kterm/internal/terminal"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel      string        `yaml:"log_level" default:"info"`
	RingCapacity  int           `yaml:"ring_capacity" default:"1024"`
	DefaultWidth  int32         `yaml:"default_width" default:"80"`
	DefaultHeight int32         `yaml:"default_height" default:"25"`
	JournalSize   uint32        `yaml:"journal_size" default:"256"`
	PollTimeout   time.Duration `yaml:"poll_timeout" default:"50ms"`
	OutputFormat  string        `yaml:"output_format" default:"text"` // text, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value; an empty path yields DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field against the limits its consumer enforces.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("ring_capacity must be positive, got %d", c.RingCapacity)
	}
	// terminal.Options reads 0 as "use the default", so a configured 0 would
	// silently turn into 80x25. A 0 geometry is only reachable via resize.
	if c.DefaultWidth <= 0 || c.DefaultHeight <= 0 {
		return fmt.Errorf("default geometry must be positive, got %dx%d", c.DefaultWidth, c.DefaultHeight)
	}
	if c.JournalSize == 0 || c.JournalSize > journal.MaxSize {
		return fmt.Errorf("journal_size must be in 1..%d, got %d", journal.MaxSize, c.JournalSize)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive, got %s", c.PollTimeout)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output_format %q (must be text or json)", c.OutputFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log_level: %w", err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// TerminalOptions returns the creation overrides for new terminal nodes.
func (c *Config) TerminalOptions() terminal.Options {
	return terminal.Options{
		Capacity: c.RingCapacity,
		Width:    c.DefaultWidth,
		Height:   c.DefaultHeight,
	}
}
