package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/unitybundle/internal/bundle"
)

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks every field and normalizes codec and platform names to lower case
func (c *Config) Validate() error {
	c.Compression = strings.ToLower(strings.TrimSpace(c.Compression))
	c.Limits = strings.ToLower(strings.TrimSpace(c.Limits))

	if _, err := c.BlockCompression(); err != nil {
		return err
	}
	if _, err := c.SizeLimits(); err != nil {
		return err
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Database == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", c.LogFormat)
	}

	return nil
}

// BlockCompression returns the codec bundles are transcoded to
func (c *Config) BlockCompression() (bundle.Compression, error) {
	compression, err := bundle.ParseCompression(c.Compression)
	if err != nil {
		return bundle.CompressionNone, err
	}
	// zstd is decode-only
	if compression == bundle.CompressionZstd {
		return bundle.CompressionNone, fmt.Errorf("%w: cannot transcode to %s", bundle.ErrUnsupportedCompression, compression)
	}
	return compression, nil
}

// SizeLimits returns the platform limits applied when decoding and encoding
func (c *Config) SizeLimits() (bundle.Limits, error) {
	return bundle.LimitsFor(bundle.Platform(c.Limits))
}

// ParseLogLevel maps a level name to its slog level
func ParseLogLevel(level string) (slog.Level, error) {
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", level)
	}
	return l, nil
}
