// Package models defines data structures for configuration and run records.
package models

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRatio         = 0.43
	DefaultBatchSize     = 50
	DefaultQueueCapacity = 1000
	DefaultDebounce      = 1000 * time.Millisecond
	DefaultPollInterval  = 200 * time.Millisecond
	DefaultAncestorDepth = 5
	DefaultWordCacheSize = 4096
	DefaultFrameInterval = 16 * time.Millisecond
)

// DefaultRegionSelectors match the assistant response bodies of common chat UIs.
var DefaultRegionSelectors = []string{
	"[data-message-author-role=assistant] .markdown",
	".markdown.prose",
	".model-response-text",
}

// DefaultProtectedTags are never transformed, nor is anything beneath them.
var DefaultProtectedTags = []string{
	"code", "pre", "kbd", "samp", "var",
	"script", "style", "noscript", "template",
	"textarea", "input", "select", "option", "button",
	"svg", "math", "iframe", "canvas",
	"head", "title",
}

// DefaultProtectedSelectors mark user-authored and live-input regions.
var DefaultProtectedSelectors = []string{
	"[data-message-author-role=user]",
	"[role=textbox]",
	".user-note",
}

// Config holds runtime configuration for the engine. Values come from an
// optional YAML file and are overridden by CLI flags.
type Config struct {
	Ratio              float64       `yaml:"ratio"`
	BatchSize          int           `yaml:"batch_size"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	Debounce           time.Duration `yaml:"debounce"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	FrameInterval      time.Duration `yaml:"frame_interval"`
	AncestorDepth      int           `yaml:"ancestor_depth"`
	RegionSelectors    []string      `yaml:"region_selectors"`
	ProtectedTags      []string      `yaml:"protected_tags"`
	ProtectedSelectors []string      `yaml:"protected_selectors"`
	CursorSelector     string        `yaml:"cursor_selector"`
	DetectCursor       bool          `yaml:"detect_cursor"`
	Languages          []string      `yaml:"languages,omitempty"`
	WordCacheSize      int           `yaml:"word_cache_size"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// LoadConfig reads a YAML config file. A missing file is not an error; the
// defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize replaces zero or out-of-range values with defaults.
func (c *Config) Normalize() {
	if c.Ratio <= 0 || c.Ratio >= 1 {
		c.Ratio = DefaultRatio
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.AncestorDepth <= 0 {
		c.AncestorDepth = DefaultAncestorDepth
	}
	if len(c.RegionSelectors) == 0 {
		c.RegionSelectors = append([]string(nil), DefaultRegionSelectors...)
	}
	if len(c.ProtectedTags) == 0 {
		c.ProtectedTags = append([]string(nil), DefaultProtectedTags...)
	}
	if len(c.ProtectedSelectors) == 0 {
		c.ProtectedSelectors = append([]string(nil), DefaultProtectedSelectors...)
	}
	if c.CursorSelector == "" {
		c.CursorSelector = ".result-streaming, .typing-cursor"
	}
	if c.WordCacheSize <= 0 {
		c.WordCacheSize = DefaultWordCacheSize
	}
}
