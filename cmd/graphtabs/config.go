package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thesantatitan/graphtabs/thumbcache"
)

// Config holds all graphtabs configuration.
type Config struct {
	Addr      string          `yaml:"addr"`
	DBPath    string          `yaml:"db_path"`
	LogLevel  string          `yaml:"log_level"`
	Browser   BrowserConfig   `yaml:"browser"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
}

// BrowserConfig controls how the browser is reached.
type BrowserConfig struct {
	RemoteURL string `yaml:"remote_url"`
	Headful   bool   `yaml:"headful"`
}

// ThumbnailConfig controls the thumbnail cache.
type ThumbnailConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Quality        int           `yaml:"quality"`
	MaxEntries     int           `yaml:"max_entries"`
	MaxTotalBytes  int64         `yaml:"max_total_bytes"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.DBPath == "" {
		c.DBPath = "graphtabs.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ThumbcacheConfig maps the file settings onto the service config,
// leaving zero values to its own defaults.
func (c *Config) ThumbcacheConfig() thumbcache.Config {
	return thumbcache.Config{
		Debounce:       c.Thumbnail.Debounce,
		ThumbWidth:     c.Thumbnail.Width,
		ThumbHeight:    c.Thumbnail.Height,
		Quality:        c.Thumbnail.Quality,
		MaxEntries:     c.Thumbnail.MaxEntries,
		MaxTotalBytes:  c.Thumbnail.MaxTotalBytes,
		CaptureTimeout: c.Thumbnail.CaptureTimeout,
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
