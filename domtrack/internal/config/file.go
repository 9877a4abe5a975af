// Package config handles domtrack configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domtrack/domtrack/dom"
)

// Config is the top-level domtrack configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Scan    ScanConfig    `yaml:"scan"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig defines a page whose nodes are tracked.
type PageConfig struct {
	ID           string        `yaml:"id"`
	URL          string        `yaml:"url"`
	Categories   []string      `yaml:"categories"` // text_input | link | decimal value
	TickInterval time.Duration `yaml:"tick_interval"`
	TrackFixed   bool          `yaml:"track_fixed"`
}

// ScanConfig controls how node insertions are coalesced into scans.
type ScanConfig struct {
	Window     time.Duration `yaml:"window"`
	MaxPending int           `yaml:"max_pending"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type      string  `yaml:"type"`       // stdout | webhook | journal
	URL       string  `yaml:"url"`        // webhook
	RateLimit float64 `yaml:"rate_limit"` // webhook, requests per second, 0 = unlimited
	Burst     int     `yaml:"burst"`      // webhook
	Path      string  `yaml:"path"`       // journal
}

// HTTPConfig enables the status API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Scan.Window <= 0 {
		c.Scan.Window = 100 * time.Millisecond
	}
	if c.Scan.MaxPending <= 0 {
		c.Scan.MaxPending = 256
	}
	for i := range c.Pages {
		c.Pages[i].ApplyDefaults()
	}
}

// ApplyDefaults fills zero values of a single page.
func (p *PageConfig) ApplyDefaults() {
	if p.ID == "" {
		p.ID = p.URL
	}
	if p.TickInterval <= 0 {
		p.TickInterval = 500 * time.Millisecond
	}
	if len(p.Categories) == 0 {
		p.Categories = []string{dom.TextInput.String(), dom.Link.String()}
	}
}

// Validate checks page URLs, categories and sink types.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q: url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
		if _, err := p.ParsedCategories(); err != nil {
			return fmt.Errorf("config: page %q: %w", p.ID, err)
		}
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink: url is required")
			}
		case "journal":
			if s.Path == "" {
				return fmt.Errorf("config: journal sink: path is required")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}

// ParsedCategories converts the configured category names.
func (p PageConfig) ParsedCategories() ([]dom.Category, error) {
	out := make([]dom.Category, 0, len(p.Categories))
	for _, s := range p.Categories {
		c, err := dom.ParseCategory(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
