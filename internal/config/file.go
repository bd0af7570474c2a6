// CLAUDE:SUMMARY Recorder config structs, YAML loader, SCREENRIGHT_* environment overrides and defaults.
// Package config handles screenright configuration from a YAML file and the
// SCREENRIGHT_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. They override file values.
const (
	EnvEndpoint        = "SCREENRIGHT_ENDPOINT"
	EnvDiagramID       = "SCREENRIGHT_DIAGRAM_ID"
	EnvDeploymentToken = "SCREENRIGHT_DEPLOYMENT_TOKEN"
	EnvRequestTimeout  = "SCREENRIGHT_REQUEST_TIMEOUT"
)

// Config is the top-level recorder configuration.
type Config struct {
	Endpoint        string           `yaml:"endpoint"`
	DiagramID       string           `yaml:"diagram_id"`
	DeploymentToken string           `yaml:"deployment_token"`
	RequestTimeout  time.Duration    `yaml:"request_timeout"`
	Screenshot      ScreenshotConfig `yaml:"screenshot"`
	ResultFile      string           `yaml:"result_file"` // optional local blueprint dump
	JournalDB       string           `yaml:"journal_db"`  // optional sqlite ledger
	Browser         BrowserConfig    `yaml:"browser"`
}

// ScreenshotConfig controls image capture.
type ScreenshotConfig struct {
	Format  string `yaml:"format"`  // jpeg | png
	Quality int    `yaml:"quality"` // jpeg only, 1-100
}

// BrowserConfig controls Chrome for the CLI and MCP modes.
type BrowserConfig struct {
	Remote            string        `yaml:"remote"`
	Stealth           string        `yaml:"stealth"` // headless | headful
	ResourceBlocking  []string      `yaml:"resource_blocking"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	Viewport          Viewport      `yaml:"viewport"`
}

// Viewport is the emulated window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Load reads path (if non-empty), applies environment overrides, then
// defaults. An empty path yields a config built from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvDiagramID); ok && v != "" {
		c.DiagramID = v
	}
	if v, ok := lookup(EnvDeploymentToken); ok && v != "" {
		c.DeploymentToken = v
	}
	if v, ok := lookup(EnvRequestTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	return nil
}

// ApplyDefaults fills zero values. Safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Screenshot.Format == "" {
		c.Screenshot.Format = "jpeg"
	}
	if c.Screenshot.Quality <= 0 || c.Screenshot.Quality > 100 {
		c.Screenshot.Quality = 90
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 30 * time.Second
	}
	if c.Browser.Viewport.Width <= 0 {
		c.Browser.Viewport.Width = 1280
	}
	if c.Browser.Viewport.Height <= 0 {
		c.Browser.Viewport.Height = 800
	}
}
