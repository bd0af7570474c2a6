package collector

import (
	"crypto/subtle"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures the development collector.
type Config struct {
	Addr           string `yaml:"addr"`
	DB             string `yaml:"db"`
	DataDir        string `yaml:"data_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	// Tokens maps a diagram ID to the deployment token it accepts. A "*"
	// entry applies to diagrams not listed. With no entries at all, any
	// non-empty token is accepted.
	Tokens map[string]string `yaml:"tokens"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8787"
	}
	if c.DB == "" {
		c.DB = "collector.db"
	}
	if c.DataDir == "" {
		c.DataDir = "screenshots"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

// LoadConfig reads a YAML config file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("collector: parse %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) tokenAllowed(diagramID, token string) bool {
	if token == "" {
		return false
	}
	want, ok := c.Tokens[diagramID]
	if !ok {
		want, ok = c.Tokens["*"]
	}
	if !ok {
		return len(c.Tokens) == 0
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}
