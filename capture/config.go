package capture

import "github.com/hazyhaar/screenright/internal/config"

// Config is the recorder configuration. Re-exported from internal.
type Config = config.Config

// ScreenshotConfig controls image capture.
type ScreenshotConfig = config.ScreenshotConfig

// BrowserConfig controls Chrome for the CLI and MCP modes.
type BrowserConfig = config.BrowserConfig

// LoadConfig reads a YAML file (optional) and applies the SCREENRIGHT_*
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
