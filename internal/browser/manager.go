// CLAUDE:SUMMARY Chrome lifecycle for capture runs: launch locally (headless or headful under Xvfb) or attach to a remote instance.
// Package browser drives Chrome through Rod for capture runs. A Manager
// owns the browser process; Pages opened from it implement
// capture.Navigator.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelPlain    StealthLevel = 0 // Rod headless, no stealth patches
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + stealth under Xvfb
)

// ParseLevel maps the config value (plain, headless, headful) to a level.
// Empty means LevelHeadless.
func ParseLevel(s string) (StealthLevel, error) {
	switch strings.ToLower(s) {
	case "", "headless":
		return LevelHeadless, nil
	case "plain":
		return LevelPlain, nil
	case "headful":
		return LevelHeadful, nil
	}
	return 0, fmt.Errorf("browser: unknown stealth level %q", s)
}

func (l StealthLevel) String() string {
	switch l {
	case LevelPlain:
		return "plain"
	case LevelHeadful:
		return "headful"
	}
	return "headless"
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// ResourceBlocking lists resource types to block (fonts, media, ...).
	// Blocking images or stylesheets changes what the screenshots show.
	ResourceBlocking []string

	// Stealth sets the page mode. Default: LevelHeadless.
	Stealth StealthLevel

	// NavigationTimeout bounds Navigate and element lookup. Default: 30s.
	NavigationTimeout time.Duration

	// ViewportWidth and ViewportHeight set the emulated window. Default: 1280x800.
	ViewportWidth  int
	ViewportHeight int

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome process.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}
	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return err
	}
	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Stealth == LevelHeadful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false).Env("DISPLAY="+m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth.String())
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}
