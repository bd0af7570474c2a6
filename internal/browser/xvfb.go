// CLAUDE:SUMMARY Starts and stops an Xvfb virtual display for headful capture runs.
package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// startXvfb launches an Xvfb virtual display sized to the viewport.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	screen := fmt.Sprintf("%dx%dx24", m.cfg.ViewportWidth, m.cfg.ViewportHeight)
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd

	// Xvfb has no readiness signal.
	time.Sleep(500 * time.Millisecond)

	m.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", screen, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped")
	m.xvfb = nil
}
