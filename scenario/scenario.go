// CLAUDE:SUMMARY YAML exploration scripts: parse, validate and run steps (navigate, capture, click) through a recorder session.
// Package scenario runs scripted explorations. A scenario is a YAML list
// of steps; each step optionally navigates, then captures the page under
// a key, optionally nested under an earlier key and optionally clicking
// an element afterwards.
package scenario

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/screenright/capture"
)

// Scenario is a parsed exploration script.
type Scenario struct {
	// DiagramID overrides the configured diagram when set.
	DiagramID string `yaml:"diagram_id"`

	// BaseURL resolves relative step URLs.
	BaseURL string `yaml:"base_url"`

	Steps []Step `yaml:"steps"`
}

// Step is one capture.
type Step struct {
	URL        string        `yaml:"url"`
	Key        string        `yaml:"key"`
	Title      string        `yaml:"title"`
	Parent     string        `yaml:"parent"`
	Wait       time.Duration `yaml:"wait"`
	Click      string        `yaml:"click"`
	Annotation string        `yaml:"annotation"`
	Padding    *int          `yaml:"padding"`
	Direction  string        `yaml:"direction"`
	Color      string        `yaml:"color"`
}

// Options converts the step to capture options.
func (s Step) Options() capture.CaptureOptions {
	return capture.CaptureOptions{
		ParentKey:      s.Parent,
		Wait:           s.Wait,
		ClickSelector:  s.Click,
		AnnotationText: s.Annotation,
		PaddingPixel:   s.Padding,
		Direction:      capture.Direction(s.Direction),
		TextColor:      capture.Color(s.Color),
	}
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks what can be known before a browser starts: keys are
// present, unique and separator-free, parents refer to earlier steps and
// URLs resolve. All problems are reported together.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return errors.New("no steps")
	}
	if sc.BaseURL != "" {
		if _, err := url.Parse(sc.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}

	var errs []error
	seen := make(map[string]bool, len(sc.Steps))
	for i, st := range sc.Steps {
		where := fmt.Sprintf("step %d", i+1)
		switch {
		case st.Key == "":
			errs = append(errs, fmt.Errorf("%s: key required", where))
		case strings.ContainsAny(st.Key, `/\`):
			errs = append(errs, fmt.Errorf("%s: key %q contains a path separator", where, st.Key))
		case seen[st.Key]:
			errs = append(errs, fmt.Errorf("%s: duplicate key %q", where, st.Key))
		}
		if st.Parent != "" && !seen[st.Parent] {
			errs = append(errs, fmt.Errorf("%s: parent %q is not an earlier step", where, st.Parent))
		}
		if st.Wait < 0 || (st.Padding != nil && *st.Padding < 0) {
			errs = append(errs, fmt.Errorf("%s: negative wait or padding", where))
		}
		if st.URL != "" {
			if _, err := sc.resolve(st.URL); err != nil {
				errs = append(errs, fmt.Errorf("%s: url: %w", where, err))
			}
		}
		seen[st.Key] = true
	}
	return errors.Join(errs...)
}

// resolve makes ref absolute against BaseURL.
func (sc *Scenario) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if sc.BaseURL == "" {
		return "", fmt.Errorf("relative url %q without base_url", ref)
	}
	base, err := url.Parse(sc.BaseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
