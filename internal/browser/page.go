package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/screenright/capture"
)

// Page wraps a Rod page as a capture.Navigator.
type Page struct {
	page   *rod.Page
	router *rod.HijackRouter
	mgr    *Manager
}

var _ capture.Navigator = (*Page)(nil)

// NewPage opens a blank tab with the manager's stealth level, viewport and
// resource blocking applied.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	page = page.Context(ctx)

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	p := &Page{page: page, mgr: m}
	if len(m.cfg.ResourceBlocking) > 0 {
		p.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}
	return p, nil
}

// Navigate loads url and waits for the load event. A load timeout is
// logged, not returned: the page is usually capturable anyway.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.mgr.cfg.NavigationTimeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.page.Context(navCtx).WaitLoad(); err != nil {
		p.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Screenshot renders the page. Quality applies to JPEG only.
func (p *Page) Screenshot(ctx context.Context, opts capture.ScreenshotOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatJpeg}
	if opts.Format == "png" {
		req.Format = proto.PageCaptureScreenshotFormatPng
	} else if opts.Quality > 0 {
		q := opts.Quality
		req.Quality = &q
	}
	img, err := p.page.Context(ctx).Screenshot(opts.FullPage, req)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// URL returns the address of the current document.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Locate waits for the first element matching selector, up to the
// navigation timeout.
func (p *Page) Locate(ctx context.Context, selector string) (capture.Element, error) {
	findCtx, cancel := context.WithTimeout(ctx, p.mgr.cfg.NavigationTimeout)
	defer cancel()

	el, err := p.page.Context(findCtx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: locate %q: %w", selector, err)
	}
	return &element{el: el, page: p.page}, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.router != nil {
		p.router.Stop()
	}
	return p.page.Close()
}

type element struct {
	el   *rod.Element
	page *rod.Page
}

// BoundingBox returns the element box in document coordinates, matching
// a full-page screenshot.
func (e *element) BoundingBox(ctx context.Context) (capture.Box, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return capture.Box{}, fmt.Errorf("browser: shape: %w", err)
	}
	rect := shape.Box()
	if rect == nil {
		return capture.Box{}, fmt.Errorf("browser: element has no box")
	}
	res, err := e.page.Context(ctx).Eval(`() => ({x: window.scrollX, y: window.scrollY})`)
	if err != nil {
		return capture.Box{}, fmt.Errorf("browser: scroll offset: %w", err)
	}
	return capture.Box{
		X:      rect.X + res.Value.Get("x").Num(),
		Y:      rect.Y + res.Value.Get("y").Num(),
		Width:  rect.Width,
		Height: rect.Height,
	}, nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}
