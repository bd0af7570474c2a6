package capture

import "context"

// Box is an element bounding box in page coordinates (CSS pixels).
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ScreenshotOptions are passed to Capturer.Screenshot.
type ScreenshotOptions struct {
	FullPage bool
	Format   string // jpeg | png
	Quality  int    // jpeg only
}

// Capturer is a live page: it renders screenshots, reports its URL and
// resolves elements. internal/browser provides the rod-backed version.
type Capturer interface {
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Locate(ctx context.Context, selector string) (Element, error)
}

// Element is a located page element.
type Element interface {
	BoundingBox(ctx context.Context) (Box, error)
	Click(ctx context.Context) error
}

// Navigator is a Capturer that can also load a URL. Scenario runs and the
// MCP host drive pages through it.
type Navigator interface {
	Capturer
	Navigate(ctx context.Context, url string) error
}
