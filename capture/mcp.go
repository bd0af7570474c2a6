package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/screenright/kit"
)

// Host exposes one recorder session at a time to an MCP client. The page
// is shared by every tool call.
type Host struct {
	rec    *Recorder
	page   Navigator
	logger *slog.Logger

	mu   sync.Mutex
	sess *Session
}

// NewHost creates a Host driving page. page may be nil when the client
// never asks for navigation, but then every capture fails.
func NewHost(rec *Recorder, page Navigator) *Host {
	return &Host{rec: rec, page: page, logger: rec.logger}
}

// RegisterMCP registers the screenright tools on srv.
func (h *Host) RegisterMCP(srv *mcp.Server) {
	h.registerOpenTool(srv)
	h.registerCaptureTool(srv)
	h.registerCloseTool(srv)
	h.registerStatusTool(srv)
}

// Shutdown closes the current session if it is still active.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	s := h.sess
	h.mu.Unlock()
	if s == nil || !s.Active() {
		return nil
	}
	return s.Close(ctx)
}

func (h *Host) current() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess
}

// wrap logs each tool call with its duration and outcome.
func (h *Host) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	logged := func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				h.logger.Warn("screenright: tool failed", "tool", name, "transport", kit.GetTransport(ctx), "error", err)
			} else {
				h.logger.Debug("screenright: tool done", "tool", name, "duration", time.Since(start))
			}
			return resp, err
		}
	}
	return kit.Chain(logged)(ep)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type sessionStatus struct {
	Active       bool   `json:"active"`
	DiagramID    string `json:"diagram_id,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
	Captures     int    `json:"captures"`
	Annotations  int    `json:"annotations"`
	Error        string `json:"error,omitempty"`
}

func statusOf(s *Session) sessionStatus {
	if s == nil {
		return sessionStatus{}
	}
	bp := s.Blueprint()
	st := sessionStatus{
		Active:       s.Active(),
		DiagramID:    s.DiagramID(),
		DeploymentID: s.DeploymentID(),
		Captures:     s.Len(),
		Annotations:  len(bp.Annotations),
	}
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// --- open ---

type openReq struct {
	DiagramID string `json:"diagram_id"`
}

func (h *Host) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "screenright_open",
		Description: "Open a capture session: creates a deployment on the collector. Only one session can be active.",
		InputSchema: inputSchema(map[string]any{
			"diagram_id": map[string]any{"type": "string", "description": "Diagram to deploy to. Defaults to the configured diagram."},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*openReq)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.sess != nil && h.sess.Active() {
			return nil, fmt.Errorf("screenright: session %s is still open", h.sess.DeploymentID())
		}
		s, err := h.rec.Open(ctx, r.DiagramID)
		h.sess = s
		if err != nil {
			return nil, err
		}
		h.logger.Debug("screenright: mcp session opened", "deployment_id", s.DeploymentID())
		return statusOf(s), nil
	}

	kit.RegisterMCPTool(srv, tool, h.wrap(tool.Name, endpoint), kit.DecodeJSON[openReq]())
}

// --- capture ---

type captureReq struct {
	Key            string `json:"key"`
	Title          string `json:"title"`
	ParentKey      string `json:"parent_key"`
	URL            string `json:"url"`
	WaitMS         int    `json:"wait_ms"`
	ClickSelector  string `json:"click_selector"`
	AnnotationText string `json:"annotation_text"`
	PaddingPixel   *int   `json:"padding_pixel"`
	Direction      string `json:"direction"`
	TextColor      string `json:"text_color"`
}

func (r *captureReq) options() CaptureOptions {
	return CaptureOptions{
		ParentKey:      r.ParentKey,
		Wait:           time.Duration(r.WaitMS) * time.Millisecond,
		ClickSelector:  r.ClickSelector,
		AnnotationText: r.AnnotationText,
		PaddingPixel:   r.PaddingPixel,
		Direction:      Direction(r.Direction),
		TextColor:      Color(r.TextColor),
	}
}

func (h *Host) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "screenright_capture",
		Description: "Screenshot the current page and record it under key. Optionally navigates to url first and clicks an element afterwards, storing its box as an annotation.",
		InputSchema: inputSchema(map[string]any{
			"key":             map[string]any{"type": "string", "description": "Unique capture key, no '/'"},
			"title":           map[string]any{"type": "string", "description": "Human-readable title"},
			"parent_key":      map[string]any{"type": "string", "description": "Key of an earlier capture to nest under"},
			"url":             map[string]any{"type": "string", "description": "Navigate here before capturing"},
			"wait_ms":         map[string]any{"type": "integer", "description": "Delay before the screenshot"},
			"click_selector":  map[string]any{"type": "string", "description": "CSS selector to annotate and click after the capture"},
			"annotation_text": map[string]any{"type": "string"},
			"padding_pixel":   map[string]any{"type": "integer", "description": "Default 4, 0 for none"},
			"direction":       map[string]any{"type": "string", "enum": []string{"top", "right", "bottom", "left"}},
			"text_color":      map[string]any{"type": "string", "enum": []string{"red", "blue", "green", "orange", "purple", "black", "white"}},
		}, []string{"key", "title"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*captureReq)
		s := h.current()
		if s == nil {
			return nil, ErrSessionInactive
		}
		if h.page == nil {
			return nil, errors.New("screenright: no page attached")
		}
		if r.URL != "" {
			if err := h.page.Navigate(ctx, r.URL); err != nil {
				return nil, fmt.Errorf("screenright: navigate %s: %w", r.URL, err)
			}
		}
		err := s.Capture(ctx, h.page, r.Key, r.Title, r.options())
		if err != nil && !errors.Is(err, ErrParentNotFound) {
			return nil, err
		}
		out := map[string]any{
			"recorded": err == nil,
			"status":   statusOf(s),
		}
		if err != nil {
			out["warning"] = err.Error()
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, h.wrap(tool.Name, endpoint), kit.DecodeJSON[captureReq]())
}

// --- close ---

func (h *Host) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "screenright_close",
		Description: "Close the session: sends the capture tree and annotations to the collector.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		s := h.current()
		if s == nil {
			return nil, ErrSessionInactive
		}
		if err := s.Close(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"blueprint": s.Blueprint()}, nil
	}

	kit.RegisterMCPTool(srv, tool, h.wrap(tool.Name, endpoint), kit.DecodeJSON[struct{}]())
}

// --- status ---

func (h *Host) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "screenright_status",
		Description: "Report whether a session is active and how many captures it holds.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return statusOf(h.current()), nil
	}

	kit.RegisterMCPTool(srv, tool, h.wrap(tool.Name, endpoint), kit.DecodeJSON[struct{}]())
}
