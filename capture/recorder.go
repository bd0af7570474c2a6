// Package capture records a deployment of screen captures for a screenright
// collector.
//
// A Recorder opens Sessions. A Session uploads each capture, builds the
// capture tree, and sends the blueprint when closed. Any failure collapses
// the session to inactive, after which every call is a no-op: an exploration
// script never crashes because the collector is unreachable. Each call still
// returns an error describing what happened, so callers and tests can
// observe it.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/screenright/internal/transport"
	"github.com/hazyhaar/screenright/internal/tree"
	"github.com/hazyhaar/screenright/journal"
)

// Transport performs collector requests. *transport.Client implements it.
type Transport interface {
	PostJSON(ctx context.Context, url string, body any) (*transport.Response, error)
	PutJSON(ctx context.Context, url string, body any) (*transport.Response, error)
	PostFile(ctx context.Context, url string, f transport.File, header http.Header) (*transport.Response, error)
}

// Recorder opens capture sessions against one collector.
type Recorder struct {
	cfg     Config
	client  Transport
	journal *journal.Journal
	logger  *slog.Logger
	policy  *bluemonday.Policy
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transport) Option {
	return func(r *Recorder) { r.client = t }
}

// WithJournal records sessions and captures in j.
func WithJournal(j *journal.Journal) Option {
	return func(r *Recorder) { r.journal = j }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New creates a Recorder. cfg is copied; defaults are applied to the copy.
func New(cfg *Config, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:    *cfg,
		logger: slog.Default(),
		policy: bluemonday.StrictPolicy(),
	}
	r.cfg.ApplyDefaults()
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = transport.New(
			transport.WithTimeout(r.cfg.RequestTimeout),
			transport.WithLogger(r.logger),
		)
	}
	return r
}

// Open creates a deployment for diagramID (or the configured diagram when
// empty) and returns the session. The returned session is never nil: on
// error it is inactive and every later call on it is a no-op.
func (r *Recorder) Open(ctx context.Context, diagramID string) (*Session, error) {
	if diagramID == "" {
		diagramID = r.cfg.DiagramID
	}
	s := &Session{
		rec:         r,
		diagramID:   diagramID,
		token:       r.cfg.DeploymentToken,
		tree:        tree.New(),
		annotations: make(map[string]Annotation),
		uploaded:    make(map[string]struct{}),
	}
	s.journalID = r.journal.SessionStarted(ctx, diagramID)

	var missing []string
	if r.cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if diagramID == "" {
		missing = append(missing, "diagram id")
	}
	if s.token == "" {
		missing = append(missing, "deployment token")
	}
	if len(missing) > 0 {
		return s, s.collapse(ctx, fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", ")))
	}

	resp, err := r.client.PostJSON(ctx, r.deploymentsURL(diagramID), tokenRequest{DeploymentToken: s.token})
	if err != nil {
		return s, s.collapse(ctx, fmt.Errorf("%w: %v", ErrDeploymentCreateFailed, err))
	}
	if !resp.OK() {
		return s, s.collapse(ctx, fmt.Errorf("%w: status %d", ErrDeploymentCreateFailed, resp.StatusCode))
	}
	id, err := parseDeploymentID(resp.Body)
	if err != nil {
		return s, s.collapse(ctx, fmt.Errorf("%w: %v", ErrDeploymentCreateFailed, err))
	}

	s.deploymentID = id
	s.state = StateActive
	r.journal.SessionActivated(ctx, s.journalID, id)
	r.logger.Info("screenright: deployment created", "diagram_id", diagramID, "deployment_id", id)
	return s, nil
}

func (r *Recorder) deploymentsURL(diagramID string) string {
	return strings.TrimRight(r.cfg.Endpoint, "/") + "/client_api/diagrams/" + url.PathEscape(diagramID) + "/deployments"
}

// hasMarkup reports whether the strict HTML policy would remove part of s.
// Text is stored as given either way; the blueprint viewer escapes it.
func (r *Recorder) hasMarkup(s string) bool {
	if !strings.ContainsAny(s, "<>") {
		return false
	}
	return r.policy.Sanitize(s) != html.EscapeString(s)
}

// parseDeploymentID extracts "id" from the create response. The collector
// may send it as a string or a number; either way it is an opaque path
// segment.
func parseDeploymentID(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var created struct {
		ID any `json:"id"`
	}
	if err := dec.Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	var id string
	switch v := created.ID.(type) {
	case string:
		id = v
	case json.Number:
		id = v.String()
	case nil:
	default:
		return "", fmt.Errorf("unexpected id type %T", v)
	}
	if id == "" {
		return "", fmt.Errorf("response has no id")
	}
	return id, nil
}
