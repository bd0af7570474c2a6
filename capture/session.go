package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/screenright/internal/transport"
	"github.com/hazyhaar/screenright/internal/tree"
	"github.com/hazyhaar/screenright/journal"
)

// State is the session lifecycle state.
type State int

const (
	StateInactive State = iota
	StateActive
)

func (st State) String() string {
	if st == StateActive {
		return "active"
	}
	return "inactive"
}

// Session is one deployment. Calls are serialised internally; captures
// issued from several goroutines are recorded in lock acquisition order.
type Session struct {
	rec *Recorder

	mu           sync.Mutex
	state        State
	diagramID    string
	token        string
	deploymentID string
	tree         *tree.Tree
	annotations  map[string]Annotation
	uploaded     map[string]struct{} // keys sent to the collector, recorded or dropped
	err          error
	journalID    string
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether captures are currently recorded.
func (s *Session) Active() bool { return s.State() == StateActive }

// DiagramID returns the diagram the session was opened for.
func (s *Session) DiagramID() string { return s.diagramID }

// DeploymentID returns the collector deployment ID, or "" when inactive.
func (s *Session) DeploymentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deploymentID
}

// Err returns the error that collapsed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Len returns the number of recorded captures.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len()
}

// Blueprint returns a snapshot of the capture tree and annotations. It
// remains readable after Close.
func (s *Session) Blueprint() Blueprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blueprintLocked()
}

// Capture screenshots page, uploads it as key and records it in the tree.
//
// On an inactive session it returns ErrSessionInactive and does nothing.
// ErrInvalidKey, ErrUploadFailed and ErrAnnotationFailed collapse the
// session. ErrDuplicateKey, ErrInvalidOptions and ErrParentNotFound leave it
// active; with ErrParentNotFound the image was uploaded but the node is not
// in the tree.
func (s *Session) Capture(ctx context.Context, page Capturer, key, title string, opts CaptureOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionInactive
	}
	if err := validateKey(key); err != nil {
		return s.collapse(ctx, err)
	}
	if _, sent := s.uploaded[key]; sent {
		err := fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		s.rec.logger.Warn("screenright: capture skipped", "key", key, "error", err)
		s.journalCapture(ctx, key, title, "", opts.ParentKey, journal.OutcomeDuplicate, err)
		return err
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		s.rec.logger.Warn("screenright: capture skipped", "key", key, "error", err)
		return err
	}

	if opts.Wait > 0 {
		if err := sleepCtx(ctx, opts.Wait); err != nil {
			return fmt.Errorf("screenright: capture %s: wait: %w", key, err)
		}
	}

	pageURL, err := s.upload(ctx, page, key)
	if err != nil {
		s.journalCapture(ctx, key, title, "", opts.ParentKey, journal.OutcomeFailed, err)
		return s.collapse(ctx, err)
	}
	s.uploaded[key] = struct{}{}
	s.flagMarkup(key, "title", title)

	node := Node{Key: key, Title: title, URL: pageURL}
	recorded := true
	var dropErr error
	if err := s.tree.Insert(node, opts.ParentKey); err != nil {
		if !errors.Is(err, tree.ErrParentNotFound) {
			return s.collapse(ctx, fmt.Errorf("screenright: capture %s: %w", key, err))
		}
		recorded = false
		dropErr = fmt.Errorf("%w: %q (capture %q)", ErrParentNotFound, opts.ParentKey, key)
		s.rec.logger.Warn("screenright: capture dropped", "key", key, "parent_key", opts.ParentKey)
		s.journalCapture(ctx, key, node.Title, pageURL, opts.ParentKey, journal.OutcomeDropped, dropErr)
	} else {
		s.rec.logger.Debug("screenright: captured", "key", key, "parent_key", opts.ParentKey, "url", pageURL)
		s.journalCapture(ctx, key, node.Title, pageURL, opts.ParentKey, journal.OutcomeRecorded, nil)
	}

	if opts.ClickSelector != "" {
		if err := s.annotateAndClick(ctx, page, key, opts, recorded); err != nil {
			return s.collapse(ctx, err)
		}
	}
	return dropErr
}

// Close sends the blueprint and marks the deployment finished. The session
// becomes inactive whatever the outcome; the call is not retried. On an
// inactive session it returns ErrSessionInactive and sends nothing.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionInactive
	}

	bp := s.blueprintLocked()
	s.writeResultFile(bp)

	resp, err := s.rec.client.PutJSON(ctx, s.deploymentURL()+"/done_upload", finalizeRequest{
		DeploymentToken: s.token,
		Blueprint:       bp,
	})

	deploymentID := s.deploymentID
	s.state = StateInactive
	s.deploymentID = ""

	var finErr error
	switch {
	case err != nil:
		finErr = fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	case !resp.OK():
		finErr = fmt.Errorf("%w: status %d", ErrFinalizeFailed, resp.StatusCode)
	}
	s.rec.journal.SessionClosed(ctx, s.journalID, finErr)

	if finErr != nil {
		s.rec.logger.Error("screenright: error occurred", "deployment_id", deploymentID, "error", finErr)
		return finErr
	}
	s.rec.logger.Info("screenright: deployment finished",
		"deployment_id", deploymentID, "captures", s.tree.Len(), "annotations", len(s.annotations))
	return nil
}

func (s *Session) upload(ctx context.Context, page Capturer, key string) (string, error) {
	shot := s.rec.cfg.Screenshot
	img, err := page.Screenshot(ctx, ScreenshotOptions{FullPage: true, Format: shot.Format, Quality: shot.Quality})
	if err != nil {
		return "", fmt.Errorf("%w: capture %s: screenshot: %v", ErrUploadFailed, key, err)
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: capture %s: page url: %v", ErrUploadFailed, key, err)
	}

	h := http.Header{}
	h.Set("X-File-Key", key)
	h.Set("X-Deployment-Token", s.token)
	resp, err := s.rec.client.PostFile(ctx, s.deploymentURL()+"/screenshot", transport.File{
		Field: "file",
		Name:  fileName(key, shot.Format),
		Data:  img,
	}, h)
	if err != nil {
		return "", fmt.Errorf("%w: capture %s: %v", ErrUploadFailed, key, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: capture %s: status %d", ErrUploadFailed, key, resp.StatusCode)
	}
	return pageURL, nil
}

func (s *Session) annotateAndClick(ctx context.Context, page Capturer, key string, opts CaptureOptions, store bool) error {
	el, err := page.Locate(ctx, opts.ClickSelector)
	if err != nil {
		return fmt.Errorf("%w: capture %s: locate %q: %v", ErrAnnotationFailed, key, opts.ClickSelector, err)
	}
	box, err := el.BoundingBox(ctx)
	if err != nil {
		return fmt.Errorf("%w: capture %s: bounding box: %v", ErrAnnotationFailed, key, err)
	}
	if store {
		s.flagMarkup(key, "annotation_text", opts.AnnotationText)
		s.annotations[key] = Annotation{
			X:            box.X,
			Y:            box.Y,
			Width:        box.Width,
			Height:       box.Height,
			Text:         opts.AnnotationText,
			PaddingPixel: *opts.PaddingPixel,
			Direction:    opts.Direction,
			TextColor:    opts.TextColor,
		}
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("%w: capture %s: click: %v", ErrAnnotationFailed, key, err)
	}
	return nil
}

// collapse deactivates the session after err. The first error is kept.
func (s *Session) collapse(ctx context.Context, err error) error {
	s.rec.logger.Error("screenright: error occurred",
		"diagram_id", s.diagramID, "deployment_id", s.deploymentID, "error", err)
	s.state = StateInactive
	s.deploymentID = ""
	if s.err == nil {
		s.err = err
	}
	s.rec.journal.SessionFailed(ctx, s.journalID, err)
	return err
}

func (s *Session) flagMarkup(key, field, text string) {
	if s.rec.hasMarkup(text) {
		s.rec.logger.Warn("screenright: text contains markup", "key", key, "field", field)
	}
}

func (s *Session) blueprintLocked() Blueprint {
	bp := Blueprint{ScreenshotItemAttributes: s.tree.Nodes()}
	if len(s.annotations) > 0 {
		bp.Annotations = make(map[string]Annotation, len(s.annotations))
		for k, a := range s.annotations {
			bp.Annotations[k] = a
		}
	}
	return bp
}

func (s *Session) deploymentURL() string {
	return s.rec.deploymentsURL(s.diagramID) + "/" + url.PathEscape(s.deploymentID)
}

func (s *Session) journalCapture(ctx context.Context, key, title, pageURL, parentKey, outcome string, err error) {
	rec := journal.CaptureRecord{
		SessionID: s.journalID,
		Key:       key,
		ParentKey: parentKey,
		Title:     title,
		URL:       pageURL,
		Outcome:   outcome,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.rec.journal.Capture(ctx, rec)
}

func (s *Session) writeResultFile(bp Blueprint) {
	path := s.rec.cfg.ResultFile
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(bp, "", "  ")
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
	}
	if err != nil {
		s.rec.logger.Warn("screenright: write result file failed", "path", path, "error", err)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}

func fileName(key, format string) string {
	if format == "png" {
		return key + ".png"
	}
	return key + ".jpg"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
