package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeCollector mimics the collector API and counts calls.
type fakeCollector struct {
	mu sync.Mutex

	createStatus int
	createBody   string
	failUploadAt int // 1-based upload index answered with 500; 0 = never
	finalStatus  int

	creates    int
	uploads    int
	finalizes  int
	uploadKeys []string
	uploadReqs []uploadReq
	createReq  map[string]string
	finalBody  []byte
}

type uploadReq struct {
	Path     string
	FileKey  string
	Token    string
	Filename string
	Data     string
}

func newFakeCollector(t *testing.T) (*fakeCollector, *httptest.Server) {
	t.Helper()
	fc := &fakeCollector{createStatus: http.StatusCreated, createBody: `{"id":"dep-1"}`, finalStatus: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCollector) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/deployments"):
		fc.creates++
		json.NewDecoder(r.Body).Decode(&fc.createReq)
		w.WriteHeader(fc.createStatus)
		io.WriteString(w, fc.createBody)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/screenshot"):
		fc.uploads++
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		key := r.Header.Get("X-File-Key")
		fc.uploadReqs = append(fc.uploadReqs, uploadReq{
			Path:     r.URL.Path,
			FileKey:  key,
			Token:    r.Header.Get("X-Deployment-Token"),
			Filename: fh.Filename,
			Data:     string(data),
		})
		if fc.failUploadAt == fc.uploads {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fc.uploadKeys = append(fc.uploadKeys, key)
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/done_upload"):
		fc.finalizes++
		fc.finalBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(fc.finalStatus)

	default:
		http.NotFound(w, r)
	}
}

func (fc *fakeCollector) counts() (creates, uploads, finalizes int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.creates, fc.uploads, fc.finalizes
}

// finalPayload decodes the done_upload body.
func (fc *fakeCollector) finalPayload(t *testing.T) finalizeRequest {
	t.Helper()
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var req finalizeRequest
	if err := json.Unmarshal(fc.finalBody, &req); err != nil {
		t.Fatalf("decode finalize body %q: %v", fc.finalBody, err)
	}
	return req
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRecorder(endpoint string, mutate func(*Config), opts ...Option) *Recorder {
	cfg := &Config{
		Endpoint:        endpoint,
		DiagramID:       "D1",
		DeploymentToken: "tok-123",
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func openSession(t *testing.T, rec *Recorder) *Session {
	t.Helper()
	s, err := rec.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// fakePage is an in-memory Capturer.
type fakePage struct {
	mu        sync.Mutex
	url       string
	shotErr   error
	urlErr    error
	locateErr error
	box       Box
	clickErr  error
	clicks    []string
	shots     int
}

func newFakePage(url string) *fakePage {
	return &fakePage{url: url, box: Box{X: 10, Y: 20, Width: 100, Height: 30}}
}

func (p *fakePage) Screenshot(_ context.Context, opts ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	if !opts.FullPage {
		return nil, errors.New("expected full page")
	}
	p.shots++
	return []byte("img-" + opts.Format), nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	if p.urlErr != nil {
		return "", p.urlErr
	}
	return p.url, nil
}

func (p *fakePage) Locate(_ context.Context, selector string) (Element, error) {
	if p.locateErr != nil {
		return nil, p.locateErr
	}
	return &fakeElement{page: p, selector: selector}, nil
}

type fakeElement struct {
	page     *fakePage
	selector string
}

func (e *fakeElement) BoundingBox(context.Context) (Box, error) { return e.page.box, nil }

func (e *fakeElement) Click(context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.clickErr != nil {
		return e.page.clickErr
	}
	e.page.clicks = append(e.page.clicks, e.selector)
	return nil
}

func rootKeys(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Key)
	}
	return out
}
