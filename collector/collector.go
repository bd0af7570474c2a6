// CLAUDE:SUMMARY Development collector: chi API for deployments, screenshot uploads and blueprint finalization, backed by SQLite and a data directory.
// Package collector is a local stand-in for the remote screenright
// collector. It serves the three client endpoints (create deployment,
// upload screenshot, done_upload) plus a read-only status route, stores
// deployments in SQLite and screenshots under a data directory.
package collector

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/screenright/horosafe"
	"github.com/hazyhaar/screenright/idgen"
	"github.com/hazyhaar/screenright/kit"
	"github.com/hazyhaar/screenright/shield"
)

// Server serves the collector API.
type Server struct {
	cfg    Config
	store  *store
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIDGenerator sets the deployment ID generator. Default: "dep_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Server) { s.newID = gen }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server on db, which must carry Schema (open it with
// dbopen.WithSchema(collector.Schema)). The data directory is created.
func New(db *sql.DB, cfg Config, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	s := &Server{
		cfg:    cfg,
		store:  &store{db: db, now: time.Now},
		newID:  idgen.Prefixed("dep_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("collector: data dir: %w", err)
	}
	return s, nil
}

// Handler returns the HTTP handler with the shield middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(s.cfg.MaxUploadBytes, s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/client_api/diagrams/{diagramID}/deployments", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{deploymentID}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/screenshot", s.handleUpload)
			r.Put("/done_upload", s.handleDone)
		})
	})
	return r
}

type tokenBody struct {
	DeploymentToken string          `json:"deployment_token"`
	Blueprint       json.RawMessage `json:"blueprint,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	diagramID := chi.URLParam(r, "diagramID")

	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if !s.cfg.tokenAllowed(diagramID, body.DeploymentToken) {
		writeError(w, r, http.StatusUnauthorized, errors.New("invalid deployment token"))
		return
	}

	id := s.newID()
	if err := s.store.createDeployment(r.Context(), id, diagramID, body.DeploymentToken); err != nil {
		log.Error("collector: create deployment", "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if err := os.MkdirAll(filepath.Join(s.cfg.DataDir, id), 0o755); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	log.Info("collector: deployment created", "diagram_id", diagramID, "deployment_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	d, ok := s.authorize(w, r, r.Header.Get("X-Deployment-Token"))
	if !ok {
		return
	}
	if d.State != StateUploading {
		writeError(w, r, http.StatusConflict, errors.New("deployment already finished"))
		return
	}

	key := r.Header.Get("X-File-Key")
	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("file part: %w", err))
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("unsupported file type %q", ext))
		return
	}
	if key == "" {
		key = strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
	}
	path, err := horosafe.SafePath(filepath.Join(s.cfg.DataDir, d.ID), key+ext)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("file key %q: %w", key, err))
		return
	}

	data, err := horosafe.LimitedReadAll(f, s.cfg.MaxUploadBytes)
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	shot := Screenshot{Key: key, Filename: filepath.Base(path), Size: int64(len(data))}
	written := false
	err = s.store.addScreenshot(r.Context(), d.ID, shot, func() error {
		written = true
		return os.WriteFile(path, data, 0o644)
	})
	if err != nil {
		if written {
			os.Remove(path)
		}
		if !errors.Is(err, errConflict) {
			log.Error("collector: store screenshot", "path", path, "error", err)
		}
		writeStoreError(w, r, err)
		return
	}
	log.Info("collector: screenshot stored", "deployment_id", d.ID, "key", key, "size", shot.Size)
	writeJSON(w, http.StatusCreated, shot)
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())

	var body tokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	d, ok := s.authorize(w, r, body.DeploymentToken)
	if !ok {
		return
	}
	if err := validateBlueprint(body.Blueprint); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.store.finish(r.Context(), d.ID, string(body.Blueprint)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	log.Info("collector: deployment finished", "deployment_id", d.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": d.ID, "state": StateDone})
}

// DeploymentStatus is the body of GET .../deployments/{id}.
type DeploymentStatus struct {
	Deployment
	Screenshots []Screenshot    `json:"screenshots"`
	Blueprint   json.RawMessage `json:"blueprint,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := s.authorize(w, r, r.Header.Get("X-Deployment-Token"))
	if !ok {
		return
	}
	shots, err := s.store.screenshots(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	st := DeploymentStatus{Deployment: *d, Screenshots: shots}
	if d.Blueprint != "" {
		st.Blueprint = json.RawMessage(d.Blueprint)
	}
	writeJSON(w, http.StatusOK, st)
}

// authorize loads the deployment named in the URL and checks token
// against the one it was created with.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, token string) (*Deployment, bool) {
	d, err := s.store.deployment(r.Context(), chi.URLParam(r, "diagramID"), chi.URLParam(r, "deploymentID"))
	if err != nil {
		writeStoreError(w, r, err)
		return nil, false
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(d.token)) != 1 {
		writeError(w, r, http.StatusUnauthorized, errors.New("invalid deployment token"))
		return nil, false
	}
	return d, true
}

// validateBlueprint requires an object whose screenshotItemAttributes is
// an array.
func validateBlueprint(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("missing blueprint")
	}
	var bp struct {
		Items *[]json.RawMessage `json:"screenshotItemAttributes"`
	}
	if err := json.Unmarshal(raw, &bp); err != nil {
		return fmt.Errorf("blueprint: %w", err)
	}
	if bp.Items == nil {
		return errors.New("blueprint: screenshotItemAttributes missing")
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, errConflict):
		writeError(w, r, http.StatusConflict, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the error and the IDs that locate the request
// in the collector log.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := map[string]string{
		"error":    err.Error(),
		"trace_id": kit.GetTraceID(r.Context()),
	}
	if reqID := kit.GetRequestID(r.Context()); reqID != "" {
		body["request_id"] = reqID
	}
	writeJSON(w, status, body)
}

// Serve runs the collector on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("collector: listening", "addr", addr, "data_dir", s.cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
