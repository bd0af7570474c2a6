package shield

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/screenright/kit"
)

func TestDefaultAPIStack_Headers(t *testing.T) {
	// WHAT: Responses carry security headers and an 8-hex-char trace ID.
	// WHY: Collector responses are never meant to be framed or sniffed.
	r := chi.NewRouter()
	for _, mw := range DefaultAPIStack(1024, slog.New(slog.NewTextHandler(io.Discard, nil))) {
		r.Use(mw)
	}
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	checks := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
	}
	for header, expected := range checks {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s: got %q, want %q", header, got, expected)
		}
	}
	if traceID := w.Header().Get("X-Trace-ID"); len(traceID) != 8 {
		t.Errorf("X-Trace-ID: got %q, want 8 hex chars", traceID)
	}
}

func TestHeadToGet(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HeadToGet)
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "body")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("HEAD", "/x", nil))
	if w.Code != 200 {
		t.Fatalf("HEAD status: %d", w.Code)
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("short")))
	if w.Code != 200 {
		t.Fatalf("small body: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("much longer than eight")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body: %d", w.Code)
	}
}

func TestTraceID_RequestIDPropagated(t *testing.T) {
	var gotReq, gotTrace string
	h := TraceID(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = kit.GetRequestID(r.Context())
		gotTrace = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "req_abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if gotReq != "req_abc" {
		t.Errorf("request id: %q", gotReq)
	}
	if gotTrace == "" || gotTrace != w.Header().Get("X-Trace-ID") {
		t.Errorf("trace id: ctx=%q header=%q", gotTrace, w.Header().Get("X-Trace-ID"))
	}
}

func TestTraceID_LogsToGivenLogger(t *testing.T) {
	// WHAT: The request line and the per-request logger use the logger
	// passed to the stack, not slog.Default().
	// WHY: The collector is configured with its own logger; request lines
	// must follow it.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	for _, mw := range DefaultAPIStack(1024, logger) {
		r.Use(mw)
	}
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {
		GetLogger(r.Context()).Info("handler line")
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Request-Id", "req_log")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"msg=request", "msg=\"handler line\"", "request_id=req_log", "path=/x"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
