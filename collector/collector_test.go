package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/screenright/dbopen"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, string) {
	t.Helper()
	cfg.DataDir = t.TempDir()
	n := 0
	srv, err := New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)), cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(func() string { n++; return "dep_" + string(rune('0'+n)) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cfg.DataDir
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func upload(t *testing.T, url, token, key, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", filename)
	part.Write(data)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Deployment-Token", token)
	req.Header.Set("X-File-Key", key)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func createDeployment(t *testing.T, base, diagram, token string) string {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, base+"/client_api/diagrams/"+diagram+"/deployments", map[string]string{"deployment_token": token})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d %v", resp.StatusCode, out)
	}
	id, _ := out["id"].(string)
	return id
}

func TestDeploymentLifecycle(t *testing.T) {
	// WHAT: create → upload → done_upload → status round trip.
	// WHY: This is the contract the recorder relies on.
	ts, dataDir := newTestServer(t, Config{})
	id := createDeployment(t, ts.URL, "D1", "tok")
	if id != "dep_1" {
		t.Fatalf("id: %q", id)
	}
	depURL := ts.URL + "/client_api/diagrams/D1/deployments/" + id

	if resp := upload(t, depURL+"/screenshot", "tok", "home", "home.jpg", []byte("jpeg-bytes")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d", resp.StatusCode)
	}
	stored, err := os.ReadFile(filepath.Join(dataDir, id, "home.jpg"))
	if err != nil || string(stored) != "jpeg-bytes" {
		t.Fatalf("stored file: %q %v", stored, err)
	}

	bp := map[string]any{"screenshotItemAttributes": []any{map[string]any{"key": "home", "title": "Home", "url": "u", "children": []any{}}}}
	resp, out := doJSON(t, http.MethodPut, depURL+"/done_upload", map[string]any{"deployment_token": "tok", "blueprint": bp})
	if resp.StatusCode != http.StatusOK || out["state"] != StateDone {
		t.Fatalf("done: %d %v", resp.StatusCode, out)
	}

	req, _ := http.NewRequest(http.MethodGet, depURL, nil)
	req.Header.Set("X-Deployment-Token", "tok")
	sresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer sresp.Body.Close()
	var st DeploymentStatus
	json.NewDecoder(sresp.Body).Decode(&st)
	if st.State != StateDone || len(st.Screenshots) != 1 || st.Screenshots[0].Key != "home" {
		t.Fatalf("status: %+v", st)
	}
	if !strings.Contains(string(st.Blueprint), `"screenshotItemAttributes"`) {
		t.Fatalf("blueprint: %s", st.Blueprint)
	}
}

func TestCreate_TokenPolicy(t *testing.T) {
	ts, _ := newTestServer(t, Config{Tokens: map[string]string{"D1": "secret"}})

	tests := []struct {
		diagram, token string
		want           int
	}{
		{"D1", "secret", http.StatusCreated},
		{"D1", "wrong", http.StatusUnauthorized},
		{"D1", "", http.StatusUnauthorized},
		{"D2", "secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/client_api/diagrams/"+tt.diagram+"/deployments", map[string]string{"deployment_token": tt.token})
		if resp.StatusCode != tt.want {
			t.Errorf("%s/%q: got %d, want %d", tt.diagram, tt.token, resp.StatusCode, tt.want)
		}
	}
}

func TestUpload_Rejections(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	id := createDeployment(t, ts.URL, "D1", "tok")
	url := ts.URL + "/client_api/diagrams/D1/deployments/" + id + "/screenshot"

	tests := []struct {
		name, token, key, filename string
		want                       int
	}{
		{"bad token", "nope", "k", "k.jpg", http.StatusUnauthorized},
		{"traversal", "tok", "../etc", "x.jpg", http.StatusBadRequest},
		{"separator", "tok", "a/b", "x.jpg", http.StatusBadRequest},
		{"extension", "tok", "k", "k.gif", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := upload(t, url, tt.token, tt.key, tt.filename, []byte("x")); resp.StatusCode != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}

	if resp := upload(t, url, "tok", "k", "k.jpg", []byte("x")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first upload: %d", resp.StatusCode)
	}
	if resp := upload(t, url, "tok", "k", "k.jpg", []byte("x")); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate upload: %d", resp.StatusCode)
	}

	if resp := upload(t, url, "tok", "v1..2", "v1..2.jpg", []byte("x")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("dotted key: %d", resp.StatusCode)
	}

	other := ts.URL + "/client_api/diagrams/D2/deployments/" + id + "/screenshot"
	if resp := upload(t, other, "tok", "k2", "k2.jpg", []byte("x")); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong diagram: %d", resp.StatusCode)
	}
}

func TestDone_OnlyOnce(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	id := createDeployment(t, ts.URL, "D1", "tok")
	depURL := ts.URL + "/client_api/diagrams/D1/deployments/" + id
	body := map[string]any{"deployment_token": "tok", "blueprint": map[string]any{"screenshotItemAttributes": []any{}}}

	if resp, _ := doJSON(t, http.MethodPut, depURL+"/done_upload", body); resp.StatusCode != http.StatusOK {
		t.Fatalf("first done: %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, http.MethodPut, depURL+"/done_upload", body); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second done: %d", resp.StatusCode)
	}
	if resp := upload(t, depURL+"/screenshot", "tok", "late", "late.jpg", []byte("x")); resp.StatusCode != http.StatusConflict {
		t.Fatalf("upload after done: %d", resp.StatusCode)
	}
}

func TestDone_ValidatesBlueprint(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	id := createDeployment(t, ts.URL, "D1", "tok")
	url := ts.URL + "/client_api/diagrams/D1/deployments/" + id + "/done_upload"

	for _, bp := range []any{nil, "a string", map[string]any{"annotations": map[string]any{}}} {
		body := map[string]any{"deployment_token": "tok"}
		if bp != nil {
			body["blueprint"] = bp
		}
		if resp, _ := doJSON(t, http.MethodPut, url, body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("blueprint %v: got %d", bp, resp.StatusCode)
		}
	}
}

func TestTokenAllowed_Wildcard(t *testing.T) {
	cfg := Config{Tokens: map[string]string{"*": "any", "D1": "one"}}
	if !cfg.tokenAllowed("D9", "any") || cfg.tokenAllowed("D1", "any") || !cfg.tokenAllowed("D1", "one") {
		t.Fatal("wildcard policy")
	}
	open := Config{}
	if !open.tokenAllowed("D1", "x") || open.tokenAllowed("D1", "") {
		t.Fatal("open policy")
	}
}

func TestUpload_WriteFailureLeavesNoRow(t *testing.T) {
	// WHAT: When the screenshot file cannot be written the upload fails
	// with 500 and the same key can be uploaded again afterwards.
	// WHY: The row and the file are stored in one transaction; a row without
	// its file would turn every retry into a 409.
	ts, dataDir := newTestServer(t, Config{})
	id := createDeployment(t, ts.URL, "D1", "tok")
	url := ts.URL + "/client_api/diagrams/D1/deployments/" + id + "/screenshot"

	blocker := filepath.Join(dataDir, id, "home.jpg")
	if err := os.Mkdir(blocker, 0o755); err != nil {
		t.Fatal(err)
	}
	if resp := upload(t, url, "tok", "home", "home.jpg", []byte("x")); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("blocked upload: %d", resp.StatusCode)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	if resp := upload(t, url, "tok", "home", "home.jpg", []byte("jpeg")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("retry after failure: %d", resp.StatusCode)
	}
	stored, err := os.ReadFile(blocker)
	if err != nil || string(stored) != "jpeg" {
		t.Fatalf("stored file: %q %v", stored, err)
	}
}

func TestErrorBody_CarriesRequestIDs(t *testing.T) {
	// WHAT: Error responses name the trace ID and echo X-Request-Id.
	// WHY: The recorder logs its request IDs; both sides must be joinable.
	ts, _ := newTestServer(t, Config{Tokens: map[string]string{"D1": "secret"}})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/client_api/diagrams/D1/deployments", strings.NewReader(`{"deployment_token":"wrong"}`))
	req.Header.Set("X-Request-Id", "req_abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusUnauthorized || body["request_id"] != "req_abc" {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if body["trace_id"] == "" || body["trace_id"] != resp.Header.Get("X-Trace-ID") {
		t.Fatalf("trace_id %q, header %q", body["trace_id"], resp.Header.Get("X-Trace-ID"))
	}
}
