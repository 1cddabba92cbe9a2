package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/observability"
	"github.com/zeromv/zeromv/pkg/pipeline"
	"github.com/zeromv/zeromv/pkg/tiles"
)

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	return img
}

func newTestServer(t *testing.T, b backend.Backend) (*httptest.Server, string, history.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := history.NewFileStore(filepath.Join(dir, "history"))
	if err != nil {
		t.Fatal(err)
	}
	runner := pipeline.NewRunner(b, nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
	runner.History = store
	out := filepath.Join(dir, "out")
	s := New(runner, Options{Template: pipeline.Options{Out: out, Grid: true, Manifest: true}})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, out, store
}

// upload posts a multipart run request.
func upload(t *testing.T, url, filename string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		if err := tiles.EncodePNG(fw, solid(6, 4)); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	resp, err := http.Post(url+"/v1/runs", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 \"ok\"", resp.StatusCode, body)
	}
}

func TestCreateRun(t *testing.T) {
	ts, out, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))

	resp := upload(t, ts.URL, "cat.png", map[string]string{"steps": "20", "grid_cols": "3"})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, body)
	}
	var got runResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !history.ValidID(got.ID) {
		t.Errorf("ID = %q, want a uuid", got.ID)
	}
	if got.Manifest == nil || len(got.Manifest.Tiles) != 6 {
		t.Fatalf("Manifest = %+v", got.Manifest)
	}
	if got.Manifest.RunDir != filepath.Join(out, "cat") {
		t.Errorf("RunDir = %q", got.Manifest.RunDir)
	}
	if got.Manifest.Run.Steps != 20 {
		t.Errorf("Steps = %d, want 20", got.Manifest.Run.Steps)
	}

	art, err := http.Get(ts.URL + "/v1/runs/cat/" + got.Manifest.Tiles[0])
	if err != nil {
		t.Fatal(err)
	}
	defer art.Body.Close()
	if art.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d", art.StatusCode)
	}
	img, err := tiles.Decode(art.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Size() != image.Pt(10, 10) {
		t.Errorf("tile size = %v, want 10x10", img.Bounds().Size())
	}

	rec, err := http.Get(ts.URL + "/v1/runs/" + got.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Body.Close()
	if rec.StatusCode != http.StatusOK {
		t.Errorf("GET run status = %d", rec.StatusCode)
	}
}

func TestCreateRunNameOverride(t *testing.T) {
	ts, out, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	resp := upload(t, ts.URL, "photo.png", map[string]string{"name": "lamp"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got runResponse
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.Manifest.RunDir != filepath.Join(out, "lamp") {
		t.Errorf("RunDir = %q", got.Manifest.RunDir)
	}
}

func TestCreateRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		backend  backend.Backend
		filename string
		fields   map[string]string
		want     int
	}{
		{"missing image", backend.NewStaticBackend(solid(60, 10)), "", nil, http.StatusBadRequest},
		{"bad steps", backend.NewStaticBackend(solid(60, 10)), "a.png", map[string]string{"steps": "x"}, http.StatusBadRequest},
		{"zero steps", backend.NewStaticBackend(solid(60, 10)), "a.png", map[string]string{"steps": "0"}, http.StatusBadRequest},
		{"bad grid", backend.NewStaticBackend(solid(60, 10)), "a.png", map[string]string{"grid": "maybe"}, http.StatusBadRequest},
		{"traversal name", backend.NewStaticBackend(solid(60, 10)), "a.png", map[string]string{"name": "../etc"}, http.StatusBadRequest},
		{"backend failure", backend.NewFailingBackend(stderrors.New("gpu lost")), "a.png", nil, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _ := newTestServer(t, tt.backend)
			resp := upload(t, ts.URL, tt.filename, tt.fields)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCreateRunRejectsOversizedImage(t *testing.T) {
	runner := pipeline.NewRunner(backend.NewStaticBackend(solid(60, 10)), nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
	out := filepath.Join(t.TempDir(), "out")
	s := New(runner, Options{Template: pipeline.Options{Out: out}, MaxImagePixels: 16})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp := upload(t, ts.URL, "big.png", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if _, err := os.Stat(filepath.Join(out, "big")); !os.IsNotExist(err) {
		t.Errorf("run directory exists after rejected upload (stat err = %v)", err)
	}
}

func TestCreateRunNotMultipart(t *testing.T) {
	ts, _, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", bytes.NewBufferString("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListRuns(t *testing.T) {
	ts, _, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	for _, name := range []string{"a.png", "b.png"} {
		if resp := upload(t, ts.URL, name, nil); resp.StatusCode != http.StatusCreated {
			t.Fatalf("upload %s: status %d", name, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/runs?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var recs []history.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("len(records) = %d, want 1", len(recs))
	}

	bad, err := http.Get(ts.URL + "/v1/runs?limit=-3")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", bad.StatusCode)
	}
}

func TestArtifactRejectsUnsafeNames(t *testing.T) {
	ts, _, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	tests := []struct {
		path string
		want int
	}{
		{"/v1/runs/cat/..%2Fsecret.png", http.StatusBadRequest},
		{"/v1/runs/cat/notes.txt", http.StatusBadRequest},
		{"/v1/runs/cat/.hidden.png", http.StatusBadRequest},
		{"/v1/runs/cat/000_cat_view.png", http.StatusNotFound},
		{"/v1/runs/not-a-uuid", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeConfig, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeInvalidInput, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeGeometry, "x"), http.StatusUnprocessableEntity},
		{errors.New(errors.ErrCodeBackend, "x"), http.StatusBadGateway},
		{errors.New(errors.ErrCodeStorage, "x"), http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStartShutdown(t *testing.T) {
	runner := pipeline.NewRunner(backend.NewStaticBackend(solid(60, 10)), nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
	s := New(runner, Options{Addr: "127.0.0.1:0"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if s.Addr() != "" {
		t.Errorf("Addr after shutdown = %q", s.Addr())
	}
}

func TestStatsEndpoint(t *testing.T) {
	observability.Reset()
	t.Cleanup(observability.Reset)
	counters := observability.NewCounters()
	counters.Install()

	dir := t.TempDir()
	runner := pipeline.NewRunner(backend.NewStaticBackend(solid(60, 10)), nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
	s := New(runner, Options{
		Template: pipeline.Options{Out: filepath.Join(dir, "out"), Grid: true, Manifest: true},
		Stats:    counters,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	if resp := upload(t, ts.URL, "chair.png", nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if resp := upload(t, ts.URL, "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing image status = %d", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got observability.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Generations != 1 || got.Splits != 1 || got.Writes != 1 {
		t.Errorf("pipeline counters = %+v", got)
	}
	if got.Requests < 2 || got.ClientErrors != 1 {
		t.Errorf("http counters = %+v", got)
	}
}

func TestStatsEndpointDisabled(t *testing.T) {
	ts, _, _ := newTestServer(t, backend.NewStaticBackend(solid(60, 10)))
	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /v1/stats without counters = %d, want 404", resp.StatusCode)
	}
}
