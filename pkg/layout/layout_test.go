package layout

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/zeromv/zeromv/pkg/errors"
)

func tile(c uint8) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func views(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = tile(uint8(i * 40))
	}
	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestNewRunContext(t *testing.T) {
	rc, err := NewRunContext(filepath.Join("in", "cat.photo.png"), "out")
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	if rc.BaseName != "cat.photo" {
		t.Errorf("BaseName = %q, want %q", rc.BaseName, "cat.photo")
	}
	if rc.RunDir != filepath.Join("out", "cat.photo") {
		t.Errorf("RunDir = %q", rc.RunDir)
	}

	rc, _ = NewRunContext("dog.jpg", "")
	if rc.OutputRoot != DefaultOutputRoot {
		t.Errorf("OutputRoot = %q, want %q", rc.OutputRoot, DefaultOutputRoot)
	}
}

func TestNewNamedRunContextRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := NewNamedRunContext(name, "out"); !errors.Is(err, errors.ErrCodeInvalidPath) {
			t.Errorf("NewNamedRunContext(%q) code = %v, want %v", name, errors.GetCode(err), errors.ErrCodeInvalidPath)
		}
	}
}

func TestNames(t *testing.T) {
	rc, _ := NewNamedRunContext("cat", "out")
	tests := []struct {
		got, want string
	}{
		{rc.TilePath(0), filepath.Join("out", "cat", "000_cat_view.png")},
		{rc.TilePath(5), filepath.Join("out", "cat", "005_cat_view.png")},
		{rc.GridPath(), filepath.Join("out", "cat", "cat_views_grid.png")},
		{rc.SheetPath(), filepath.Join("out", "cat", "cat_views_sheet.png")},
		{rc.ManifestPath(), filepath.Join("out", "cat", "cat_manifest.json")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTileIndex(t *testing.T) {
	rc, _ := NewNamedRunContext("a.b", "out")
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"000_a.b_view.png", 0, true},
		{"012_a.b_view.png", 12, true},
		{"1000_a.b_view.png", 1000, true},
		{"000_aXb_view.png", 0, false},
		{"000_other_view.png", 0, false},
		{"00_a.b_view.png", 0, false},
		{"a.b_views_grid.png", 0, false},
	}
	for _, tt := range tests {
		got, ok := rc.tileIndex(tt.name)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("tileIndex(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestManagerFullRun(t *testing.T) {
	ctx := context.Background()
	rc, _ := NewNamedRunContext("cat", t.TempDir())
	m := NewManager(rc, Options{WriteManifest: true})

	if err := m.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	paths, err := m.WriteTiles(ctx, views(6))
	if err != nil {
		t.Fatalf("WriteTiles: %v", err)
	}
	if len(paths) != 6 {
		t.Fatalf("len(paths) = %d, want 6", len(paths))
	}
	if _, err := m.WriteGrid(ctx, tile(1)); err != nil {
		t.Fatalf("WriteGrid: %v", err)
	}
	if _, err := m.WriteSheet(ctx, tile(2)); err != nil {
		t.Fatalf("WriteSheet: %v", err)
	}
	man, err := m.Complete(ctx, RunInfo{ModelID: "m", Steps: 36, Shape: "6x1"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if m.State() != StateComplete {
		t.Errorf("State = %v, want %v", m.State(), StateComplete)
	}

	want := []string{
		"000_cat_view.png", "001_cat_view.png", "002_cat_view.png",
		"003_cat_view.png", "004_cat_view.png", "005_cat_view.png",
		"cat_manifest.json", "cat_views_grid.png", "cat_views_sheet.png",
	}
	if got := listDir(t, rc.RunDir); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", got, want)
	}

	read, err := ReadManifest(man.Path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(read.Tiles) != 6 || read.Tiles[0] != "000_cat_view.png" {
		t.Errorf("Tiles = %v", read.Tiles)
	}
	if read.Sheet != "cat_views_sheet.png" || read.Grid != "cat_views_grid.png" {
		t.Errorf("Grid, Sheet = %q, %q", read.Grid, read.Sheet)
	}
	if read.Run.Steps != 36 || read.Run.Shape != "6x1" {
		t.Errorf("Run = %+v", read.Run)
	}
}

func TestManagerRemovesStaleArtifacts(t *testing.T) {
	ctx := context.Background()
	rc, _ := NewNamedRunContext("cat", t.TempDir())

	first := NewManager(rc, Options{WriteManifest: true})
	_ = first.Prepare(ctx)
	_, _ = first.WriteTiles(ctx, views(6))
	_, _ = first.WriteGrid(ctx, tile(1))
	_, _ = first.WriteSheet(ctx, tile(2))
	if _, err := first.Complete(ctx, RunInfo{}); err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	// An unrelated file in the run directory survives.
	keep := filepath.Join(rc.RunDir, "notes.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Fallback run: single tile, no sheet, no manifest.
	second := NewManager(rc, Options{WriteManifest: false})
	_ = second.Prepare(ctx)
	if _, err := second.WriteTiles(ctx, views(1)); err != nil {
		t.Fatalf("WriteTiles: %v", err)
	}
	if _, err := second.WriteGrid(ctx, tile(3)); err != nil {
		t.Fatalf("WriteGrid: %v", err)
	}
	man, err := second.Complete(ctx, RunInfo{Fallback: true})
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if man.Path != "" {
		t.Errorf("manifest Path = %q, want empty", man.Path)
	}

	want := []string{"000_cat_view.png", "cat_views_grid.png", "notes.txt"}
	if got := listDir(t, rc.RunDir); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", got, want)
	}
}

func TestManagerOutOfOrder(t *testing.T) {
	ctx := context.Background()
	rc, _ := NewNamedRunContext("cat", t.TempDir())
	m := NewManager(rc, Options{})

	if _, err := m.WriteTiles(ctx, views(6)); !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("WriteTiles before Prepare: code = %v", errors.GetCode(err))
	}
	if _, err := m.Complete(ctx, RunInfo{}); err == nil {
		t.Error("Complete before tiles should fail")
	}

	_ = m.Prepare(ctx)
	if err := m.Prepare(ctx); err == nil {
		t.Error("second Prepare should fail")
	}
	_, _ = m.WriteTiles(ctx, views(6))
	_, _ = m.WriteSheet(ctx, tile(1))
	if _, err := m.WriteGrid(ctx, tile(1)); err == nil {
		t.Error("WriteGrid after WriteSheet should fail")
	}
	if m.State() != StateSheetWritten {
		t.Errorf("State = %v, want %v", m.State(), StateSheetWritten)
	}
}

func TestManagerStorageFailure(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	// A regular file where the run directory should go.
	blocker := filepath.Join(root, "cat")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rc, _ := NewNamedRunContext("cat", root)
	m := NewManager(rc, Options{})
	err := m.Prepare(ctx)
	if !errors.Is(err, errors.ErrCodeStorage) {
		t.Fatalf("Prepare code = %v, want %v", errors.GetCode(err), errors.ErrCodeStorage)
	}
	if m.State() != StateFailed {
		t.Errorf("State = %v, want %v", m.State(), StateFailed)
	}
	if _, err := m.WriteTiles(ctx, views(1)); err == nil {
		t.Error("WriteTiles after failure should fail")
	}
}

func TestManagerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc, _ := NewNamedRunContext("cat", t.TempDir())
	m := NewManager(rc, Options{})
	_ = m.Prepare(ctx)
	cancel()

	if _, err := m.WriteTiles(ctx, views(6)); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := listDir(t, rc.RunDir); len(got) != 0 {
		t.Errorf("files = %v, want none", got)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "x.bin")
	err := writeAtomic(context.Background(), dest, 0o644, func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	if err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}
	if got := listDir(t, dir); len(got) != 1 || got[0] != "x.bin" {
		t.Errorf("files = %v, want [x.bin]", got)
	}

	// A failing encoder keeps the previous content.
	err = writeAtomic(context.Background(), dest, 0o644, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return os.ErrInvalid
	})
	if !errors.Is(err, errors.ErrCodeStorage) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeStorage)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "payload" {
		t.Errorf("content = %q, want %q", data, "payload")
	}
	if got := listDir(t, dir); len(got) != 1 {
		t.Errorf("files = %v, want [x.bin]", got)
	}
}

func TestManagerPrepareRemovesTempFiles(t *testing.T) {
	ctx := context.Background()
	rc, _ := NewNamedRunContext("cat", t.TempDir())
	if err := os.MkdirAll(rc.RunDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Leftovers of a run killed between CreateTemp and rename.
	for _, name := range []string{".tmp-123", ".tmp-456"} {
		if err := os.WriteFile(filepath.Join(rc.RunDir, name), []byte("partial"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	m := NewManager(rc, Options{})
	if err := m.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := m.WriteTiles(ctx, views(6)); err != nil {
		t.Fatalf("WriteTiles: %v", err)
	}
	if _, err := m.WriteGrid(ctx, tile(1)); err != nil {
		t.Fatalf("WriteGrid: %v", err)
	}
	if _, err := m.Complete(ctx, RunInfo{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	for _, name := range listDir(t, rc.RunDir) {
		if strings.HasPrefix(name, ".tmp-") {
			t.Errorf("temp file %s survived Prepare", name)
		}
	}
}

func TestWriteAtomicChmodFailure(t *testing.T) {
	orig := chmod
	chmod = func(string, os.FileMode) error { return os.ErrPermission }
	t.Cleanup(func() { chmod = orig })

	dir := t.TempDir()
	err := writeAtomic(context.Background(), filepath.Join(dir, "x.bin"), 0o644, func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	if !errors.Is(err, errors.ErrCodeStorage) {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeStorage)
	}
	if got := listDir(t, dir); len(got) != 0 {
		t.Errorf("files = %v, want none", got)
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.png")
	if err := WritePNG(context.Background(), path, tile(7)); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Stat: %v", err)
	}
	if err := WritePNG(context.Background(), path, nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil image code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidInput)
	}
}
