package cli

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// newTestCLI returns a CLI with a quiet logger and no environment layer.
func newTestCLI(t *testing.T) *CLI {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	c := New(&bytes.Buffer{}, log.ErrorLevel)
	c.getenv = func(string) string { return "" }
	return c
}

func execute(c *CLI, args ...string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

// writeGrid writes a cols x rows composite of side-pixel cells, each a
// distinct gray, and returns its path.
func writeGrid(t *testing.T, dir, name string, cols, rows, side int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, cols*side, rows*side))
	for y := 0; y < rows*side; y++ {
		for x := 0; x < cols*side; x++ {
			v := uint8(40 * ((y/side)*cols + x/side))
			img.Set(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	path := filepath.Join(dir, name)
	if err := layout.WritePNG(context.Background(), path, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	return path
}

func TestRunFlagsLayer(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().StringVarP(&f.image, "image", "i", "", "")
	f.bindOutput(cmd)
	f.bindModel(cmd)

	if err := cmd.ParseFlags([]string{"-i", "chair.png", "--steps", "12", "--grid=false", "--scheduler", "none"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	l := f.layer(cmd)

	if l.Image == nil || *l.Image != "chair.png" {
		t.Errorf("Image = %v, want chair.png", l.Image)
	}
	if l.Steps == nil || *l.Steps != 12 {
		t.Errorf("Steps = %v, want 12", l.Steps)
	}
	if l.Grid == nil || *l.Grid {
		t.Errorf("Grid = %v, want false", l.Grid)
	}
	if l.Scheduler == nil || *l.Scheduler != "none" {
		t.Errorf("Scheduler = %v, want none", l.Scheduler)
	}
	// Defaults of unset flags must not shadow file or env values.
	if l.Manifest != nil {
		t.Errorf("Manifest = %v, want nil", *l.Manifest)
	}
	if l.Out != nil {
		t.Errorf("Out = %v, want nil", *l.Out)
	}
	if l.Upload.Enabled != nil {
		t.Errorf("Upload.Enabled = %v, want nil", *l.Upload.Enabled)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", errors.New(errors.ErrCodeConfig, "bad"), ExitConfig},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ExitCanceled},
		{"backend", errors.New(errors.ErrCodeBackend, "boom"), ExitFailure},
		{"plain", fmt.Errorf("plain"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunRequiresImage(t *testing.T) {
	c := newTestCLI(t)
	err := execute(c, "run", "-o", t.TempDir())
	if !errors.Is(err, errors.ErrCodeConfig) {
		t.Fatalf("run without image error = %v, want %s", err, errors.ErrCodeConfig)
	}
	if got := ExitCode(err); got != ExitConfig {
		t.Errorf("ExitCode = %d, want %d", got, ExitConfig)
	}
}

func TestRunRejectsBadSteps(t *testing.T) {
	c := newTestCLI(t)
	err := execute(c, "run", "-i", "chair.png", "--steps", "0")
	if !errors.Is(err, errors.ErrCodeConfig) {
		t.Errorf("run --steps 0 error = %v, want %s", err, errors.ErrCodeConfig)
	}
}

func TestSplitCommand(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	grid := writeGrid(t, dir, "grid.png", 6, 1, 10)

	if err := execute(c, "split", grid, "-o", out, "--name", "demo"); err != nil {
		t.Fatalf("split: %v", err)
	}

	rc, err := layout.NewNamedRunContext("demo", out)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		img, err := tiles.Open(rc.TilePath(i))
		if err != nil {
			t.Fatalf("tile %d: %v", i, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(10, 10) {
			t.Errorf("tile %d size = %v, want 10x10", i, got)
		}
	}
	for _, p := range []string{rc.GridPath(), rc.SheetPath(), rc.ManifestPath()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}

	m, err := layout.ReadManifest(rc.ManifestPath())
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(m.Tiles) != 6 {
		t.Errorf("manifest tiles = %d, want 6", len(m.Tiles))
	}

	hc := c.historyCommand()
	hc.SetContext(context.Background())
	recs, err := c.listHistory(hc, 10)
	if err != nil {
		t.Fatalf("listHistory: %v", err)
	}
	if len(recs) != 1 || recs[0].BaseName != "demo" {
		t.Errorf("history = %+v, want one record for demo", recs)
	}
}

func TestSplitCommandDefaultName(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	grid := writeGrid(t, dir, "chair.png", 3, 2, 8)

	if err := execute(c, "split", grid, "-o", out, "--grid=false"); err != nil {
		t.Fatalf("split: %v", err)
	}
	rc, _ := layout.NewNamedRunContext("chair", out)
	if _, err := os.Stat(rc.TilePath(5)); err != nil {
		t.Errorf("last tile missing: %v", err)
	}
	if _, err := os.Stat(rc.SheetPath()); !os.IsNotExist(err) {
		t.Errorf("sheet written with --grid=false (err = %v)", err)
	}
}

func TestSplitCommandStrict(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	grid := writeGrid(t, dir, "odd.png", 5, 1, 10)

	err := execute(c, "split", grid, "-o", out, "--strict")
	if !errors.Is(err, errors.ErrCodeGeometry) {
		t.Fatalf("strict split error = %v, want %s", err, errors.ErrCodeGeometry)
	}
	if _, err := os.Stat(filepath.Join(out, "odd")); !os.IsNotExist(err) {
		t.Errorf("strict failure created the run directory (err = %v)", err)
	}
}

func TestSheetCommand(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()
	a := writeGrid(t, dir, "a.png", 1, 1, 12)
	b := writeGrid(t, dir, "b.png", 1, 1, 12)
	d := writeGrid(t, dir, "c.png", 1, 1, 12)
	output := filepath.Join(dir, "sheet.png")

	if err := execute(c, "sheet", "-o", output, "--cols", "2", a, b, d); err != nil {
		t.Fatalf("sheet: %v", err)
	}
	img, err := tiles.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Size(); got != image.Pt(24, 24) {
		t.Errorf("sheet size = %v, want 24x24", got)
	}
}

func TestSheetCommandErrors(t *testing.T) {
	c := newTestCLI(t)
	dir := t.TempDir()
	a := writeGrid(t, dir, "a.png", 1, 1, 12)
	small := writeGrid(t, dir, "small.png", 1, 1, 6)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"no output", []string{"sheet", a}, errors.ErrCodeConfig},
		{"negative cols", []string{"sheet", "-o", filepath.Join(dir, "x.png"), "--cols", "-1", a}, errors.ErrCodeConfig},
		{"size mismatch", []string{"sheet", "-o", filepath.Join(dir, "y.png"), a, small}, errors.ErrCodeInconsistentTileSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := execute(c, tt.args...); !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestCachePath(t *testing.T) {
	c := newTestCLI(t)
	cfg, err := c.loadConfig(c.cachePathCommand(), config.Layer{})
	if err != nil {
		t.Fatal(err)
	}
	got := cacheLocation(cfg)
	want := filepath.Join(os.Getenv("XDG_CACHE_HOME"), "zeromv")
	if got != want {
		t.Errorf("cacheLocation() = %q, want %q", got, want)
	}

	cfg.Cache.Backend = "none"
	if got := cacheLocation(cfg); got != "disabled" {
		t.Errorf("cacheLocation(none) = %q, want disabled", got)
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCLI(t)
	ctx := context.Background()
	fc, err := cache.NewFileCache(filepath.Join(os.Getenv("XDG_CACHE_HOME"), "zeromv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fc.Set(ctx, "composite:abc", []byte("png"), time.Hour); err != nil {
		t.Fatal(err)
	}

	if err := execute(c, "cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if _, hit, _ := fc.Get(ctx, "composite:abc"); hit {
		t.Error("cache entry survived clear")
	}
}

func TestRunListModelUpdate(t *testing.T) {
	runs := []history.Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	var m tea.Model = RunListModel{Runs: runs, Height: 2}

	press := func(key string) {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	}
	press("j")
	press("j")
	press("j")

	got := m.(RunListModel)
	if got.Cursor != 2 {
		t.Errorf("Cursor = %d, want 2", got.Cursor)
	}
	if got.Offset != 1 {
		t.Errorf("Offset = %d, want 1", got.Offset)
	}

	press("k")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got = m.(RunListModel)
	if got.Selected == nil || got.Selected.ID != "b" {
		t.Errorf("Selected = %+v, want b", got.Selected)
	}
	if cmd == nil {
		t.Error("enter should quit")
	}
}

func TestRunListModelView(t *testing.T) {
	m := NewRunListModel([]history.Record{{ID: "a", BaseName: "chair", Tiles: make([]string, 6)}})
	view := m.View()
	if !strings.Contains(view, "chair") {
		t.Errorf("View() missing run name:\n%s", view)
	}
	if !strings.Contains(view, "[1/1]") {
		t.Errorf("View() missing position:\n%s", view)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "—"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.t); got != tt.want {
			t.Errorf("formatRelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}

	old := time.Date(2020, time.March, 4, 0, 0, 0, 0, time.UTC)
	if got := formatRelativeTime(old); got != "Mar 4, 2020" {
		t.Errorf("formatRelativeTime(old) = %q, want Mar 4, 2020", got)
	}
}

func TestDisplayAddr(t *testing.T) {
	if got := displayAddr(":8080"); got != "localhost:8080" {
		t.Errorf("displayAddr(:8080) = %q", got)
	}
	if got := displayAddr("0.0.0.0:9000"); got != "0.0.0.0:9000" {
		t.Errorf("displayAddr(0.0.0.0:9000) = %q", got)
	}
}
