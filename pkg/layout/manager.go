package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// State is a step of the per-run write sequence.
type State int

const (
	StateInit State = iota
	StateDirectoryReady
	StateTilesWritten
	StateGridWritten
	StateSheetWritten
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDirectoryReady:
		return "directory_ready"
	case StateTilesWritten:
		return "tiles_written"
	case StateGridWritten:
		return "grid_written"
	case StateSheetWritten:
		return "sheet_written"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Manager.
type Options struct {
	// WriteManifest controls whether Complete writes the manifest file.
	// When false, a manifest left by an earlier run is removed.
	WriteManifest bool

	FileMode os.FileMode // default 0o644
	DirMode  os.FileMode // default 0o755

	Logger *log.Logger
}

// Manager writes the artifacts of one run. It is not safe for concurrent use;
// callers serialize runs that share a base name.
type Manager struct {
	rc    RunContext
	opts  Options
	state State

	manifest Manifest
}

// NewManager returns a manager in StateInit.
func NewManager(rc RunContext, opts Options) *Manager {
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Manager{
		rc:    rc,
		opts:  opts,
		state: StateInit,
		manifest: Manifest{
			Version:  ManifestVersion,
			BaseName: rc.BaseName,
			RunDir:   rc.RunDir,
		},
	}
}

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Context returns the run context the manager writes into.
func (m *Manager) Context() RunContext { return m.rc }

func (m *Manager) expect(op string, allowed ...State) error {
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInternal, "%s not allowed in state %s", op, m.state)
}

func (m *Manager) fail(err error) error {
	m.state = StateFailed
	return err
}

// Prepare creates the run directory and removes temporary files an
// interrupted earlier run left in it.
func (m *Manager) Prepare(ctx context.Context) error {
	if err := m.expect("prepare", StateInit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return m.fail(err)
	}
	if err := os.MkdirAll(m.rc.RunDir, m.opts.DirMode); err != nil {
		return m.fail(errors.Wrap(errors.ErrCodeStorage, err, "create run directory %s", m.rc.RunDir))
	}
	if err := removeTemps(m.rc.RunDir); err != nil {
		return m.fail(err)
	}
	m.state = StateDirectoryReady
	return nil
}

// WriteTiles writes tiles in index order and removes tile files of an earlier
// run whose index is not covered by this one. It returns the written paths.
func (m *Manager) WriteTiles(ctx context.Context, views []image.Image) ([]string, error) {
	if err := m.expect("write tiles", StateDirectoryReady); err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, m.fail(errors.New(errors.ErrCodeInvalidInput, "no tiles to write"))
	}

	paths := make([]string, 0, len(views))
	for i, img := range views {
		path := m.rc.TilePath(i)
		if err := m.writePNG(ctx, path, img); err != nil {
			return paths, m.fail(err)
		}
		paths = append(paths, path)
		m.manifest.Tiles = append(m.manifest.Tiles, m.rc.TileName(i))
	}

	if err := m.removeStaleTiles(len(views)); err != nil {
		return paths, m.fail(err)
	}
	m.opts.Logger.Debug("wrote tiles", "count", len(paths), "dir", m.rc.RunDir)
	m.state = StateTilesWritten
	return paths, nil
}

func (m *Manager) removeStaleTiles(count int) error {
	entries, err := os.ReadDir(m.rc.RunDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "list %s", m.rc.RunDir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := m.rc.tileIndex(e.Name())
		if !ok || idx < count {
			continue
		}
		if _, err := removeIfExists(filepath.Join(m.rc.RunDir, e.Name())); err != nil {
			return err
		}
		m.opts.Logger.Debug("removed stale tile", "file", e.Name())
	}
	return nil
}

// WriteGrid stores the unsplit composite.
func (m *Manager) WriteGrid(ctx context.Context, composite image.Image) (string, error) {
	if err := m.expect("write grid", StateTilesWritten); err != nil {
		return "", err
	}
	path := m.rc.GridPath()
	if err := m.writePNG(ctx, path, composite); err != nil {
		return "", m.fail(err)
	}
	m.manifest.Grid = filepath.Base(path)
	m.state = StateGridWritten
	return path, nil
}

// WriteSheet stores the contact sheet.
func (m *Manager) WriteSheet(ctx context.Context, sheet image.Image) (string, error) {
	if err := m.expect("write sheet", StateTilesWritten, StateGridWritten); err != nil {
		return "", err
	}
	path := m.rc.SheetPath()
	if err := m.writePNG(ctx, path, sheet); err != nil {
		return "", m.fail(err)
	}
	m.manifest.Sheet = filepath.Base(path)
	m.state = StateSheetWritten
	return path, nil
}

// RecordSheetError notes a sheet composition failure in the manifest.
func (m *Manager) RecordSheetError(err error) {
	if err != nil {
		m.manifest.SheetError = errors.UserMessage(err)
	}
}

// Complete removes artifacts this run did not produce, writes the manifest
// when enabled and returns it.
func (m *Manager) Complete(ctx context.Context, info RunInfo) (*Manifest, error) {
	if err := m.expect("complete", StateTilesWritten, StateGridWritten, StateSheetWritten); err != nil {
		return nil, err
	}
	if m.manifest.Grid == "" {
		if err := m.removeStale(m.rc.GridPath()); err != nil {
			return nil, m.fail(err)
		}
	}
	if m.manifest.Sheet == "" {
		if err := m.removeStale(m.rc.SheetPath()); err != nil {
			return nil, m.fail(err)
		}
	}

	m.manifest.Run = info
	out := m.manifest
	if m.opts.WriteManifest {
		path := m.rc.ManifestPath()
		err := writeAtomic(ctx, path, m.opts.FileMode, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		})
		if err != nil {
			return nil, m.fail(err)
		}
		out.Path = path
	} else if err := m.removeStale(m.rc.ManifestPath()); err != nil {
		return nil, m.fail(err)
	}

	m.state = StateComplete
	return &out, nil
}

func (m *Manager) removeStale(path string) error {
	removed, err := removeIfExists(path)
	if removed {
		m.opts.Logger.Debug("removed stale artifact", "file", filepath.Base(path))
	}
	return err
}

func (m *Manager) writePNG(ctx context.Context, path string, img image.Image) error {
	if img == nil {
		return errors.New(errors.ErrCodeInvalidInput, "nil image for %s", filepath.Base(path))
	}
	return writeAtomic(ctx, path, m.opts.FileMode, func(w io.Writer) error {
		return tiles.EncodePNG(w, img)
	})
}
