package layout

import (
	"encoding/json"
	"os"
	"time"

	"github.com/zeromv/zeromv/pkg/errors"
)

// ManifestVersion is bumped when the manifest JSON changes incompatibly.
const ManifestVersion = 1

// View describes the camera pose a tile was rendered from.
type View struct {
	Index     int     `json:"index"`
	File      string  `json:"file"`
	Azimuth   float64 `json:"azimuth_deg"`
	Elevation float64 `json:"elevation_deg"`
	FOV       float64 `json:"fov_deg"`
}

// RunInfo is the generation metadata recorded alongside the artifact paths.
type RunInfo struct {
	ID         string        `json:"id,omitempty"`
	Input      string        `json:"input,omitempty"`
	ModelID    string        `json:"model_id,omitempty"`
	Steps      int           `json:"steps,omitempty"`
	Device     string        `json:"device,omitempty"`
	DType      string        `json:"dtype,omitempty"`
	Shape      string        `json:"shape,omitempty"`
	TileWidth  int           `json:"tile_width,omitempty"`
	TileHeight int           `json:"tile_height,omitempty"`
	Fallback   bool          `json:"fallback"`
	CacheHit   bool          `json:"cache_hit"`
	Views      []View        `json:"views,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Manifest lists every artifact a completed run produced.
// Paths are relative to the run directory.
type Manifest struct {
	Version    int      `json:"version"`
	BaseName   string   `json:"base_name"`
	RunDir     string   `json:"run_dir"`
	Tiles      []string `json:"tiles"`
	Grid       string   `json:"grid,omitempty"`
	Sheet      string   `json:"sheet,omitempty"`
	SheetError string   `json:"sheet_error,omitempty"`
	Run        RunInfo  `json:"run"`

	// Path is where the manifest was written; empty when disabled.
	Path string `json:"-"`
}

// ReadManifest loads a manifest written by [Manager.Complete].
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "manifest not found")
		}
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "read manifest %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "parse manifest %s", path)
	}
	m.Path = path
	return &m, nil
}
