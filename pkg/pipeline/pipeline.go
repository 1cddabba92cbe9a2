// Package pipeline drives one zeromv run end to end.
//
// A run turns one input photo into a predictably named set of artifacts:
//
//  1. Load: decode the input and pad it to a square conditioning image
//  2. Generate: ask the backend for the six-view composite, or reuse a cached one
//  3. Split: cut the composite into tiles (or fall back to a single tile)
//  4. Write: store tiles, the composite, an optional contact sheet and the
//     manifest through the layout manager
//
// Completed runs are appended to the history store and optionally published.
// The CLI and the HTTP server both go through [Runner.Execute]; the split
// command re-uses the post-processing half through [Runner.Process].
//
// # Usage
//
//	runner := pipeline.NewRunner(b, cacheImpl, nil, logger)
//	res, err := runner.Execute(ctx, pipeline.Options{
//	    Input: "photo.png",
//	    Grid:  true,
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Manifest.RunDir)
package pipeline

import (
	"image"
	"strings"
	"time"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/device"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/publish"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// Options configures a single run.
type Options struct {
	// Input is the path of the input photo. Image may be set instead when
	// the photo is already decoded; Input is then only recorded.
	Input string      `json:"input,omitempty"`
	Image image.Image `json:"-"`

	// Name overrides the base name derived from Input.
	Name string `json:"name,omitempty"`

	Out       string      `json:"out"`
	ModelID   string      `json:"model_id"`
	Steps     int         `json:"steps"`
	Device    device.Kind `json:"device"`
	DType     string      `json:"dtype"`
	Scheduler string      `json:"scheduler,omitempty"`
	MinSide   int         `json:"min_side"`

	Grid     bool `json:"grid"`
	GridCols int  `json:"grid_cols,omitempty"`
	Strict   bool `json:"strict"`
	Manifest bool `json:"manifest"`

	// Refresh skips cache reads; the fresh composite is still stored.
	Refresh  bool          `json:"refresh"`
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// Upload publishes the run when the runner has a publisher.
	Upload bool `json:"upload"`
}

// Result holds the outcome of a run.
type Result struct {
	ID       string            `json:"id"`
	Run      layout.RunContext `json:"run"`
	Manifest *layout.Manifest  `json:"manifest"`

	// Absolute or root-relative paths of what was written.
	Tiles     []string `json:"tiles"`
	GridPath  string   `json:"grid_path,omitempty"`
	SheetPath string   `json:"sheet_path,omitempty"`

	// SheetErr is set when the contact sheet could not be composed.
	// The run still succeeds.
	SheetErr error `json:"-"`

	Shape    tiles.Shape `json:"-"`
	Fallback bool        `json:"fallback"`
	Device   device.Kind `json:"device"`

	// Upload is set when the run was published; UploadErr when publishing
	// failed after the artifacts were written.
	Upload    *publish.Result `json:"upload,omitempty"`
	UploadErr error           `json:"-"`

	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache_info"`
}

// Stats contains per-stage timings.
type Stats struct {
	LoadTime     time.Duration `json:"load_time"`
	GenerateTime time.Duration `json:"generate_time"`
	SplitTime    time.Duration `json:"split_time"`
	WriteTime    time.Duration `json:"write_time"`
	Total        time.Duration `json:"total"`
	TileCount    int           `json:"tile_count"`
}

// CacheInfo reports whether the composite came from the cache.
type CacheInfo struct {
	CompositeHit bool `json:"composite_hit"`
}

// ValidateAndSetDefaults checks the options and fills in defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Image == nil && strings.TrimSpace(o.Input) == "" {
		return errors.New(errors.ErrCodeConfig, "provide --image or config:image")
	}
	o.SetDefaults()
	return o.ValidateForProcess()
}

// SetDefaults fills in every zero-valued setting that has a default.
func (o *Options) SetDefaults() {
	if o.Out == "" {
		o.Out = layout.DefaultOutputRoot
	}
	if o.ModelID == "" {
		o.ModelID = backend.DefaultModelID
	}
	if o.Steps == 0 {
		o.Steps = backend.DefaultSteps
	}
	if o.Device == "" {
		o.Device = device.Auto
	}
	if o.MinSide == 0 {
		o.MinSide = tiles.DefaultMinSide
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = cache.DefaultTTL
	}
	o.DType = backend.ResolveDType(o.DType, o.Device)
}

// ValidateForProcess checks the settings used after generation.
func (o *Options) ValidateForProcess() error {
	if o.Steps <= 0 {
		return errors.New(errors.ErrCodeConfig, "steps must be positive, got %d", o.Steps)
	}
	if o.GridCols < 0 {
		return errors.New(errors.ErrCodeConfig, "grid_cols must not be negative, got %d", o.GridCols)
	}
	if o.MinSide <= 0 {
		return errors.New(errors.ErrCodeConfig, "min_side must be positive, got %d", o.MinSide)
	}
	return nil
}

// RunContext derives the output location from Name or Input.
func (o *Options) RunContext() (layout.RunContext, error) {
	if o.Name != "" {
		return layout.NewNamedRunContext(o.Name, o.Out)
	}
	if o.Input == "" {
		return layout.RunContext{}, errors.New(errors.ErrCodeConfig, "a base name is required when no input path is given")
	}
	return layout.NewRunContext(o.Input, o.Out)
}

// CompositeKeyOpts returns the settings that identify a cached composite.
func (o *Options) CompositeKeyOpts() cache.CompositeKeyOpts {
	return cache.CompositeKeyOpts{
		ModelID:   o.ModelID,
		Steps:     o.Steps,
		DType:     o.DType,
		Scheduler: o.Scheduler,
		MinSide:   o.MinSide,
	}
}
