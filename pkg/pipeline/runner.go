package pipeline

import (
	"bytes"
	"context"
	"image"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/observability"
	"github.com/zeromv/zeromv/pkg/publish"
	"github.com/zeromv/zeromv/pkg/rig"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// compositeKeyType labels composite entries in cache hook events.
const compositeKeyType = "composite"

// Runner executes runs against one backend with caching and history.
//
// A Runner is safe for concurrent use. Runs that share a run directory are
// serialized; other runs proceed in parallel. The backend is initialized
// lazily before the first generation and re-tried on the next run if that
// fails.
type Runner struct {
	Backend   backend.Backend
	Cache     cache.Cache
	Keyer     cache.Keyer
	History   history.Store
	Publisher publish.Publisher
	Logger    *log.Logger

	initMu sync.Mutex
	ready  bool

	dirLocks sync.Map // run dir -> *sync.Mutex
}

// NewRunner creates a runner for backend b.
// A nil cache disables caching; a nil keyer selects [cache.DefaultKeyer].
func NewRunner(b backend.Backend, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Backend: b,
		Cache:   c,
		Keyer:   keyer,
		History: history.NullStore{},
		Logger:  logger,
	}
}

// Execute runs load → generate → split → write for one input.
//
// Configuration problems are reported before the backend is touched. A
// backend failure leaves no artifacts behind. History and publishing
// failures never fail a run; see [Result.UploadErr].
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	rc, err := opts.RunContext()
	if err != nil {
		return nil, err
	}

	result := &Result{Run: rc, Device: opts.Device}

	// Stage 1: Load
	loadStart := time.Now()
	cond, err := r.load(opts)
	if err != nil {
		return nil, err
	}
	result.Stats.LoadTime = time.Since(loadStart)
	r.Logger.Debug("loaded input",
		"size", cond.Bounds().Size(),
		"duration", result.Stats.LoadTime)

	// Stage 2: Generate
	genStart := time.Now()
	composite, hit, err := r.Generate(ctx, cond, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.GenerateTime = time.Since(genStart)
	result.CacheInfo.CompositeHit = hit
	r.Logger.Info("generated composite",
		"backend", r.backendName(),
		"cache_hit", hit,
		"size", composite.Bounds().Size(),
		"duration", result.Stats.GenerateTime)

	if err := r.process(ctx, rc, composite, opts, result, start); err != nil {
		return nil, err
	}
	return result, nil
}

// Process splits an existing composite and writes its artifacts without
// calling the backend.
func (r *Runner) Process(ctx context.Context, composite image.Image, opts Options) (*Result, error) {
	start := time.Now()
	opts.SetDefaults()
	if err := opts.ValidateForProcess(); err != nil {
		return nil, err
	}
	if composite == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "composite image is nil")
	}
	rc, err := opts.RunContext()
	if err != nil {
		return nil, err
	}
	result := &Result{Run: rc, Device: opts.Device}
	if err := r.process(ctx, rc, composite, opts, result, start); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Runner) load(opts Options) (*image.NRGBA, error) {
	img := opts.Image
	if img == nil {
		var err error
		if img, err = tiles.Open(opts.Input); err != nil {
			return nil, err
		}
	}
	return tiles.ToSquare(img, opts.MinSide), nil
}

// Generate returns the composite for a conditioning image, consulting the
// cache first unless opts.Refresh is set. Cache failures count as misses.
func (r *Runner) Generate(ctx context.Context, cond image.Image, opts Options) (image.Image, bool, error) {
	if r.Backend == nil {
		return nil, false, errors.New(errors.ErrCodeConfig, "no generation backend configured")
	}

	key := ""
	if data, err := tiles.PNGBytes(cond); err == nil {
		key = r.Keyer.CompositeKey(cache.Hash(data), opts.CompositeKeyOpts())
	}

	if key != "" && !opts.Refresh {
		if img, ok := r.cached(ctx, key); ok {
			return img, true, nil
		}
	}

	if err := r.init(ctx); err != nil {
		return nil, false, err
	}

	hooks := observability.Pipeline()
	name := r.Backend.Name()
	hooks.OnGenerateStart(ctx, name, opts.Steps)
	genStart := time.Now()
	composite, err := r.Backend.Generate(ctx, cond, opts.Steps)
	hooks.OnGenerateComplete(ctx, name, time.Since(genStart), err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeBackend, err, "%s backend", name)
		}
		return nil, false, err
	}
	if composite == nil {
		return nil, false, errors.New(errors.ErrCodeBackend, "%s backend returned no image", name)
	}

	if key != "" {
		r.store(ctx, key, composite, opts.CacheTTL)
	}
	return composite, false, nil
}

func (r *Runner) cached(ctx context.Context, key string) (image.Image, bool) {
	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "error", err)
	}
	if !ok || err != nil {
		observability.Cache().OnCacheMiss(ctx, compositeKeyType)
		return nil, false
	}
	img, err := tiles.Decode(bytes.NewReader(data))
	if err != nil {
		r.Logger.Warn("discarding corrupt cache entry", "error", err)
		_ = r.Cache.Delete(ctx, key)
		observability.Cache().OnCacheMiss(ctx, compositeKeyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, compositeKeyType)
	return img, true
}

func (r *Runner) store(ctx context.Context, key string, composite image.Image, ttl time.Duration) {
	data, err := tiles.PNGBytes(composite)
	if err != nil {
		r.Logger.Warn("cannot encode composite for cache", "error", err)
		return
	}
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, compositeKeyType, len(data))
}

func (r *Runner) init(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.ready {
		return nil
	}
	start := time.Now()
	if err := backend.Init(ctx, r.Backend); err != nil {
		return err
	}
	r.ready = true
	r.Logger.Info("backend ready", "backend", r.Backend.Name(), "duration", time.Since(start))
	return nil
}

func (r *Runner) backendName() string {
	if r.Backend == nil {
		return "none"
	}
	return r.Backend.Name()
}

func (r *Runner) lockDir(dir string) func() {
	v, _ := r.dirLocks.LoadOrStore(dir, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// process runs split → write → record → publish.
func (r *Runner) process(ctx context.Context, rc layout.RunContext, composite image.Image, opts Options, result *Result, start time.Time) error {
	// Stage 3: Split
	splitStart := time.Now()
	split, err := tiles.Split(composite)
	if err != nil {
		return err
	}
	result.Stats.SplitTime = time.Since(splitStart)
	result.Shape = split.Shape
	result.Fallback = split.Fallback
	observability.Pipeline().OnSplit(ctx, split.Shape.String(), len(split.Tiles), split.Fallback)

	if split.Fallback {
		size := composite.Bounds().Size()
		if opts.Strict {
			return errors.New(errors.ErrCodeGeometry,
				"composite %dx%d matches no six-tile layout", size.X, size.Y)
		}
		r.Logger.Warn("composite matches no six-tile layout; writing it as a single tile",
			"width", size.X, "height", size.Y)
	} else {
		r.Logger.Debug("split composite",
			"shape", split.Shape.String(),
			"tile", split.TileSize,
			"duration", result.Stats.SplitTime)
	}

	// Stage 4: Write
	unlock := r.lockDir(rc.RunDir)
	defer unlock()

	writeStart := time.Now()
	mgr := layout.NewManager(rc, layout.Options{WriteManifest: opts.Manifest, Logger: r.Logger})
	err = r.write(ctx, mgr, composite, split, opts, result, start)
	result.Stats.WriteTime = time.Since(writeStart)
	observability.Pipeline().OnWriteComplete(ctx, rc.RunDir, len(result.Tiles), result.Stats.WriteTime, err)
	if err != nil {
		return err
	}
	result.Stats.TileCount = len(result.Tiles)
	r.Logger.Info("wrote artifacts",
		"tiles", len(result.Tiles),
		"dir", rc.RunDir,
		"duration", result.Stats.WriteTime)

	r.record(ctx, opts, result)
	if opts.Upload && r.Publisher != nil {
		r.publish(ctx, result)
	}
	result.Stats.Total = time.Since(start)
	return nil
}

func (r *Runner) write(ctx context.Context, mgr *layout.Manager, composite image.Image, split tiles.Result, opts Options, result *Result, start time.Time) error {
	if err := mgr.Prepare(ctx); err != nil {
		return err
	}
	paths, err := mgr.WriteTiles(ctx, split.Tiles)
	if err != nil {
		return err
	}
	result.Tiles = paths

	if result.GridPath, err = mgr.WriteGrid(ctx, composite); err != nil {
		return err
	}

	if opts.Grid {
		sheet, err := tiles.Compose(split.Tiles, opts.GridCols)
		observability.Pipeline().OnSheet(ctx, len(split.Tiles), err)
		if errors.IsFatal(err) {
			return err
		}
		if err != nil {
			result.SheetErr = err
			mgr.RecordSheetError(err)
			r.Logger.Warn("contact sheet skipped", "error", errors.UserMessage(err))
		} else if result.SheetPath, err = mgr.WriteSheet(ctx, sheet); err != nil {
			return err
		}
	}

	if result.ID == "" {
		result.ID = history.NewID()
	}
	man, err := mgr.Complete(ctx, r.runInfo(opts, split, result, start))
	if err != nil {
		return err
	}
	result.Manifest = man
	return nil
}

func (r *Runner) runInfo(opts Options, split tiles.Result, result *Result, start time.Time) layout.RunInfo {
	info := layout.RunInfo{
		ID:         result.ID,
		Input:      opts.Input,
		ModelID:    opts.ModelID,
		Steps:      opts.Steps,
		Device:     string(opts.Device),
		DType:      opts.DType,
		TileWidth:  split.TileSize.X,
		TileHeight: split.TileSize.Y,
		Fallback:   split.Fallback,
		CacheHit:   result.CacheInfo.CompositeHit,
		StartedAt:  start.UTC(),
		Duration:   time.Since(start),
	}
	if !split.Shape.IsZero() {
		info.Shape = split.Shape.String()
	}
	if split.Complete() {
		for i, p := range rig.Poses() {
			info.Views = append(info.Views, layout.View{
				Index:     i,
				File:      result.Run.TileName(i),
				Azimuth:   p.Azimuth,
				Elevation: p.Elevation,
				FOV:       p.FOV,
			})
		}
	}
	return info
}

func (r *Runner) record(ctx context.Context, opts Options, result *Result) {
	if r.History == nil {
		return
	}
	m := result.Manifest
	rec := &history.Record{
		ID:       result.ID,
		BaseName: m.BaseName,
		Input:    opts.Input,
		RunDir:   m.RunDir,
		Tiles:    m.Tiles,
		Grid:     m.Grid,
		Sheet:    m.Sheet,
		Manifest: m.Path,
		Fallback: result.Fallback,
		ModelID:  opts.ModelID,
		Steps:    opts.Steps,
		Device:   string(opts.Device),
		CacheHit: result.CacheInfo.CompositeHit,
		Duration: m.Run.Duration,
	}
	if err := r.History.Append(ctx, rec); err != nil {
		r.Logger.Warn("history not updated", "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, result *Result) {
	res, err := r.Publisher.Publish(ctx, result.Manifest)
	if err != nil {
		result.UploadErr = err
		r.Logger.Warn("upload failed; artifacts remain local", "error", errors.UserMessage(err))
		return
	}
	result.Upload = res
	r.Logger.Info("uploaded artifacts", "bucket", res.Bucket, "objects", len(res.Keys))
}
