package cli

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/device"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/pipeline"
	"github.com/zeromv/zeromv/pkg/publish"
)

func lookupEnv(key string) string { return os.Getenv(key) }

// runFlags holds the flags shared by run, split and serve.
// Only flags the user actually set become part of the flag layer.
type runFlags struct {
	image     string
	out       string
	name      string
	modelID   string
	steps     int
	grid      bool
	gridCols  int
	strict    bool
	manifest  bool
	device    string
	dtype     string
	scheduler string
	backend   string
	url       string
	upload    bool
}

func (f *runFlags) bindOutput(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output root directory (default \"outputs\")")
	cmd.Flags().BoolVar(&f.grid, "grid", true, "write a contact sheet of all tiles")
	cmd.Flags().IntVar(&f.gridCols, "grid-cols", 0, "contact sheet columns (default min(8, tiles))")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "fail instead of writing a single tile when the composite cannot be split")
	cmd.Flags().BoolVar(&f.manifest, "manifest", true, "write a JSON manifest next to the tiles")
}

func (f *runFlags) bindModel(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.modelID, "model-id", "", "model identifier passed to the renderer")
	cmd.Flags().IntVar(&f.steps, "steps", 0, "number of inference steps (default 36)")
	cmd.Flags().StringVar(&f.device, "device", "", "compute device: auto, cuda, mps, cpu")
	cmd.Flags().StringVar(&f.dtype, "dtype", "", "weights precision: auto, fp16, fp32")
	cmd.Flags().StringVar(&f.scheduler, "scheduler", "", "scheduler override, or \"none\"")
	cmd.Flags().StringVar(&f.backend, "backend", "", "generation backend: command, http")
	cmd.Flags().StringVar(&f.url, "backend-url", "", "render server URL for the http backend")
	cmd.Flags().BoolVar(&f.upload, "upload", false, "publish artifacts to the configured bucket")
}

// layer converts explicitly set flags into a config layer.
func (f *runFlags) layer(cmd *cobra.Command) config.Layer {
	var l config.Layer
	changed := cmd.Flags().Changed
	str := func(name, v string) *string {
		if changed(name) {
			return config.String(v)
		}
		return nil
	}
	num := func(name string, v int) *int {
		if changed(name) {
			return config.Int(v)
		}
		return nil
	}
	flag := func(name string, v bool) *bool {
		if changed(name) {
			return config.Bool(v)
		}
		return nil
	}

	l.Image = str("image", f.image)
	l.Out = str("out", f.out)
	l.ModelID = str("model-id", f.modelID)
	l.Steps = num("steps", f.steps)
	l.Grid = flag("grid", f.grid)
	l.GridCols = num("grid-cols", f.gridCols)
	l.Strict = flag("strict", f.strict)
	l.Manifest = flag("manifest", f.manifest)
	l.Device = str("device", f.device)
	l.DType = str("dtype", f.dtype)
	l.Scheduler = str("scheduler", f.scheduler)
	l.Backend.Kind = str("backend", f.backend)
	l.Backend.URL = str("backend-url", f.url)
	l.Upload.Enabled = flag("upload", f.upload)
	return l
}

// loadConfig resolves every configuration layer for cmd.
func (c *CLI) loadConfig(cmd *cobra.Command, flags config.Layer) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:   c.configPath,
		Getenv: c.getenv,
		Flags:  flags,
	})
	if err != nil {
		return cfg, err
	}
	if cfg.Source != "" {
		loggerFromContext(cmd.Context()).Debug("loaded config", "file", cfg.Source)
	}
	return cfg, nil
}

// probeDevice resolves the configured device, probing when it is "auto".
func probeDevice(ctx context.Context, cfg config.Config) (device.Kind, error) {
	override, err := device.Parse(cfg.Device)
	if err != nil {
		return "", err
	}
	return device.NewProber().Probe(ctx, override), nil
}

// pipelineOptions maps a validated config onto per-run options.
func pipelineOptions(cfg config.Config, dev device.Kind) pipeline.Options {
	return pipeline.Options{
		Input:     cfg.Image,
		Out:       cfg.Out,
		ModelID:   cfg.ModelID,
		Steps:     cfg.Steps,
		Device:    dev,
		DType:     cfg.DType,
		Scheduler: cfg.SchedulerName(),
		MinSide:   cfg.MinSide,
		Grid:      cfg.Grid,
		GridCols:  cfg.GridCols,
		Strict:    cfg.Strict,
		Manifest:  cfg.Manifest,
		CacheTTL:  cfg.Cache.TTL,
		Upload:    cfg.Upload.Enabled,
	}
}

func backendOptions(cfg config.Config, dev device.Kind, logger *log.Logger) backend.Options {
	return backend.Options{
		ModelID:   cfg.ModelID,
		Device:    dev,
		DType:     cfg.DType,
		Scheduler: cfg.SchedulerName(),
		LowMemory: cfg.LowMemory,
		Command:   cfg.Backend.Command,
		Args:      cfg.Backend.Args,
		URL:       cfg.Backend.URL,
		Timeout:   cfg.Backend.Timeout,
		Logger:    logger,
	}
}

// openCache opens the configured cache. Failures degrade to no caching.
func openCache(ctx context.Context, cfg config.Config, logger *log.Logger) cache.Cache {
	c, err := cache.Open(ctx, cacheOptions(cfg))
	if err != nil {
		logger.Warn("cache disabled", "error", err)
		return cache.NewNullCache()
	}
	return c
}

// openHistory opens the configured history store. Failures degrade to none.
func openHistory(ctx context.Context, cfg config.Config, logger *log.Logger) history.Store {
	s, err := history.Open(ctx, historyOptions(cfg))
	if err != nil {
		logger.Warn("history disabled", "error", err)
		return history.NullStore{}
	}
	return s
}

func historyOptions(cfg config.Config) history.Options {
	return history.Options{
		Backend:    cfg.History.Backend,
		Dir:        cfg.History.Dir,
		MongoURI:   cfg.History.MongoURI,
		Database:   cfg.History.Database,
		Collection: cfg.History.Collection,
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *log.Logger) (publish.Publisher, error) {
	if !cfg.Upload.Enabled {
		return nil, nil
	}
	return publish.NewS3Publisher(ctx, publish.Config{
		Endpoint:  cfg.Upload.Endpoint,
		Region:    cfg.Upload.Region,
		Bucket:    cfg.Upload.Bucket,
		Prefix:    cfg.Upload.Prefix,
		AccessKey: cfg.Upload.AccessKey,
		SecretKey: cfg.Upload.SecretKey,
		PathStyle: cfg.Upload.PathStyle,
	}, logger)
}

// newRunner wires a pipeline runner for cfg. The returned close function
// releases the cache and history connections.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config, b backend.Backend) (*pipeline.Runner, func(), error) {
	pub, err := newPublisher(ctx, cfg, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc := openCache(ctx, cfg, c.Logger)
	store := openHistory(ctx, cfg, c.Logger)

	runner := pipeline.NewRunner(b, cc, nil, c.Logger)
	runner.History = store
	if pub != nil {
		runner.Publisher = pub
	}
	closeFn := func() {
		if err := cc.Close(); err != nil {
			c.Logger.Debug("close cache", "error", err)
		}
		if err := store.Close(); err != nil {
			c.Logger.Debug("close history", "error", err)
		}
	}
	return runner, closeFn, nil
}
