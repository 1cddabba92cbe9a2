// Package config resolves the settings of a run.
//
// Values come from four layers, lowest precedence first: built-in
// [Defaults], a YAML or TOML file, ZEROMV_* environment variables and
// explicitly set command-line flags. Each layer is a [Layer] whose nil or
// empty fields leave the value below untouched; [Merge] applies one layer.
package config

import (
	"strings"
	"time"

	"github.com/zeromv/zeromv/pkg/backend"
	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/device"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// SchedulerNone disables the scheduler override.
const SchedulerNone = "none"

// Config is the fully resolved configuration.
type Config struct {
	Image     string
	Out       string
	ModelID   string
	Steps     int
	Grid      bool
	GridCols  int
	Strict    bool
	Manifest  bool
	Device    string
	DType     string
	Scheduler string
	LowMemory bool
	MinSide   int

	Backend BackendConfig
	Cache   CacheConfig
	History HistoryConfig
	Upload  UploadConfig

	// Source is the config file that was loaded, empty when none.
	Source string
}

// BackendConfig selects and configures the renderer.
type BackendConfig struct {
	Kind    string
	Command string
	Args    []string
	URL     string
	Timeout time.Duration
}

// CacheConfig configures the composite cache.
type CacheConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Backend    string
	Dir        string
	MongoURI   string
	Database   string
	Collection string
}

// UploadConfig configures publishing artifacts to an S3-compatible bucket.
type UploadConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Defaults returns the built-in configuration. Image has no default.
func Defaults() Config {
	return Config{
		Out:       layout.DefaultOutputRoot,
		ModelID:   backend.DefaultModelID,
		Steps:     backend.DefaultSteps,
		Grid:      true,
		Manifest:  true,
		Device:    string(device.Auto),
		DType:     backend.DTypeAuto,
		Scheduler: backend.DefaultScheduler,
		LowMemory: true,
		MinSide:   tiles.DefaultMinSide,
		Backend: BackendConfig{
			Kind:    backend.KindCommand,
			Command: backend.DefaultCommand,
		},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			TTL:     cache.DefaultTTL,
		},
		History: HistoryConfig{
			Backend: history.BackendFile,
		},
		Upload: UploadConfig{
			Region: "us-east-1",
		},
	}
}

// SchedulerName returns the scheduler to request, empty when disabled.
func (c Config) SchedulerName() string {
	if strings.EqualFold(c.Scheduler, SchedulerNone) {
		return ""
	}
	return c.Scheduler
}

// Validate checks every setting including the input image. It runs before
// any device probing or backend start-up.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Image) == "" {
		return errors.New(errors.ErrCodeConfig, "provide --image or config:image")
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything except the input image, for callers
// that receive images per request.
func (c Config) ValidateSettings() error {
	if c.Steps <= 0 {
		return errors.New(errors.ErrCodeConfig, "steps must be positive, got %d", c.Steps)
	}
	if c.GridCols < 0 {
		return errors.New(errors.ErrCodeConfig, "grid_cols must not be negative, got %d", c.GridCols)
	}
	if c.MinSide <= 0 {
		return errors.New(errors.ErrCodeConfig, "min_side must be positive, got %d", c.MinSide)
	}
	if strings.TrimSpace(c.Out) == "" {
		return errors.New(errors.ErrCodeConfig, "out must not be empty")
	}
	if _, err := device.Parse(c.Device); err != nil {
		return err
	}
	if !backend.ValidDType(c.DType) {
		return errors.New(errors.ErrCodeConfig, "unknown dtype %q (want auto, fp16 or fp32)", c.DType)
	}

	switch c.Backend.Kind {
	case backend.KindCommand:
		if c.Backend.Command == "" {
			return errors.New(errors.ErrCodeConfig, "backend.command must not be empty")
		}
	case backend.KindHTTP:
		if c.Backend.URL == "" {
			return errors.New(errors.ErrCodeConfig, "backend.url is required for the http backend")
		}
	default:
		return errors.New(errors.ErrCodeConfig, "unknown backend kind %q (want command or http)", c.Backend.Kind)
	}
	if c.Backend.Timeout < 0 {
		return errors.New(errors.ErrCodeConfig, "backend.timeout must not be negative")
	}

	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendRedis, cache.BackendNone:
	default:
		return errors.New(errors.ErrCodeConfig, "unknown cache backend %q (want file, redis or none)", c.Cache.Backend)
	}
	switch c.History.Backend {
	case history.BackendFile, history.BackendMongo, history.BackendNone:
	default:
		return errors.New(errors.ErrCodeConfig, "unknown history backend %q (want file, mongo or none)", c.History.Backend)
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		return errors.New(errors.ErrCodeConfig, "upload.bucket is required when upload is enabled")
	}
	return nil
}
