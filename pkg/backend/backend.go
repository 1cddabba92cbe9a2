// Package backend wraps the external multi-view generator.
//
// The generator is opaque: one conditioning image goes in, one composite
// image holding six views comes out. [CommandBackend] shells out to a local
// renderer executable, [HTTPBackend] talks to a long-running render server,
// and [StaticBackend] returns a fixed composite for re-processing existing
// grids and for tests.
package backend

import (
	"context"
	"image"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/device"
	"github.com/zeromv/zeromv/pkg/errors"
)

// Backend kinds accepted by [New].
const (
	KindCommand = "command"
	KindHTTP    = "http"
	KindStatic  = "static"
)

// Defaults for the renderer invocation.
const (
	DefaultModelID   = "sudo-ai/zero123plus-v1.2"
	DefaultScheduler = "EulerAncestralDiscrete"
	DefaultCommand   = "zero123pp-render"
	DefaultSteps     = 36
)

// DType values.
const (
	DTypeAuto = "auto"
	DTypeFP16 = "fp16"
	DTypeFP32 = "fp32"
)

// Backend generates a six-view composite from one conditioning image.
type Backend interface {
	Name() string
	Generate(ctx context.Context, input image.Image, steps int) (image.Image, error)
}

// Initializer is implemented by backends with a warm-up step that must run
// once before the first Generate, such as loading model weights.
type Initializer interface {
	Init(ctx context.Context) error
}

// Options are passed to every backend kind.
type Options struct {
	ModelID   string
	Device    device.Kind
	DType     string
	Scheduler string
	LowMemory bool

	// Command backend.
	Command string
	Args    []string

	// HTTP backend.
	URL string

	// Timeout bounds a single Generate call. Zero means no limit.
	Timeout time.Duration

	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.ModelID == "" {
		o.ModelID = DefaultModelID
	}
	if o.Device == "" || o.Device == device.Auto {
		o.Device = device.CPU
	}
	o.DType = ResolveDType(o.DType, o.Device)
	if o.Command == "" {
		o.Command = DefaultCommand
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// ResolveDType turns "auto" (or empty) into fp16 on GPUs and fp32 on CPU.
// Explicit values pass through.
func ResolveDType(dtype string, dev device.Kind) string {
	switch strings.ToLower(dtype) {
	case "", DTypeAuto:
		if dev.IsGPU() {
			return DTypeFP16
		}
		return DTypeFP32
	}
	return strings.ToLower(dtype)
}

// ValidDType reports whether s is an accepted dtype value.
func ValidDType(s string) bool {
	switch strings.ToLower(s) {
	case "", DTypeAuto, DTypeFP16, DTypeFP32:
		return true
	}
	return false
}

// New builds a backend of the given kind.
func New(kind string, opts Options) (Backend, error) {
	switch kind {
	case "", KindCommand:
		return NewCommandBackend(opts), nil
	case KindHTTP:
		return NewHTTPBackend(opts)
	case KindStatic:
		return nil, errors.New(errors.ErrCodeConfig, "static backend needs a composite; use NewStaticBackend")
	}
	return nil, errors.New(errors.ErrCodeConfig, "unknown backend kind %q (want command or http)", kind)
}

// Init runs b's warm-up step when it has one.
func Init(ctx context.Context, b Backend) error {
	if in, ok := b.(Initializer); ok {
		return in.Init(ctx)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
