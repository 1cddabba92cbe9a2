// Package device picks the compute placement handed to a generation backend.
package device

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/zeromv/zeromv/pkg/errors"
)

// Kind is a compute placement understood by the renderer.
type Kind string

const (
	Auto Kind = "auto"
	CUDA Kind = "cuda" // primary GPU
	MPS  Kind = "mps"  // Apple GPU
	CPU  Kind = "cpu"
)

// Kinds lists the accepted values, in probe priority order after Auto.
var Kinds = []Kind{Auto, CUDA, MPS, CPU}

// Parse validates s as a device kind. The empty string means Auto.
func Parse(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return Auto, nil
	}
	for _, v := range Kinds {
		if k == v {
			return k, nil
		}
	}
	return "", errors.New(errors.ErrCodeConfig, "unknown device %q (want auto, cuda, mps or cpu)", s)
}

// IsGPU reports whether k is a GPU placement.
func (k Kind) IsGPU() bool { return k == CUDA || k == MPS }

// Commander runs an external command and reports whether it succeeded.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execCommander struct{}

func (execCommander) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Prober detects the best available device.
type Prober struct {
	Commander Commander
	GOOS      string
	GOARCH    string
	Timeout   time.Duration
}

// NewProber returns a prober for the running host.
func NewProber() *Prober {
	return &Prober{
		Commander: execCommander{},
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		Timeout:   5 * time.Second,
	}
}

// Probe returns override when it names a concrete device. Otherwise it
// returns CUDA if nvidia-smi lists a GPU, MPS on Apple silicon and CPU
// everywhere else.
func (p *Prober) Probe(ctx context.Context, override Kind) Kind {
	if override != "" && override != Auto {
		return override
	}
	if p.hasCUDA(ctx) {
		return CUDA
	}
	if p.GOOS == "darwin" && p.GOARCH == "arm64" {
		return MPS
	}
	return CPU
}

func (p *Prober) hasCUDA(ctx context.Context) bool {
	if p.Commander == nil {
		return false
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return p.Commander.Run(ctx, "nvidia-smi", "-L") == nil
}

// Probe detects the device of the running host.
func Probe(ctx context.Context, override Kind) Kind {
	return NewProber().Probe(ctx, override)
}
