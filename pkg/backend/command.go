package backend

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// CommandBackend runs a renderer executable once per Generate call:
//
//	<command> [args...] --model-id M --steps N --device D --dtype T
//	          [--scheduler S] [--low-memory] --input in.png --output out.png
//
// The executable writes the composite to the --output path.
type CommandBackend struct {
	opts Options
}

// NewCommandBackend returns a backend invoking opts.Command.
func NewCommandBackend(opts Options) *CommandBackend {
	opts.setDefaults()
	return &CommandBackend{opts: opts}
}

func (b *CommandBackend) Name() string { return KindCommand }

// Init checks that the executable can be found.
func (b *CommandBackend) Init(context.Context) error {
	if _, err := exec.LookPath(b.opts.Command); err != nil {
		return errors.Wrap(errors.ErrCodeBackend, err, "renderer %q not found", b.opts.Command)
	}
	return nil
}

// Args returns the argument list for one invocation.
func (b *CommandBackend) Args(steps int, in, out string) []string {
	args := append([]string{}, b.opts.Args...)
	args = append(args,
		"--model-id", b.opts.ModelID,
		"--steps", strconv.Itoa(steps),
		"--device", string(b.opts.Device),
		"--dtype", b.opts.DType,
	)
	if b.opts.Scheduler != "" {
		args = append(args, "--scheduler", b.opts.Scheduler)
	}
	if b.opts.LowMemory {
		args = append(args, "--low-memory")
	}
	return append(args, "--input", in, "--output", out)
}

func (b *CommandBackend) Generate(ctx context.Context, input image.Image, steps int) (image.Image, error) {
	dir, err := os.MkdirTemp("", "zeromv-render-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "create work dir")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.png")
	out := filepath.Join(dir, "output.png")
	if err := writePNG(in, input); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "write conditioning image")
	}

	ctx, cancel := withTimeout(ctx, b.opts.Timeout)
	defer cancel()

	args := b.Args(steps, in, out)
	b.opts.Logger.Debug("running renderer", "command", b.opts.Command, "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.opts.Command, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeBackend, withStderr(err, stderr.String()), "renderer %s failed", b.opts.Command)
	}

	img, err := tiles.Open(out)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, err, "read renderer output")
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiles.EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	lines := strings.Split(stderr, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return fmt.Errorf("%w: %s", err, strings.Join(lines, "; "))
}
