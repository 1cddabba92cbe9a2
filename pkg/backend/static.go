package backend

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/zeromv/zeromv/pkg/errors"
)

// StaticBackend returns the same composite for every request.
type StaticBackend struct {
	composite image.Image
	err       error
	calls     atomic.Int64
}

// NewStaticBackend returns a backend that always yields composite.
func NewStaticBackend(composite image.Image) *StaticBackend {
	return &StaticBackend{composite: composite}
}

// NewFailingBackend returns a backend whose Generate always fails with err.
func NewFailingBackend(err error) *StaticBackend {
	return &StaticBackend{err: err}
}

func (b *StaticBackend) Name() string { return KindStatic }

// Generate ignores input and steps.
func (b *StaticBackend) Generate(ctx context.Context, _ image.Image, _ int) (image.Image, error) {
	b.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackend, b.err, "generate")
	}
	if b.composite == nil {
		return nil, errors.New(errors.ErrCodeBackend, "static backend has no composite")
	}
	return b.composite, nil
}

// Calls returns how many times Generate was invoked.
func (b *StaticBackend) Calls() int { return int(b.calls.Load()) }
