// Package cli implements the zeromv command-line interface.
//
// Commands wrap the pipeline for terminal use: run generates views for one
// photo, split re-processes an existing composite, sheet builds a standalone
// contact sheet, and serve exposes the same pipeline over HTTP. Settings come
// from defaults, a config file, ZEROMV_* environment variables and flags, in
// increasing precedence.
//
// # Commands
//
//   - run: generate, split and write the six views of one photo
//   - split: split an existing composite without calling the model
//   - sheet: compose images into a contact sheet
//   - device: print the compute device that would be used
//   - history, browse: list or pick past runs
//   - serve: start the HTTP API
//   - cache: manage the composite cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// registers logging observability hooks. Loggers are passed through
// context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zeromv/zeromv/pkg/errors"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
// The returned progress should call done when the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Generated composite (41.337s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type for context keys used in this package.
// Using a distinct type prevents collisions with other packages.
type ctxKey int

// loggerKey is the context key for storing a logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
// The logger can be retrieved later with loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
// This ensures commands always have a valid logger even if context setup fails.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// logHooks reports observability events to the logger at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h logHooks) OnGenerateStart(_ context.Context, backend string, steps int) {
	h.logger.Debug("generation started", "backend", backend, "steps", steps)
}

func (h logHooks) OnGenerateComplete(_ context.Context, backend string, d time.Duration, err error) {
	h.logger.Debug("generation finished", "backend", backend, "duration", d, "ok", err == nil)
}

func (h logHooks) OnSplit(_ context.Context, shape string, tiles int, fallback bool) {
	h.logger.Debug("split", "shape", shape, "tiles", tiles, "fallback", fallback)
}

func (h logHooks) OnWriteComplete(_ context.Context, runDir string, files int, d time.Duration, err error) {
	h.logger.Debug("write finished", "dir", runDir, "tiles", files, "duration", d, "ok", err == nil)
}

func (h logHooks) OnSheet(_ context.Context, images int, err error) {
	if err != nil {
		h.logger.Debug("sheet failed", "images", images, "code", errors.GetCode(err))
		return
	}
	h.logger.Debug("sheet composed", "images", images)
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h logHooks) OnRequest(_ context.Context, method, route string) {}

func (h logHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.logger.Debug("http", "method", method, "route", route, "status", status, "duration", d)
}
