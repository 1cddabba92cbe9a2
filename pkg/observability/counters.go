package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time copy of [Counters].
type Stats struct {
	Generations        int64 `json:"generations"`
	GenerationFailures int64 `json:"generation_failures"`
	GenerateNanos      int64 `json:"generate_ns"`
	Splits             int64 `json:"splits"`
	Fallbacks          int64 `json:"fallbacks"`
	Writes             int64 `json:"writes"`
	WriteFailures      int64 `json:"write_failures"`
	Sheets             int64 `json:"sheets"`
	SheetFailures      int64 `json:"sheet_failures"`
	CacheHits          int64 `json:"cache_hits"`
	CacheMisses        int64 `json:"cache_misses"`
	CacheBytes         int64 `json:"cache_bytes_written"`
	Requests           int64 `json:"requests"`
	ClientErrors       int64 `json:"client_errors"`
	ServerErrors       int64 `json:"server_errors"`
}

// Counters counts every hook event in memory. The server exposes a
// snapshot; events are also passed on to the hooks that were registered
// before [Counters.Install].
type Counters struct {
	generations, generationFailures, generateNanos atomic.Int64
	splits, fallbacks                              atomic.Int64
	writes, writeFailures                          atomic.Int64
	sheets, sheetFailures                          atomic.Int64
	cacheHits, cacheMisses, cacheBytes             atomic.Int64
	requests, clientErrors, serverErrors           atomic.Int64

	pipeline PipelineHooks
	cache    CacheHooks
	http     HTTPHooks
}

// NewCounters returns counters that forward to no-op hooks.
func NewCounters() *Counters {
	return &Counters{
		pipeline: NoopPipelineHooks{},
		cache:    NoopCacheHooks{},
		http:     NoopHTTPHooks{},
	}
}

// Install registers c for all three hook kinds, chaining the currently
// registered hooks behind it.
func (c *Counters) Install() {
	c.pipeline, c.cache, c.http = Pipeline(), Cache(), HTTP()
	SetPipelineHooks(c)
	SetCacheHooks(c)
	SetHTTPHooks(c)
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Generations:        c.generations.Load(),
		GenerationFailures: c.generationFailures.Load(),
		GenerateNanos:      c.generateNanos.Load(),
		Splits:             c.splits.Load(),
		Fallbacks:          c.fallbacks.Load(),
		Writes:             c.writes.Load(),
		WriteFailures:      c.writeFailures.Load(),
		Sheets:             c.sheets.Load(),
		SheetFailures:      c.sheetFailures.Load(),
		CacheHits:          c.cacheHits.Load(),
		CacheMisses:        c.cacheMisses.Load(),
		CacheBytes:         c.cacheBytes.Load(),
		Requests:           c.requests.Load(),
		ClientErrors:       c.clientErrors.Load(),
		ServerErrors:       c.serverErrors.Load(),
	}
}

func (c *Counters) OnGenerateStart(ctx context.Context, backend string, steps int) {
	c.pipeline.OnGenerateStart(ctx, backend, steps)
}

func (c *Counters) OnGenerateComplete(ctx context.Context, backend string, d time.Duration, err error) {
	c.generations.Add(1)
	c.generateNanos.Add(int64(d))
	if err != nil {
		c.generationFailures.Add(1)
	}
	c.pipeline.OnGenerateComplete(ctx, backend, d, err)
}

func (c *Counters) OnSplit(ctx context.Context, shape string, tiles int, fallback bool) {
	c.splits.Add(1)
	if fallback {
		c.fallbacks.Add(1)
	}
	c.pipeline.OnSplit(ctx, shape, tiles, fallback)
}

func (c *Counters) OnWriteComplete(ctx context.Context, runDir string, files int, d time.Duration, err error) {
	c.writes.Add(1)
	if err != nil {
		c.writeFailures.Add(1)
	}
	c.pipeline.OnWriteComplete(ctx, runDir, files, d, err)
}

func (c *Counters) OnSheet(ctx context.Context, images int, err error) {
	c.sheets.Add(1)
	if err != nil {
		c.sheetFailures.Add(1)
	}
	c.pipeline.OnSheet(ctx, images, err)
}

func (c *Counters) OnCacheHit(ctx context.Context, keyType string) {
	c.cacheHits.Add(1)
	c.cache.OnCacheHit(ctx, keyType)
}

func (c *Counters) OnCacheMiss(ctx context.Context, keyType string) {
	c.cacheMisses.Add(1)
	c.cache.OnCacheMiss(ctx, keyType)
}

func (c *Counters) OnCacheSet(ctx context.Context, keyType string, size int) {
	c.cacheBytes.Add(int64(size))
	c.cache.OnCacheSet(ctx, keyType, size)
}

func (c *Counters) OnRequest(ctx context.Context, method, route string) {
	c.requests.Add(1)
	c.http.OnRequest(ctx, method, route)
}

func (c *Counters) OnResponse(ctx context.Context, method, route string, status int, d time.Duration) {
	switch {
	case status >= 500:
		c.serverErrors.Add(1)
	case status >= 400:
		c.clientErrors.Add(1)
	}
	c.http.OnResponse(ctx, method, route, status, d)
}

var (
	_ PipelineHooks = (*Counters)(nil)
	_ CacheHooks    = (*Counters)(nil)
	_ HTTPHooks     = (*Counters)(nil)
)
