// Package server exposes the pipeline over HTTP.
//
// Routes:
//
//	GET  /healthz                 liveness probe, plain "ok"
//	POST /v1/runs                 multipart upload; runs the pipeline synchronously
//	GET  /v1/runs                 recent runs from the history store
//	GET  /v1/runs/{id}            one history record
//	GET  /v1/runs/{name}/{file}   an artifact from the output root
//	GET  /v1/stats                event counters, when [Options.Stats] is set
//
// Runs that share a base name are serialized by the [pipeline.Runner].
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/observability"
	"github.com/zeromv/zeromv/pkg/pipeline"
)

// Defaults for [Options].
const (
	DefaultAddr           = ":8080"
	DefaultMaxUploadBytes = 32 << 20
	DefaultMaxImagePixels = 8192 * 8192
	DefaultReadTimeout    = 30 * time.Second
	DefaultShutdownGrace  = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr string

	// Template holds the per-run settings; requests may override steps,
	// grid, grid_cols and name.
	Template pipeline.Options

	MaxUploadBytes int64
	// MaxImagePixels caps the declared size of an uploaded image.
	MaxImagePixels int64
	ReadTimeout    time.Duration
	// WriteTimeout bounds a whole request including generation.
	// Zero means no limit.
	WriteTimeout time.Duration

	// Stats, when set, is served at /v1/stats. The caller installs it.
	Stats *observability.Counters

	Logger *log.Logger
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.Template.Out == "" {
		o.Template.Out = layout.DefaultOutputRoot
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if o.MaxImagePixels <= 0 {
		o.MaxImagePixels = DefaultMaxImagePixels
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Server serves the HTTP API for one runner.
type Server struct {
	runner *pipeline.Runner
	opts   Options
	router chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New builds a server around runner.
func New(runner *pipeline.Runner, opts Options) *Server {
	opts.setDefaults()
	s := &Server{runner: runner, opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{name}/{file}", s.handleArtifact)
	})
	if s.opts.Stats != nil {
		r.Get("/v1/stats", s.handleStats)
	}
	return r
}

// observe reports every request to the registered HTTP hooks and the logger.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, route)
		hooks.OnResponse(r.Context(), r.Method, route, status, time.Since(start))
		s.opts.Logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New(errors.ErrCodeInternal, "server already started")
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfig, err, "listen %s", s.opts.Addr)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.listener = ln
	s.server = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("serve failed", "error", err)
		}
	}()
	s.opts.Logger.Info("listening", "addr", ln.Addr().String(), "out", s.opts.Template.Out)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Requests keep running while draining; only new connections stop.
	if err := s.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	s.opts.Logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownGrace)
	defer cancel()
	return s.Shutdown(sctx)
}
