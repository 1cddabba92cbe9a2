package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/history"
	"github.com/zeromv/zeromv/pkg/layout"
	"github.com/zeromv/zeromv/pkg/pipeline"
	"github.com/zeromv/zeromv/pkg/tiles"
)

// runResponse is the body of a successful POST /v1/runs.
type runResponse struct {
	ID          string           `json:"id"`
	Manifest    *layout.Manifest `json:"manifest"`
	Fallback    bool             `json:"fallback"`
	CacheHit    bool             `json:"cache_hit"`
	SheetError  string           `json:"sheet_error,omitempty"`
	UploadError string           `json:"upload_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Stats.Snapshot())
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds limit"})
			return
		}
		writeError(w, errors.Wrap(errors.ErrCodeConfig, err, "expected a multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	opts, err := s.runOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := runResponse{
		ID:       res.ID,
		Manifest: res.Manifest,
		Fallback: res.Fallback,
		CacheHit: res.CacheInfo.CompositeHit,
	}
	if res.SheetErr != nil {
		resp.SheetError = errors.UserMessage(res.SheetErr)
	}
	if res.UploadErr != nil {
		resp.UploadError = errors.UserMessage(res.UploadErr)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// runOptions builds pipeline options from the template and the form.
func (s *Server) runOptions(r *http.Request) (pipeline.Options, error) {
	opts := s.opts.Template

	file, header, err := r.FormFile("image")
	if err != nil {
		return opts, errors.New(errors.ErrCodeConfig, "form field \"image\" is required")
	}
	defer file.Close()
	img, err := tiles.DecodeLimited(file, s.opts.MaxImagePixels)
	if err != nil {
		return opts, err
	}
	opts.Image = img
	opts.Input = header.Filename

	opts.Name = strings.TrimSpace(r.FormValue("name"))
	if opts.Name == "" {
		opts.Name = layout.BaseName(header.Filename)
	}
	if err := errors.ValidateBaseName(opts.Name); err != nil {
		return opts, err
	}

	if v := r.FormValue("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New(errors.ErrCodeConfig, "steps: %q is not an integer", v)
		}
		opts.Steps = n
		if n <= 0 {
			return opts, errors.New(errors.ErrCodeConfig, "steps must be positive, got %d", n)
		}
	}
	if v := r.FormValue("grid_cols"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New(errors.ErrCodeConfig, "grid_cols: %q is not an integer", v)
		}
		opts.GridCols = n
	}
	if v := r.FormValue("grid"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New(errors.ErrCodeConfig, "grid: %q is not a boolean", v)
		}
		opts.Grid = b
	}
	return opts, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errors.New(errors.ErrCodeConfig, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	recs, err := s.store().List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !history.ValidID(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	rec, err := s.store().Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name, file := chi.URLParam(r, "name"), chi.URLParam(r, "file")
	if err := errors.ValidateBaseName(name); err != nil {
		writeError(w, err)
		return
	}
	if err := errors.ValidateArtifactName(file); err != nil {
		writeError(w, err)
		return
	}

	path := filepath.Join(s.opts.Template.Out, name, file)
	f, err := os.Open(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "artifact not found"})
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "artifact not found"})
		return
	}
	http.ServeContent(w, r, file, info.ModTime(), f)
}

func (s *Server) store() history.Store {
	if s.runner.History == nil {
		return history.NullStore{}
	}
	return s.runner.History
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeConfig, errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case errors.ErrCodeGeometry:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeBackend:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error: errors.UserMessage(err),
		Code:  string(errors.GetCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
