// Package server exposes jobs over HTTP: submit, inspect, cancel, export and a
// websocket stream of progress updates.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"video-docs-go/internal/export"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/pipeline"
	"video-docs-go/internal/schema"
	"video-docs-go/internal/store"
	"video-docs-go/internal/types"
)

// Jobs is the slice of the orchestrator the HTTP layer drives.
type Jobs interface {
	Start(ctx context.Context, sourceRef string, s *schema.Schema) (pipeline.JobHandle, error)
	Cancel(jobID string) error
}

// Server handles HTTP requests for job management
type Server struct {
	jobs    Jobs
	store   store.Store
	schemas func() *schema.Schema
	ws      http.Handler
	log     *logger.Logger
}

// New builds the server. ws may be nil, in which case /ws is not mounted.
func New(jobs Jobs, st store.Store, schemas func() *schema.Schema, ws http.Handler, log *logger.Logger) *Server {
	if schemas == nil {
		schemas = schema.Default
	}
	return &Server{jobs: jobs, store: st, schemas: schemas, ws: ws, log: log.Component("server")}
}

// Handler returns the routed handler with CORS applied to the REST endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.Handle("POST /jobs", cors(http.HandlerFunc(s.handleCreate)))
	mux.Handle("GET /jobs", cors(http.HandlerFunc(s.handleList)))
	mux.Handle("GET /jobs/{id}", cors(http.HandlerFunc(s.handleGet)))
	mux.Handle("DELETE /jobs/{id}", cors(http.HandlerFunc(s.handleCancel)))
	mux.Handle("GET /jobs/{id}/export", cors(http.HandlerFunc(s.handleExport)))
	mux.Handle("GET /schema", cors(http.HandlerFunc(s.handleSchema)))
	mux.Handle("OPTIONS /", cors(http.NotFoundHandler()))
	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	return mux
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type createRequest struct {
	SourceURL string          `json:"source_url"`
	Schema    json.RawMessage `json:"schema,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "create")

	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "missing source_url")
		return
	}
	if err := checkSourceURL(req.SourceURL); err != nil {
		reqLog.WithError(err).Warn("rejected source_url")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sch *schema.Schema
	if len(req.Schema) > 0 && string(req.Schema) != "null" {
		parsed, err := schema.Parse(req.Schema)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sch = parsed
	}

	handle, err := s.jobs.Start(r.Context(), req.SourceURL, sch)
	if err != nil {
		reqLog.WithError(err).Error("start job failed")
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	reqLog.WithField("job_id", handle.ID()).WithField("source_url", req.SourceURL).Info("job accepted")

	writeJSON(w, http.StatusAccepted, handle.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var f store.Filter
	if state := r.URL.Query().Get("state"); state != "" {
		f.State = types.JobState(state)
		if !f.State.Valid() {
			writeError(w, http.StatusBadRequest, "invalid state parameter")
			return
		}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		f.Limit = n
	}

	jobs, err := s.store.List(r.Context(), f)
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("list jobs failed")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Cancel(id); err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found or already finished")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithRequest(r).WithField("job_id", id).Info("job cancel requested")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.State != types.StateCompleted || job.Content == nil {
		writeError(w, http.StatusConflict, "job has no completed document")
		return
	}
	reqLog := s.log.WithRequest(r).WithField("job_id", job.ID)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, job.Content)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", attachment(job.ID, "xlsx"))
		if err := export.WriteXLSX(w, job.Content.Document()); err != nil {
			reqLog.WithError(err).Error("xlsx export failed")
		}
	case "docx":
		dir, err := os.MkdirTemp("", "export-*")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, job.ID+".docx")
		if err := export.WriteDOCX(path, job.Content.Document()); err != nil {
			reqLog.WithError(err).Error("docx export failed")
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", attachment(job.ID, "docx"))
		http.ServeFile(w, r, path)
	default:
		writeError(w, http.StatusBadRequest, "format must be json, xlsx or docx")
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.schemas())
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (types.Job, bool) {
	job, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return types.Job{}, false
	}
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("load job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return types.Job{}, false
	}
	return job, true
}

// checkSourceURL accepts only absolute http(s) URLs with a host. Local paths and
// other schemes are never reachable through the API.
func checkSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("source_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source_url must be an http or https URL")
	}
	if u.Host == "" || u.User != nil {
		return fmt.Errorf("source_url must name a host")
	}
	return nil
}

func attachment(id, ext string) string {
	return fmt.Sprintf("attachment; filename=%q", id+"."+ext)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
