package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/jobs"
)

const maxRequestBody = 1 << 20

type submitRequest struct {
	URL string `json:"url"`
}

type idRequest struct {
	ID string `json:"id"`
}

type jobAction func(ctx context.Context, jobID string) error

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := s.jobs.Submit(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"id": job.ID})
}

func (s *Server) rerun(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.jobs.Rerun, crawler.JobStatusQueued)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.jobs.Start, crawler.JobStatusQueued)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.jobs.Stop, crawler.JobStatusStopped)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, action jobAction, status crawler.JobStatus) {
	var req idRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := action(r.Context(), req.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"id": req.ID, "status": string(status)})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	all, err := s.jobs.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	views := make([]analysisView, 0, len(all))
	for _, job := range all {
		views = append(views, newAnalysisView(job))
	}
	s.writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newAnalysisView(job))
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// analysisView is the flat JSON shape clients of /api/analyses consume.
type analysisView struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	HTMLVersion       string     `json:"html_version"`
	Title             string     `json:"title"`
	H1Count           int        `json:"h1_count"`
	H2Count           int        `json:"h2_count"`
	H3Count           int        `json:"h3_count"`
	H4Count           int        `json:"h4_count"`
	H5Count           int        `json:"h5_count"`
	H6Count           int        `json:"h6_count"`
	InternalLinks     int        `json:"internal_links"`
	ExternalLinks     int        `json:"external_links"`
	InaccessibleLinks int        `json:"inaccessible_links"`
	BrokenLinks       []string   `json:"broken_links"`
	HasLoginForm      bool       `json:"has_login_form"`
	FinalURL          string     `json:"final_url,omitempty"`
	StatusCode        int        `json:"status_code,omitempty"`
	SnapshotURI       string     `json:"snapshot_uri,omitempty"`
	AnalyzedAt        *time.Time `json:"analyzed_at,omitempty"`
}

func newAnalysisView(job crawler.Job) analysisView {
	view := analysisView{
		ID:          job.ID,
		URL:         job.URL,
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		BrokenLinks: []string{},
	}
	if !job.HasResult() {
		return view
	}
	res := job.Result
	view.HTMLVersion = string(res.HTMLVersion)
	view.Title = res.Title
	view.H1Count = res.HeadingCount(1)
	view.H2Count = res.HeadingCount(2)
	view.H3Count = res.HeadingCount(3)
	view.H4Count = res.HeadingCount(4)
	view.H5Count = res.HeadingCount(5)
	view.H6Count = res.HeadingCount(6)
	view.InternalLinks = res.InternalLinks
	view.ExternalLinks = res.ExternalLinks
	view.InaccessibleLinks = res.InaccessibleLinks
	view.HasLoginForm = res.HasLoginForm
	view.FinalURL = res.FinalURL
	view.StatusCode = res.StatusCode
	view.SnapshotURI = res.SnapshotURI
	if len(res.BrokenLinks) > 0 {
		view.BrokenLinks = append(view.BrokenLinks, res.BrokenLinks...)
	}
	if !res.AnalyzedAt.IsZero() {
		analyzedAt := res.AnalyzedAt
		view.AnalyzedAt = &analyzedAt
	}
	return view
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, "analysis not found")
	case errors.Is(err, crawler.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := encodeJSON(w, status, payload); err != nil {
		s.logger.Warn("write JSON failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = encodeJSON(w, status, map[string]string{"error": msg})
}

func encodeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
