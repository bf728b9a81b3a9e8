package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
	"github.com/JakeFAU/page-analyzer/internal/jobs"
	"github.com/JakeFAU/page-analyzer/internal/storage/memory"
)

type sequentialIDs struct{ n int }

func (g *sequentialIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type apiFixture struct {
	store  *memory.JobStore
	server *Server
}

func newFixture(t *testing.T, apiKey string) *apiFixture {
	t.Helper()
	store := memory.NewJobStore()
	clock := &tickingClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := jobs.NewService(store, &sequentialIDs{}, clock, nil, zap.NewNop())
	return &apiFixture{
		store:  store,
		server: NewServer(svc, Config{APIKey: apiKey}, zap.NewNop()),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.do(t, http.MethodGet, "/healthz", "")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "analyzer_http_requests_total")
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "any token", header: "Bearer anything", want: http.StatusOK},
		{name: "configured key mismatch", apiKey: "secret", header: "Bearer other", want: http.StatusUnauthorized},
		{name: "configured key match", apiKey: "secret", header: "Bearer secret", want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tc.apiKey)
			req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/analyze", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSubmitAndList(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"job-1"}`, rec.Body.String())

	ctx := context.Background()
	require.NoError(t, f.store.ClaimJob(ctx, "job-1"))
	require.NoError(t, f.store.CommitResult(ctx, "job-1", crawler.AnalysisResult{
		HTMLVersion:       crawler.HTML5,
		Title:             "Example",
		Headings:          [crawler.HeadingLevels]int{1, 0, 2},
		InternalLinks:     1,
		ExternalLinks:     1,
		InaccessibleLinks: 1,
		BrokenLinks:       []string{"https://dead.example"},
	}))
	rec = f.do(t, http.MethodPost, "/api/analyze", `{"url":"https://second.example"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	require.Equal(t, "job-2", views[0]["id"])
	require.Equal(t, "queued", views[0]["status"])
	require.Equal(t, []any{}, views[0]["broken_links"])

	done := views[1]
	require.Equal(t, "done", done["status"])
	require.Equal(t, "Example", done["title"])
	require.Equal(t, "HTML5", done["html_version"])
	require.EqualValues(t, 1, done["h1_count"])
	require.EqualValues(t, 2, done["h3_count"])
	require.EqualValues(t, 1, done["inaccessible_links"])
	require.Equal(t, []any{"https://dead.example"}, done["broken_links"])
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/analyze", `{"url":`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/analyze", `{"url":""}`).Code)
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`).Code)

	rec := f.do(t, http.MethodPost, "/api/analyze/stop", `{"id":"job-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"job-1","status":"stopped"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/analyze/stop", `{"id":"job-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/analyze/start", `{"id":"job-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"id":"job-1","status":"queued"}`, rec.Body.String())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/analyze/stop", `{"id":"job-1"}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/analyze/rerun", `{"id":"job-1"}`).Code)

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/analyze/rerun", `{"id":"missing"}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/analyze/rerun", `{}`).Code)
}

func TestGetAndDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`).Code)

	rec := f.do(t, http.MethodGet, "/api/analyses/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"url":"https://example.com"`)

	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/analyses/job-1", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/analyses/job-1", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/analyses/job-1", "").Code)
}

type brokenService struct {
	*jobs.Service
}

func (brokenService) List(context.Context) ([]crawler.Job, error) {
	return nil, errors.New("db down")
}

func TestInternalErrorsAreMasked(t *testing.T) {
	t.Parallel()

	srv := NewServer(brokenService{}, Config{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
