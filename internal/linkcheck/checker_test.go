package linkcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProbeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone"
	srv.Close()
	return url
}

func TestCheckClassifiesResponses(t *testing.T) {
	t.Parallel()

	srv := newProbeServer(t)
	dead := deadURL(t)
	checker := New(Config{Timeout: 2 * time.Second}, zap.NewNop())

	links := []string{
		srv.URL + "/ok",
		srv.URL + "/missing",
		srv.URL + "/redirect",
		dead,
		srv.URL + "/boom",
		srv.URL + "/teapot",
		"mailto:someone@example.com",
	}

	broken, err := checker.Check(context.Background(), links)

	require.NoError(t, err)
	require.Equal(t, []string{
		srv.URL + "/missing",
		dead,
		srv.URL + "/boom",
		srv.URL + "/teapot",
		"mailto:someone@example.com",
	}, broken)
}

func TestCheckRecordsDuplicatesPerOccurrence(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	checker := New(Config{}, zap.NewNop())
	link := srv.URL + "/same"

	broken, err := checker.Check(context.Background(), []string{link, link, link})

	require.NoError(t, err)
	require.Equal(t, []string{link, link, link}, broken)
	require.Equal(t, int32(3), hits.Load())
}

func TestCheckConcurrentPreservesInputOrder(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// Later links answer first.
		if r.URL.Path == "/slow" {
			time.Sleep(50 * time.Millisecond)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	checker := New(Config{Concurrency: 4}, zap.NewNop())
	links := []string{srv.URL + "/slow", srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}

	broken, err := checker.Check(context.Background(), links)

	require.NoError(t, err)
	require.Equal(t, links, broken)
	require.LessOrEqual(t, peak.Load(), int32(4))
}

func TestCheckStopsDispatchingWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 2 {
			cancel()
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	checker := New(Config{Concurrency: 1}, zap.NewNop())
	links := make([]string, 10)
	for i := range links {
		links[i] = srv.URL + "/dead"
	}

	broken, err := checker.Check(ctx, links)

	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Less(t, int(hits.Load()), len(links))
	require.LessOrEqual(t, len(broken), int(hits.Load()))
	require.NotEmpty(t, broken)
}

func TestCheckEmpty(t *testing.T) {
	t.Parallel()

	broken, err := New(Config{}, nil).Check(context.Background(), nil)

	require.NoError(t, err)
	require.Empty(t, broken)
}

func TestIsBrokenStatus(t *testing.T) {
	t.Parallel()

	require.False(t, IsBrokenStatus(200))
	require.False(t, IsBrokenStatus(302))
	require.False(t, IsBrokenStatus(399))
	require.True(t, IsBrokenStatus(400))
	require.True(t, IsBrokenStatus(599))
	require.False(t, IsBrokenStatus(600))
}
