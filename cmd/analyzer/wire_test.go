package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/config"
	collyfetcher "github.com/JakeFAU/page-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/page-analyzer/internal/storage/local"
	"github.com/JakeFAU/page-analyzer/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("ANALYZER_LOGGING_DEVELOPMENT", "false")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildServesHealthz(t *testing.T) {
	cfg := testConfig(t)

	svc, err := build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.close)

	rec := httptest.NewRecorder()
	svc.api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildJobStoreDefaultsToMemory(t *testing.T) {
	t.Parallel()

	store, closeStore, err := buildJobStore(context.Background(), config.DBConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &memory.JobStore{}, store)
}

func TestBuildArchive(t *testing.T) {
	t.Parallel()

	archive, closeArchive, err := buildArchive(context.Background(), config.ArchiveConfig{})
	require.NoError(t, err)
	closeArchive()
	require.Nil(t, archive)

	archive, closeArchive, err = buildArchive(context.Background(), config.ArchiveConfig{
		Enabled: true,
		Backend: config.ArchiveLocal,
		Dir:     t.TempDir(),
		Prefix:  "pages",
	})
	require.NoError(t, err)
	closeArchive()
	require.IsType(t, &local.BlobStore{}, archive.Store)
	require.NotNil(t, archive.Hasher)
	require.Equal(t, "pages", archive.Prefix)

	archive, closeArchive, err = buildArchive(context.Background(), config.ArchiveConfig{Enabled: true, Backend: config.ArchiveMemory})
	require.NoError(t, err)
	closeArchive()
	require.IsType(t, &memory.BlobStore{}, archive.Store)

	_, _, err = buildArchive(context.Background(), config.ArchiveConfig{Enabled: true, Backend: "s3"})
	require.ErrorContains(t, err, "not supported")
}

func TestBuildPublisherDisabled(t *testing.T) {
	t.Parallel()

	pub, closePub, err := buildPublisher(context.Background(), config.EventsConfig{Topic: "page-analyses"})
	require.NoError(t, err)
	closePub()
	require.Nil(t, pub)
	require.Empty(t, eventsTopic(config.EventsConfig{Topic: "page-analyses"}))
	require.Equal(t, "t", eventsTopic(config.EventsConfig{Enabled: true, Topic: "t"}))
}

func TestBuildFetcherStatic(t *testing.T) {
	cfg := testConfig(t)

	fetcher, closeFetcher, err := buildFetcher(cfg)
	require.NoError(t, err)
	defer closeFetcher()
	require.IsType(t, &collyfetcher.Fetcher{}, fetcher)
}
