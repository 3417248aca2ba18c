package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(t.TempDir(), "results")
	cfg.StateDir = filepath.Join(t.TempDir(), "state")
	cfg.FetchTimeout = 2 * time.Second
	return cfg
}

func testFetcher(cfg *config.AppConfig) fetch.PageFetcher {
	return fetch.NewFetcher(fetch.NewClient(cfg.HTTPClientSettings, testLogger()), cfg.UserAgent, cfg.MaxPageSizeBytes, testLogger())
}

func siteServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateSeeds(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		assert.NoError(t, ValidateSeeds([]string{"https://a.example/", "https://b.example/docs"}))
	})

	t.Run("unparsable seed", func(t *testing.T) {
		err := ValidateSeeds([]string{"https://a.example/", "b.example"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrScopeParse))
	})

	t.Run("shared host", func(t *testing.T) {
		err := ValidateSeeds([]string{"https://a.example/", "http://A.example:8080/x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrConfigValidation))
		assert.Contains(t, err.Error(), "a.example")
	})

	t.Run("no seeds", func(t *testing.T) {
		assert.True(t, errors.Is(ValidateSeeds(nil), utils.ErrConfigValidation))
	})
}

func TestOrchestratorRun(t *testing.T) {
	srvA := siteServer(t, `<a href="mailto:a@example.com">A</a>`)
	// Same IP as srvA but addressed through "localhost", so it is a different host.
	srvB := siteServer(t, `<a href="tel:+1">B</a>`)
	seedB := fmt.Sprintf("http://localhost:%d/", srvB.Listener.Addr().(*net.TCPAddr).Port)

	cfg := testConfig(t)
	orch := NewOrchestrator(context.Background(), cfg, []string{srvA.URL, seedB, "not-a-url"}, testFetcher(cfg), 2, testLogger())
	results := orch.Run()

	require.Len(t, results, 3)

	assert.True(t, results[0].Success, "%v", results[0].Error)
	assert.Equal(t, "127.0.0.1", results[0].Host)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "127.0.0.1"), results[0].OutputDir)
	require.NotNil(t, results[0].Summary)
	assert.Equal(t, 1, results[0].Summary.PagesVisited)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "127.0.0.1", "127.0.0.1__.txt"))

	assert.True(t, results[1].Success, "%v", results[1].Error)
	assert.Equal(t, "localhost", results[1].Host)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "localhost", "localhost__.txt"))

	assert.False(t, results[2].Success)
	assert.True(t, errors.Is(results[2].Error, utils.ErrScopeParse))
	assert.Nil(t, results[2].Summary)
}

func TestOrchestratorCancelled(t *testing.T) {
	srv := siteServer(t, `hello`)
	cfg := testConfig(t)

	orch := NewOrchestrator(context.Background(), cfg, []string{srv.URL}, testFetcher(cfg), 1, testLogger())
	orch.Cancel()
	results := orch.Run()

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.True(t, errors.Is(results[0].Error, context.Canceled))
}
