package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/webscout/pkg/analyze"
	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/crawler"
)

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func testSiteServer(t *testing.T, slow bool) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":        `<a href="/contact">Contact</a><a href="/slow">Slow</a>`,
		"/contact": `<a href="mailto:team@example.com">Write to us</a><a href="https://twitter.com/example">Follow</a>`,
		"/slow":    `<p>done</p>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow && r.URL.Path == "/" {
			select {
			case <-time.After(5 * time.Second):
			case <-r.Context().Done():
				return
			}
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := &config.AppConfig{
		OutputDir:    filepath.Join(tmpDir, "results"),
		StateDir:     filepath.Join(tmpDir, "state"),
		FetchTimeout: 10 * time.Second,
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewServer(&ServerConfig{AppConfig: cfg, Transport: "stdio", Logger: logger})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	})
	return s
}

func callTool(t *testing.T, handler toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", result.Content[0])
	return ""
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func waitForJob(t *testing.T, s *Server, jobID string) map[string]any {
	t.Helper()
	var status map[string]any
	require.Eventually(t, func() bool {
		status = decodeResult(t, callTool(t, s.handleGetJobStatus, map[string]any{"job_id": jobID}))
		return !JobStatus(status["status"].(string)).IsActive()
	}, 15*time.Second, 20*time.Millisecond)
	return status
}

func TestHandleAnalyzePage(t *testing.T) {
	srv := testSiteServer(t, false)
	s := newTestServer(t)

	out := decodeResult(t, callTool(t, s.handleAnalyzePage, map[string]any{"url": srv.URL + "/contact"}))

	assert.Equal(t, srv.URL+"/contact", out["url"])
	assert.Equal(t, float64(2), out["patterns_found"])
	assert.Equal(t, float64(0), out["links_found"])
	assert.Contains(t, out["report"], "=== contact_info ===\n- href: mailto:team@example.com, text: Write to us\n")
	sections, ok := out["sections"].([]any)
	require.True(t, ok)
	assert.Len(t, sections, 2)
}

func TestHandleAnalyzePage_Errors(t *testing.T) {
	srv := testSiteServer(t, false)
	s := newTestServer(t)

	t.Run("missing url", func(t *testing.T) {
		result := callTool(t, s.handleAnalyzePage, map[string]any{})
		assert.True(t, result.IsError)
	})

	t.Run("relative url", func(t *testing.T) {
		result := callTool(t, s.handleAnalyzePage, map[string]any{"url": "/contact"})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "Config_ScopeParse")
	})

	t.Run("not found", func(t *testing.T) {
		result := callTool(t, s.handleAnalyzePage, map[string]any{"url": srv.URL + "/missing"})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "HTTP_404")
	})
}

func TestHandleCrawlSite_EndToEnd(t *testing.T) {
	srv := testSiteServer(t, false)
	s := newTestServer(t)

	started := decodeResult(t, callTool(t, s.handleCrawlSite, map[string]any{
		"url":        srv.URL,
		"max_depth":  float64(10),
		"depth_mode": "levels",
		"workers":    float64(2),
	}))
	assert.Equal(t, "started", started["status"])
	assert.Equal(t, "127.0.0.1", started["host"])
	assert.Equal(t, "levels", started["depth_mode"])
	jobID := started["job_id"].(string)

	status := waitForJob(t, s, jobID)
	assert.Equal(t, string(JobStatusCompleted), status["status"])
	assert.Equal(t, float64(3), status["pages_visited"])
	assert.Equal(t, float64(3), status["reports_written"])
	assert.NotEmpty(t, status["run_id"])

	jobDir := filepath.Join(s.cfg.AppConfig.OutputDir, "127.0.0.1")
	assert.FileExists(t, filepath.Join(jobDir, "127.0.0.1__contact.txt"))
	assert.FileExists(t, filepath.Join(jobDir, config.DefaultFindingsFilename))
	assert.FileExists(t, filepath.Join(jobDir, config.DefaultMetadataFilename))

	t.Run("list_crawls", func(t *testing.T) {
		out := decodeResult(t, callTool(t, s.handleListCrawls, map[string]any{}))
		assert.Equal(t, float64(1), out["total_crawls"])
		crawls := out["crawls"].([]any)
		crawl := crawls[0].(map[string]any)
		assert.Equal(t, "127.0.0.1", crawl["host"])
		assert.Equal(t, float64(3), crawl["pages_visited"])
		assert.Len(t, out["jobs"], 1)
	})

	t.Run("search_findings", func(t *testing.T) {
		out := decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{"query": "MAILTO:"}))
		assert.Equal(t, float64(1), out["total_matches"])
		hit := out["results"].([]any)[0].(map[string]any)
		assert.Equal(t, srv.URL+"/contact", hit["url"])
		assert.Equal(t, "contact_info", hit["pattern"])
		assert.Equal(t, float64(1), hit["depth"])
	})

	t.Run("search_findings with filters", func(t *testing.T) {
		out := decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{
			"query":   "example",
			"host":    "127.0.0.1",
			"pattern": "social_media",
		}))
		assert.Equal(t, float64(1), out["total_matches"])

		out = decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{
			"query": "example",
			"host":  "other.example",
		}))
		assert.Equal(t, float64(0), out["total_matches"])
	})
}

func TestHandleCrawlSite_InvalidArguments(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s.handleCrawlSite, map[string]any{})
	assert.True(t, result.IsError)

	result = callTool(t, s.handleCrawlSite, map[string]any{"url": "example.com"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "seed URL cannot be parsed")

	result = callTool(t, s.handleCrawlSite, map[string]any{"url": "https://example.com", "depth_mode": "sideways"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "depth_mode")
	assert.Empty(t, s.jobManager.ListJobs())
}

func TestHandleCrawlSite_OneJobPerHostAndCancel(t *testing.T) {
	srv := testSiteServer(t, true)
	s := newTestServer(t)

	first := decodeResult(t, callTool(t, s.handleCrawlSite, map[string]any{"url": srv.URL}))
	require.Equal(t, "started", first["status"])
	jobID := first["job_id"].(string)

	second := decodeResult(t, callTool(t, s.handleCrawlSite, map[string]any{"url": srv.URL + "/contact"}))
	assert.Equal(t, "already_running", second["status"])
	assert.Equal(t, jobID, second["job_id"])

	cancelled := decodeResult(t, callTool(t, s.handleCancelJob, map[string]any{"job_id": jobID}))
	assert.Equal(t, true, cancelled["cancelled"])

	status := waitForJob(t, s, jobID)
	assert.Equal(t, string(JobStatusCancelled), status["status"])

	again := decodeResult(t, callTool(t, s.handleCancelJob, map[string]any{"job_id": jobID}))
	assert.Equal(t, false, again["cancelled"])
}

func TestHandleJobTools_UnknownJob(t *testing.T) {
	s := newTestServer(t)

	for name, handler := range map[string]toolHandler{
		"get_job_status": s.handleGetJobStatus,
		"cancel_job":     s.handleCancelJob,
	} {
		t.Run(name, func(t *testing.T) {
			result := callTool(t, handler, map[string]any{"job_id": "nope"})
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), "not found")

			result = callTool(t, handler, map[string]any{})
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleListCrawls_Empty(t *testing.T) {
	s := newTestServer(t)

	out := decodeResult(t, callTool(t, s.handleListCrawls, map[string]any{}))
	assert.Equal(t, float64(0), out["total_crawls"])
	assert.Empty(t, out["jobs"])
}

func TestHandleSearchFindings_MaxResults(t *testing.T) {
	s := newTestServer(t)
	dir := filepath.Join(s.cfg.AppConfig.OutputDir, "example.com")
	require.NoError(t, os.MkdirAll(dir, 0755))

	f, err := os.Create(filepath.Join(dir, config.DefaultFindingsFilename))
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	for i := 0; i < 30; i++ {
		require.NoError(t, enc.Encode(crawler.FindingsRecord{
			URL: fmt.Sprintf("https://example.com/p%d", i),
			Sections: []analyze.Section{
				{Pattern: "contact_info", Findings: []string{fmt.Sprintf("href: mailto:user%d@example.com", i)}},
			},
		}))
	}
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out := decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{"query": "mailto"}))
	assert.Equal(t, float64(defaultSearchResults), out["total_matches"])

	out = decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{"query": "mailto", "max_results": float64(5)}))
	assert.Equal(t, float64(5), out["total_matches"])

	out = decodeResult(t, callTool(t, s.handleSearchFindings, map[string]any{"query": "user7@"}))
	assert.Equal(t, float64(1), out["total_matches"])

	result := callTool(t, s.handleSearchFindings, map[string]any{})
	assert.True(t, result.IsError)
}

func TestParseJSONLine(t *testing.T) {
	var rec crawler.FindingsRecord
	require.NoError(t, parseJSONLine(`{"url":"https://example.com/","depth":2,"sections":[{"pattern":"contact_info","findings":["href: tel:123"]}]}`, &rec))
	assert.Equal(t, "https://example.com/", rec.URL)
	assert.Equal(t, 2, rec.Depth)
	require.Len(t, rec.Sections, 1)
	assert.Equal(t, []string{"href: tel:123"}, rec.Sections[0].Findings)

	assert.Error(t, parseJSONLine("{broken", &rec))
}

func TestFormatJSON(t *testing.T) {
	out := formatJSON(map[string]interface{}{"a": 1})
	assert.JSONEq(t, `{"a": 1}`, out)

	out = formatJSON(map[string]interface{}{"bad": make(chan int)})
	assert.Contains(t, out, "error")
}
