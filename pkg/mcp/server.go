package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/fetch"
)

const (
	serverName    = "webscout"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // Validated; per-job overrides are applied to copies
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// Server exposes page analysis and background crawls as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	fetcher    fetch.PageFetcher
	jobManager *JobManager
	jobsWG     sync.WaitGroup // Background crawl goroutines
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	httpClient := fetch.NewClient(cfg.AppConfig.HTTPClientSettings, log)
	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        log,
		fetcher:    fetch.NewFetcher(httpClient, cfg.AppConfig.UserAgent, cfg.AppConfig.MaxPageSizeBytes, log),
		jobManager: NewJobManager(),
	}

	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	analyzePageTool := mcp.NewTool("analyze_page",
		mcp.WithDescription("Fetch a single page and report login forms, contact links and social media links found on it"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute URL of the page to analyze"),
		),
	)
	s.mcpServer.AddTool(analyzePageTool, s.handleAnalyzePage)

	crawlSiteTool := mcp.NewTool("crawl_site",
		mcp.WithDescription("Start a background crawl restricted to the seed URL's host. Returns immediately with a job ID."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Seed URL; only links on the same host are followed"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Depth bound (defaults to the configured max_depth)"),
		),
		mcp.WithString("depth_mode",
			mcp.Description("'pages' bounds the number of dequeued pages, 'levels' the link distance from the seed"),
		),
		mcp.WithNumber("workers",
			mcp.Description("Number of concurrent fetch workers"),
		),
	)
	s.mcpServer.AddTool(crawlSiteTool, s.handleCrawlSite)

	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and counters of a crawl job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by crawl_site"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Stop a running crawl job; reports written so far are kept"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by crawl_site"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	listCrawlsTool := mcp.NewTool("list_crawls",
		mcp.WithDescription("List finished crawls found in the output directory and the jobs of this server"),
	)
	s.mcpServer.AddTool(listCrawlsTool, s.handleListCrawls)

	searchFindingsTool := mcp.NewTool("search_findings",
		mcp.WithDescription("Search findings of previous crawls (case-insensitive substring match)"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to look for in findings, e.g. 'mailto:' or 'twitter.com'"),
		),
		mcp.WithString("host",
			mcp.Description("Limit search to one crawled host (optional)"),
		),
		mcp.WithString("pattern",
			mcp.Description("Limit search to one pattern, e.g. 'contact_info' (optional)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 20, max: 200)"),
		),
	)
	s.mcpServer.AddTool(searchFindingsTool, s.handleSearchFindings)

	s.log.Debugf("Registered %d MCP tools", 6)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running crawl jobs and waits for them to release their
// stores, or until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()

	done := make(chan struct{})
	go func() {
		s.jobsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for crawl jobs: %w", ctx.Err())
	}
}
