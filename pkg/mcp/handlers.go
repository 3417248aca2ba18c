package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/crawler"
	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/parse"
	"github.com/Sriram-PR/webscout/pkg/report"
	"github.com/Sriram-PR/webscout/pkg/storage"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

const (
	defaultSearchResults = 20
	maxSearchResults     = 200
)

// handleAnalyzePage handles the analyze_page tool
func (s *Server) handleAnalyzePage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	startTime := time.Now()
	page, result, err := crawler.AnalyzePage(ctx, s.cfg.AppConfig, s.fetcher, urlStr, s.log)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to analyze '%s' (%s): %v", urlStr, utils.CategorizeError(err), err)), nil
	}

	response := map[string]interface{}{
		"url":            page.URL,
		"patterns_found": result.PatternsFound(),
		"sections":       result.Sections,
		"links_found":    len(page.Links),
		"report":         result.String(),
		"fetch_time_ms":  time.Since(startTime).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCrawlSite handles the crawl_site tool
func (s *Server) handleCrawlSite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seed := request.GetString("url", "")
	if seed == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	scope, err := parse.NewScope(seed)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	jobCfg, err := s.jobConfig(request, scope.Host())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.jobManager.CreateJob(scope.Seed(), scope.Host(), jobCfg.OutputDir)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A crawl is already in progress for this host",
			"job_id":  job.ID,
			"host":    job.Host,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	s.jobsWG.Add(1)
	go func() {
		defer s.jobsWG.Done()
		s.runCrawlJob(job.ID, jobCfg, scope)
	}()

	result := map[string]interface{}{
		"status":     "started",
		"message":    "Crawl started successfully",
		"job_id":     job.ID,
		"host":       job.Host,
		"seed_url":   job.SeedURL,
		"max_depth":  jobCfg.MaxDepth,
		"depth_mode": jobCfg.DepthMode,
		"output_dir": jobCfg.OutputDir,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// jobConfig copies the server configuration, applies the tool's overrides and
// points the output at a per-host directory.
func (s *Server) jobConfig(request mcp.CallToolRequest, host string) (*config.AppConfig, error) {
	jobCfg := *s.cfg.AppConfig
	if depth := request.GetInt("max_depth", 0); depth > 0 {
		jobCfg.MaxDepth = depth
	}
	if mode := request.GetString("depth_mode", ""); mode != "" {
		jobCfg.DepthMode = mode
	}
	if workers := request.GetInt("workers", 0); workers > 0 {
		jobCfg.NumWorkers = workers
	}
	jobCfg.OutputDir = filepath.Join(s.cfg.AppConfig.OutputDir, utils.HostDirName(host))

	warnings, err := jobCfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.log.Warnf("crawl_site config: %s", w)
	}
	return &jobCfg, nil
}

// runCrawlJob runs a crawl job in the background
func (s *Server) runCrawlJob(jobID string, cfg *config.AppConfig, scope *parse.Scope) {
	jobCtx := s.jobManager.GetContext(jobID)
	jobLog := s.log.WithField("job_id", jobID)

	store, err := storage.NewBadgerStore(jobCtx, cfg.StateDir, scope.Host(), jobLog)
	if err != nil {
		s.jobManager.Finish(jobID, JobStatusFailed, JobProgress{}, fmt.Sprintf("failed to open page store: %v", err))
		return
	}
	defer store.Close()

	sink, err := report.NewFileSink(cfg.OutputDir, jobLog)
	if err != nil {
		s.jobManager.Finish(jobID, JobStatusFailed, JobProgress{}, fmt.Sprintf("failed to prepare output dir: %v", err))
		return
	}

	c, err := crawler.NewCrawler(cfg, scope, s.fetcher, sink, store, jobLog)
	if err != nil {
		s.jobManager.Finish(jobID, JobStatusFailed, JobProgress{}, fmt.Sprintf("failed to create crawler: %v", err))
		return
	}
	s.jobManager.Start(jobID, c.RunID(), func() JobProgress { return progressOf(c.Progress()) })

	_, runErr := c.Run(jobCtx)
	final := progressOf(c.Progress())
	switch {
	case runErr == nil:
		s.jobManager.Finish(jobID, JobStatusCompleted, final, "")
	case errors.Is(runErr, context.Canceled):
		s.jobManager.Finish(jobID, JobStatusCancelled, final, "")
	case errors.Is(runErr, context.DeadlineExceeded):
		s.jobManager.Finish(jobID, JobStatusCompleted, final, "global crawl timeout reached; results are partial")
	default:
		s.jobManager.Finish(jobID, JobStatusFailed, final, runErr.Error())
	}
}

func progressOf(p crawler.Progress) JobProgress {
	return JobProgress{
		PagesVisited:   p.PagesVisited,
		PagesFailed:    p.PagesFailed,
		ReportsWritten: p.ReportsWritten,
		ReportsFailed:  p.ReportsFailed,
		PagesQueued:    p.Queued,
		Dequeued:       p.Dequeued,
	}
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	return mcp.NewToolResultText(formatJSON(jobResult(job))), nil
}

func jobResult(job Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":          job.ID,
		"host":            job.Host,
		"seed_url":        job.SeedURL,
		"status":          job.Status,
		"started_at":      job.StartedAt.Format(time.RFC3339),
		"output_dir":      job.OutputDir,
		"pages_visited":   job.Progress.PagesVisited,
		"pages_failed":    job.Progress.PagesFailed,
		"reports_written": job.Progress.ReportsWritten,
		"reports_failed":  job.Progress.ReportsFailed,
		"pages_queued":    job.Progress.PagesQueued,
	}
	if job.RunID != "" {
		result["run_id"] = job.RunID
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return result
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if _, ok := s.jobManager.GetJob(jobID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	cancelled := s.jobManager.CancelJob(jobID)
	result := map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
	}
	if !cancelled {
		result["message"] = "job is not running"
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListCrawls handles the list_crawls tool
func (s *Server) handleListCrawls(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	crawls := make([]map[string]interface{}, 0)
	for _, dir := range s.crawlDirs() {
		meta, err := readCrawlMetadata(filepath.Join(dir, s.cfg.AppConfig.MetadataFilename))
		if err != nil {
			continue
		}
		entry := map[string]interface{}{
			"host":             meta.AllowedHost,
			"seed_url":         meta.SeedURL,
			"run_id":           meta.RunID,
			"output_dir":       dir,
			"crawl_end_time":   meta.CrawlEndTime.Format(time.RFC3339),
			"pages_visited":    meta.PagesVisited,
			"pages_failed":     meta.PagesFailed,
			"pattern_counts":   meta.PatternCounts,
			"terminated_early": meta.TerminatedEarly,
		}
		if s.jobManager.IsRunning(meta.AllowedHost) {
			entry["status"] = "running"
		}
		crawls = append(crawls, entry)
	}

	jobs := make([]map[string]interface{}, 0)
	for _, job := range s.jobManager.ListJobs() {
		jobs = append(jobs, jobResult(job))
	}

	result := map[string]interface{}{
		"output_dir":   s.cfg.AppConfig.OutputDir,
		"config_path":  s.cfg.ConfigPath,
		"crawls":       crawls,
		"total_crawls": len(crawls),
		"jobs":         jobs,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchFindings handles the search_findings tool
func (s *Server) handleSearchFindings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	host := request.GetString("host", "")
	pattern := request.GetString("pattern", "")
	maxResults := request.GetInt("max_results", defaultSearchResults)
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	var dirs []string
	if host != "" {
		dirs = []string{filepath.Join(s.cfg.AppConfig.OutputDir, utils.HostDirName(host))}
	} else {
		dirs = s.crawlDirs()
	}

	results := s.searchJSONL(query, pattern, dirs, maxResults)
	response := map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_matches": len(results),
	}
	if host != "" {
		response["host"] = host
	}
	if pattern != "" {
		response["pattern"] = pattern
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// crawlDirs returns the output directory itself followed by its immediate
// subdirectories: CLI crawls write to the former, MCP jobs to a per-host subdirectory.
func (s *Server) crawlDirs() []string {
	base := s.cfg.AppConfig.OutputDir
	dirs := []string{base}
	entries, err := os.ReadDir(base)
	if err != nil {
		return dirs
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}
	return dirs
}

// searchJSONL streams findings files and collects findings containing query
func (s *Server) searchJSONL(query, pattern string, dirs []string, maxResults int) []map[string]interface{} {
	results := make([]map[string]interface{}, 0)
	queryLower := strings.ToLower(query)

	for _, dir := range dirs {
		file, err := os.Open(filepath.Join(dir, s.cfg.AppConfig.FindingsFilename))
		if err != nil {
			continue // Skip if file doesn't exist
		}

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line

		for scanner.Scan() && len(results) < maxResults {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec crawler.FindingsRecord
			if err := parseJSONLine(line, &rec); err != nil {
				continue
			}
			for _, section := range rec.Sections {
				if pattern != "" && section.Pattern != pattern {
					continue
				}
				for _, finding := range section.Findings {
					if len(results) >= maxResults {
						break
					}
					if strings.Contains(strings.ToLower(finding), queryLower) {
						results = append(results, map[string]interface{}{
							"url":     rec.URL,
							"pattern": section.Pattern,
							"finding": finding,
							"depth":   rec.Depth,
						})
					}
				}
			}
		}
		file.Close()

		if len(results) >= maxResults {
			break
		}
	}
	return results
}

// readCrawlMetadata loads a crawl metadata YAML file
func readCrawlMetadata(path string) (*models.CrawlMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta models.CrawlMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: YAML crawl metadata '%s': %w", utils.ErrParsing, path, err)
	}
	return &meta, nil
}

// parseJSONLine parses a single findings line
func parseJSONLine(line string, rec *crawler.FindingsRecord) error {
	return json.Unmarshal([]byte(line), rec)
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
