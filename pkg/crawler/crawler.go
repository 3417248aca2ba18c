package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/webscout/pkg/analyze"
	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/parse"
	"github.com/Sriram-PR/webscout/pkg/queue"
	"github.com/Sriram-PR/webscout/pkg/report"
	"github.com/Sriram-PR/webscout/pkg/storage"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

const gcInterval = 5 * time.Minute

// Crawler drives one crawl run: N workers pull targets from the frontier,
// fetch, extract links, analyze and persist a report per page.
type Crawler struct {
	log   *logrus.Entry
	cfg   *config.AppConfig
	scope *parse.Scope
	runID string

	// Core components
	frontier  *queue.Frontier
	fetcher   fetch.PageFetcher
	extractor *parse.LinkExtractor
	analyzer  *analyze.Analyzer
	sink      report.Sink
	store     storage.VisitedStore // Optional
	output    *OutputManager

	// Tracking
	stateMu        sync.Mutex
	state          models.CrawlState
	pagesVisited   atomic.Int64
	pagesFailed    atomic.Int64
	reportsWritten atomic.Int64
	reportsFailed  atomic.Int64
}

// Summary is the outcome of a finished Run
type Summary struct {
	RunID           string
	PagesVisited    int // Fetched and analyzed
	PagesFailed     int // Fetch failed
	ReportsWritten  int
	ReportsFailed   int
	Dequeued        int
	Duration        time.Duration
	TerminatedEarly bool
}

// Progress is a point-in-time snapshot of a running crawl
type Progress struct {
	RunID          string
	State          models.CrawlState
	PagesVisited   int64
	PagesFailed    int64
	ReportsWritten int64
	ReportsFailed  int64
	Queued         int
	Dequeued       int
}

// NewCrawler wires the frontier, link extractor and analyzer for cfg.
// cfg must already be validated. store may be nil when no page DB is wanted.
func NewCrawler(
	cfg *config.AppConfig,
	scope *parse.Scope,
	fetcher fetch.PageFetcher,
	sink report.Sink,
	store storage.VisitedStore,
	baseLogger *logrus.Entry,
) (*Crawler, error) {
	if scope == nil {
		return nil, fmt.Errorf("%w: crawler needs a scope", utils.ErrConfigValidation)
	}
	if fetcher == nil || sink == nil {
		return nil, fmt.Errorf("%w: crawler needs a fetcher and a report sink", utils.ErrConfigValidation)
	}

	runID := uuid.New().String()
	logger := baseLogger.WithFields(logrus.Fields{"run_id": runID, "host": scope.Host()})

	patterns := analyze.PatternSetFromConfig(cfg, logger)
	if invalid := patterns.InvalidSelectors(); len(invalid) > 0 {
		logger.Warnf("%d selector(s) failed to compile and will be skipped: %v", len(invalid), invalid)
	}

	c := &Crawler{
		log:       logger,
		cfg:       cfg,
		scope:     scope,
		runID:     runID,
		fetcher:   fetcher,
		extractor: parse.NewLinkExtractor(scope, logger),
		analyzer:  analyze.NewAnalyzer(patterns, logger),
		sink:      sink,
		store:     store,
		output:    NewOutputManager(logger, cfg),
		state:     models.CrawlStateIdle,
	}
	c.frontier = queue.NewFrontier(
		models.CrawlTarget{URL: scope.Seed(), Depth: 0},
		queue.FrontierOptions{
			MaxDepth:  cfg.MaxDepth,
			DepthMode: queue.DepthMode(cfg.DepthMode),
			Scope:     scope,
		},
		logger,
	)
	return c, nil
}

// RunID returns the unique identifier of this crawl run
func (c *Crawler) RunID() string { return c.runID }

// State returns the current lifecycle state
func (c *Crawler) State() models.CrawlState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Crawler) setState(s models.CrawlState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Progress returns the current progress of the crawler
func (c *Crawler) Progress() Progress {
	return Progress{
		RunID:          c.runID,
		State:          c.State(),
		PagesVisited:   c.pagesVisited.Load(),
		PagesFailed:    c.pagesFailed.Load(),
		ReportsWritten: c.reportsWritten.Load(),
		ReportsFailed:  c.reportsFailed.Load(),
		Queued:         c.frontier.Len(),
		Dequeued:       c.frontier.Dequeued(),
	}
}

// Visited returns the visited URLs in visit order
func (c *Crawler) Visited() []string { return c.frontier.Visited() }

// Run crawls until the frontier reports done or ctx is cancelled, then writes the
// crawl-level outputs. It returns the context error when the crawl was cut short.
// A Crawler runs once.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	c.stateMu.Lock()
	if !c.state.CanTransitionTo(models.CrawlStateRunning) {
		c.stateMu.Unlock()
		return nil, fmt.Errorf("crawl run %s already started", c.runID)
	}
	c.state = models.CrawlStateRunning
	c.stateMu.Unlock()
	defer c.setState(models.CrawlStateDone)

	if c.cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	startTime := time.Now()
	runLog := c.log.WithFields(logrus.Fields{"seed": c.scope.Seed(), "depth_mode": c.cfg.DepthMode, "max_depth": c.cfg.MaxDepth})
	runLog.Infof("Crawl starting with %d worker(s)...", c.cfg.NumWorkers)

	if err := os.MkdirAll(c.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output dir '%s': %w", utils.ErrFilesystem, c.cfg.OutputDir, err)
	}
	c.output.OpenFiles()

	if c.store != nil {
		gcCtx, stopGC := context.WithCancel(ctx)
		defer stopGC()
		go c.store.RunGC(gcCtx, gcInterval)
	}

	// Workers never return errors: per-URL failures are recovered inside processTarget.
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= c.cfg.NumWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		g.Go(func() error {
			c.worker(gctx, workerLog)
			return nil
		})
	}
	_ = g.Wait()
	c.frontier.Close()

	runErr := ctx.Err()
	duration := time.Since(startTime)
	summary := &Summary{
		RunID:           c.runID,
		PagesVisited:    int(c.pagesVisited.Load()),
		PagesFailed:     int(c.pagesFailed.Load()),
		ReportsWritten:  int(c.reportsWritten.Load()),
		ReportsFailed:   int(c.reportsFailed.Load()),
		Dequeued:        c.frontier.Dequeued(),
		Duration:        duration,
		TerminatedEarly: runErr != nil,
	}

	meta := &models.CrawlMetadata{
		RunID:           c.runID,
		SeedURL:         c.scope.Seed(),
		AllowedHost:     c.scope.Host(),
		DepthMode:       c.cfg.DepthMode,
		MaxDepth:        c.cfg.MaxDepth,
		CrawlStartTime:  startTime,
		CrawlEndTime:    startTime.Add(duration),
		PagesVisited:    summary.PagesVisited,
		PagesFailed:     summary.PagesFailed,
		ReportsWritten:  summary.ReportsWritten,
		ReportsFailed:   summary.ReportsFailed,
		TerminatedEarly: summary.TerminatedEarly,
	}
	if err := c.output.Close(meta); err != nil {
		runLog.Errorf("Failed to write crawl outputs: %v", err)
	}
	c.writeVisitedLog(runLog)

	if runErr != nil {
		runLog.Warnf("Crawl stopped early: %v", runErr)
	}
	runLog.WithFields(logrus.Fields{
		"duration":        duration.String(),
		"pages_visited":   summary.PagesVisited,
		"pages_failed":    summary.PagesFailed,
		"reports_written": summary.ReportsWritten,
		"reports_failed":  summary.ReportsFailed,
		"dequeued":        summary.Dequeued,
	}).Info("CRAWL FINISHED")

	return summary, runErr
}

// writeVisitedLog dumps the page DB keys next to the reports when enabled
func (c *Crawler) writeVisitedLog(runLog *logrus.Entry) {
	if !c.cfg.WriteVisitedLog {
		return
	}
	if c.store == nil {
		runLog.Warn("write_visited_log is set but no page store is configured; skipping visited log.")
		return
	}
	path := filepath.Join(c.cfg.OutputDir, utils.HostDirName(c.scope.Host())+"-visited.txt")
	if err := c.store.WriteVisitedLog(path); err != nil {
		runLog.Errorf("Failed to write visited log: %v", err)
	}
}

// worker pulls targets until the frontier is done or ctx is cancelled.
func (c *Crawler) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		target, ok := c.frontier.Next(ctx)
		if !ok {
			return
		}
		c.processTarget(ctx, target, workerLog)
		c.frontier.Complete(target)
	}
}

// processTarget runs fetch, link discovery, analysis and report persistence for one target.
// Every failure is recorded and logged; nothing here stops the crawl.
func (c *Crawler) processTarget(ctx context.Context, target models.CrawlTarget, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": target.URL, "depth": target.Depth})
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.pagesFailed.Add(1)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processTarget")
			c.recordFailure(target, fmt.Errorf("panic: %v", r), taskLog)
		}
	}()

	if c.store != nil {
		if _, err := c.store.MarkPagePending(target.URL, target.Depth); err != nil {
			taskLog.Warnf("Failed to mark page pending in DB: %v", err)
		}
	}

	body, fetchErr := c.fetcher.Fetch(ctx, target.URL, c.cfg.FetchTimeout)
	if fetchErr != nil {
		c.pagesFailed.Add(1)
		c.recordFailure(target, fetchErr, taskLog)
		taskLog.WithFields(logrus.Fields{
			"category": utils.CategorizeError(fetchErr),
			"duration": time.Since(startTime).String(),
		}).Warnf("Fetch failed: %v", fetchErr)
		return
	}

	links, linkErr := c.extractor.Extract(body, target.URL)
	if linkErr != nil {
		taskLog.WithField("category", utils.CategorizeError(linkErr)).Warnf("Link extraction failed, continuing without links: %v", linkErr)
		links = nil
	}
	page := &models.Page{URL: target.URL, Content: body, Links: links}

	admitted := c.frontier.Offer(target, page.Links)
	taskLog.Debugf("Queued %d of %d discovered links", admitted, len(page.Links))

	result := c.analyzer.Analyze(page)

	reportFile := ""
	if err := c.sink.Persist(page.URL, result.String()); err != nil {
		c.reportsFailed.Add(1)
		taskLog.WithField("category", utils.CategorizeError(err)).Errorf("Failed to persist report: %v", err)
	} else {
		c.reportsWritten.Add(1)
		if name, nameErr := report.ReportFilename(page.URL); nameErr == nil {
			reportFile = name
		}
	}

	now := time.Now()
	contentHash := utils.CalculateBytesSHA256(page.Content)
	if c.store != nil {
		entry := &models.PageDBEntry{
			Status:        models.PageStatusSuccess,
			ProcessedAt:   now,
			LastAttempt:   now,
			Depth:         target.Depth,
			ContentHash:   contentHash,
			PatternsFound: result.PatternsFound(),
		}
		if err := c.store.RecordPage(target.URL, entry); err != nil {
			taskLog.Errorf("Failed to record page success in DB: %v", err)
		}
	}

	c.output.RecordPage(models.PageMetadata{
		URL:           page.URL,
		Depth:         target.Depth,
		Status:        models.PageStatusSuccess,
		ReportFile:    reportFile,
		ContentHash:   contentHash,
		LinksFound:    len(page.Links),
		PatternsFound: result.PatternsFound(),
		ProcessedAt:   now,
	}, result, taskLog)

	c.pagesVisited.Add(1)
	taskLog.WithFields(logrus.Fields{
		"patterns_found": result.PatternsFound(),
		"links":          len(page.Links),
		"duration":       time.Since(startTime).String(),
	}).Info("Page processed")
}

// recordFailure stores a failed target in the page DB and the crawl metadata.
func (c *Crawler) recordFailure(target models.CrawlTarget, cause error, taskLog *logrus.Entry) {
	category := utils.CategorizeError(cause)
	now := time.Now()
	if c.store != nil {
		entry := &models.PageDBEntry{
			Status:      models.PageStatusFailure,
			ErrorType:   category,
			LastAttempt: now,
			Depth:       target.Depth,
		}
		if err := c.store.RecordPage(target.URL, entry); err != nil {
			taskLog.Errorf("Failed to record page failure in DB: %v", err)
		}
	}
	c.output.RecordPage(models.PageMetadata{
		URL:         target.URL,
		Depth:       target.Depth,
		Status:      models.PageStatusFailure,
		ErrorType:   category,
		ProcessedAt: now,
	}, nil, taskLog)
}
