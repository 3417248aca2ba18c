package orchestrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/crawler"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	"github.com/Sriram-PR/webscout/pkg/parse"
	"github.com/Sriram-PR/webscout/pkg/report"
	"github.com/Sriram-PR/webscout/pkg/storage"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

// SiteResult contains the result of crawling a single seed
type SiteResult struct {
	SeedURL   string
	Host      string
	OutputDir string
	Success   bool
	Error     error
	Summary   *crawler.Summary // nil when the crawl never started
	Duration  time.Duration
}

// Orchestrator crawls several seeds in parallel, one crawler per host.
// Each host gets its own output subdirectory and page DB; the fetcher is shared.
type Orchestrator struct {
	appCfg *config.AppConfig
	log    *logrus.Entry
	seeds  []string

	// Shared resources
	fetcher       fetch.PageFetcher
	siteSemaphore *semaphore.Weighted

	// Results, in seed order
	results   []SiteResult
	resultsMu sync.Mutex

	// Coordination
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator running at most maxParallel crawls at once.
// appCfg must be validated; its OutputDir is the parent of the per-host directories.
func NewOrchestrator(parent context.Context, appCfg *config.AppConfig, seeds []string, fetcher fetch.PageFetcher, maxParallel int, log *logrus.Entry) *Orchestrator {
	ctx, cancel := context.WithCancel(parent)
	if maxParallel <= 0 {
		maxParallel = 1
	}

	return &Orchestrator{
		appCfg:        appCfg,
		log:           log,
		seeds:         seeds,
		fetcher:       fetcher,
		siteSemaphore: semaphore.NewWeighted(int64(maxParallel)),
		results:       make([]SiteResult, len(seeds)),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run starts crawling all seeds and waits for completion.
// Results are returned in the order the seeds were given.
func (o *Orchestrator) Run() []SiteResult {
	startTime := time.Now()
	o.log.Infof("Starting parallel crawl of %d seeds: %v", len(o.seeds), o.seeds)

	var wg sync.WaitGroup
	for i, seed := range o.seeds {
		wg.Add(1)
		go func(idx int, seedURL string) {
			defer wg.Done()
			result := o.crawlSite(seedURL)
			o.resultsMu.Lock()
			o.results[idx] = result
			o.resultsMu.Unlock()
		}(i, seed)
	}
	wg.Wait()

	o.logSummary(time.Since(startTime))
	return o.results
}

// crawlSite runs one crawler once a parallelism slot is free
func (o *Orchestrator) crawlSite(seedURL string) SiteResult {
	startTime := time.Now()
	result := SiteResult{SeedURL: seedURL}
	defer func() { result.Duration = time.Since(startTime) }()

	scope, err := parse.NewScope(seedURL)
	if err != nil {
		result.Error = err
		o.log.Errorf("Skipping seed '%s': %v", seedURL, err)
		return result
	}
	result.Host = scope.Host()
	siteLog := o.log.WithField("host", scope.Host())

	if err := o.siteSemaphore.Acquire(o.ctx, 1); err != nil {
		result.Error = err
		siteLog.Warnf("Crawl not started: %v", err)
		return result
	}
	defer o.siteSemaphore.Release(1)

	siteCfg := *o.appCfg
	siteCfg.OutputDir = filepath.Join(o.appCfg.OutputDir, utils.HostDirName(scope.Host()))
	result.OutputDir = siteCfg.OutputDir

	store, err := storage.NewBadgerStore(o.ctx, siteCfg.StateDir, scope.Host(), siteLog)
	if err != nil {
		result.Error = fmt.Errorf("failed to create store for '%s': %w", scope.Host(), err)
		siteLog.Errorf("Failed to create store: %v", err)
		return result
	}
	defer store.Close()

	sink, err := report.NewFileSink(siteCfg.OutputDir, siteLog)
	if err != nil {
		result.Error = err
		siteLog.Errorf("Failed to prepare output dir: %v", err)
		return result
	}

	c, err := crawler.NewCrawler(&siteCfg, scope, o.fetcher, sink, store, siteLog)
	if err != nil {
		result.Error = fmt.Errorf("failed to create crawler for '%s': %w", scope.Host(), err)
		siteLog.Errorf("Failed to create crawler: %v", err)
		return result
	}

	siteLog.Infof("Starting crawl of '%s'", scope.Seed())
	summary, err := c.Run(o.ctx)
	result.Summary = summary
	if err != nil {
		result.Error = err
		siteLog.Errorf("Crawl of '%s' ended early: %v", scope.Host(), err)
	} else {
		result.Success = true
		siteLog.Infof("Crawl of '%s' completed", scope.Host())
	}
	return result
}

// Cancel cancels all running crawls
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling all crawls...")
	o.cancel()
}

// logSummary logs a summary of all crawl results
func (o *Orchestrator) logSummary(totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Parallel crawl completed in %v", totalDuration)
	o.log.Info("Site Results:")

	totalPages := 0
	successCount := 0
	failCount := 0

	for _, r := range o.results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
			failCount++
		} else {
			successCount++
		}
		pages := 0
		if r.Summary != nil {
			pages = r.Summary.PagesVisited
		}
		totalPages += pages

		o.log.Infof("  %s: %s - %d pages in %v", r.SeedURL, status, pages, r.Duration)
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d seeds (%d success, %d failed), %d pages visited",
		len(o.results), successCount, failCount, totalPages)
	o.log.Info("============================================")
}

// ValidateSeeds checks that every seed parses and that no two seeds share a host,
// since each host owns one output directory and one page DB.
func ValidateSeeds(seeds []string) error {
	if len(seeds) == 0 {
		return fmt.Errorf("%w: no seed URLs given", utils.ErrConfigValidation)
	}
	hosts := make(map[string]string, len(seeds))
	for _, seed := range seeds {
		scope, err := parse.NewScope(seed)
		if err != nil {
			return err
		}
		if prev, dup := hosts[scope.Host()]; dup {
			return fmt.Errorf("%w: seeds '%s' and '%s' share host '%s'", utils.ErrConfigValidation, prev, seed, scope.Host())
		}
		hosts[scope.Host()] = seed
	}
	return nil
}
