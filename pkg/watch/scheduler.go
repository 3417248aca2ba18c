package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	"github.com/Sriram-PR/webscout/pkg/orchestrate"
	"github.com/Sriram-PR/webscout/pkg/parse"
)

// Scheduler re-crawls a fixed set of seeds every interval
type Scheduler struct {
	appCfg       *config.AppConfig
	seeds        map[string]string // host -> seed URL
	hosts        []string          // sorted
	interval     time.Duration
	maxParallel  int
	fetcher      fetch.PageFetcher
	log          *logrus.Entry
	stateManager *StateManager
	running      atomic.Bool // A round of crawls is in progress

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new watch scheduler. Seeds must have distinct hosts
// (see orchestrate.ValidateSeeds).
func NewScheduler(appCfg *config.AppConfig, seeds []string, interval time.Duration, fetcher fetch.PageFetcher, maxParallel int, log *logrus.Entry) (*Scheduler, error) {
	if err := orchestrate.ValidateSeeds(seeds); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("watch interval must be positive, got %v", interval)
	}

	byHost := make(map[string]string, len(seeds))
	hosts := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		scope, _ := parse.NewScope(seed)
		byHost[scope.Host()] = seed
		hosts = append(hosts, scope.Host())
	}
	sort.Strings(hosts)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		appCfg:       appCfg,
		seeds:        byHost,
		hosts:        hosts,
		interval:     interval,
		maxParallel:  maxParallel,
		fetcher:      fetcher,
		log:          log,
		stateManager: NewStateManager(appCfg.StateDir),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Run starts the watch scheduler and blocks until stopped
func (s *Scheduler) Run() error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}
	if dropped := s.stateManager.Prune(s.hosts); len(dropped) > 0 {
		s.log.Infof("Forgetting hosts no longer watched: %v", dropped)
	}

	s.log.Infof("Starting watch mode for %d hosts with interval %v", len(s.hosts), FormatInterval(s.interval))
	s.logSchedule()

	// Hosts never crawled, or overdue, run right away
	s.runDueHosts()

	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueHosts()
		}
	}
}

// Stop stops the watch scheduler and cancels running crawls
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// runDueHosts crawls every due host in the background.
// A new round is not started while the previous one is still crawling.
func (s *Scheduler) runDueHosts() {
	dueHosts := s.getDueHosts()
	if len(dueHosts) == 0 {
		s.logNextRun()
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.log.Infof("Previous crawl round still running, postponing %v", dueHosts)
		return
	}

	s.log.Infof("Running crawl for %d due hosts: %v", len(dueHosts), dueHosts)
	seeds := make([]string, 0, len(dueHosts))
	for _, host := range dueHosts {
		seeds = append(seeds, s.seeds[host])
	}
	orch := orchestrate.NewOrchestrator(s.ctx, s.appCfg, seeds, s.fetcher, s.maxParallel, s.log)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		results := orch.Run()
		for _, result := range results {
			if s.ctx.Err() != nil && !result.Success {
				continue // Interrupted runs are retried on the next start
			}
			s.stateManager.Record(result.Host, runRecord(result, time.Now()))
		}

		if err := s.stateManager.Save(); err != nil {
			s.log.Errorf("Failed to save watch state: %v", err)
		}
		s.logNextRun()
	}()
}

// runRecord converts a finished orchestrator result into a watch run record
func runRecord(result orchestrate.SiteResult, finished time.Time) RunRecord {
	rec := RunRecord{
		Started:  finished.Add(-result.Duration),
		Duration: result.Duration,
		Success:  result.Success,
	}
	if result.Summary != nil {
		rec.PagesVisited = result.Summary.PagesVisited
		rec.PagesFailed = result.Summary.PagesFailed
		rec.ReportsWritten = result.Summary.ReportsWritten
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
	}
	return rec
}

// getDueHosts returns hosts that are due for a crawl
func (s *Scheduler) getDueHosts() []string {
	var due []string
	for _, host := range s.hosts {
		if s.stateManager.IsDue(host, s.interval) {
			due = append(due, host)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due hosts
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the current schedule
func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, host := range s.hosts {
		state, exists := s.stateManager.Host(host)
		if !exists {
			s.log.Infof("  %s: never run, will run immediately", host)
			continue
		}
		status := "success"
		if !state.LastRun.Success {
			status = fmt.Sprintf("failed %d time(s) in a row", state.ConsecutiveFailures)
		}
		s.log.Infof("  %s: last run %v (%s, %d pages), next run %v",
			host,
			state.LastRun.Started.Format(time.RFC3339),
			status,
			state.LastRun.PagesVisited,
			s.stateManager.NextRun(host, s.interval).Format(time.RFC3339))
	}
}

// logNextRun logs when the next run will occur
func (s *Scheduler) logNextRun() {
	var nextHost string
	var nextTime time.Time
	for _, host := range s.hosts {
		t := s.stateManager.NextRun(host, s.interval)
		if nextHost == "" || t.Before(nextTime) {
			nextHost, nextTime = host, t
		}
	}
	if nextHost == "" {
		return
	}
	until := time.Until(nextTime)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next crawl: %s in %v (at %s)", nextHost, until.Round(time.Second), nextTime.Format("15:04:05"))
}

// GetStatus returns the current status of all watched hosts
func (s *Scheduler) GetStatus() map[string]HostStatus {
	status := make(map[string]HostStatus, len(s.hosts))
	for _, host := range s.hosts {
		state, exists := s.stateManager.Host(host)
		status[host] = HostStatus{
			Host:                host,
			SeedURL:             s.seeds[host],
			LastRunTime:         state.LastRun.Started,
			LastRunSuccess:      state.LastRun.Success,
			PagesVisited:        state.LastRun.PagesVisited,
			ErrorMessage:        state.LastRun.Error,
			ConsecutiveFailures: state.ConsecutiveFailures,
			NextRunTime:         s.stateManager.NextRun(host, s.interval),
			NeverRun:            !exists,
		}
	}
	return status
}

// HostStatus contains the status of a watched host
type HostStatus struct {
	Host                string
	SeedURL             string
	LastRunTime         time.Time
	LastRunSuccess      bool
	PagesVisited        int
	ErrorMessage        string
	ConsecutiveFailures int
	NextRunTime         time.Time
	NeverRun            bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
