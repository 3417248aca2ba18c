package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/fetch"
	applog "github.com/Sriram-PR/webscout/pkg/log"
	"github.com/Sriram-PR/webscout/pkg/watch"
)

// runWatch handles the watch subcommand
func runWatch(args []string) {
	log := logrus.New()
	ctx, stop := signalContext(log)
	exitCode := doWatch(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// doWatch re-crawls the given seeds every interval until ctx is cancelled.
// Each host writes to its own subdirectory of the output dir.
func doWatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &crawlFlags{set: make(map[string]bool)}
	registerCrawlFlags(fs, f)
	interval := fs.String("interval", "24h", "Crawl interval (e.g., 30m, 1h, 24h, 7d)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: webscout watch -url <seed> [-url <seed>...] [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  webscout watch -url https://example.com -interval 24h\n")
		fmt.Fprintf(stderr, "  webscout watch -url https://a.example -url https://b.example -interval 12h\n")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	if err := f.validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	every, err := watch.ParseInterval(*interval)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log, err := applog.New(stderr, f.logLevel, applog.TimestampCLI)
	if err != nil {
		log.Warnf("%v, using default 'info'", err)
	}

	appCfg, err := loadConfig(f.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	f.apply(appCfg)
	seeds := []string(f.seeds)
	if len(seeds) == 0 && appCfg.SeedURL != "" {
		seeds = []string{appCfg.SeedURL}
	}
	if len(seeds) == 0 {
		fmt.Fprintln(stderr, "Error: at least one -url is required")
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logEntry := applog.Component(log, "watch")
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent, appCfg.MaxPageSizeBytes, logEntry)

	scheduler, err := watch.NewScheduler(appCfg, seeds, every, fetcher, f.parallel, logEntry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	go func() {
		<-ctx.Done()
		scheduler.Stop()
	}()

	if err := scheduler.Run(); err != nil {
		fmt.Fprintf(stderr, "Watch scheduler error: %v\n", err)
		return 1
	}

	for host, st := range scheduler.GetStatus() {
		if !st.NeverRun {
			fmt.Fprintf(stdout, "%s: last run %s, %d pages visited\n", host, st.LastRunTime.Format("2006-01-02 15:04:05"), st.PagesVisited)
		}
	}
	log.Info("Watch mode stopped")
	return 0
}
