package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/analyze"
	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/crawler"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	applog "github.com/Sriram-PR/webscout/pkg/log"
	"github.com/Sriram-PR/webscout/pkg/orchestrate"
	"github.com/Sriram-PR/webscout/pkg/parse"
	"github.com/Sriram-PR/webscout/pkg/report"
	"github.com/Sriram-PR/webscout/pkg/storage"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("webscout %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `webscout - single-host crawler reporting login forms, contact and social links

Usage:
  webscout <command> [options]

Commands:
  crawl       Crawl a site starting from a seed URL
  analyze     Fetch and analyze a single page
  watch       Re-crawl seeds on a schedule
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'webscout <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file. An empty path yields an empty
// config; defaults are applied later by Validate.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return &config.AppConfig{}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second signal,
// or a stuck shutdown, forces the process to exit.
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// seedList collects a repeatable -url flag
type seedList []string

func (s *seedList) String() string { return strings.Join(*s, ",") }

func (s *seedList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// crawlFlags holds the crawl subcommand's flag values
type crawlFlags struct {
	seeds           seedList
	parallel        int
	depth           int
	timeoutMs       int
	output          string
	configFile      string
	workers         int
	depthMode       string
	logLevel        string
	stateDir        string
	writeVisitedLog bool
	set             map[string]bool // Flags given on the command line
}

// registerCrawlFlags binds the flags shared by crawl and watch
func registerCrawlFlags(fs *flag.FlagSet, f *crawlFlags) {
	fs.Var(&f.seeds, "url", "Seed URL; only links on its host are followed. Repeat to crawl several hosts in parallel")
	fs.IntVar(&f.parallel, "parallel", 2, "Maximum hosts crawled at once when several -url flags are given")
	fs.IntVar(&f.depth, "depth", config.DefaultMaxDepth, "Depth bound (see -depth-mode)")
	fs.IntVar(&f.timeoutMs, "timeout", int(config.DefaultFetchTimeout/time.Millisecond), "Per-page fetch timeout in milliseconds")
	fs.StringVar(&f.output, "output", config.DefaultOutputDir, "Directory for reports and crawl outputs")
	fs.StringVar(&f.configFile, "config", "", "Path to YAML config file (optional)")
	fs.IntVar(&f.workers, "workers", config.DefaultNumWorkers, "Number of concurrent fetch workers")
	fs.StringVar(&f.depthMode, "depth-mode", config.DepthModePages, "'pages' bounds dequeued pages, 'levels' bounds link distance from the seed")
	fs.StringVar(&f.logLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fs.StringVar(&f.stateDir, "state-dir", config.DefaultStateDir, "Directory for the page status database")
	fs.BoolVar(&f.writeVisitedLog, "write-visited-log", false, "Write visited URLs log on completion")
}

func parseCrawlFlags(args []string, stderr io.Writer) (*crawlFlags, error) {
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &crawlFlags{set: make(map[string]bool)}
	registerCrawlFlags(fs, f)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: webscout crawl -url <seed> [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  webscout crawl -url https://example.com\n")
		fmt.Fprintf(stderr, "  webscout crawl -url https://example.com -depth 50 -workers 4 -depth-mode levels\n")
		fmt.Fprintf(stderr, "  webscout crawl -url https://a.example -url https://b.example -parallel 2\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	if err := f.validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, err
	}
	return f, nil
}

// validate rejects flag values that Validate would otherwise silently replace with defaults
func (f *crawlFlags) validate() error {
	if f.set["depth"] && f.depth < 1 {
		return fmt.Errorf("%w: -depth must be at least 1, got %d", utils.ErrConfigValidation, f.depth)
	}
	if f.set["workers"] && f.workers < 1 {
		return fmt.Errorf("%w: -workers must be at least 1, got %d", utils.ErrConfigValidation, f.workers)
	}
	return nil
}

// apply copies flag values onto cfg. Flags given explicitly always win;
// defaults only fill fields the config file left empty.
func (f *crawlFlags) apply(cfg *config.AppConfig) {
	if len(f.seeds) > 0 {
		cfg.SeedURL = f.seeds[0]
	}
	if f.set["depth"] || cfg.MaxDepth == 0 {
		cfg.MaxDepth = f.depth
	}
	if f.set["timeout"] || cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = time.Duration(f.timeoutMs) * time.Millisecond
	}
	if f.set["output"] || cfg.OutputDir == "" {
		cfg.OutputDir = f.output
	}
	if f.set["workers"] || cfg.NumWorkers == 0 {
		cfg.NumWorkers = f.workers
	}
	if f.set["depth-mode"] || cfg.DepthMode == "" {
		cfg.DepthMode = f.depthMode
	}
	if f.set["state-dir"] || cfg.StateDir == "" {
		cfg.StateDir = f.stateDir
	}
	if f.set["write-visited-log"] {
		cfg.WriteVisitedLog = f.writeVisitedLog
	}
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	log := logrus.New()
	ctx, stop := signalContext(log)
	exitCode := doCrawl(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// doCrawl runs a crawl and writes output to provided writers.
// Returns exit code (0 = success or interrupted, 1 = error).
func doCrawl(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := parseCrawlFlags(args, stderr)
	if err != nil {
		return 1
	}

	log, err := applog.New(stderr, flags.logLevel, applog.TimestampCLI)
	if err != nil {
		log.Warnf("%v, using default 'info'", err)
	}

	appCfg, err := loadConfig(flags.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	flags.apply(appCfg)
	if appCfg.SeedURL == "" {
		fmt.Fprintln(stderr, "Error: -url is required")
		return 1
	}
	if len(flags.seeds) > 1 {
		return doParallelCrawl(ctx, appCfg, flags, log, stdout, stderr)
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logAppConfig(appCfg, log)

	scope, err := parse.NewScope(appCfg.SeedURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// --- Initialize Components ---
	logEntry := applog.Component(log, "crawl")

	store, err := storage.NewBadgerStore(ctx, appCfg.StateDir, scope.Host(), logEntry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize page DB: %v\n", err)
		return 1
	}
	defer store.Close()

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent, appCfg.MaxPageSizeBytes, logEntry)

	sink, err := report.NewFileSink(appCfg.OutputDir, logEntry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	crawlerInstance, err := crawler.NewCrawler(appCfg, scope, fetcher, sink, store, logEntry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to initialize crawler: %v\n", err)
		return 1
	}

	// --- Run ---
	summary, err := crawlerInstance.Run(ctx)
	if summary != nil {
		fmt.Fprintf(stdout, "Crawl %s: %d pages visited, %d failed, %d reports written to %s (%s)\n",
			summary.RunID, summary.PagesVisited, summary.PagesFailed, summary.ReportsWritten,
			appCfg.OutputDir, summary.Duration.Round(time.Millisecond))
		if summary.ReportsFailed > 0 {
			fmt.Fprintf(stdout, "WARN: %d reports could not be written\n", summary.ReportsFailed)
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("Crawl cancelled gracefully.")
			return 0
		case errors.Is(err, context.DeadlineExceeded):
			log.Error("Crawl timed out (global timeout).")
			return 1
		default:
			log.Errorf("Crawl finished with error: %v", err)
			return 1
		}
	}
	log.Info("Crawl completed successfully.")
	return 0
}

// doParallelCrawl crawls every -url seed with its own crawler, each host
// writing to its own subdirectory of the output dir.
func doParallelCrawl(ctx context.Context, appCfg *config.AppConfig, flags *crawlFlags, log *logrus.Logger, stdout, stderr io.Writer) int {
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := orchestrate.ValidateSeeds(flags.seeds); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logAppConfig(appCfg, log)

	logEntry := applog.Component(log, "parallel_crawl")
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent, appCfg.MaxPageSizeBytes, logEntry)

	orch := orchestrate.NewOrchestrator(ctx, appCfg, flags.seeds, fetcher, flags.parallel, logEntry)
	results := orch.Run()

	exitCode := 0
	for _, r := range results {
		if r.Summary != nil {
			fmt.Fprintf(stdout, "%s: %d pages visited, %d failed, %d reports written to %s\n",
				r.Host, r.Summary.PagesVisited, r.Summary.PagesFailed, r.Summary.ReportsWritten, r.OutputDir)
		}
		if r.Error != nil && !errors.Is(r.Error, context.Canceled) {
			fmt.Fprintf(stderr, "Error: %s: %v\n", r.SeedURL, r.Error)
			exitCode = 1
		}
	}
	return exitCode
}

// runAnalyze handles the analyze subcommand
func runAnalyze(args []string) {
	log := logrus.New()
	ctx, stop := signalContext(log)
	exitCode := doAnalyze(ctx, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// doAnalyze fetches one page and prints its report to stdout.
func doAnalyze(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pageURL := fs.String("url", "", "Page to analyze (required)")
	configFile := fs.String("config", "", "Path to YAML config file (optional)")
	timeoutMs := fs.Int("timeout", int(config.DefaultFetchTimeout/time.Millisecond), "Fetch timeout in milliseconds")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: webscout analyze -url <page> [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *pageURL == "" {
		fmt.Fprintln(stderr, "Error: -url is required")
		return 1
	}

	log, err := applog.New(stderr, *logLevel, applog.TimestampCLI)
	if err != nil {
		log.Warnf("%v, using default 'info'", err)
	}

	appCfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	appCfg.FetchTimeout = time.Duration(*timeoutMs) * time.Millisecond
	if _, err := appCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logEntry := applog.Component(log, "analyze")
	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg.UserAgent, appCfg.MaxPageSizeBytes, logEntry)

	page, result, err := crawler.AnalyzePage(ctx, appCfg, fetcher, *pageURL, logEntry)
	if err != nil {
		fmt.Fprintf(stderr, "Error (%s): %v\n", utils.CategorizeError(err), err)
		return 1
	}

	fmt.Fprint(stdout, result.String())
	fmt.Fprintf(stdout, "Links on this host: %d\n", len(page.Links))
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webscout validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if appCfg.SeedURL != "" {
		scope, err := parse.NewScope(appCfg.SeedURL)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "OK: seed %s (host %s)\n", scope.Seed(), scope.Host())
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	patterns := analyze.PatternSetFromConfig(appCfg, quiet.WithField("component", "validate"))
	for _, sel := range patterns.InvalidSelectors() {
		fmt.Fprintf(stdout, "WARN: selector %s does not compile and will be skipped\n", sel)
	}
	fmt.Fprintf(stdout, "OK: %d patterns %v\n", patterns.Len(), patterns.Names())

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Seed:%s, MaxDepth:%d (%s), Workers:%d, FetchTimeout:%v, GlobalCrawl:%v",
		appCfg.SeedURL, appCfg.MaxDepth, appCfg.DepthMode, appCfg.NumWorkers, appCfg.FetchTimeout, appCfg.GlobalCrawlTimeout)
	log.Infof("Config: OutputDir:%s, StateDir:%s, UserAgent:%s, MaxPageSize:%d bytes",
		appCfg.OutputDir, appCfg.StateDir, appCfg.UserAgent, appCfg.MaxPageSizeBytes)
	log.Infof("Config Outputs: FindingsJSONL:%t, MetadataYAML:%t, Summary:%t, VisitedLog:%t",
		appCfg.FindingsJSONLEnabled(), appCfg.MetadataYAMLEnabled(), appCfg.SummaryEnabled(), appCfg.WriteVisitedLog)
	log.Infof("Config HTTP Client: MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}
