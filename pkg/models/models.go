package models

import "time"

// CrawlTarget is a URL admitted to the frontier together with the depth at which it was discovered.
// The seed has depth 0; a discovered link has the discoverer's depth + 1.
type CrawlTarget struct {
	URL   string
	Depth int
}

// Page is a successfully fetched page handed to the analyzer. It is not retained after analysis.
type Page struct {
	URL     string
	Content []byte
	Links   []string // In-scope canonical links, document order, duplicates kept
}

// PageDBEntry stores the result of processing a page URL in the database
type PageDBEntry struct {
	Status        PageStatus `json:"status"`                   // "success" or "failure"
	ErrorType     string     `json:"error_type,omitempty"`     // Error category (on failure)
	ProcessedAt   time.Time  `json:"processed_at,omitempty"`   // Timestamp of successful processing
	LastAttempt   time.Time  `json:"last_attempt"`             // Timestamp of the last processing attempt
	Depth         int        `json:"depth"`                    // Depth at which this page was processed/attempted
	ContentHash   string     `json:"content_hash,omitempty"`   // SHA-256 of the fetched body
	PatternsFound int        `json:"patterns_found,omitempty"` // Number of patterns with at least one finding
}

// CrawlMetadata holds all metadata for a single crawl run.
type CrawlMetadata struct {
	RunID           string         `yaml:"run_id"`
	SeedURL         string         `yaml:"seed_url"`
	AllowedHost     string         `yaml:"allowed_host"`
	DepthMode       string         `yaml:"depth_mode"`
	MaxDepth        int            `yaml:"max_depth"`
	CrawlStartTime  time.Time      `yaml:"crawl_start_time"`
	CrawlEndTime    time.Time      `yaml:"crawl_end_time"`
	PagesVisited    int            `yaml:"pages_visited"`
	PagesFailed     int            `yaml:"pages_failed"`
	ReportsWritten  int            `yaml:"reports_written"`
	ReportsFailed   int            `yaml:"reports_failed"`
	PatternCounts   map[string]int `yaml:"pattern_counts,omitempty"` // Pages with at least one finding, per pattern
	Pages           []PageMetadata `yaml:"pages"`
	TerminatedEarly bool           `yaml:"terminated_early,omitempty"` // Cancelled or timed out
}

// PageMetadata holds metadata for a single visited page.
type PageMetadata struct {
	URL           string     `yaml:"url"`
	Depth         int        `yaml:"depth"`
	Status        PageStatus `yaml:"status"`
	ErrorType     string     `yaml:"error_type,omitempty"`
	ReportFile    string     `yaml:"report_file,omitempty"` // Relative to output_dir
	ContentHash   string     `yaml:"content_hash,omitempty"`
	LinksFound    int        `yaml:"links_found"`
	PatternsFound int        `yaml:"patterns_found"`
	ProcessedAt   time.Time  `yaml:"processed_at"`
}
