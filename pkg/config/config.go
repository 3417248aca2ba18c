package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// Depth modes. "pages" counts every dequeue against max_depth; "levels" bounds the link distance from the seed.
const (
	DepthModePages  = "pages"
	DepthModeLevels = "levels"
)

// Defaults applied by Validate
const (
	DefaultMaxDepth         = 5
	DefaultFetchTimeout     = 1000 * time.Millisecond
	DefaultOutputDir        = "results"
	DefaultStateDir         = "./crawler_state"
	DefaultNumWorkers       = 1
	DefaultUserAgent        = "webscout/1.0"
	DefaultMaxPageSizeBytes = 10 * 1024 * 1024
	DefaultFindingsFilename = "findings.jsonl"
	DefaultMetadataFilename = "crawl_metadata.yaml"
	DefaultSummaryFilename  = "summary.md"
)

// Built-in analysis pattern names, in table order
const (
	PatternLoginForms  = "login_forms"
	PatternContactInfo = "contact_info"
	PatternSocialMedia = "social_media"
)

// BuiltinPatternNames returns the names reserved by the built-in pattern table
func BuiltinPatternNames() []string {
	return []string{PatternLoginForms, PatternContactInfo, PatternSocialMedia}
}

// PatternConfig is a user-defined analysis pattern appended after the built-in ones
type PatternConfig struct {
	Name       string   `yaml:"name"`
	Selectors  []string `yaml:"selectors"`
	Attributes []string `yaml:"attributes,omitempty"`
}

// AppConfig holds the application configuration; CLI flags override file values
type AppConfig struct {
	SeedURL            string           `yaml:"seed_url,omitempty"`
	MaxDepth           int              `yaml:"max_depth"`
	DepthMode          string           `yaml:"depth_mode,omitempty"`
	FetchTimeout       time.Duration    `yaml:"fetch_timeout"`
	GlobalCrawlTimeout time.Duration    `yaml:"global_crawl_timeout,omitempty"` // 0 = no limit
	NumWorkers         int              `yaml:"num_workers"`
	UserAgent          string           `yaml:"user_agent,omitempty"`
	MaxPageSizeBytes   int64            `yaml:"max_page_size_bytes,omitempty"`
	OutputDir          string           `yaml:"output_dir"`
	StateDir           string           `yaml:"state_dir"`
	WriteVisitedLog    bool             `yaml:"write_visited_log,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`

	DisableDefaultPatterns bool            `yaml:"disable_default_patterns,omitempty"`
	Patterns               []PatternConfig `yaml:"patterns,omitempty"`

	EnableFindingsJSONL *bool  `yaml:"enable_findings_jsonl,omitempty"` // nil = enabled
	FindingsFilename    string `yaml:"findings_filename,omitempty"`
	EnableMetadataYAML  *bool  `yaml:"enable_metadata_yaml,omitempty"` // nil = enabled
	MetadataFilename    string `yaml:"metadata_filename,omitempty"`
	EnableSummary       *bool  `yaml:"enable_summary,omitempty"` // nil = enabled
	SummaryFilename     string `yaml:"summary_filename,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	_, _ = cfg.Validate()
	return cfg
}

// Load reads and parses a YAML config file. Defaults are not applied; call Validate.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file '%s': %w", utils.ErrFilesystem, path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: YAML config '%s': %w", utils.ErrParsing, path, err)
	}
	return &cfg, nil
}

// FindingsJSONLEnabled reports whether findings.jsonl should be written
func (c *AppConfig) FindingsJSONLEnabled() bool {
	return c.EnableFindingsJSONL == nil || *c.EnableFindingsJSONL
}

// MetadataYAMLEnabled reports whether the crawl metadata YAML should be written
func (c *AppConfig) MetadataYAMLEnabled() bool {
	return c.EnableMetadataYAML == nil || *c.EnableMetadataYAML
}

// SummaryEnabled reports whether the Markdown crawl summary should be written
func (c *AppConfig) SummaryEnabled() bool {
	return c.EnableSummary == nil || *c.EnableSummary
}
