package config

import (
	"fmt"
	"time"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// MaxDepth
	if c.MaxDepth <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_depth should be > 0, defaulting to %d", DefaultMaxDepth))
		c.MaxDepth = DefaultMaxDepth
	}

	// DepthMode
	switch c.DepthMode {
	case "":
		c.DepthMode = DepthModePages
	case DepthModePages, DepthModeLevels:
	default:
		return warnings, fmt.Errorf("%w: depth_mode '%s' must be '%s' or '%s'",
			utils.ErrConfigValidation, c.DepthMode, DepthModePages, DepthModeLevels)
	}

	// FetchTimeout
	if c.FetchTimeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("fetch_timeout should be > 0, defaulting to %v", DefaultFetchTimeout))
		c.FetchTimeout = DefaultFetchTimeout
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, fmt.Sprintf("num_workers should be > 0, defaulting to %d", DefaultNumWorkers))
		c.NumWorkers = DefaultNumWorkers
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// MaxPageSizeBytes
	if c.MaxPageSizeBytes < 0 {
		warnings = append(warnings, "max_page_size_bytes cannot be negative, using default")
		c.MaxPageSizeBytes = 0
	}
	if c.MaxPageSizeBytes == 0 {
		c.MaxPageSizeBytes = DefaultMaxPageSizeBytes
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, fmt.Sprintf("output_dir is empty, defaulting to '%s'", DefaultOutputDir))
		c.OutputDir = DefaultOutputDir
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, fmt.Sprintf("state_dir is empty, defaulting to '%s'", DefaultStateDir))
		c.StateDir = DefaultStateDir
	}

	if c.FindingsFilename == "" {
		c.FindingsFilename = DefaultFindingsFilename
	}
	if c.MetadataFilename == "" {
		c.MetadataFilename = DefaultMetadataFilename
	}
	if c.SummaryFilename == "" {
		c.SummaryFilename = DefaultSummaryFilename
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Patterns
	if err := c.validatePatterns(); err != nil {
		return warnings, err
	}
	if c.DisableDefaultPatterns && len(c.Patterns) == 0 {
		warnings = append(warnings, "disable_default_patterns is set and no patterns are configured; pages will have no findings")
	}

	return warnings, nil
}

// validatePatterns rejects unnamed, duplicate, or selector-less user patterns.
// While the built-in patterns are enabled their names are reserved.
// Selector syntax is checked later when the pattern set is compiled.
func (c *AppConfig) validatePatterns() error {
	seen := make(map[string]struct{}, len(c.Patterns))
	builtin := make(map[string]struct{})
	if !c.DisableDefaultPatterns {
		for _, name := range BuiltinPatternNames() {
			builtin[name] = struct{}{}
		}
	}
	for i, p := range c.Patterns {
		if p.Name == "" {
			return fmt.Errorf("%w: patterns[%d] has no name", utils.ErrConfigValidation, i)
		}
		if _, reserved := builtin[p.Name]; reserved {
			return fmt.Errorf("%w: pattern name '%s' is a built-in pattern (set disable_default_patterns to redefine it)",
				utils.ErrConfigValidation, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: pattern name '%s' is defined twice", utils.ErrConfigValidation, p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Selectors) == 0 {
			return fmt.Errorf("%w: pattern '%s' needs at least one selector", utils.ErrConfigValidation, p.Name)
		}
	}
	return nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
