package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, DepthModePages, cfg.DepthMode)
	assert.Equal(t, 1000*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, 1, cfg.NumWorkers)
	assert.Equal(t, "results", cfg.OutputDir)
	assert.Equal(t, "./crawler_state", cfg.StateDir)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxPageSizeBytes)
	assert.Equal(t, "findings.jsonl", cfg.FindingsFilename)
	assert.Equal(t, "crawl_metadata.yaml", cfg.MetadataFilename)
	assert.Equal(t, "summary.md", cfg.SummaryFilename)
	assert.Zero(t, cfg.GlobalCrawlTimeout)

	// HTTP client defaults
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)

	assert.True(t, containsWarning(warnings, "max_depth should be > 0"))
	assert.True(t, containsWarning(warnings, "fetch_timeout should be > 0"))
	assert.True(t, containsWarning(warnings, "num_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))

	assert.True(t, cfg.FindingsJSONLEnabled())
	assert.True(t, cfg.MetadataYAMLEnabled())
	assert.True(t, cfg.SummaryEnabled())
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		MaxDepth:     3,
		DepthMode:    DepthModeLevels,
		FetchTimeout: 250 * time.Millisecond,
		NumWorkers:   4,
		OutputDir:    "/out",
		StateDir:     "/state",
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, DepthModeLevels, cfg.DepthMode)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "/out", cfg.OutputDir)
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	cfg := AppConfig{
		MaxDepth:           -2,
		GlobalCrawlTimeout: -time.Second,
		MaxPageSizeBytes:   -1,
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Zero(t, cfg.GlobalCrawlTimeout)
	assert.Equal(t, int64(DefaultMaxPageSizeBytes), cfg.MaxPageSizeBytes)
	assert.True(t, containsWarning(warnings, "global_crawl_timeout cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_page_size_bytes cannot be negative"))
}

func TestAppConfig_Validate_InvalidDepthMode(t *testing.T) {
	cfg := AppConfig{DepthMode: "breadth"}
	_, err := cfg.Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfigValidation))
	assert.Contains(t, err.Error(), "breadth")
}

func TestAppConfig_Validate_Patterns(t *testing.T) {
	tests := []struct {
		name            string
		patterns        []PatternConfig
		disableDefaults bool
		wantErr         string
	}{
		{
			name:     "valid",
			patterns: []PatternConfig{{Name: "search_forms", Selectors: []string{"form[role='search']"}, Attributes: []string{"action"}}},
		},
		{
			name:     "missing name",
			patterns: []PatternConfig{{Selectors: []string{"form"}}},
			wantErr:  "patterns[0] has no name",
		},
		{
			name: "duplicate name",
			patterns: []PatternConfig{
				{Name: "x", Selectors: []string{"a"}},
				{Name: "x", Selectors: []string{"b"}},
			},
			wantErr: "defined twice",
		},
		{
			name:     "no selectors",
			patterns: []PatternConfig{{Name: "empty"}},
			wantErr:  "needs at least one selector",
		},
		{
			name:     "built-in name",
			patterns: []PatternConfig{{Name: PatternContactInfo, Selectors: []string{"a[href^='sms:']"}}},
			wantErr:  "'contact_info' is a built-in pattern",
		},
		{
			name:            "built-in name with defaults disabled",
			patterns:        []PatternConfig{{Name: PatternContactInfo, Selectors: []string{"a[href^='sms:']"}}},
			disableDefaults: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Patterns: tt.patterns, DisableDefaultPatterns: tt.disableDefaults}
			_, err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAppConfig_Validate_DisabledDefaultsWithoutPatternsWarns(t *testing.T) {
	cfg := AppConfig{DisableDefaultPatterns: true}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "disable_default_patterns"))
}
