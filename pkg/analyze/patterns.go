package analyze

import (
	"github.com/andybalholm/cascadia"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/config"
)

// Pattern is a named bundle of CSS selectors and the attributes reported for each match
type Pattern struct {
	Name       string
	Selectors  []string
	Attributes []string
}

// DefaultPatterns returns the built-in pattern table in its fixed order
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name: config.PatternLoginForms,
			Selectors: []string{
				"form[action*='login']",
				"form[action*='signin']",
				"input[type='password']",
			},
			Attributes: []string{"action", "method", "id", "class"},
		},
		{
			Name: config.PatternContactInfo,
			Selectors: []string{
				"a[href^='mailto:']",
				"a[href^='tel:']",
			},
			Attributes: []string{"href"},
		},
		{
			Name: config.PatternSocialMedia,
			Selectors: []string{
				"a[href*='facebook.com']",
				"a[href*='twitter.com']",
				"a[href*='linkedin.com']",
				"a[href*='instagram.com']",
			},
			Attributes: []string{"href"},
		},
	}
}

type compiledSelector struct {
	raw     string
	matcher cascadia.Selector // nil when compilation failed
	err     error
}

type compiledPattern struct {
	Pattern
	selectors []compiledSelector
}

// PatternSet is an immutable, compiled pattern table shared read-only by analyzers.
// Selectors are compiled once; a selector that does not compile stays in the set and
// is reported as skipped on every analysis.
type PatternSet struct {
	patterns []compiledPattern
}

// NewPatternSet compiles patterns in order. A pattern whose name is already in the
// set is dropped so each name maps to exactly one finding list.
func NewPatternSet(patterns []Pattern, log *logrus.Entry) *PatternSet {
	ps := &PatternSet{patterns: make([]compiledPattern, 0, len(patterns))}
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if _, dup := seen[p.Name]; dup {
			log.Warnf("Pattern '%s' is defined more than once; keeping the first definition", p.Name)
			continue
		}
		seen[p.Name] = struct{}{}
		cp := compiledPattern{
			Pattern: Pattern{
				Name:       p.Name,
				Selectors:  append([]string(nil), p.Selectors...),
				Attributes: append([]string(nil), p.Attributes...),
			},
		}
		for _, raw := range p.Selectors {
			sel, err := cascadia.Compile(raw)
			if err != nil {
				log.Warnf("Pattern '%s': selector '%s' does not compile and will be skipped: %v", p.Name, raw, err)
				cp.selectors = append(cp.selectors, compiledSelector{raw: raw, err: err})
				continue
			}
			cp.selectors = append(cp.selectors, compiledSelector{raw: raw, matcher: sel})
		}
		ps.patterns = append(ps.patterns, cp)
	}
	return ps
}

// PatternSetFromConfig builds the built-in patterns (unless disabled) followed by the configured ones
func PatternSetFromConfig(cfg *config.AppConfig, log *logrus.Entry) *PatternSet {
	var patterns []Pattern
	if !cfg.DisableDefaultPatterns {
		patterns = DefaultPatterns()
	}
	for _, pc := range cfg.Patterns {
		patterns = append(patterns, Pattern{Name: pc.Name, Selectors: pc.Selectors, Attributes: pc.Attributes})
	}
	return NewPatternSet(patterns, log)
}

// Names returns the pattern names in table order
func (ps *PatternSet) Names() []string {
	names := make([]string, len(ps.patterns))
	for i, p := range ps.patterns {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of patterns
func (ps *PatternSet) Len() int { return len(ps.patterns) }

// InvalidSelectors returns "pattern: selector" for every selector that failed to compile
func (ps *PatternSet) InvalidSelectors() []string {
	var out []string
	for _, p := range ps.patterns {
		for _, s := range p.selectors {
			if s.err != nil {
				out = append(out, p.Name+": "+s.raw)
			}
		}
	}
	return out
}
