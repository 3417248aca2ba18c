package analyze

import "strings"

// Section holds the findings of one pattern. Sections are only created for patterns with at least one finding.
type Section struct {
	Pattern  string   `json:"pattern"`
	Findings []string `json:"findings"`
}

// Result is the analysis of one page. Sections follow pattern table order.
type Result struct {
	URL      string    `json:"url"`
	Sections []Section `json:"sections"`
}

func (r *Result) add(pattern string, findings []string) {
	r.Sections = append(r.Sections, Section{Pattern: pattern, Findings: findings})
}

// PatternsFound returns the number of patterns with at least one finding
func (r *Result) PatternsFound() int { return len(r.Sections) }

// Findings returns the findings recorded for pattern; ok is false when the pattern found nothing
func (r *Result) Findings(pattern string) (findings []string, ok bool) {
	for _, s := range r.Sections {
		if s.Pattern == pattern {
			return s.Findings, true
		}
	}
	return nil, false
}

// PatternNames returns the names of the patterns present in the result, in order
func (r *Result) PatternNames() []string {
	names := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		names[i] = s.Pattern
	}
	return names
}

// String renders the plain-text report body:
//
//	URL: <url>
//
//	=== <pattern> ===
//	- <finding>
func (r *Result) String() string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(r.URL)
	b.WriteString("\n\n")
	for _, s := range r.Sections {
		b.WriteString("=== ")
		b.WriteString(s.Pattern)
		b.WriteString(" ===\n")
		for _, f := range s.Findings {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
