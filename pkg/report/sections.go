package report

import (
	"bufio"
	"strings"
)

const (
	headerPrefix = "=== "
	headerSuffix = " ==="
	urlPrefix    = "URL: "
)

// ParsedReport is a report body read back from its text form
type ParsedReport struct {
	URL      string
	Sections []ParsedSection
}

// ParsedSection is one "=== name ===" block and its "- finding" lines
type ParsedSection struct {
	Pattern  string
	Findings []string
}

// ParseSections returns the pattern names of a report body, in order
func ParseSections(body string) []string {
	parsed := Parse(body)
	names := make([]string, len(parsed.Sections))
	for i, s := range parsed.Sections {
		names[i] = s.Pattern
	}
	return names
}

// Parse reads a report body produced by the analyzer back into its parts
func Parse(body string) ParsedReport {
	var report ParsedReport
	var current *ParsedSection

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case report.URL == "" && current == nil && strings.HasPrefix(line, urlPrefix):
			report.URL = strings.TrimPrefix(line, urlPrefix)
		case strings.HasPrefix(line, headerPrefix) && strings.HasSuffix(line, headerSuffix) && len(line) > len(headerPrefix)+len(headerSuffix):
			report.Sections = append(report.Sections, ParsedSection{
				Pattern: line[len(headerPrefix) : len(line)-len(headerSuffix)],
			})
			current = &report.Sections[len(report.Sections)-1]
		case current != nil && strings.HasPrefix(line, "- "):
			current.Findings = append(current.Findings, strings.TrimPrefix(line, "- "))
		}
	}
	return report
}
