package analyze

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/Sriram-PR/webscout/pkg/models"
)

// Outcome is what happened to one selector during an analysis
type Outcome int

const (
	OutcomeMatched Outcome = iota // At least one element matched
	OutcomeNoMatch                // Compiled, nothing matched
	OutcomeSkipped                // Did not compile; ignored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// SelectorOutcome records the handling of a single selector of a pattern
type SelectorOutcome struct {
	Pattern       string
	Selector      string
	Outcome       Outcome
	Matches       int   // Elements matched
	EmptyFindings int   // Matched elements with no listed attribute and no text, dropped
	Err           error // Compile error when skipped
}

// Analyzer matches a PatternSet against pages. It holds no per-page state,
// so one Analyzer is safe for concurrent use.
type Analyzer struct {
	patterns *PatternSet
	log      *logrus.Entry
}

// NewAnalyzer creates an Analyzer over a compiled pattern set
func NewAnalyzer(patterns *PatternSet, log *logrus.Entry) *Analyzer {
	return &Analyzer{patterns: patterns, log: log.WithField("component", "analyzer")}
}

// Analyze returns the findings for page. It never fails: unparseable selectors are
// skipped and markup without matches yields an empty result.
func (a *Analyzer) Analyze(page *models.Page) *Result {
	result, _ := a.AnalyzeDetailed(page)
	return result
}

// AnalyzeDetailed is Analyze plus the per-selector outcomes, in pattern then selector order
func (a *Analyzer) AnalyzeDetailed(page *models.Page) (*Result, []SelectorOutcome) {
	result := &Result{URL: page.URL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Content))
	if err != nil {
		// The HTML5 parser accepts any input; only a failing reader lands here
		a.log.Warnf("Could not parse HTML of %s: %v", page.URL, err)
		return result, nil
	}

	var outcomes []SelectorOutcome
	for _, p := range a.patterns.patterns {
		var findings []string
		for _, sel := range p.selectors {
			outcome := SelectorOutcome{Pattern: p.Name, Selector: sel.raw}
			if sel.err != nil {
				outcome.Outcome = OutcomeSkipped
				outcome.Err = sel.err
				outcomes = append(outcomes, outcome)
				continue
			}

			doc.FindMatcher(sel.matcher).Each(func(_ int, el *goquery.Selection) {
				outcome.Matches++
				finding := buildFinding(el, p.Attributes)
				if finding == "" {
					outcome.EmptyFindings++
					return
				}
				findings = append(findings, finding)
			})
			if outcome.Matches > 0 {
				outcome.Outcome = OutcomeMatched
			} else {
				outcome.Outcome = OutcomeNoMatch
			}
			outcomes = append(outcomes, outcome)
		}
		if len(findings) > 0 {
			result.add(p.Name, findings)
		}
	}

	a.log.WithField("url", page.URL).Debugf("Analysis found %d pattern(s)", result.PatternsFound())
	return result, outcomes
}

// buildFinding formats "attr: value" for each listed attribute present on the element,
// in listed order, followed by "text: <t>" when the element's first text node is non-blank.
func buildFinding(el *goquery.Selection, attributes []string) string {
	var parts []string
	for _, attr := range attributes {
		if value, ok := el.Attr(attr); ok {
			parts = append(parts, attr+": "+value)
		}
	}
	if len(el.Nodes) > 0 {
		if text, ok := firstTextNode(el.Nodes[0]); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				parts = append(parts, "text: "+trimmed)
			}
		}
	}
	return strings.Join(parts, ", ")
}

// firstTextNode returns the data of the first text node below n in document order.
// A whitespace-only first node counts: later text is not consulted.
func firstTextNode(n *html.Node) (string, bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			return c.Data, true
		case html.ElementNode:
			if text, ok := firstTextNode(c); ok {
				return text, true
			}
		}
	}
	return "", false
}
