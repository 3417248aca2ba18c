package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

// WriteSummary renders a Markdown overview of a finished crawl
func WriteSummary(w io.Writer, meta *models.CrawlMetadata) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + meta.RunID + "`"},
			{"Seed URL", meta.SeedURL},
			{"Allowed Host", meta.AllowedHost},
			{"Depth Bound", fmt.Sprintf("%d (%s)", meta.MaxDepth, meta.DepthMode)},
			{"Started", meta.CrawlStartTime.Format("2006-01-02 15:04:05 MST")},
			{"Duration", meta.CrawlEndTime.Sub(meta.CrawlStartTime).Round(time.Millisecond).String()},
			{"Pages Visited", strconv.Itoa(meta.PagesVisited)},
			{"Fetch Failures", strconv.Itoa(meta.PagesFailed)},
			{"Reports Written", strconv.Itoa(meta.ReportsWritten)},
			{"Status", statusText(meta)},
		},
	})
	md.PlainText("")

	writePatternCounts(md, meta)
	writePages(md, meta)
	writeFailures(md, meta)

	return md.Build()
}

// WriteSummaryFile writes the summary to path; errors wrap utils.ErrIO
func WriteSummaryFile(path string, meta *models.CrawlMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating summary '%s': %w", utils.ErrIO, path, err)
	}
	if err := WriteSummary(file, meta); err != nil {
		file.Close()
		return fmt.Errorf("%w: writing summary '%s': %w", utils.ErrIO, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing summary '%s': %w", utils.ErrIO, path, err)
	}
	return nil
}

func statusText(meta *models.CrawlMetadata) string {
	switch {
	case meta.TerminatedEarly:
		return "Stopped early (partial results)"
	case meta.ReportsFailed > 0:
		return fmt.Sprintf("Complete, %d report(s) could not be written", meta.ReportsFailed)
	}
	return "Complete"
}

func writePatternCounts(md *markdown.Markdown, meta *models.CrawlMetadata) {
	md.H2("Patterns")
	md.PlainText("")
	if len(meta.PatternCounts) == 0 {
		md.PlainText("No patterns found on any page.")
		md.PlainText("")
		return
	}

	names := make([]string, 0, len(meta.PatternCounts))
	for name := range meta.PatternCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(meta.PatternCounts[name])})
	}
	md.Table(markdown.TableSet{Header: []string{"Pattern", "Pages"}, Rows: rows})
	md.PlainText("")
}

func writePages(md *markdown.Markdown, meta *models.CrawlMetadata) {
	md.H2("Pages")
	md.PlainText("")
	if len(meta.Pages) == 0 {
		md.PlainText("No pages were visited.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(meta.Pages))
	for _, p := range meta.Pages {
		rows = append(rows, []string{
			p.URL,
			strconv.Itoa(p.Depth),
			p.Status.String(),
			strconv.Itoa(p.PatternsFound),
			p.ReportFile,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "Patterns", "Report"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeFailures(md *markdown.Markdown, meta *models.CrawlMetadata) {
	var failures []string
	for _, p := range meta.Pages {
		if p.Status == models.PageStatusFailure {
			failures = append(failures, fmt.Sprintf("%s (%s)", p.URL, p.ErrorType))
		}
	}
	if len(failures) == 0 {
		return
	}
	md.H2("Fetch Failures")
	md.PlainText("")
	md.BulletList(failures...)
	md.PlainText("")
}
