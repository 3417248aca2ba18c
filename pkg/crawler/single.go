package crawler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/analyze"
	"github.com/Sriram-PR/webscout/pkg/config"
	"github.com/Sriram-PR/webscout/pkg/fetch"
	"github.com/Sriram-PR/webscout/pkg/models"
	"github.com/Sriram-PR/webscout/pkg/parse"
	"github.com/Sriram-PR/webscout/pkg/utils"
)

// AnalyzePage fetches a single page and analyzes it without following any link.
// The page's in-scope links are extracted and returned on the Page.
// An unusable URL fails with ErrScopeParse; fetch errors are returned as-is.
func AnalyzePage(ctx context.Context, cfg *config.AppConfig, fetcher fetch.PageFetcher, pageURL string, log *logrus.Entry) (*models.Page, *analyze.Result, error) {
	scope, err := parse.NewScope(pageURL)
	if err != nil {
		return nil, nil, err
	}
	target := scope.Seed()
	taskLog := log.WithField("url", target)

	body, err := fetcher.Fetch(ctx, target, cfg.FetchTimeout)
	if err != nil {
		taskLog.WithField("category", utils.CategorizeError(err)).Warnf("Fetch failed: %v", err)
		return nil, nil, err
	}

	links, err := parse.NewLinkExtractor(scope, log).Extract(body, target)
	if err != nil {
		taskLog.Warnf("Link extraction failed, continuing without links: %v", err)
		links = nil
	}
	page := &models.Page{URL: target, Content: body, Links: links}

	result := analyze.NewAnalyzer(analyze.PatternSetFromConfig(cfg, log), log).Analyze(page)
	return page, result, nil
}
