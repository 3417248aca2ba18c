package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// LinkExtractor pulls in-scope hyperlinks out of a fetched page
type LinkExtractor struct {
	scope *Scope
	log   *logrus.Entry
}

// NewLinkExtractor creates a LinkExtractor bound to scope
func NewLinkExtractor(scope *Scope, log *logrus.Entry) *LinkExtractor {
	return &LinkExtractor{scope: scope, log: log}
}

// Extract returns the canonical absolute form of every in-scope <a href> in content, in
// document order with duplicates kept. Each href is first tried as an absolute URL and
// otherwise resolved against baseURL; hrefs that resolve to nothing are dropped.
// Fails with ErrURLParse only when baseURL itself cannot be parsed.
func (le *LinkExtractor) Extract(content []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base URL '%s': %w", utils.ErrURLParse, baseURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("%w: base URL '%s' is not absolute", utils.ErrURLParse, baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML of '%s': %w", utils.ErrParsing, baseURL, err)
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved, ok := resolveHref(base, href)
		if !ok {
			le.log.Debugf("Dropping unresolvable href '%s' on %s", href, baseURL)
			return
		}
		if !le.scope.Belongs(resolved) {
			return
		}
		links = append(links, CanonicalURL(resolved))
	})
	return links, nil
}

// resolveHref accepts href as-is when it is already absolute, else joins it onto base
func resolveHref(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if abs, err := url.Parse(href); err == nil && abs.IsAbs() {
		return abs, true
	}
	joined, err := base.Parse(href)
	if err != nil {
		return nil, false
	}
	return joined, true
}
