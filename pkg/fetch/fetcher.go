package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// PageFetcher retrieves the body of a page. Every failure wraps utils.ErrTransport.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Fetcher is the HTTP PageFetcher. It makes exactly one attempt per call.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64 // Body read limit; <= 0 means unlimited
	log       *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, userAgent string, maxBytes int64, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		maxBytes:  maxBytes,
		log:       log.WithField("component", "fetcher"),
	}
}

// Fetch GETs url within timeout and returns the body decoded to UTF-8.
// Connection failures, timeouts and non-2xx statuses are all transport errors;
// the detail sentinel (ErrFetchTimeout, ErrClientHTTPError, ...) is wrapped alongside.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reqLog := f.log.WithField("url", url)

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", utils.ErrTransport, utils.ErrRequestCreation, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.wrapDoError(ctx, fetchCtx, url, timeout, err)
	}
	defer resp.Body.Close()

	statusCode := resp.StatusCode
	switch {
	case statusCode >= 200 && statusCode < 300:
	case statusCode >= 400 && statusCode < 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w: HTTP status %d for %s", utils.ErrTransport, utils.ErrClientHTTPError, statusCode, url)
	case statusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w: HTTP status %d for %s", utils.ErrTransport, utils.ErrServerHTTPError, statusCode, url)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %w: HTTP status %d for %s", utils.ErrTransport, utils.ErrOtherHTTPError, statusCode, url)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		reqLog.Warnf("Content-Type '%s' is not HTML, analyzing anyway", contentType)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w: reading %s exceeded %v", utils.ErrTransport, utils.ErrFetchTimeout, url, timeout)
		}
		return nil, fmt.Errorf("%w: %w: %w", utils.ErrTransport, utils.ErrResponseBodyRead, err)
	}
	if f.maxBytes > 0 && int64(len(raw)) > f.maxBytes {
		reqLog.Warnf("Body exceeds %d bytes, truncating", f.maxBytes)
		raw = raw[:f.maxBytes]
	}

	return decodeUTF8(raw, contentType, reqLog), nil
}

// wrapDoError separates the per-fetch deadline from a cancelled crawl and from plain network errors
func (f *Fetcher) wrapDoError(parent, fetchCtx context.Context, url string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", utils.ErrTransport, parent.Err())
	}
	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: no response from %s within %v", utils.ErrTransport, utils.ErrFetchTimeout, url, timeout)
	}
	return fmt.Errorf("%w: %w", utils.ErrTransport, err)
}

// decodeUTF8 converts body to UTF-8 using the Content-Type charset, a <meta> declaration
// or content sniffing. Falls back to the raw bytes when no decoder applies.
func decodeUTF8(raw []byte, contentType string, log *logrus.Entry) []byte {
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		log.Debugf("No charset decoder for '%s': %v", contentType, err)
		return raw
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		log.Debugf("Charset decoding failed, keeping raw body: %v", err)
		return raw
	}
	return decoded
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true // Unknown: let the parser decide
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
