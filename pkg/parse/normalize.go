package parse

import (
	"net"
	"net/url"
	"strings"
)

// CanonicalURL renders a URL in the form used for visited/pending comparison and reporting.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// turns an empty path into "/", and removes the fragment. The query string and any trailing
// slash are kept: two URLs differing only in those are different pages.
// Does not modify the input *url.URL
func CanonicalURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	canonical := *u

	canonical.Scheme = strings.ToLower(canonical.Scheme)
	canonical.Host = strings.ToLower(canonical.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(canonical.Host)
	if err == nil {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if canonical.Path == "" && canonical.Opaque == "" {
		canonical.Path = "/"
		canonical.RawPath = ""
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""

	return canonical.String()
}

// ParseCanonical parses an absolute URL string and returns its canonical form together with the parsed URL
func ParseCanonical(urlStr string) (string, *url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, err
	}
	return CanonicalURL(parsed), parsed, nil
}
