package utils

import (
	"net"
	"regexp"
	"strings"
)

var invalidHostChars = regexp.MustCompile(`[^a-z0-9._-]+`) // Anything outside a plain DNS label or IPv4 literal
const maxHostDirLength = 100

// HostDirName turns a crawled host into a single path component, used for per-host
// output directories, visited logs and page DB directories.
// The port is dropped (crawl scope ignores ports), so "Example.com:8080" and
// "example.com" share a directory. IPv6 literals lose their brackets and their
// colons become '-': "[::1]:80" -> "--1".
func HostDirName(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	h = strings.Trim(h, "[]")
	h = strings.ReplaceAll(h, ":", "-")
	h = invalidHostChars.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_.")

	if len(h) > maxHostDirLength {
		h = strings.Trim(h[:maxHostDirLength], "_.")
	}
	if h == "" {
		return "unknown-host"
	}
	return h
}
