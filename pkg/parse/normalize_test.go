package parse

import (
	"net/url"
	"testing"
)

func TestCanonicalURL_NilInput(t *testing.T) {
	result := CanonicalURL(nil)
	if result != "" {
		t.Errorf("CanonicalURL(nil) = %q, want empty string", result)
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseScheme", "HTTP://example.com/path", "http://example.com/path"},
		{"UppercaseHost", "http://EXAMPLE.COM/path", "http://example.com/path"},
		{"PathCasePreserved", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"HTTPPort80Removed", "http://example.com:80/path", "http://example.com/path"},
		{"HTTPSPort443Removed", "https://example.com:443/path", "https://example.com/path"},
		{"HTTPPort8080Kept", "http://example.com:8080/path", "http://example.com:8080/path"},
		{"HTTPPort443Kept", "http://example.com:443/path", "http://example.com:443/path"},
		{"EmptyPathBecomesRoot", "http://example.com", "http://example.com/"},
		{"TrailingSlashKept", "http://example.com/docs/", "http://example.com/docs/"},
		{"FragmentRemoved", "http://example.com/page#section", "http://example.com/page"},
		{"QueryKept", "http://example.com/search?q=go&page=2", "http://example.com/search?q=go&page=2"},
		{"QueryKeptFragmentRemoved", "http://example.com/?a=1#top", "http://example.com/?a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			if err != nil {
				t.Fatalf("url.Parse(%q) failed: %v", tt.input, err)
			}
			result := CanonicalURL(parsed)
			if result != tt.expected {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCanonicalURL_DoesNotModifyInput(t *testing.T) {
	original := "HTTP://EXAMPLE.COM:80#frag"
	parsed, err := url.Parse(original)
	if err != nil {
		t.Fatalf("url.Parse(%q) failed: %v", original, err)
	}
	scheme, host, fragment := parsed.Scheme, parsed.Host, parsed.Fragment

	if got := CanonicalURL(parsed); got != "http://example.com/" {
		t.Errorf("CanonicalURL(%q) = %q, want %q", original, got, "http://example.com/")
	}

	if parsed.Scheme != scheme {
		t.Errorf("Scheme modified: got %q, want %q", parsed.Scheme, scheme)
	}
	if parsed.Host != host {
		t.Errorf("Host modified: got %q, want %q", parsed.Host, host)
	}
	if parsed.Fragment != fragment {
		t.Errorf("Fragment modified: got %q, want %q", parsed.Fragment, fragment)
	}
}

func TestParseCanonical(t *testing.T) {
	canonical, parsed, err := ParseCanonical("  https://Example.com:443/a#b ")
	if err != nil {
		t.Fatalf("ParseCanonical() unexpected error: %v", err)
	}
	if canonical != "https://example.com/a" {
		t.Errorf("ParseCanonical() canonical = %q, want %q", canonical, "https://example.com/a")
	}
	if parsed == nil || parsed.Hostname() != "Example.com" {
		t.Errorf("ParseCanonical() parsed = %v, want original host preserved", parsed)
	}

	if _, _, err := ParseCanonical("http://[::1"); err == nil {
		t.Error("ParseCanonical() expected error for malformed host, got nil")
	}
}
