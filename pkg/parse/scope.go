package parse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Sriram-PR/webscout/pkg/utils"
)

// Scope decides whether a URL belongs to the crawl: its host must equal the seed's host.
// Comparison is case-insensitive and ignores the port; subdomains are out of scope.
type Scope struct {
	seed *url.URL
	host string // lowercased seed hostname
}

// NewScope derives the allowed host from the seed URL.
// A seed that does not parse, or has no scheme or host, is rejected with ErrScopeParse.
func NewScope(seed string) (*Scope, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", utils.ErrScopeParse, seed, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: '%s' needs an absolute URL with scheme and host", utils.ErrScopeParse, seed)
	}
	return &Scope{seed: u, host: strings.ToLower(u.Hostname())}, nil
}

// Host returns the allowed host, lowercased and without port
func (s *Scope) Host() string { return s.host }

// Seed returns the canonical form of the seed URL
func (s *Scope) Seed() string { return CanonicalURL(s.seed) }

// Belongs reports whether u is on the allowed host. URLs without a host (mailto:, tel:, javascript:) never belong.
func (s *Scope) Belongs(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := u.Hostname()
	return host != "" && strings.EqualFold(host, s.host)
}

// BelongsString parses raw and applies Belongs; unparseable input does not belong
func (s *Scope) BelongsString(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return s.Belongs(u)
}
