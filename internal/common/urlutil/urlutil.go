// Package urlutil provides URL comparison and parsing helpers shared across
// services.
package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// EqualIgnoringTrailingSlash reports whether two URLs are equivalent up to a
// single trailing slash. Browsers normalize "http://example.com" into
// "http://example.com/" before issuing the request, so the pair must compare
// equal.
func EqualIgnoringTrailingSlash(a, b string) bool {
	if a == b {
		return true
	}
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// ExtractHost returns the host portion of a URL without any port.
func ExtractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	host := parsed.Host
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host, nil
}
