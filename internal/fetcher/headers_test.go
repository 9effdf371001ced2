package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerHeadersNavigation(t *testing.T) {
	request := &fakeRequest{
		url: "https://example.com/page",
		nav: true,
		headers: map[string]string{
			"user-agent": "HeadlessBrowser/1.0",
			"accept":     "text/html",
		},
	}
	caller := http.Header{}
	caller.Set("Accept", "application/json")
	caller.Set("X-Custom", "yes")

	final, err := CallerHeaders(BrowserChromium, request, caller)
	require.NoError(t, err)

	// caller headers win wholesale on navigation
	assert.Equal(t, "application/json", final["accept"])
	assert.Equal(t, "yes", final["x-custom"])
	// the browser's identity is kept when the caller sends none
	assert.Equal(t, "HeadlessBrowser/1.0", final["user-agent"])
	assert.NotContains(t, final, "host")
}

func TestCallerHeadersFirefoxHost(t *testing.T) {
	request := &fakeRequest{
		url:     "https://example.com:8443/page",
		nav:     true,
		headers: map[string]string{"user-agent": "Firefox/120"},
	}

	final, err := CallerHeaders(BrowserFirefox, request, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, "example.com:8443", final["host"])
}

func TestCallerHeadersSubResource(t *testing.T) {
	request := &fakeRequest{
		url: "https://example.com/script.js",
		nav: false,
		headers: map[string]string{
			"user-agent": "HeadlessBrowser/1.0",
			"referer":    "https://example.com/page",
		},
	}
	caller := http.Header{}
	caller.Set("User-Agent", "MyCrawler/2.0")
	caller.Set("X-Custom", "yes")

	final, err := CallerHeaders(BrowserChromium, request, caller)
	require.NoError(t, err)

	// only the caller identity is folded into sub-resource requests
	assert.Equal(t, "MyCrawler/2.0", final["user-agent"])
	assert.Equal(t, "https://example.com/page", final["referer"])
	assert.NotContains(t, final, "x-custom")
}

func TestCallerHeadersUserAgentWinsOnNavigation(t *testing.T) {
	request := &fakeRequest{
		url:     "https://example.com/",
		nav:     true,
		headers: map[string]string{"user-agent": "HeadlessBrowser/1.0"},
	}
	caller := http.Header{}
	caller.Set("User-Agent", "MyCrawler/2.0")

	final, err := CallerHeaders(BrowserChromium, request, caller)
	require.NoError(t, err)
	assert.Equal(t, "MyCrawler/2.0", final["user-agent"])
}

func TestFlattenHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("Cookie", "a=1")
	h.Add("Cookie", "b=2")
	h.Add("Accept-Encoding", "gzip")
	h.Add("Accept-Encoding", "br")

	flat := flattenHeaders(h)

	assert.Equal(t, "a=1; b=2", flat["cookie"])
	assert.Equal(t, "gzip, br", flat["accept-encoding"])
}

func TestReplaceHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Old", "gone")
	h.Set("Accept", "text/html")

	replaceHeaders(h, map[string]string{
		"accept":     "application/json",
		"user-agent": "MyCrawler/2.0",
	})

	assert.Empty(t, h.Get("X-Old"))
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, "MyCrawler/2.0", h.Get("User-Agent"))
}
