package fetcher

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// HeadersFunc computes the final header set for one intercepted request from
// the browser kind, the browser-side request and the caller-side headers.
type HeadersFunc func(
	browserKind string,
	request playwright.Request,
	callerHeaders http.Header,
) (map[string]string, error)

// CallerHeaders is the default reconciliation policy: caller headers take
// precedence over browser headers for navigation requests. For sub-resource
// requests only the User-Agent is taken from the caller, so that in-page
// side effects keep the browser's native request data.
func CallerHeaders(
	browserKind string,
	request playwright.Request,
	callerHeaders http.Header,
) (map[string]string, error) {
	browserHeaders, err := request.AllHeaders()
	if err != nil {
		return nil, err
	}

	caller := flattenHeaders(callerHeaders)
	if caller["user-agent"] == "" && browserHeaders["user-agent"] != "" {
		caller["user-agent"] = browserHeaders["user-agent"]
	}

	if request.IsNavigationRequest() {
		if browserKind == BrowserFirefox {
			// firefox resets the connection when the host header does not
			// match the target
			if parsed, err := url.Parse(request.URL()); err == nil {
				caller["host"] = parsed.Host
			}
		}
		return caller, nil
	}

	if ua := caller["user-agent"]; ua != "" {
		browserHeaders["user-agent"] = ua
	}
	return browserHeaders, nil
}

// flattenHeaders lowercases names and joins multi-value headers the way they
// go on the wire: cookies with "; " (RFC 6265), everything else with ", "
// (RFC 7230).
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		separator := ", "
		if strings.EqualFold(name, "cookie") {
			separator = "; "
		}
		out[strings.ToLower(name)] = strings.Join(values, separator)
	}
	return out
}

// replaceHeaders overwrites the caller-visible header collection in place so
// downstream observers see exactly what was sent.
func replaceHeaders(h http.Header, final map[string]string) {
	for name := range h {
		delete(h, name)
	}
	for name, value := range final {
		h.Set(name, value)
	}
}
