package fetcher

import (
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/crawlkit/browserfetch/pkg/types"
)

// Supported browser kinds.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// AbortFunc decides whether an intercepted network request should be aborted
// before it reaches the network.
type AbortFunc func(request playwright.Request) (bool, error)

// Options holds the operating parameters of a Fetcher. Immutable after New.
type Options struct {
	// BrowserKind selects the driver: chromium (default), firefox or webkit.
	BrowserKind string

	// Exactly one attach mode is used: local launch (LaunchOptions),
	// attach over the debugging protocol (CDPAddress), or attach over a
	// persistent connection URL (WSEndpoint). Setting both CDPAddress and
	// WSEndpoint is a configuration error.
	LaunchOptions playwright.BrowserTypeLaunchOptions
	CDPAddress    string
	CDPOptions    playwright.BrowserTypeConnectOverCDPOptions
	WSEndpoint    string
	WSOptions     playwright.BrowserTypeConnectOptions

	// MaxPagesPerContext bounds concurrently open pages per context. When
	// zero, EngineConcurrency (the crawling engine's global concurrency
	// setting) is used instead.
	MaxPagesPerContext int
	EngineConcurrency  int

	// MaxContexts bounds concurrently open contexts; zero means unbounded.
	MaxContexts int

	// StartupContexts are created eagerly when the pool starts.
	StartupContexts map[string]*types.ContextSpec

	// NavigationTimeout is applied to every context and page, in
	// milliseconds. nil leaves the driver default in place; an explicit
	// zero disables the timeout entirely.
	NavigationTimeout *float64

	// ReconcileHeaders computes the final header set for every intercepted
	// request. nil passes the browser-originated headers through unmodified.
	// New installs CallerHeaders when the field was never touched; use
	// PassthroughHeaders to request the nil behavior explicitly.
	ReconcileHeaders   HeadersFunc
	PassthroughHeaders bool

	// AbortRequest, when set, is evaluated for every intercepted request.
	AbortRequest AbortFunc

	// RelaunchOnCrash controls whether a browser disconnect (crash or
	// external close) triggers a transparent relaunch on the next fetch.
	RelaunchOnCrash bool

	// MaxPageRetries bounds whole-request retries after a benign
	// target-closed race; ContentRetries bounds retries of the content read
	// when the page is still navigating. Both trade latency for resilience.
	MaxPageRetries int
	ContentRetries int
}

// DefaultOptions returns options matching the documented defaults.
func DefaultOptions() *Options {
	return &Options{
		BrowserKind:       BrowserChromium,
		EngineConcurrency: 16,
		ReconcileHeaders:  CallerHeaders,
		RelaunchOnCrash:   true,
		MaxPageRetries:    1,
		ContentRetries:    1,
	}
}

// Validate checks the options for configuration errors. These are fatal at
// startup and never retried.
func (o *Options) Validate() error {
	switch o.BrowserKind {
	case BrowserChromium, BrowserFirefox, BrowserWebKit:
	case "":
		return fmt.Errorf("%w: browser kind must be set", ErrConfiguration)
	default:
		return fmt.Errorf("%w: unknown browser kind %q", ErrConfiguration, o.BrowserKind)
	}

	if o.CDPAddress != "" && o.WSEndpoint != "" {
		return fmt.Errorf(
			"%w: CDP address and connect URL are mutually exclusive", ErrConfiguration)
	}

	if o.MaxPagesPerContext < 0 {
		return fmt.Errorf("%w: max pages per context must not be negative", ErrConfiguration)
	}
	if o.MaxContexts < 0 {
		return fmt.Errorf("%w: max contexts must not be negative", ErrConfiguration)
	}
	if o.pagesPerContext() <= 0 {
		return fmt.Errorf(
			"%w: either max pages per context or engine concurrency must be positive",
			ErrConfiguration)
	}
	if o.MaxPageRetries < 0 || o.ContentRetries < 0 {
		return fmt.Errorf("%w: retry bounds must not be negative", ErrConfiguration)
	}

	return nil
}

// pagesPerContext resolves the effective per-context page ceiling.
func (o *Options) pagesPerContext() int {
	if o.MaxPagesPerContext > 0 {
		return o.MaxPagesPerContext
	}
	return o.EngineConcurrency
}

// headersFunc resolves the effective header-reconciliation policy.
func (o *Options) headersFunc() HeadersFunc {
	if o.PassthroughHeaders {
		return nil
	}
	return o.ReconcileHeaders
}

// remote reports whether the options attach to an existing browser instead of
// launching one.
func (o *Options) remote() bool {
	return o.CDPAddress != "" || o.WSEndpoint != ""
}
