package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/fetcher/metrics"
	"github.com/crawlkit/browserfetch/pkg/types"
)

// defaultDownloadWait bounds the wait for a download to start and finish when
// no navigation timeout is configured.
const defaultDownloadWait = 30 * time.Second

// Fetcher services crawling-engine requests through real browser navigations.
// One Fetcher owns one context pool; Fetch is safe for concurrent use.
type Fetcher struct {
	opts    *Options
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
	stats   *Stats
	pool    *ContextPool
}

// New validates the options and builds an unstarted Fetcher. The collector may
// be nil when no metrics surface is wanted.
func New(opts *Options, collector *metrics.MetricsCollector, logger *zap.Logger) (*Fetcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	stats := NewStats()
	return &Fetcher{
		opts:    opts,
		logger:  logger,
		metrics: collector,
		stats:   stats,
		pool:    NewContextPool(opts, stats, logger),
	}, nil
}

// Start launches the browser driver and any configured startup contexts.
func (f *Fetcher) Start(ctx context.Context) error {
	return f.pool.Start(ctx)
}

// Stats exposes the flat counter registry.
func (f *Fetcher) Stats() *Stats { return f.stats }

// Pool exposes the context pool, for health reporting.
func (f *Fetcher) Pool() *ContextPool { return f.pool }

// Close tears down the pool, the browser and the driver.
func (f *Fetcher) Close() error {
	return f.pool.Close()
}

// Fetch navigates a browser page to the request URL and reconciles the result
// into an engine response. A fetch that dies to a concurrent target teardown
// is retried on a fresh page, bounded by MaxPageRetries; requests reusing a
// caller-provided page are never retried.
func (f *Fetcher) Fetch(ctx context.Context, req *types.FetchRequest) (*types.FetchResponse, error) {
	start := time.Now()
	resp, err := f.fetchWithRetry(ctx, req)
	elapsed := time.Since(start)

	if resp != nil {
		resp.Latency = elapsed
	}
	f.record(resp, err, elapsed)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, req *types.FetchRequest) (*types.FetchResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := f.fetchOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if req.Page != nil || attempt >= f.opts.MaxPageRetries || !isTargetClosedError(err) {
			return nil, err
		}
		f.logger.Warn("Retrying fetch after target closed mid-flight",
			zap.String("request_id", req.RequestID),
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
}

// record feeds the fetch outcome into the metrics collector and the pool
// gauges.
func (f *Fetcher) record(resp *types.FetchResponse, err error, elapsed time.Duration) {
	if f.metrics == nil {
		return
	}
	f.metrics.RecordFetchDuration(elapsed.Seconds())
	switch {
	case err == nil && resp != nil && resp.FromDownload:
		f.metrics.RecordFetchDownload()
	case err == nil:
		f.metrics.RecordFetchSuccess()
	case isNavigationTimeout(err):
		f.metrics.RecordFetchTimeout()
		f.metrics.RecordTimeoutError()
	default:
		f.metrics.RecordFetchError()
		f.metrics.RecordFetchErrorMetric()
	}
	contexts, pages := f.pool.Counts()
	f.metrics.UpdateContextsOpen(contexts)
	f.metrics.UpdatePagesOpen(pages)
}

// navWatch captures the terminal status and headers of the navigation as seen
// on the wire. Needed for downloads, where goto never yields a response.
type navWatch struct {
	mu      sync.Mutex
	status  int
	headers map[string]string
}

func (w *navWatch) observe(response playwright.Response) {
	if !response.Request().IsNavigationRequest() {
		return
	}
	headers, _ := response.AllHeaders()
	w.mu.Lock()
	w.status = response.Status()
	w.headers = headers
	w.mu.Unlock()
}

func (w *navWatch) last() (int, map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.headers
}

func (f *Fetcher) fetchOnce(ctx context.Context, req *types.FetchRequest) (*types.FetchResponse, error) {
	contextName := req.EffectiveContext()

	page, err := f.resolvePage(ctx, req, contextName)
	if err != nil {
		return nil, err
	}

	resp, err := f.navigate(ctx, page, req, contextName)
	if err != nil {
		f.closePageAfterFailure(page, req, contextName)
		return nil, err
	}

	if req.IncludePage {
		resp.Page = page
	} else if err := page.Close(); err != nil && !isTargetClosedError(err) {
		f.logger.Warn("Error closing page after fetch",
			zap.String("context", contextName),
			zap.String("url", req.URL),
			zap.Error(err))
	}
	return resp, nil
}

// resolvePage returns the page the fetch runs on: the caller-provided page
// when it is still open, otherwise a fresh page from the request's context.
func (f *Fetcher) resolvePage(
	ctx context.Context, req *types.FetchRequest, contextName string,
) (playwright.Page, error) {
	if req.Page != nil && !req.Page.IsClosed() {
		return req.Page, nil
	}
	if req.Page != nil {
		f.logger.Warn("Provided page already closed, allocating a new one",
			zap.String("context", contextName),
			zap.String("url", req.URL))
		req.Page = nil
	}

	wrapper, err := f.pool.AcquireContext(ctx, contextName, req.ContextSpec)
	if err != nil {
		return nil, err
	}
	return f.pool.NewPage(ctx, wrapper)
}

// closePageAfterFailure disposes of the page a failed fetch ran on, unless
// the caller asked to keep pages alive and can reuse it.
func (f *Fetcher) closePageAfterFailure(page playwright.Page, req *types.FetchRequest, contextName string) {
	if req.IncludePage {
		return
	}
	if err := page.Close(); err != nil && !isTargetClosedError(err) {
		f.logger.Warn("Error closing page after failed fetch",
			zap.String("context", contextName),
			zap.String("url", req.URL),
			zap.Error(err))
		return
	}
	f.stats.Inc(statPageClosedOnError)
}

func (f *Fetcher) navigate(
	ctx context.Context, page playwright.Page, req *types.FetchRequest, contextName string,
) (*types.FetchResponse, error) {
	// caller setup runs before interception so the route handler sees any
	// caller-tuned page state
	if req.InitPage != nil {
		if err := req.InitPage(page, req); err != nil {
			f.logger.Warn("Page init callback failed",
				zap.String("context", contextName),
				zap.String("url", req.URL),
				zap.Error(err))
		}
	}
	f.attachEventHandlers(page, req, contextName)

	// the wire watcher and download recorder live for this fetch only; on a
	// caller-reused page stale handlers would otherwise pile up across fetches
	watch := &navWatch{}
	observe := watch.observe
	page.OnResponse(observe)
	defer page.RemoveListener("response", observe)

	download := newDownloadRecord()
	onDownload := download.handler(f.stats)
	page.OnDownload(onDownload)
	defer page.RemoveListener("download", onDownload)

	icept := newInterceptor(f.opts, f.stats, f.logger, req, contextName)
	if err := icept.arm(page); err != nil {
		return nil, fmt.Errorf("%w: arming interception: %v", ErrNavigation, err)
	}

	opts := req.GotoOptions
	response, gotoErr := page.Goto(req.URL, opts)
	if gotoErr != nil {
		if isDownloadError(gotoErr) {
			return f.resolveDownload(ctx, req, download, watch, gotoErr)
		}
		if ierr := icept.Err(); ierr != nil {
			return nil, fmt.Errorf("%w: %v", ErrRouteContinue, ierr)
		}
		return nil, fmt.Errorf("%w: %v", ErrNavigation, gotoErr)
	}

	if err := f.runPageMethods(page, req, contextName); err != nil {
		return nil, err
	}

	content, err := f.pageContent(page)
	if err != nil {
		return nil, err
	}

	if ierr := icept.Err(); ierr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteContinue, ierr)
	}

	return f.buildResponse(page, req, response, content)
}

// runPageMethods executes the scripted steps in order. Each step is followed
// by a load-state wait so a step that triggers navigation settles before the
// next one runs.
func (f *Fetcher) runPageMethods(page playwright.Page, req *types.FetchRequest, contextName string) error {
	for _, method := range req.PageMethods {
		if method == nil {
			continue
		}
		if err := f.runPageMethod(page, method, contextName); err != nil {
			return err
		}
		if err := page.WaitForLoadState(); err != nil && !isTargetClosedError(err) {
			return fmt.Errorf("waiting for load state after page method %q: %w", method.Name, err)
		}
	}
	return nil
}

// pageContent reads the rendered document, retrying a bounded number of times
// when the read races an in-flight navigation (e.g. a meta refresh).
func (f *Fetcher) pageContent(page playwright.Page) (string, error) {
	for attempt := 0; ; attempt++ {
		content, err := page.Content()
		if err == nil {
			return content, nil
		}
		if !isContentRaceError(err) || attempt >= f.opts.ContentRetries {
			return "", fmt.Errorf("%w: %v", ErrContentRetrieve, err)
		}
		if werr := page.WaitForLoadState(); werr != nil {
			return "", fmt.Errorf("%w: %v", ErrContentRetrieve, werr)
		}
	}
}

// buildResponse reconciles driver state into the engine response.
func (f *Fetcher) buildResponse(
	page playwright.Page, req *types.FetchRequest,
	response playwright.Response, content string,
) (*types.FetchResponse, error) {
	resp := &types.FetchResponse{
		RequestID: req.RequestID,
		URL:       page.URL(),
	}

	if response == nil {
		// same-document navigations and about: URLs yield no response object
		f.logger.Warn("Navigation returned no response, synthesizing one",
			zap.String("url", req.URL))
		resp.Status = http.StatusOK
		resp.Headers = http.Header{}
	} else {
		resp.Status = response.Status()
		raw, err := response.AllHeaders()
		if err != nil {
			return nil, fmt.Errorf("reading response headers: %w", err)
		}
		resp.Headers = headersFromDriver(raw)
		resp.Redirects = redirectHistory(response)

		if addr, err := response.ServerAddr(); err == nil && addr != nil {
			resp.IPAddress = addr.IpAddress
			resp.ServerPort = addr.Port
		}
		if details, err := response.SecurityDetails(); err == nil {
			resp.SecurityDetails = details
		}
	}

	resp.Body, resp.Encoding = encodeBody(resp.Headers, content)
	return resp, nil
}

// redirectHistory walks the redirect chain backwards from the terminal
// response and returns it in chronological order.
func redirectHistory(response playwright.Response) types.RedirectInfo {
	var urls []string
	var reasons []*int
	for request := response.Request().RedirectedFrom(); request != nil; request = request.RedirectedFrom() {
		urls = append(urls, request.URL())
		var status *int
		if resp, err := request.Response(); err == nil && resp != nil {
			s := resp.Status()
			status = &s
		}
		reasons = append(reasons, status)
	}

	for i, j := 0, len(urls)-1; i < j; i, j = i+1, j-1 {
		urls[i], urls[j] = urls[j], urls[i]
		reasons[i], reasons[j] = reasons[j], reasons[i]
	}

	return types.RedirectInfo{Count: len(urls), URLs: urls, Reasons: reasons}
}

// resolveDownload handles a navigation that the browser turned into a file
// download. The goto error doubles as the download signal; the navigation's
// wire status disambiguates a real download from a plain aborted navigation.
func (f *Fetcher) resolveDownload(
	ctx context.Context, req *types.FetchRequest,
	download *downloadRecord, watch *navWatch, gotoErr error,
) (*types.FetchResponse, error) {
	wait := f.downloadWait()

	select {
	case <-download.started:
	case <-time.After(wait):
		// no download ever began, so the goto failure was genuine
		return nil, fmt.Errorf("%w: %v", ErrNavigation, gotoErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	status, headers := watch.last()
	if status == http.StatusNoContent {
		return nil, fmt.Errorf("%w: %v", ErrNavigation, gotoErr)
	}

	select {
	case <-download.ready:
	case <-time.After(wait):
		return nil, ErrDownloadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	url, filename, body, err := download.result()
	if err != nil {
		return nil, err
	}
	if !download.received() {
		return nil, ErrEmptyDownload
	}

	if status == 0 {
		status = http.StatusOK
	}
	respHeaders := http.Header{}
	if headers != nil {
		respHeaders = headersFromDriver(headers)
	}

	f.logger.Debug("Navigation resolved as download",
		zap.String("request_id", req.RequestID),
		zap.String("url", url),
		zap.String("filename", filename),
		zap.Int("size", len(body)))

	return &types.FetchResponse{
		RequestID:         req.RequestID,
		URL:               url,
		Status:            status,
		Headers:           respHeaders,
		Body:              body,
		Redirects:         types.RedirectInfo{},
		FromDownload:      true,
		SuggestedFilename: filename,
	}, nil
}

// downloadWait resolves the bound on download start/completion waits.
func (f *Fetcher) downloadWait() time.Duration {
	if f.opts.NavigationTimeout != nil && *f.opts.NavigationTimeout > 0 {
		return time.Duration(*f.opts.NavigationTimeout * float64(time.Millisecond))
	}
	return defaultDownloadWait
}
