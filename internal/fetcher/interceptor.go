package fetcher

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/common/urlutil"
	"github.com/crawlkit/browserfetch/pkg/types"
)

// interceptor rewrites every network request one page issues while servicing
// a single caller request. The one-shot handled flag guarantees at most one
// primary-request override per page load, even when the same URL is requested
// again through a redirect.
type interceptor struct {
	opts        *Options
	logger      *zap.Logger
	stats       *Stats
	req         *types.FetchRequest
	contextName string

	handled atomic.Bool

	// headerMu serializes access to the caller's shared header map: the
	// driver dispatches every route event on its own goroutine, so handlers
	// for overlapping sub-resource requests run concurrently.
	headerMu sync.Mutex

	errMu sync.Mutex
	err   error
}

func newInterceptor(
	opts *Options, stats *Stats, logger *zap.Logger,
	req *types.FetchRequest, contextName string,
) *interceptor {
	return &interceptor{
		opts:        opts,
		logger:      logger,
		stats:       stats,
		req:         req,
		contextName: contextName,
	}
}

// arm installs the handler for every request the page issues. The previous
// handler is uninstalled first so a reused page never carries stale routing.
func (i *interceptor) arm(page playwright.Page) error {
	if err := page.Unroute("**/*"); err != nil {
		return err
	}
	return page.Route("**/*", i.handle)
}

// handle inspects one intercepted request and continues or aborts it.
func (i *interceptor) handle(route playwright.Route) {
	request := route.Request()

	if i.opts.AbortRequest != nil {
		abort, err := i.opts.AbortRequest(request)
		if err != nil {
			i.setErr(err)
			return
		}
		if abort {
			if err := route.Abort(); err != nil && !isTargetClosedError(err) {
				i.setErr(err)
				return
			}
			i.stats.Inc(statRequestAborted)
			i.logger.Debug("Aborted request",
				zap.String("context", i.contextName),
				zap.String("method", strings.ToUpper(request.Method())),
				zap.String("url", request.URL()))
			return
		}
	}

	var overrides playwright.RouteContinueOptions

	finalHeaders, reconciled, err := i.finalHeaders(request)
	if err != nil {
		i.setErr(err)
		return
	}
	if reconciled {
		overrides.Headers = finalHeaders
	}

	originalMethod := strings.ToUpper(request.Method())
	if i.isPrimary(request) && i.handled.CompareAndSwap(false, true) {
		callerMethod := strings.ToUpper(i.req.EffectiveMethod())
		if callerMethod != originalMethod {
			overrides.Method = playwright.String(callerMethod)
		}
		if len(i.req.Body) > 0 {
			body, err := decodeBody(i.req.Body, i.req.BodyEncoding)
			if err != nil {
				i.setErr(err)
				return
			}
			overrides.PostData = body
		}
	}

	if err := route.Continue(overrides); err != nil {
		// continuing against a concurrently torn down target is a benign
		// race with teardown happening elsewhere
		if isTargetClosedError(err) {
			i.logger.Warn("Failed continuing request against closed target",
				zap.String("context", i.contextName),
				zap.String("method", originalMethod),
				zap.String("url", request.URL()),
				zap.Error(err))
			return
		}
		i.setErr(err)
		return
	}

	if overrides.Method != nil {
		i.logger.Debug("Overrode method for primary request",
			zap.String("context", i.contextName),
			zap.String("url", request.URL()),
			zap.String("original_method", originalMethod),
			zap.String("new_method", *overrides.Method))
	}
}

// finalHeaders computes the wire header set for one intercepted request and
// publishes it to the caller's header view, so downstream observers see
// exactly what was sent. Both the policy's read of the caller headers and the
// rewrite hold headerMu. Reports whether a reconciliation policy produced the
// set (and it must be forced onto the wire) or the browser's own headers were
// passed through.
func (i *interceptor) finalHeaders(request playwright.Request) (map[string]string, bool, error) {
	reconcile := i.opts.headersFunc()

	i.headerMu.Lock()
	defer i.headerMu.Unlock()

	var (
		headers map[string]string
		err     error
	)
	if reconcile == nil {
		headers, err = request.AllHeaders()
	} else {
		headers, err = reconcile(i.opts.BrowserKind, request, i.req.Headers)
	}
	if err != nil {
		return nil, false, err
	}

	replaceHeaders(i.req.Headers, headers)
	return headers, reconcile != nil, nil
}

// isPrimary reports whether the intercepted request stands in for the
// caller's original fetch: same URL up to a trailing slash, and itself a
// page navigation.
func (i *interceptor) isPrimary(request playwright.Request) bool {
	return urlutil.EqualIgnoringTrailingSlash(request.URL(), i.req.URL) &&
		request.IsNavigationRequest()
}

// setErr records the first non-benign interception failure so the owner can
// surface it; later failures are dropped.
func (i *interceptor) setErr(err error) {
	i.errMu.Lock()
	if i.err == nil {
		i.err = err
	}
	i.errMu.Unlock()
	i.logger.Error("Request interception failed",
		zap.String("context", i.contextName),
		zap.String("url", i.req.URL),
		zap.Error(err))
}

// Err returns the first recorded interception failure, if any.
func (i *interceptor) Err() error {
	i.errMu.Lock()
	defer i.errMu.Unlock()
	return i.err
}
