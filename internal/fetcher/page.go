package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// NewPage creates a page inside the wrapper's context, blocking on the
// per-context page semaphore. The semaphore slot is released exactly once,
// whether the pipeline closes the page explicitly or the browser reports a
// close/crash externally.
func (p *ContextPool) NewPage(ctx context.Context, wrapper *ContextWrapper) (playwright.Page, error) {
	if err := wrapper.pages.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for page slot in context %q: %w", wrapper.name, err)
	}

	page, err := wrapper.context.NewPage()
	if err != nil {
		wrapper.pages.Release(1)
		return nil, fmt.Errorf("%w: context %q: %v", ErrPageAllocated, wrapper.name, err)
	}

	var releaseOnce sync.Once
	release := func(playwright.Page) {
		releaseOnce.Do(func() {
			wrapper.pages.Release(1)
			p.stats.Inc(statPageClosed)
		})
	}
	page.OnClose(release)
	page.OnCrash(release)

	if p.opts.NavigationTimeout != nil {
		page.SetDefaultNavigationTimeout(*p.opts.NavigationTimeout)
	}

	p.attachDiagnostics(page, wrapper.name)

	p.stats.Inc(statPageCount)
	total := int64(p.totalPages())
	p.stats.SetMax(statPageMaxConcurrent, total)

	p.logger.Debug("New page created",
		zap.String("context", wrapper.name),
		zap.Int("context_page_count", len(wrapper.context.Pages())),
		zap.Int64("total_page_count", total))

	return page, nil
}

// attachDiagnostics registers the request/response debug loggers and the
// per-resource-type counters on a fresh page.
func (p *ContextPool) attachDiagnostics(page playwright.Page, contextName string) {
	page.OnRequest(func(request playwright.Request) {
		p.stats.Inc(statRequestCount)
		p.stats.Inc(statRequestCount + "/resource_type/" + request.ResourceType())
		p.stats.Inc(statRequestCount + "/method/" + strings.ToUpper(request.Method()))
		if request.IsNavigationRequest() {
			p.stats.Inc(statRequestNavigation)
		}

		if ce := p.logger.Check(zap.DebugLevel, "Request"); ce != nil {
			referer, _ := request.HeaderValue("referer")
			ce.Write(
				zap.String("context", contextName),
				zap.String("method", strings.ToUpper(request.Method())),
				zap.String("url", request.URL()),
				zap.String("resource_type", request.ResourceType()),
				zap.String("referrer", referer),
			)
		}
	})

	page.OnResponse(func(response playwright.Response) {
		request := response.Request()
		p.stats.Inc(statResponseCount)
		p.stats.Inc(statResponseCount + "/resource_type/" + request.ResourceType())
		p.stats.Inc(statResponseCount + "/method/" + strings.ToUpper(request.Method()))

		if ce := p.logger.Check(zap.DebugLevel, "Response"); ce != nil {
			fields := []zap.Field{
				zap.String("context", contextName),
				zap.Int("status", response.Status()),
				zap.String("url", response.URL()),
			}
			if response.Status() >= 300 && response.Status() < 400 {
				location, _ := response.HeaderValue("location")
				fields = append(fields, zap.String("location", location))
			}
			ce.Write(fields...)
		}
	})
}
