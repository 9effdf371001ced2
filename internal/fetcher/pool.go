package fetcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/crawlkit/browserfetch/pkg/types"
)

// ContextWrapper owns one browsing context and the semaphore bounding the
// pages concurrently open inside it. Persistent wrappers are backed by an
// on-disk profile and own their browser process; ephemeral wrappers are
// carved out of the shared browser.
type ContextWrapper struct {
	name       string
	context    playwright.BrowserContext
	pages      *semaphore.Weighted
	persistent bool

	// released guards the global context-ceiling slot: the close listener
	// and the disconnect flush may both fire for the same wrapper.
	released atomic.Bool
}

// Name returns the registry name of the wrapper.
func (w *ContextWrapper) Name() string { return w.name }

// Persistent reports whether the wrapper owns a disk-backed context.
func (w *ContextWrapper) Persistent() bool { return w.persistent }

// ContextPool owns the single browser/connection handle and the named
// registry of context wrappers. Contexts are created lazily on first
// reference, bounded by the global context ceiling when one is configured.
type ContextPool struct {
	opts   *Options
	logger *zap.Logger
	stats  *Stats

	driverMu sync.Mutex
	pw       *playwright.Playwright
	browsers browserDriver

	// launchMu makes the shared-browser launch idempotent under concurrent
	// first-callers.
	launchMu sync.Mutex
	browser  playwright.Browser

	mu          sync.Mutex
	wrappers    map[string]*ContextWrapper
	createLocks map[string]*sync.Mutex

	ctxSem *semaphore.Weighted // nil when MaxContexts is unset

	closed  atomic.Bool
	crashed atomic.Bool // browser lost and relaunch disabled
}

// browserDriver is the slice of the playwright driver the pool consumes.
// Narrowed for tests.
type browserDriver interface {
	Name() string
	Launch(options ...playwright.BrowserTypeLaunchOptions) (playwright.Browser, error)
	Connect(wsEndpoint string, options ...playwright.BrowserTypeConnectOptions) (playwright.Browser, error)
	ConnectOverCDP(endpointURL string, options ...playwright.BrowserTypeConnectOverCDPOptions) (playwright.Browser, error)
	LaunchPersistentContext(userDataDir string, options ...playwright.BrowserTypeLaunchPersistentContextOptions) (playwright.BrowserContext, error)
}

// NewContextPool builds an unstarted pool.
func NewContextPool(opts *Options, stats *Stats, logger *zap.Logger) *ContextPool {
	pool := &ContextPool{
		opts:        opts,
		logger:      logger,
		stats:       stats,
		wrappers:    make(map[string]*ContextWrapper),
		createLocks: make(map[string]*sync.Mutex),
	}
	if opts.MaxContexts > 0 {
		pool.ctxSem = semaphore.NewWeighted(int64(opts.MaxContexts))
	}
	return pool
}

// Start runs the playwright driver, resolves the browser type and launches
// the configured startup contexts concurrently.
func (p *ContextPool) Start(ctx context.Context) error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("%w: starting driver: %v", ErrLaunchFailed, err)
	}

	p.driverMu.Lock()
	p.pw = pw
	switch p.opts.BrowserKind {
	case BrowserFirefox:
		p.browsers = pw.Firefox
	case BrowserWebKit:
		p.browsers = pw.WebKit
	default:
		p.browsers = pw.Chromium
	}
	p.driverMu.Unlock()

	if len(p.opts.StartupContexts) == 0 {
		return nil
	}

	p.logger.Info("Launching startup contexts",
		zap.Int("count", len(p.opts.StartupContexts)))

	g, gctx := errgroup.WithContext(ctx)
	for name, spec := range p.opts.StartupContexts {
		g.Go(func() error {
			_, err := p.AcquireContext(gctx, name, spec)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("launching startup contexts: %w", err)
	}

	p.logger.Info("Startup contexts launched")
	return nil
}

// AcquireContext resolves the wrapper for name, creating the context on
// first reference. Creation for the same not-yet-existing name is serialized
// by a per-name lock; distinct names proceed concurrently. Blocks while the
// global context ceiling is exhausted.
func (p *ContextPool) AcquireContext(
	ctx context.Context, name string, spec *types.ContextSpec,
) (*ContextWrapper, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	if w := p.wrappers[name]; w != nil {
		p.mu.Unlock()
		return w, nil
	}
	lock := p.createLocks[name]
	if lock == nil {
		lock = &sync.Mutex{}
		p.createLocks[name] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// another caller may have finished creation while we waited
	p.mu.Lock()
	w := p.wrappers[name]
	p.mu.Unlock()
	if w != nil {
		return w, nil
	}

	return p.createContext(ctx, name, spec)
}

// createContext builds the browsing context for name, launching the shared
// browser first when needed. Callers hold the per-name creation lock.
func (p *ContextPool) createContext(
	ctx context.Context, name string, spec *types.ContextSpec,
) (*ContextWrapper, error) {
	if p.ctxSem != nil {
		if err := p.ctxSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: waiting for a ceiling slot: %v", ErrContextLimit, err)
		}
	}

	wrapper, err := p.buildContext(ctx, name, spec)
	if err != nil {
		if p.ctxSem != nil {
			p.ctxSem.Release(1)
		}
		return nil, err
	}

	p.mu.Lock()
	p.wrappers[name] = wrapper
	open := int64(len(p.wrappers))
	p.mu.Unlock()

	p.stats.Inc(statContextCount)
	if wrapper.persistent {
		p.stats.Inc(statContextPersistent)
	} else {
		p.stats.Inc(statContextEphemeral)
	}
	p.stats.SetMax(statContextMaxConcurr, open)

	p.logger.Debug("Browser context started",
		zap.String("context", name),
		zap.Bool("persistent", wrapper.persistent))

	return wrapper, nil
}

func (p *ContextPool) buildContext(
	ctx context.Context, name string, spec *types.ContextSpec,
) (*ContextWrapper, error) {
	var (
		browserCtx playwright.BrowserContext
		err        error
	)

	persistent := spec.Persistent()
	if persistent {
		// persistent contexts own their browser process and never touch the
		// shared browser
		var popts playwright.BrowserTypeLaunchPersistentContextOptions
		if spec != nil {
			popts = spec.PersistentOptions
		}
		browserCtx, err = p.browsers.LaunchPersistentContext(spec.UserDataDir, popts)
		if err != nil {
			return nil, fmt.Errorf("%w: persistent context %q: %v", ErrLaunchFailed, name, err)
		}
	} else {
		if err := p.maybeLaunchBrowser(ctx); err != nil {
			return nil, err
		}
		var copts playwright.BrowserNewContextOptions
		if spec != nil {
			copts = spec.NewContextOptions
		}
		browserCtx, err = p.browser.NewContext(copts)
		if err != nil {
			return nil, fmt.Errorf("creating context %q: %w", name, err)
		}
	}

	wrapper := &ContextWrapper{
		name:       name,
		context:    browserCtx,
		pages:      semaphore.NewWeighted(int64(p.opts.pagesPerContext())),
		persistent: persistent,
	}

	browserCtx.OnClose(func(playwright.BrowserContext) {
		p.contextClosed(wrapper)
	})

	if p.opts.NavigationTimeout != nil {
		browserCtx.SetDefaultNavigationTimeout(*p.opts.NavigationTimeout)
	}

	return wrapper, nil
}

// maybeLaunchBrowser launches or attaches the shared browser exactly once;
// concurrent first-callers serialize on the launch lock. After a disconnect
// the next caller relaunches transparently unless relaunching is disabled.
func (p *ContextPool) maybeLaunchBrowser(ctx context.Context) error {
	p.launchMu.Lock()
	defer p.launchMu.Unlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}
	if p.crashed.Load() {
		return fmt.Errorf("%w: relaunch disabled", ErrBrowserGone)
	}
	if p.browser != nil && p.browser.IsConnected() {
		return nil
	}

	var (
		browser playwright.Browser
		err     error
	)
	switch {
	case p.opts.CDPAddress != "":
		p.logger.Info("Attaching to browser over CDP",
			zap.String("browser", p.opts.BrowserKind),
			zap.String("address", p.opts.CDPAddress))
		browser, err = p.browsers.ConnectOverCDP(p.opts.CDPAddress, p.opts.CDPOptions)
	case p.opts.WSEndpoint != "":
		p.logger.Info("Attaching to browser over connect URL",
			zap.String("browser", p.opts.BrowserKind),
			zap.String("endpoint", p.opts.WSEndpoint))
		browser, err = p.browsers.Connect(p.opts.WSEndpoint, p.opts.WSOptions)
	default:
		p.logger.Info("Launching browser", zap.String("browser", p.opts.BrowserKind))
		browser, err = p.browsers.Launch(p.opts.LaunchOptions)
	}
	if err != nil {
		// leave the pool unlaunched so the next caller can retry
		if p.opts.remote() {
			return fmt.Errorf("%w: attaching to remote browser: %v", ErrLaunchFailed, err)
		}
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	browser.OnDisconnected(p.browserDisconnected)
	p.browser = browser
	p.logger.Info("Browser ready", zap.String("browser", p.opts.BrowserKind))
	return nil
}

// browserDisconnected reacts to an external crash or close of the shared
// browser: the whole registry is flushed and ceiling slots are returned.
func (p *ContextPool) browserDisconnected(gone playwright.Browser) {
	p.mu.Lock()
	dropped := make([]*ContextWrapper, 0, len(p.wrappers))
	for name, w := range p.wrappers {
		if !w.persistent {
			dropped = append(dropped, w)
			delete(p.wrappers, name)
		}
	}
	p.mu.Unlock()

	for _, w := range dropped {
		if !w.released.Swap(true) && p.ctxSem != nil {
			p.ctxSem.Release(1)
		}
	}

	p.launchMu.Lock()
	if p.browser == gone {
		p.browser = nil
	}
	p.launchMu.Unlock()

	if !p.opts.RelaunchOnCrash {
		p.crashed.Store(true)
	}

	p.logger.Warn("Browser disconnected, context registry flushed",
		zap.Int("dropped_contexts", len(dropped)),
		zap.Bool("relaunch_on_next_use", p.opts.RelaunchOnCrash))
}

// contextClosed deregisters a wrapper after the underlying context reported
// closure and releases its global-ceiling slot exactly once.
func (p *ContextPool) contextClosed(wrapper *ContextWrapper) {
	// createLocks entries are never removed: a waiter may already hold a
	// pointer to the per-name lock, and minting a fresh one for the same name
	// would let two creations race.
	p.mu.Lock()
	if p.wrappers[wrapper.name] == wrapper {
		delete(p.wrappers, wrapper.name)
	}
	p.mu.Unlock()

	if !wrapper.released.Swap(true) && p.ctxSem != nil {
		p.ctxSem.Release(1)
	}

	p.logger.Debug("Browser context closed",
		zap.String("context", wrapper.name),
		zap.Bool("persistent", wrapper.persistent))
}

// Counts returns the number of live contexts and pages, for health reporting.
func (p *ContextPool) Counts() (contexts, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.wrappers {
		pages += len(w.context.Pages())
	}
	return len(p.wrappers), pages
}

// totalPages sums open pages across all contexts.
func (p *ContextPool) totalPages() int {
	_, pages := p.Counts()
	return pages
}

// Close tears down every context, the shared browser and the driver.
func (p *ContextPool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	wrappers := make([]*ContextWrapper, 0, len(p.wrappers))
	for _, w := range p.wrappers {
		wrappers = append(wrappers, w)
	}
	p.mu.Unlock()

	var errs []error
	for _, w := range wrappers {
		if err := w.context.Close(); err != nil {
			p.logger.Error("Error closing context",
				zap.String("context", w.name),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	p.launchMu.Lock()
	browser := p.browser
	p.browser = nil
	p.launchMu.Unlock()
	if browser != nil {
		p.logger.Info("Closing browser")
		if err := browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.driverMu.Lock()
	pw := p.pw
	p.pw = nil
	p.driverMu.Unlock()
	if pw != nil {
		if err := pw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("encountered %d errors during pool shutdown", len(errs))
	}
	return nil
}
