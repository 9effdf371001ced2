package fetcher

import (
	"github.com/playwright-community/playwright-go"
)

// The fakes embed the driver interfaces and override only what each test
// exercises; calling anything else panics, which keeps the tests honest about
// the driver surface they depend on.

type fakeRequest struct {
	playwright.Request
	url            string
	method         string
	nav            bool
	headers        map[string]string
	resourceType   string
	redirectedFrom playwright.Request
	response       playwright.Response
}

func (r *fakeRequest) URL() string                        { return r.url }
func (r *fakeRequest) Method() string                     { return r.method }
func (r *fakeRequest) IsNavigationRequest() bool          { return r.nav }
func (r *fakeRequest) ResourceType() string               { return r.resourceType }
func (r *fakeRequest) RedirectedFrom() playwright.Request { return r.redirectedFrom }

func (r *fakeRequest) AllHeaders() (map[string]string, error) {
	headers := make(map[string]string, len(r.headers))
	for name, value := range r.headers {
		headers[name] = value
	}
	return headers, nil
}

func (r *fakeRequest) Response() (playwright.Response, error) {
	return r.response, nil
}

type fakeResponse struct {
	playwright.Response
	status     int
	url        string
	headers    map[string]string
	request    playwright.Request
	serverAddr *playwright.ResponseServerAddrResult
	security   *playwright.ResponseSecurityDetailsResult
}

func (r *fakeResponse) Status() int                 { return r.status }
func (r *fakeResponse) URL() string                 { return r.url }
func (r *fakeResponse) Request() playwright.Request { return r.request }

func (r *fakeResponse) AllHeaders() (map[string]string, error) {
	return r.headers, nil
}

func (r *fakeResponse) ServerAddr() (*playwright.ResponseServerAddrResult, error) {
	return r.serverAddr, nil
}

func (r *fakeResponse) SecurityDetails() (*playwright.ResponseSecurityDetailsResult, error) {
	return r.security, nil
}

type fakeRoute struct {
	playwright.Route
	request     playwright.Request
	continued   bool
	aborted     bool
	continueErr error
	opts        playwright.RouteContinueOptions
}

func (r *fakeRoute) Request() playwright.Request { return r.request }

func (r *fakeRoute) Continue(options ...playwright.RouteContinueOptions) error {
	r.continued = true
	if len(options) > 0 {
		r.opts = options[0]
	}
	return r.continueErr
}

func (r *fakeRoute) Abort(errorCode ...string) error {
	r.aborted = true
	return nil
}

type fakeDownload struct {
	playwright.Download
	url      string
	filename string
	path     string
	pathErr  error
	failure  error
}

func (d *fakeDownload) URL() string               { return d.url }
func (d *fakeDownload) SuggestedFilename() string { return d.filename }
func (d *fakeDownload) Failure() error            { return d.failure }

func (d *fakeDownload) Path() (string, error) {
	return d.path, d.pathErr
}

type fakePage struct {
	playwright.Page
	url              string
	title            string
	content          string
	evaluated        []string
	onRequest        []func(playwright.Request)
	onResponse       []func(playwright.Response)
	onDownload       []func(playwright.Download)
	removedListeners []string
	routes           []func(playwright.Route)
	unrouted         int
	gotoResponse     playwright.Response
	gotoErr          error
}

func (p *fakePage) URL() string              { return p.url }
func (p *fakePage) Title() (string, error)   { return p.title, nil }
func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	p.evaluated = append(p.evaluated, expression)
	return "evaluated", nil
}

func (p *fakePage) WaitForTimeout(timeout float64) {}

func (p *fakePage) Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error) {
	return p.gotoResponse, p.gotoErr
}

func (p *fakePage) OnRequest(fn func(playwright.Request)) {
	p.onRequest = append(p.onRequest, fn)
}

func (p *fakePage) OnResponse(fn func(playwright.Response)) {
	p.onResponse = append(p.onResponse, fn)
}

func (p *fakePage) OnDownload(fn func(playwright.Download)) {
	p.onDownload = append(p.onDownload, fn)
}

func (p *fakePage) RemoveListener(name string, handler interface{}) {
	p.removedListeners = append(p.removedListeners, name)
}

func (p *fakePage) Route(url interface{}, handler func(playwright.Route), times ...int) error {
	p.routes = append(p.routes, handler)
	return nil
}

func (p *fakePage) Unroute(url interface{}, handlers ...func(playwright.Route)) error {
	p.unrouted++
	return nil
}

type fakeBrowserContext struct {
	playwright.BrowserContext
	pages  []playwright.Page
	closed bool
}

func (c *fakeBrowserContext) Pages() []playwright.Page { return c.pages }

func (c *fakeBrowserContext) Close(options ...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return nil
}

func (c *fakeBrowserContext) OnClose(fn func(playwright.BrowserContext)) {}

func (c *fakeBrowserContext) SetDefaultNavigationTimeout(timeout float64) {}

type fakeBrowserDriver struct {
	launchErr  error
	connectErr error
}

func (d *fakeBrowserDriver) Name() string { return "chromium" }

func (d *fakeBrowserDriver) Launch(options ...playwright.BrowserTypeLaunchOptions) (playwright.Browser, error) {
	return nil, d.launchErr
}

func (d *fakeBrowserDriver) Connect(wsEndpoint string, options ...playwright.BrowserTypeConnectOptions) (playwright.Browser, error) {
	return nil, d.connectErr
}

func (d *fakeBrowserDriver) ConnectOverCDP(endpointURL string, options ...playwright.BrowserTypeConnectOverCDPOptions) (playwright.Browser, error) {
	return nil, d.connectErr
}

func (d *fakeBrowserDriver) LaunchPersistentContext(userDataDir string, options ...playwright.BrowserTypeLaunchPersistentContextOptions) (playwright.BrowserContext, error) {
	return nil, d.launchErr
}
