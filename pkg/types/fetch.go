package types

import (
	"net/http"
	"time"

	"github.com/playwright-community/playwright-go"
)

// DefaultContextName is used for requests that do not name a browsing context.
const DefaultContextName = "default"

// ContextSpec describes how a named browsing context is created.
// A non-empty UserDataDir marks the context as persistent: it is backed by an
// on-disk profile and owns its own browser process instead of being carved out
// of the shared browser.
type ContextSpec struct {
	UserDataDir       string
	NewContextOptions playwright.BrowserNewContextOptions
	PersistentOptions playwright.BrowserTypeLaunchPersistentContextOptions
}

// Persistent reports whether the spec describes a disk-backed context.
func (s *ContextSpec) Persistent() bool {
	return s != nil && s.UserDataDir != ""
}

// PageMethod represents one scripted step executed against the live page
// after navigation. Either Name refers to an operation from the enumerated
// dispatch table (e.g. "click", "evaluate", "wait_for_selector") with Args
// holding its positional arguments, or Fn is a callable invoked with the page
// directly. Result is filled in after execution.
type PageMethod struct {
	Name   string
	Args   []interface{}
	Fn     func(page playwright.Page) (interface{}, error)
	Result interface{}
}

// NewPageMethod builds a named scripted step.
func NewPageMethod(name string, args ...interface{}) *PageMethod {
	return &PageMethod{Name: name, Args: args}
}

// FetchRequest is the caller side of the bridge: a crawling-engine request to
// be serviced by a browser navigation instead of a plain HTTP fetch.
type FetchRequest struct {
	RequestID string      `json:"request_id"`
	URL       string      `json:"url"`
	Method    string      `json:"method"`
	Headers   http.Header `json:"headers"`

	// Body is sent with the primary navigation request. BodyEncoding names
	// the charset Body is encoded in; empty means UTF-8.
	Body         []byte `json:"body,omitempty"`
	BodyEncoding string `json:"body_encoding,omitempty"`

	// ContextName selects the browsing context; contexts are created lazily
	// on first reference using ContextSpec (may be nil for defaults).
	ContextName string       `json:"context_name,omitempty"`
	ContextSpec *ContextSpec `json:"-"`

	// IncludePage hands the live page back to the caller on completion; the
	// caller then owns closing it. Page may carry a live page from a previous
	// fetch to be reused instead of allocating a new one.
	IncludePage bool            `json:"include_page,omitempty"`
	Page        playwright.Page `json:"-"`

	PageMethods []*PageMethod `json:"-"`

	// EventHandlers maps page event names to handlers. A value is either a
	// callback with the signature the event expects, or a string naming a
	// method on HandlerReceiver (resolved by reflection, skipped with a
	// warning when missing).
	EventHandlers   map[string]interface{} `json:"-"`
	HandlerReceiver interface{}            `json:"-"`

	// InitPage runs once right after page creation, before interception is
	// armed. Errors are logged and do not abort the request.
	InitPage func(page playwright.Page, req *FetchRequest) error `json:"-"`

	// GotoOptions are merged into the navigation call; the URL always comes
	// from the request itself.
	GotoOptions playwright.PageGotoOptions `json:"-"`
}

// EffectiveMethod returns the request method, defaulting to GET.
func (r *FetchRequest) EffectiveMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// EffectiveContext returns the context name, defaulting to "default".
func (r *FetchRequest) EffectiveContext() string {
	if r.ContextName == "" {
		return DefaultContextName
	}
	return r.ContextName
}

// RedirectInfo is the reconstructed redirect history of a navigation, in
// chronological order. Reasons holds the status of each intermediate
// response, nil where the driver could not provide one.
type RedirectInfo struct {
	Count   int      `json:"count"`
	URLs    []string `json:"urls,omitempty"`
	Reasons []*int   `json:"reasons,omitempty"`
}

// FetchResponse is the reconciled response handed back to the crawling
// engine. Exactly one of a page-content body or a download body is carried.
type FetchResponse struct {
	RequestID string      `json:"request_id"`
	URL       string      `json:"url"`
	Status    int         `json:"status"`
	Headers   http.Header `json:"headers"`
	Body      []byte      `json:"body"`
	Encoding  string      `json:"encoding"`

	Redirects RedirectInfo `json:"redirects"`

	IPAddress       string                                    `json:"ip_address,omitempty"`
	ServerPort      int                                       `json:"server_port,omitempty"`
	SecurityDetails *playwright.ResponseSecurityDetailsResult `json:"security_details,omitempty"`

	// FromDownload marks a response built from an in-browser file download;
	// SuggestedFilename is the name the browser offered for it.
	FromDownload      bool   `json:"from_download,omitempty"`
	SuggestedFilename string `json:"suggested_filename,omitempty"`

	Latency time.Duration `json:"latency_ns"`

	// Page is populated when the request asked to keep the page alive.
	Page playwright.Page `json:"-"`
}
