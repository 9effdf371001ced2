package fetcher

import (
	"errors"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Fetch errors - returned while servicing a request
var (
	ErrConfiguration   = errors.New("invalid fetcher configuration")
	ErrNavigation      = errors.New("navigation failed")
	ErrDownloadFailed  = errors.New("file download failed")
	ErrDownloadTimeout = errors.New("timed out waiting for download to start")
	ErrEmptyDownload   = errors.New("navigation turned into a download but no file was offered")
	ErrContentRetrieve = errors.New("content retrieval failed")
	ErrRouteContinue   = errors.New("request continuation failed")
)

// Pool errors - returned during context/page management
var (
	ErrPoolClosed    = errors.New("context pool is closed")
	ErrBrowserGone   = errors.New("browser disconnected")
	ErrLaunchFailed  = errors.New("browser launch failed")
	ErrContextLimit  = errors.New("context ceiling reached")
	ErrPageAllocated = errors.New("page allocation failed")
)

// contentRaceMessage is the driver error emitted when a meta refresh races a
// content read. Matched by substring, same as the driver has no typed error.
const contentRaceMessage = "Unable to retrieve content because the page is navigating and changing the content"

// downloadErrorMessages are the driver errors signalling that a navigation
// turned into a file download. Chromium aborts the navigation, firefox and
// webkit report the download directly.
var downloadErrorMessages = []string{
	"net::ERR_ABORTED",
	"Download is starting",
}

// isTargetClosedError reports whether err is the benign race of continuing
// against a page, context or browser that was torn down concurrently.
func isTargetClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return true
	}
	msg := err.Error()
	return strings.HasSuffix(msg, "Browser has been closed") ||
		strings.HasSuffix(msg, "Target page, context or browser has been closed")
}

// isNavigationTimeout reports whether err is the navigation-timeout expiry,
// the primary bounded-wait mechanism callers rely on.
func isNavigationTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, playwright.ErrTimeout) ||
		strings.Contains(err.Error(), "Timeout") && strings.Contains(err.Error(), "exceeded")
}

// isDownloadError reports whether a goto failure indicates the navigation
// became a file download.
func isDownloadError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range downloadErrorMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isContentRaceError reports whether a content read failed because the page
// was navigating while being read.
func isContentRaceError(err error) bool {
	return err != nil && strings.Contains(err.Error(), contentRaceMessage)
}
