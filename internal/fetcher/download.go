package fetcher

import (
	"fmt"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// downloadRecord accumulates the result of an in-browser file download that
// replaced a navigation. The record is "received" once it holds either body
// bytes or a deferred error, which is what disambiguates "this navigation
// became a download" from "no download occurred".
type downloadRecord struct {
	startedOnce sync.Once
	started     chan struct{}
	ready       chan struct{}

	mu       sync.Mutex
	url      string
	filename string
	body     []byte
	err      error
}

func newDownloadRecord() *downloadRecord {
	return &downloadRecord{
		started: make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

// handler returns the page download listener. Only the first download of a
// page load is recorded.
func (d *downloadRecord) handler(stats *Stats) func(playwright.Download) {
	return func(dl playwright.Download) {
		d.startedOnce.Do(func() {
			stats.Inc(statDownloadCount)
			d.mu.Lock()
			d.url = dl.URL()
			d.filename = dl.SuggestedFilename()
			d.mu.Unlock()
			close(d.started)
			go d.collect(dl)
		})
	}
}

// collect reads the download to completion, capturing the body or the
// deferred failure, then signals readiness.
func (d *downloadRecord) collect(dl playwright.Download) {
	defer close(d.ready)

	path, err := dl.Path()
	if err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrDownloadFailed, err))
		return
	}
	if failure := dl.Failure(); failure != nil {
		d.fail(fmt.Errorf("%w: %v", ErrDownloadFailed, failure))
		return
	}
	body, err := os.ReadFile(path)
	if err != nil {
		d.fail(fmt.Errorf("%w: reading %s: %v", ErrDownloadFailed, path, err))
		return
	}

	d.mu.Lock()
	d.body = body
	d.mu.Unlock()
}

func (d *downloadRecord) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
}

// received reports whether the record holds a body or a deferred error.
func (d *downloadRecord) received() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.body) > 0 || d.err != nil
}

func (d *downloadRecord) result() (url, filename string, body []byte, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, d.filename, d.body, d.err
}
