package fetcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitClosed(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed in time")
	}
}

func TestDownloadRecordCollectsBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf-bytes"), 0o644))

	record := newDownloadRecord()
	stats := NewStats()

	handler := record.handler(stats)
	handler(&fakeDownload{
		url:      "https://example.com/report.pdf",
		filename: "report.pdf",
		path:     path,
	})

	waitClosed(t, record.started)
	waitClosed(t, record.ready)

	url, filename, body, err := record.result()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/report.pdf", url)
	assert.Equal(t, "report.pdf", filename)
	assert.Equal(t, []byte("pdf-bytes"), body)
	assert.True(t, record.received())
	assert.Equal(t, int64(1), stats.Get(statDownloadCount))
}

func TestDownloadRecordDeferredFailure(t *testing.T) {
	record := newDownloadRecord()

	handler := record.handler(NewStats())
	handler(&fakeDownload{
		url:     "https://example.com/file.zip",
		pathErr: errors.New("canceled"),
	})

	waitClosed(t, record.ready)

	_, _, body, err := record.result()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Empty(t, body)
	// a deferred error still counts as a received download
	assert.True(t, record.received())
}

func TestDownloadRecordBrowserReportedFailure(t *testing.T) {
	record := newDownloadRecord()

	handler := record.handler(NewStats())
	handler(&fakeDownload{
		url:     "https://example.com/file.zip",
		path:    "/nonexistent",
		failure: errors.New("download failed - no space"),
	})

	waitClosed(t, record.ready)

	_, _, _, err := record.result()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "no space")
}

func TestDownloadRecordOnlyFirstDownloadCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "first.bin")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	record := newDownloadRecord()
	stats := NewStats()
	handler := record.handler(stats)

	handler(&fakeDownload{url: "https://example.com/first.bin", filename: "first.bin", path: path})
	handler(&fakeDownload{url: "https://example.com/second.bin", filename: "second.bin", path: "/nonexistent"})

	waitClosed(t, record.ready)

	url, _, body, err := record.result()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/first.bin", url)
	assert.Equal(t, []byte("first"), body)
	assert.Equal(t, int64(1), stats.Get(statDownloadCount))
}

func TestDownloadRecordNotReceivedWhenEmpty(t *testing.T) {
	record := newDownloadRecord()
	assert.False(t, record.received())
}
