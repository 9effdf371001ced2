package fetcher

import (
	"sort"
	"sync"
)

// Stat keys emitted by the fetcher. Per-dimension keys append
// "/resource_type/<type>" or "/method/<method>" suffixes.
const (
	statRequestCount       = "fetch/request_count"
	statRequestNavigation  = "fetch/request_count/navigation"
	statRequestAborted     = "fetch/request_count/aborted"
	statResponseCount      = "fetch/response_count"
	statPageCount          = "fetch/page_count"
	statPageClosed         = "fetch/page_count/closed"
	statPageMaxConcurrent  = "fetch/page_count/max_concurrent"
	statContextCount       = "fetch/context_count"
	statContextPersistent  = "fetch/context_count/persistent"
	statContextEphemeral   = "fetch/context_count/non_persistent"
	statContextMaxConcurr  = "fetch/context_count/max_concurrent"
	statDownloadCount      = "fetch/download_count"
	statPageClosedOnError  = "fetch/page_count/closed_after_failure"
)

// Stats is a flat counter registry mirroring the crawling engine's stats
// surface. Safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewStats returns an empty counter registry.
func NewStats() *Stats {
	return &Stats{values: make(map[string]int64)}
}

// Inc increments key by one.
func (s *Stats) Inc(key string) {
	s.mu.Lock()
	s.values[key]++
	s.mu.Unlock()
}

// Set stores value under key unconditionally.
func (s *Stats) Set(key string, value int64) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// SetMax stores value under key if it exceeds the current value. Used for
// the running maximum concurrent page/context counts.
func (s *Stats) SetMax(key string, value int64) {
	s.mu.Lock()
	if value > s.values[key] {
		s.values[key] = value
	}
	s.mu.Unlock()
}

// Get returns the current value of key (zero when never touched).
func (s *Stats) Get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns all counter keys in sorted order, for deterministic logging.
func (s *Stats) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}
