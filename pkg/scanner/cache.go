package scanner

import (
	"sync"
	"time"
)

// cacheEntry holds a cached report with its expiration time.
type cacheEntry struct {
	report     *Report
	expiresAt  time.Time
	insertedAt time.Time
}

// ReportCache is a thread-safe in-memory cache of scan reports keyed by
// content hash. Scanning is deterministic, so a cached report for a hash
// is always as good as a fresh scan; the TTL only bounds memory spent on
// content nobody asks about anymore. When the cache reaches maxSize, the
// oldest entry (by insertion time) is evicted. Expired entries are lazily
// evicted on Get.
type ReportCache struct {
	mu      sync.Mutex
	items   map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
}

// NewReportCache creates a report cache with the given maximum size and
// TTL. maxSize must be >= 1; ttl must be > 0.
func NewReportCache(maxSize int, ttl time.Duration) *ReportCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ReportCache{
		items:   make(map[string]*cacheEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached report by content hash. Returns (nil, false) if
// the hash is missing or expired.
func (c *ReportCache) Get(contentHash string) (*Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[contentHash]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, contentHash)
		return nil, false
	}
	return e.report, true
}

// Set stores a report. If the cache is at capacity, the oldest entry is
// evicted before inserting.
func (c *ReportCache) Set(contentHash string, report *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if _, ok := c.items[contentHash]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[contentHash] = &cacheEntry{
		report:     report,
		expiresAt:  now.Add(c.ttl),
		insertedAt: now,
	}
}

// Len returns the number of cached reports, including not-yet-evicted
// expired ones.
func (c *ReportCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the earliest insertion time.
// Caller must hold the lock.
func (c *ReportCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, e := range c.items {
		if oldestKey == "" || e.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.insertedAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
