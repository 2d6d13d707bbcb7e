package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"go.uber.org/zap"
)

// Entry is the latest report from one peer.
type Entry struct {
	Peer      string        `json:"peer"`
	Report    models.Report `json:"report"`
	Count     int64         `json:"count"`
	ExpiresAt time.Time     `json:"expires_at"`
	LastUsed  time.Time     `json:"last_used"`
}

// PeerCache is an in-memory ReportStore with per-entry TTL and LRU eviction
// once maxSize peers are tracked.
type PeerCache struct {
	items     map[string]*Entry
	mutex     sync.RWMutex
	maxSize   int
	ttl       time.Duration
	logger    *zap.Logger
	cleanup   *time.Ticker
	stopCh    chan struct{}
	closeOnce sync.Once
	updates   int64
	evictions int64
	now       func() time.Time
}

func NewPeerCache(maxSize int, ttl time.Duration, logger *zap.Logger) *PeerCache {
	if maxSize < 1 {
		maxSize = 1
	}

	cache := &PeerCache{
		items:   make(map[string]*Entry),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger.Named("cache"),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	interval := ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	cache.cleanup = time.NewTicker(interval)
	go cache.cleanupExpired()

	return cache
}

func (c *PeerCache) Record(report models.Report) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	c.updates++

	if item, exists := c.items[report.From]; exists {
		item.Report = report
		item.Count++
		item.ExpiresAt = now.Add(c.ttl)
		item.LastUsed = now
		return
	}

	if len(c.items) >= c.maxSize {
		c.evictLRU()
	}

	c.items[report.From] = &Entry{
		Peer:      report.From,
		Report:    report,
		Count:     1,
		ExpiresAt: now.Add(c.ttl),
		LastUsed:  now,
	}
}

func (c *PeerCache) Get(peer string) (Entry, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.items[peer]
	if !exists {
		return Entry{}, ErrCacheMiss
	}

	now := c.now()
	if now.After(item.ExpiresAt) {
		delete(c.items, peer)
		return Entry{}, ErrCacheMiss
	}

	item.LastUsed = now
	return *item, nil
}

// Snapshot returns the live entries ordered by peer address.
func (c *PeerCache) Snapshot() []Entry {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	entries := make([]Entry, 0, len(c.items))
	for _, item := range c.items {
		if now.After(item.ExpiresAt) {
			continue
		}
		entries = append(entries, *item)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Peer < entries[j].Peer })
	return entries
}

func (c *PeerCache) GetStats() *CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	expired := 0
	for _, item := range c.items {
		if now.After(item.ExpiresAt) {
			expired++
		}
	}

	return &CacheStats{
		Items:     len(c.items),
		Expired:   expired,
		MaxSize:   c.maxSize,
		Updates:   c.updates,
		Evictions: c.evictions,
	}
}

func (c *PeerCache) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		close(c.stopCh)
	})
	return nil
}

func (c *PeerCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.LastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.LastUsed
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.evictions++
		c.logger.Debug("Evicted peer", zap.String("peer", oldestKey))
	}
}

func (c *PeerCache) removeExpired() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *PeerCache) cleanupExpired() {
	for {
		select {
		case <-c.cleanup.C:
			if removed := c.removeExpired(); removed > 0 {
				c.logger.Debug("Expired peers removed", zap.Int("count", removed))
			}
		case <-c.stopCh:
			return
		}
	}
}
