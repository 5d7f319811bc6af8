package playback

import (
	"container/list"
	"sync"
	"time"
)

// urlCache maps cache keys to synthesised audio URLs with TTL expiry and an
// LRU capacity bound. The original design never evicted; both bounds exist
// so long sessions cannot grow the cache without limit.
type urlCache struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

type cacheEntry struct {
	key string
	url string
	at  time.Time
}

// newURLCache creates a cache holding at most max entries, each valid for
// ttl. A zero ttl disables expiry; max must be positive.
func newURLCache(max int, ttl time.Duration) *urlCache {
	return &urlCache{
		max:   max,
		ttl:   ttl,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

// get returns the cached URL for key if present and fresh.
func (c *urlCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, ok := c.items[key]
	if !ok {
		return "", false
	}
	ent := ele.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(ent.at) > c.ttl {
		c.ll.Remove(ele)
		delete(c.items, key)
		return "", false
	}
	c.ll.MoveToFront(ele)
	return ent.url, true
}

// put stores url under key, refreshing its timestamp and evicting the least
// recently used entry when over capacity.
func (c *urlCache) put(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[key]; ok {
		ent := ele.Value.(*cacheEntry)
		ent.url = url
		ent.at = c.now()
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(&cacheEntry{key: key, url: url, at: c.now()})
	c.items[key] = ele
	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// len reports the number of live entries, expired ones included.
func (c *urlCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
