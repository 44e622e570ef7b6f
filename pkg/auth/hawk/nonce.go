package hawk

import (
	"container/list"
	"sync"
	"time"
)

type nonceEntry struct {
	seen    time.Time
	element *list.Element
}

// nonceCache remembers verified request nonces for a bounded time and size.
// Entries are kept in insertion order so eviction of the oldest is O(1).
type nonceCache struct {
	mu      sync.Mutex
	seen    map[string]*nonceEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

func newNonceCache(ttl time.Duration, maxSize int, now func() time.Time) *nonceCache {
	c := &nonceCache{
		seen:    make(map[string]*nonceEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// checkAndMark reports whether key was already seen within the TTL and
// marks it otherwise. Check and mark happen under one lock.
func (c *nonceCache) checkAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok {
		if now.Sub(entry.seen) < c.ttl {
			return true
		}
		entry.seen = now
		c.order.MoveToBack(entry.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	c.seen[key] = &nonceEntry{seen: now, element: c.order.PushBack(key)}
	return false
}

func (c *nonceCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest must be called with mu held.
func (c *nonceCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *nonceCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.done:
			return
		}
	}
}

func (c *nonceCache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(c.seen[key].seen) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// close stops the background cleanup. It is safe to call multiple times.
func (c *nonceCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
