// ABOUTME: TTL cache for suppressing duplicate analysis notifications
// ABOUTME: Size-bounded with O(1) oldest-first eviction

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	at   time.Time
	elem *list.Element
}

// Cache tracks recently seen notification keys so the same exchange is not
// analyzed twice. Entries expire after the TTL; when the cache is full the
// oldest entry is evicted first.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]*entry
	order  *list.List // keys in insertion order, oldest at front
	ttl    time.Duration
	max    int
	done   chan struct{}
	closed bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine sweeps expired entries; call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:  make(map[string]*entry),
		order: list.New(),
		ttl:   ttl,
		max:   maxSize,
		done:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// CheckAndMark atomically checks whether the key was seen recently and marks
// it if not. Returns true for a duplicate, false for a fresh key that is now
// marked. The check and mark are one critical section so two concurrent
// callers cannot both see "fresh".
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.at) < c.ttl {
		return true
	}

	c.markLocked(key)
	return false
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Close stops the background sweeper. Safe to call once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Cache) markLocked(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.at = now
		c.order.MoveToBack(e.elem)
		return
	}

	if len(c.seen) >= c.max {
		if front := c.order.Front(); front != nil {
			old, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, old)
		}
	}

	c.seen[key] = &entry{at: now, elem: c.order.PushBack(key)}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.ttl)
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.seen[key]
		if e == nil || e.at.After(cutoff) {
			break
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}
