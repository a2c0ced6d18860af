// Package cache implements the bounded, dirty-tracking block cache CAFS
// layers every other component on top of. Grounded on the teacher's
// tableReader (direct io.ReaderAt offset reads, a small decoded buffer
// handed to callers) and, for the eviction policy, on the original
// implementation's CacheManager (a fixed-capacity linear-scan table that
// evicts whichever entry currently has no outstanding external reference).
package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kestrelfs/cafs/blockdev"
	"github.com/sirupsen/logrus"
)

// Capacity is the maximum number of blocks the cache holds at once.
const Capacity = 32

// ErrOutOfSlots is returned when every cached entry has an outstanding
// reference and the cache cannot evict one to make room for a new block.
var ErrOutOfSlots = errors.New("cache: run out of block cache slots")

// Entry is a single cached block: its id, its bytes, and whether it differs
// from the device. The owning Cache writes it back when flushing or evicting.
type Entry struct {
	mu    sync.RWMutex
	id    uint64
	buf   [blockdev.BlockSize]byte
	dirty bool
	refs  int32 // external holders; 0 means only the cache itself references it
}

// ID returns the block id this entry caches.
func (e *Entry) ID() uint64 { return e.id }

// View hands fn a read-only view of the block's bytes starting at offset,
// asserting offset+len(p) never exceeds the block size when fn indexes p.
func (e *Entry) View(offset int, fn func(p []byte)) error {
	if offset < 0 || offset > blockdev.BlockSize {
		return fmt.Errorf("cache: offset %d out of range", offset)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.buf[offset:])
	return nil
}

// Modify hands fn a mutable view of the block's bytes starting at offset
// and unconditionally marks the entry dirty, matching the Rust original's
// Cache::modify which sets `modified = true` regardless of whether fn
// actually changes anything.
func (e *Entry) Modify(offset int, fn func(p []byte)) error {
	if offset < 0 || offset > blockdev.BlockSize {
		return fmt.Errorf("cache: offset %d out of range", offset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.buf[offset:])
	e.dirty = true
	return nil
}

func (e *Entry) retain() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// Release gives up a reference obtained from Cache.Get. Every successful
// Get must be paired with exactly one Release.
func (e *Entry) Release() {
	e.mu.Lock()
	e.refs--
	e.mu.Unlock()
}

func (e *Entry) evictable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refs == 0
}

// Cache is a bounded collection of at most Capacity entries, one per block
// id, backed by a single blockdev.Device.
type Cache struct {
	mu      sync.RWMutex
	dev     blockdev.Device
	entries []*Entry
	log     *logrus.Logger
}

// New creates a cache over dev. log may be nil, in which case a disabled
// logger is used (the cache never logs on its hot path regardless).
func New(dev blockdev.Device, log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Cache{
		dev: dev,
		log: log,
	}
}

// Get returns the entry for block id, loading it from the device on a
// cache miss. The returned entry holds one reference on behalf of the
// caller; the caller must call Release when done with it. Lookups are
// linear over the entry slice, matching the original CacheManager: the
// capacity is small and fixed so a map buys nothing.
func (c *Cache) Get(id uint64) (*Entry, error) {
	c.mu.RLock()
	for _, e := range c.entries {
		if e.id == id {
			e.retain()
			c.mu.RUnlock()
			return e, nil
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.id == id {
			e.retain()
			return e, nil
		}
	}

	if len(c.entries) == Capacity {
		idx := -1
		for i, e := range c.entries {
			if e.evictable() {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrOutOfSlots
		}
		victim := c.entries[idx]
		c.log.WithField("block_id", victim.id).Debug("cache: evicting block")
		victim.mu.Lock()
		dirty, buf := victim.dirty, victim.buf
		victim.dirty = false
		victim.mu.Unlock()
		if dirty {
			if err := c.dev.WriteBlock(victim.id, buf[:]); err != nil {
				return nil, fmt.Errorf("cache: writing back block %d: %w", victim.id, err)
			}
		}
		c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	}

	e := &Entry{id: id}
	if err := c.dev.ReadBlock(id, e.buf[:]); err != nil {
		return nil, fmt.Errorf("cache: loading block %d: %w", id, err)
	}
	e.retain()
	c.entries = append(c.entries, e)
	return e, nil
}

// Flush writes every dirty entry back to the device, in the cache's
// insertion order, and clears each entry's dirty flag.
func (c *Cache) Flush() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		e.mu.Lock()
		dirty := e.dirty
		var buf [blockdev.BlockSize]byte
		buf = e.buf
		if dirty {
			e.dirty = false
		}
		e.mu.Unlock()
		if !dirty {
			continue
		}
		if err := c.dev.WriteBlock(e.id, buf[:]); err != nil {
			return fmt.Errorf("cache: flushing block %d: %w", e.id, err)
		}
	}
	return nil
}
