package fs

import "sync"

// InodeCacheSize bounds the number of concurrently loaded inode handles,
// matching the original's INODE_CACHE_SIZE.
const InodeCacheSize = 32

// InodeCache is a bounded cache of loaded Inode handles, evicting an
// unreferenced entry to make room the same way cache.Cache evicts blocks.
type InodeCache struct {
	mu      sync.Mutex
	entries []*Inode
}

func newInodeCache() *InodeCache {
	return &InodeCache{}
}

// lookup returns an already-loaded inode by number, retaining it, or nil
// if not present.
func (ic *InodeCache) lookup(number uint64) *Inode {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for _, e := range ic.entries {
		if e.number == number {
			e.retain()
			return e
		}
	}
	return nil
}

// add inserts a freshly loaded inode into the cache, retaining it on the
// caller's behalf, evicting an unreferenced slot if the cache is full.
// It panics if the cache is full and every entry is still referenced.
func (ic *InodeCache) add(ino *Inode) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ino.retain()
	if len(ic.entries) < InodeCacheSize {
		ic.entries = append(ic.entries, ino)
		return
	}
	for i, e := range ic.entries {
		if e.evictable() {
			ic.entries[i] = ino
			return
		}
	}
	panic("fs: run out of InodeCache!")
}
