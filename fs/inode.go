package fs

import (
	"sync"

	"github.com/kestrelfs/cafs/cache"
)

// Inode is an in-memory handle to a loaded Meta record, reference-counted
// the same way cache.Entry is: refs == 0 means no external holder and the
// inode cache is free to evict it.
type Inode struct {
	mu     sync.RWMutex
	c      *cache.Cache
	number uint64
	meta   Meta
	refs   int32
}

func newInode(c *cache.Cache, number uint64, meta Meta) *Inode {
	return &Inode{c: c, number: number, meta: meta}
}

func (ino *Inode) retain() {
	ino.mu.Lock()
	ino.refs++
	ino.mu.Unlock()
}

// Release drops one external reference. Callers must pair every lookup
// that returned this inode with exactly one Release.
func (ino *Inode) Release() {
	ino.mu.Lock()
	ino.refs--
	ino.mu.Unlock()
}

func (ino *Inode) evictable() bool {
	ino.mu.RLock()
	defer ino.mu.RUnlock()
	return ino.refs == 0
}

// Number returns the inode number this handle refers to.
func (ino *Inode) Number() uint64 { return ino.number }

// Type returns the inode's type (file or directory).
func (ino *Inode) Type() InodeType {
	ino.mu.RLock()
	defer ino.mu.RUnlock()
	return ino.meta.Type
}

// IsDir reports whether this inode is a directory.
func (ino *Inode) IsDir() bool { return ino.Type() == DirType }

// IsFile reports whether this inode is a regular file.
func (ino *Inode) IsFile() bool { return ino.Type() == FileType }

// Size returns the inode's current logical byte size.
func (ino *Inode) Size() uint64 {
	ino.mu.RLock()
	defer ino.mu.RUnlock()
	return ino.meta.Size
}

// Name decodes the inode's fixed-width name buffer up to its first zero
// byte.
func (ino *Inode) Name() string {
	ino.mu.RLock()
	defer ino.mu.RUnlock()
	return decodeName(ino.meta.Name)
}

func decodeName(buf [200]byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf[:])
}

func encodeName(name string) ([200]byte, error) {
	var out [200]byte
	if len(name) > NameLengthLimit {
		return out, ErrNameTooLong
	}
	copy(out[:], name)
	return out, nil
}

// Data reassembles the inode's full contents by walking its block index
// and concatenating data blocks, truncating the final block's trailing
// bytes unless the size is an exact multiple of the block size.
func (ino *Inode) Data() ([]byte, error) {
	ino.mu.RLock()
	meta := ino.meta
	ino.mu.RUnlock()

	n := meta.DataBlocks()
	out := make([]byte, 0, n*BlockSize)
	for i := uint64(0); i < n; i++ {
		id, ok, err := meta.GetBlockID(i, ino.c)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		e, err := ino.c.Get(id)
		if err != nil {
			return nil, err
		}
		var chunk [BlockSize]byte
		e.View(0, func(p []byte) { copy(chunk[:], p) })
		e.Release()
		out = append(out, chunk[:]...)
	}

	if meta.Size%BlockSize != 0 {
		out = out[:meta.Size]
	}
	return out, nil
}
