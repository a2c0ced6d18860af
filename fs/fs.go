package fs

import (
	"fmt"

	"github.com/kestrelfs/cafs/bitmap"
	"github.com/kestrelfs/cafs/blockdev"
	"github.com/kestrelfs/cafs/cache"
	"github.com/sirupsen/logrus"
)

// RootInodeNumber is the inode number the root directory is asserted to
// receive during Format, since it is always the first inode allocated.
const RootInodeNumber = 0

// FS is the top-level content-addressed block filesystem: a block cache,
// the inode and data bitmaps, and a bounded cache of loaded inode handles.
type FS struct {
	cache       *cache.Cache
	inodeBitmap *bitmap.Bitmap
	dataBitmap  *bitmap.Bitmap

	inodeAreaStartBlock uint64
	dataAreaStartBlock  uint64

	inodeCache *InodeCache
	log        *logrus.Logger
}

// Format initializes a brand-new CAFS image on dev: it zeros every block,
// lays out the inode and data bitmaps and the superblock, and creates the
// root directory inode, which is asserted to land at inode 0.
func Format(dev blockdev.Device, totalBlocks, inodeBitmapBlocks uint64, log *logrus.Logger) (*FS, error) {
	c := cache.New(dev, log)

	inodeBitmap := bitmap.New(1, inodeBitmapBlocks, c)
	inodeNum := inodeBitmap.TotalCount()
	inodeAreaBlocks := ceilDiv(inodeNum*MetaSize, BlockSize)
	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks

	if totalBlocks < 1+inodeTotalBlocks {
		return nil, fmt.Errorf("fs: image too small for %d inode blocks", inodeTotalBlocks)
	}
	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := dataTotalBlocks / (blockBits() + 1)
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	dataBitmap := bitmap.New(1+inodeTotalBlocks, dataBitmapBlocks, c)

	fsys := &FS{
		cache:               c,
		inodeBitmap:         inodeBitmap,
		dataBitmap:          dataBitmap,
		inodeAreaStartBlock: 1 + inodeBitmapBlocks,
		dataAreaStartBlock:  1 + inodeTotalBlocks + dataBitmapBlocks,
		inodeCache:          newInodeCache(),
		log:                 logOrDefault(log),
	}

	var zero [BlockSize]byte
	for i := uint64(0); i < totalBlocks; i++ {
		e, err := fsys.cache.Get(i)
		if err != nil {
			return nil, err
		}
		e.Modify(0, func(p []byte) { copy(p, zero[:]) })
		e.Release()
	}

	sb := &Superblock{
		Magic:             SuperblockMagic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   inodeAreaBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataAreaBlocks,
	}
	if err := fsys.writeSuperblock(sb); err != nil {
		return nil, err
	}

	root, err := fsys.AllocInodeMeta(DirType, "/")
	if err != nil {
		return nil, err
	}
	if root.Number() != RootInodeNumber {
		panic(fmt.Sprintf("fs: root directory landed on inode %d, want %d", root.Number(), RootInodeNumber))
	}
	root.Release()

	if err := fsys.Flush(); err != nil {
		return nil, err
	}
	fsys.log.Info("cafs: formatted new image")
	return fsys, nil
}

// Open mounts an existing CAFS image from dev, reading its superblock and
// reconstructing the bitmap and area layout. It panics if the superblock's
// magic doesn't validate, mirroring the on-disk format's fatal invariant.
func Open(dev blockdev.Device, log *logrus.Logger) (*FS, error) {
	c := cache.New(dev, log)

	e, err := c.Get(0)
	if err != nil {
		return nil, err
	}
	var sb Superblock
	var uerr error
	e.View(0, func(p []byte) { uerr = sb.UnmarshalBinary(p[:superblockEncodedSize()]) })
	e.Release()
	if uerr != nil {
		return nil, uerr
	}
	if !sb.IsValid() {
		panic("Error loading CAFS!")
	}

	inodeTotalBlocks := sb.InodeBitmapBlocks + sb.InodeAreaBlocks
	inodeBitmap := bitmap.New(1, sb.InodeBitmapBlocks, c)
	dataBitmap := bitmap.New(1+inodeTotalBlocks, sb.DataBitmapBlocks, c)

	fsys := &FS{
		cache:               c,
		inodeBitmap:         inodeBitmap,
		dataBitmap:          dataBitmap,
		inodeAreaStartBlock: 1 + sb.InodeBitmapBlocks,
		dataAreaStartBlock:  1 + inodeTotalBlocks + sb.DataBitmapBlocks,
		inodeCache:          newInodeCache(),
		log:                 logOrDefault(log),
	}
	fsys.log.Info("cafs: opened image")
	return fsys, nil
}

func (fsys *FS) writeSuperblock(sb *Superblock) error {
	e, err := fsys.cache.Get(0)
	if err != nil {
		return err
	}
	defer e.Release()
	buf, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	e.Modify(0, func(p []byte) { copy(p, buf) })
	return nil
}

func superblockEncodedSize() int {
	return 4 + 8*5
}

func blockBits() uint64 { return BlockSize * 8 }

func logOrDefault(log *logrus.Logger) *logrus.Logger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Flush writes back every dirty cached block.
func (fsys *FS) Flush() error {
	return fsys.cache.Flush()
}

// InodePosOf returns the block id and in-block byte offset of the Meta
// record for the given inode number.
func (fsys *FS) InodePosOf(id uint64) (blockID uint64, offset int) {
	inodesPerBlock := BlockSize / MetaSize
	blockID = fsys.inodeAreaStartBlock + id/inodesPerBlock
	offset = int(id%inodesPerBlock) * MetaSize
	return blockID, offset
}

// AllocInodeMeta allocates a fresh inode number from the inode bitmap,
// initializes its Meta record in place, and registers it in the inode
// cache. It panics if the inode bitmap is exhausted.
func (fsys *FS) AllocInodeMeta(t InodeType, name string) (*Inode, error) {
	id, ok, err := fsys.inodeBitmap.Alloc()
	if err != nil {
		return nil, err
	}
	if !ok {
		panic("run out of inode block")
	}

	nameBuf, err := encodeName(name)
	if err != nil {
		return nil, err
	}

	blockID, offset := fsys.InodePosOf(id)
	e, err := fsys.cache.Get(blockID)
	if err != nil {
		return nil, err
	}
	var meta Meta
	meta.Init(t, nameBuf)
	buf, err := meta.MarshalBinary()
	if err != nil {
		e.Release()
		return nil, err
	}
	e.Modify(offset, func(p []byte) { copy(p, buf) })
	e.Release()

	ino := newInode(fsys.cache, id, meta)
	fsys.inodeCache.add(ino)
	return ino, nil
}

// AllocData allocates one fresh data block from the data bitmap and
// returns its absolute block id. It panics if the data bitmap is
// exhausted.
func (fsys *FS) AllocData() (uint64, error) {
	id, ok, err := fsys.dataBitmap.Alloc()
	if err != nil {
		return 0, err
	}
	if !ok {
		panic("run out of data block")
	}
	return id + fsys.dataAreaStartBlock, nil
}

func (fsys *FS) freeData(id uint64) error {
	return fsys.dataBitmap.Dealloc(id - fsys.dataAreaStartBlock)
}

// Inode loads (or returns the already-cached handle for) the inode with
// the given number, retaining a reference the caller must Release.
func (fsys *FS) Inode(number uint64) (*Inode, error) {
	if ino := fsys.inodeCache.lookup(number); ino != nil {
		return ino, nil
	}

	blockID, offset := fsys.InodePosOf(number)
	e, err := fsys.cache.Get(blockID)
	if err != nil {
		return nil, err
	}
	var meta Meta
	var uerr error
	e.View(offset, func(p []byte) { uerr = meta.UnmarshalBinary(p[:MetaSize]) })
	e.Release()
	if uerr != nil {
		return nil, uerr
	}

	ino := newInode(fsys.cache, number, meta)
	fsys.inodeCache.add(ino)
	return ino, nil
}

func (fsys *FS) loadMeta(number uint64) (Meta, error) {
	blockID, offset := fsys.InodePosOf(number)
	e, err := fsys.cache.Get(blockID)
	if err != nil {
		return Meta{}, err
	}
	defer e.Release()
	var meta Meta
	var uerr error
	e.View(offset, func(p []byte) { uerr = meta.UnmarshalBinary(p[:MetaSize]) })
	return meta, uerr
}

func (fsys *FS) storeMeta(number uint64, meta *Meta) error {
	blockID, offset := fsys.InodePosOf(number)
	e, err := fsys.cache.Get(blockID)
	if err != nil {
		return err
	}
	defer e.Release()
	buf, err := meta.MarshalBinary()
	if err != nil {
		return err
	}
	e.Modify(offset, func(p []byte) { copy(p, buf) })
	return nil
}

// Create allocates a new file inode, appends its encoded directory entry
// to parent's data, and returns the new inode handle.
func (fsys *FS) Create(parent uint64, name string) (*Inode, error) {
	child, err := fsys.AllocInodeMeta(FileType, name)
	if err != nil {
		return nil, err
	}

	parentContents, err := fsys.readData(parent)
	if err != nil {
		child.Release()
		return nil, err
	}
	parentContents = AppendDirEntry(parentContents, child.Number())
	if err := fsys.Write(parent, parentContents); err != nil {
		child.Release()
		return nil, err
	}
	return child, nil
}

func (fsys *FS) readData(number uint64) ([]byte, error) {
	ino, err := fsys.Inode(number)
	if err != nil {
		return nil, err
	}
	defer ino.Release()
	return ino.Data()
}

// Write replaces inode number's contents with contents, growing or
// shrinking its block index as required.
func (fsys *FS) Write(number uint64, contents []byte) error {
	meta, err := fsys.loadMeta(number)
	if err != nil {
		return err
	}
	newSize := uint64(len(contents))
	currInfo := IndexBlocks(meta.Size)
	newInfo := IndexBlocks(newSize)

	var blocks []uint64

	switch {
	case meta.Size < newSize:
		var dataBlocks, indexBlocks []uint64
		for i := uint64(0); i < dataBlocksFor(newSize)-meta.DataBlocks(); i++ {
			id, err := fsys.AllocData()
			if err != nil {
				return err
			}
			dataBlocks = append(dataBlocks, id)
		}
		for i := uint64(0); i < newInfo.IndexBlockCount()-currInfo.IndexBlockCount(); i++ {
			id, err := fsys.AllocData()
			if err != nil {
				return err
			}
			indexBlocks = append(indexBlocks, id)
		}
		if err := meta.Extend(newSize, newInfo, dataBlocks, indexBlocks, fsys.cache); err != nil {
			return err
		}
	case meta.Size > newSize:
		freedIndex, freedData, err := meta.Shrink(newSize, fsys.cache)
		if err != nil {
			return err
		}
		for _, id := range freedIndex {
			if err := fsys.freeData(id); err != nil {
				return err
			}
		}
		for _, id := range freedData {
			if err := fsys.freeData(id); err != nil {
				return err
			}
		}
	}

	_, blocks, err = meta.Blocks(fsys.cache)
	if err != nil {
		return err
	}

	pos := 0
	for _, id := range blocks {
		var block [BlockSize]byte
		n := copy(block[:], contents[pos:])
		pos += n
		e, err := fsys.cache.Get(id)
		if err != nil {
			return err
		}
		e.Modify(0, func(p []byte) { copy(p, block[:]) })
		e.Release()
	}

	if err := fsys.storeMeta(number, &meta); err != nil {
		return err
	}
	if ino := fsys.inodeCache.lookup(number); ino != nil {
		ino.mu.Lock()
		ino.meta = meta
		ino.mu.Unlock()
		ino.Release()
	}
	return nil
}

// Df reports (free bytes, total bytes) of the data area only, matching
// the original's df semantics which never counts the inode bitmap.
func (fsys *FS) Df() (free, total uint64, err error) {
	freeBlocks, err := fsys.dataBitmap.FreeCount()
	if err != nil {
		return 0, 0, err
	}
	return freeBlocks * BlockSize, fsys.dataBitmap.TotalCount() * BlockSize, nil
}

// SubInodes returns the inode numbers listed in a directory's data, or
// nil for a file or an empty directory.
func (fsys *FS) SubInodes(number uint64) ([]uint64, error) {
	ino, err := fsys.Inode(number)
	if err != nil {
		return nil, err
	}
	defer ino.Release()
	if ino.IsFile() {
		return nil, nil
	}
	data, err := ino.Data()
	if err != nil {
		return nil, err
	}
	return DecodeDirEntries(data), nil
}
