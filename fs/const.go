// Package fs implements CAFS proper: the superblock, the inode metadata
// and index-tree record, the in-memory inode object and its cache, and
// the filesystem operations (format, open, create, write, df, inode,
// sub_inodes) that wire cache, bitmaps and inodes together. Grounded on
// the original implementation's fs/src/cafs/{layout,mod}.rs, in the
// teacher's encoding/binary-over-a-cached-block idiom.
package fs

import "github.com/kestrelfs/cafs/blockdev"

// BlockSize is the fixed block size CAFS operates on.
const BlockSize = blockdev.BlockSize

// DirectCount is the number of direct block pointers in an inode record.
const DirectCount = 36

// IndirectLen is the number of u64 entries an indirect block holds:
// one block's worth of entries minus the trailing type tag.
const IndirectLen = BlockSize/8 - 1

// NameLengthLimit is the maximum byte length of an inode's name, leaving
// room for a trailing zero terminator within the fixed 200-byte buffer.
const NameLengthLimit = 199

// Size thresholds from the closed-form index_blocks table.
const (
	DirectMax = DirectCount * BlockSize

	BlockTableIndirectMax = IndirectLen * BlockSize
	BlockTableMax         = DirectMax + BlockTableIndirectMax

	BlockDirectoryIndirectMax = IndirectLen * IndirectLen * BlockSize
	BlockDirectoryMax         = DirectMax + BlockDirectoryIndirectMax

	L3IndirectMax = IndirectLen * IndirectLen * IndirectLen * BlockSize
	L3Max         = DirectMax + L3IndirectMax

	L4IndirectMax = IndirectLen * IndirectLen * IndirectLen * IndirectLen * BlockSize
	L4Max         = DirectMax + L4IndirectMax
)

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
