package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kestrelfs/cafs/cache"
)

// IndirectBlockType is the tag on an indirect block's tail identifying its
// depth in the tree. It is the only source of truth for how entries are
// interpreted during traversal and must be preserved byte-for-byte.
type IndirectBlockType uint64

const (
	BlockTableType IndirectBlockType = iota
	BlockDirectoryType
	L3Type
	L4Type
)

// IndirectBlock occupies exactly one block: a fixed array of child ids
// plus the type tag describing what those ids point to.
type IndirectBlock struct {
	Entries [IndirectLen]uint64
	Type    IndirectBlockType
}

// MarshalBinary encodes the indirect block into exactly one block's bytes.
func (ib *IndirectBlock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, ib.Entries); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, ib.Type); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an indirect block from one block's worth of bytes.
func (ib *IndirectBlock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &ib.Entries); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &ib.Type)
}

func readIndirectBlock(c *cache.Cache, id uint64) (*IndirectBlock, error) {
	e, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	defer e.Release()

	var ib IndirectBlock
	var uerr error
	e.View(0, func(p []byte) {
		uerr = ib.UnmarshalBinary(p[:IndirectLen*8+8])
	})
	if uerr != nil {
		return nil, fmt.Errorf("fs: decoding indirect block %d: %w", id, uerr)
	}
	return &ib, nil
}

func writeIndirectBlock(c *cache.Cache, id uint64, ib *IndirectBlock) error {
	e, err := c.Get(id)
	if err != nil {
		return err
	}
	defer e.Release()

	buf, err := ib.MarshalBinary()
	if err != nil {
		return err
	}
	e.Modify(0, func(p []byte) { copy(p, buf) })
	return nil
}

// GetBlockID resolves the data-block id at logical position innerID within
// the subtree rooted at this indirect block, recursing through deeper
// levels using the type tag's divisor.
func (ib *IndirectBlock) GetBlockID(innerID uint64, c *cache.Cache) (uint64, error) {
	if ib.Type == BlockTableType {
		return ib.Entries[innerID], nil
	}

	divisor, err := ib.Type.divisor()
	if err != nil {
		return 0, err
	}
	index := innerID / divisor
	offset := innerID % divisor

	child, err := readIndirectBlock(c, ib.Entries[index])
	if err != nil {
		return 0, err
	}
	return child.GetBlockID(offset, c)
}

func (t IndirectBlockType) divisor() (uint64, error) {
	switch t {
	case BlockDirectoryType:
		return IndirectLen, nil
	case L3Type:
		return IndirectLen * IndirectLen, nil
	case L4Type:
		return IndirectLen * IndirectLen * IndirectLen, nil
	}
	return 0, fmt.Errorf("fs: indirect block type %d has no divisor", t)
}

// ToVec recursively gathers this subtree's index-block ids and data-block
// ids, skipping zero (unused) entries.
func (ib *IndirectBlock) ToVec(c *cache.Cache) (index, data []uint64, err error) {
	if ib.Type == BlockTableType {
		for _, id := range ib.Entries {
			if id != 0 {
				data = append(data, id)
			}
		}
		return nil, data, nil
	}
	for _, id := range ib.Entries {
		if id == 0 {
			continue
		}
		index = append(index, id)
		child, err := readIndirectBlock(c, id)
		if err != nil {
			return nil, nil, err
		}
		cIndex, cData, err := child.ToVec(c)
		if err != nil {
			return nil, nil, err
		}
		index = append(index, cIndex...)
		data = append(data, cData...)
	}
	return index, data, nil
}

// LevelInfo is the result of IndexBlocks(size): how many indirect blocks
// of each depth a file of that size needs.
type LevelInfo struct {
	L4             uint64
	L3             uint64
	BlockDirectory uint64
	BlockTable     uint64
	Direct         uint64
}

// IndexBlockCount returns the total number of indirect (non-direct) index
// blocks this layout requires.
func (li LevelInfo) IndexBlockCount() uint64 {
	return li.L4 + li.L3 + li.BlockDirectory + li.BlockTable
}

// RootLevel returns the type of the single indirect block directly
// referenced by an inode's Indirect field, and false if no indirect tree
// is needed at all. Resolved to the highest present level when more than
// one count could otherwise be read as "the root".
func (li LevelInfo) RootLevel() (IndirectBlockType, bool) {
	switch {
	case li.L4 == 1:
		return L4Type, true
	case li.L3 == 1:
		return L3Type, true
	case li.BlockDirectory == 1:
		return BlockDirectoryType, true
	case li.BlockTable == 1:
		return BlockTableType, true
	}
	return 0, false
}

// IndexBlocks computes the layout (l4, l3, block_directory, block_table,
// direct counts) a file of the given size requires, per the closed-form
// table: DIRECT_MAX = 36*B, and each deeper level multiplies the reach of
// the one below it by IndirectLen.
func IndexBlocks(size uint64) LevelInfo {
	indirectSize := uint64(0)
	if size >= DirectMax {
		indirectSize = size - DirectMax
	}

	blockTableLen := ceilDiv(indirectSize, BlockTableIndirectMax)
	blockDirectoryLen := ceilDiv(indirectSize, BlockDirectoryIndirectMax)
	l3Len := ceilDiv(indirectSize, L3IndirectMax)

	switch {
	case size > L3Max:
		return LevelInfo{L4: 1, L3: l3Len, BlockDirectory: blockDirectoryLen, BlockTable: blockTableLen, Direct: DirectCount}
	case size > BlockDirectoryMax:
		return LevelInfo{L3: 1, BlockDirectory: blockDirectoryLen, BlockTable: blockTableLen, Direct: DirectCount}
	case size > BlockTableMax:
		return LevelInfo{BlockDirectory: 1, BlockTable: blockTableLen, Direct: DirectCount}
	case size > DirectMax:
		return LevelInfo{BlockTable: 1, Direct: DirectCount}
	default:
		return LevelInfo{Direct: ceilDiv(size, BlockSize)}
	}
}
