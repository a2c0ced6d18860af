package fs

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/kestrelfs/cafs/cache"
)

// MetaSize is the fixed on-disk size of an inode metadata record. It
// happens to equal exactly one block at the default block size, which is
// why the inode area allocates one block per inode (see FS.InodePosOf).
const MetaSize = 8 + DirectCount*8 + 8 + 8 + 200

// Meta is the fixed-size on-block inode record: logical size, the direct
// block array, the root of the indirect tree (0 if none), the inode's
// type, and its fixed-width name buffer.
type Meta struct {
	Size     uint64
	Direct   [DirectCount]uint64
	Indirect uint64
	Type     InodeType
	Name     [200]byte
}

// Init resets the record to an empty file/directory of the given type
// and name, zeroing size and the whole block pointer tree.
func (m *Meta) Init(t InodeType, name [200]byte) {
	m.Size = 0
	m.Direct = [DirectCount]uint64{}
	m.Indirect = 0
	m.Type = t
	m.Name = name
}

// MarshalBinary encodes the record into MetaSize bytes.
func (m *Meta) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, f := range []any{m.Size, m.Direct, m.Indirect, m.Type, m.Name} {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record from MetaSize bytes.
func (m *Meta) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	for _, f := range []any{&m.Size, &m.Direct, &m.Indirect, &m.Type, &m.Name} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// DataBlocks returns ceil(size/B), the number of data blocks the current
// size requires.
func (m *Meta) DataBlocks() uint64 {
	return ceilDiv(m.Size, BlockSize)
}

// GetBlockID resolves the data-block id at logical index innerID, or
// ok=false if innerID is beyond the file's current size.
func (m *Meta) GetBlockID(innerID uint64, c *cache.Cache) (id uint64, ok bool, err error) {
	if m.DataBlocks() <= innerID {
		return 0, false, nil
	}
	if innerID < DirectCount {
		return m.Direct[innerID], true, nil
	}
	ib, err := readIndirectBlock(c, m.Indirect)
	if err != nil {
		return 0, false, err
	}
	id, err = ib.GetBlockID(innerID-DirectCount, c)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Blocks gathers the full set of index-block ids (sorted ascending) and
// data-block ids (in inode order) currently reachable from this record.
func (m *Meta) Blocks(c *cache.Cache) (index []uint64, data []uint64, err error) {
	for _, d := range m.Direct {
		if d != 0 {
			data = append(data, d)
		}
	}
	if m.Indirect != 0 {
		index = append(index, m.Indirect)
		ib, err := readIndirectBlock(c, m.Indirect)
		if err != nil {
			return nil, nil, err
		}
		idxIDs, dataIDs, err := ib.ToVec(c)
		if err != nil {
			return nil, nil, err
		}
		data = append(data, dataIDs...)
		index = append(index, idxIDs...)
	}
	sort.Slice(index, func(i, j int) bool { return index[i] < index[j] })
	return index, data, nil
}

// infiniteIter replays a slice and then yields zero forever, matching the
// original's `vec.into_iter().chain(repeat(0))` idiom used throughout forward.
type infiniteIter struct {
	s []uint64
	i int
}

func (it *infiniteIter) next() uint64 {
	if it.i < len(it.s) {
		v := it.s[it.i]
		it.i++
		return v
	}
	return 0
}

func (it *infiniteIter) take(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = it.next()
	}
	return out
}

func first(s []uint64) uint64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// forward lays out the on-disk index tree from scratch given the already
// gathered (index, data) id pools: the first DirectCount data ids become
// the direct array, and if the record's current size needs an indirect
// tree, the remaining index ids are carved into L4/L3/BlockDirectory/
// BlockTable slices in that fixed order and written out with their type
// tags, while the remaining data ids fill the leaf BlockTables.
func (m *Meta) forward(levelInfo LevelInfo, index, data []uint64, c *cache.Cache) error {
	dataIter := &infiniteIter{s: data}
	indexIter := &infiniteIter{s: index}

	direct := dataIter.take(DirectCount)
	copy(m.Direct[:], direct)

	indirectSize := uint64(0)
	if m.Size >= DirectMax {
		indirectSize = m.Size - DirectMax
	}

	if indirectSize == 0 {
		m.Indirect = 0
		return nil
	}

	var l4ID uint64
	if levelInfo.L4 != 0 {
		l4ID = indexIter.next()
	}
	l3IDs := indexIter.take(int(levelInfo.L3))
	l2IDs := indexIter.take(int(levelInfo.BlockDirectory))
	l1IDs := indexIter.take(int(levelInfo.BlockTable))

	if l4ID != 0 {
		entries := padTo(l3IDs, IndirectLen)
		ib := &IndirectBlock{Type: L4Type}
		copy(ib.Entries[:], entries)
		if err := writeIndirectBlock(c, l4ID, ib); err != nil {
			return err
		}
	}

	l3Entries := &infiniteIter{s: l2IDs}
	for _, id := range l3IDs {
		ib := &IndirectBlock{Type: L3Type}
		copy(ib.Entries[:], l3Entries.take(IndirectLen))
		if err := writeIndirectBlock(c, id, ib); err != nil {
			return err
		}
	}

	l2Entries := &infiniteIter{s: l1IDs}
	for _, id := range l2IDs {
		ib := &IndirectBlock{Type: BlockDirectoryType}
		copy(ib.Entries[:], l2Entries.take(IndirectLen))
		if err := writeIndirectBlock(c, id, ib); err != nil {
			return err
		}
	}

	for _, id := range l1IDs {
		ib := &IndirectBlock{Type: BlockTableType}
		copy(ib.Entries[:], dataIter.take(IndirectLen))
		if err := writeIndirectBlock(c, id, ib); err != nil {
			return err
		}
	}

	switch {
	case levelInfo.L4 == 1:
		m.Indirect = l4ID
	case levelInfo.L3 == 1:
		m.Indirect = first(l3IDs)
	case levelInfo.BlockDirectory == 1:
		m.Indirect = first(l2IDs)
	case levelInfo.BlockTable == 1:
		m.Indirect = first(l1IDs)
	}
	return nil
}

func padTo(s []uint64, n int) []uint64 {
	out := make([]uint64, n)
	copy(out, s)
	return out
}

// Extend grows the record to newSize, folding extraDataIDs/extraIndexIDs
// (freshly allocated blocks) into the existing tree and rebuilding it.
// It panics if newSize is smaller than the current size.
func (m *Meta) Extend(newSize uint64, newInfo LevelInfo, extraDataIDs, extraIndexIDs []uint64, c *cache.Cache) error {
	if newSize < m.Size {
		panic("fs: Extend to a smaller size")
	}
	m.Size = newSize

	index, data, err := m.Blocks(c)
	if err != nil {
		return err
	}
	index = append(index, extraIndexIDs...)
	data = append(data, extraDataIDs...)

	return m.forward(newInfo, index, data, c)
}

// Shrink truncates the record to newSize, popping the trailing index and
// data ids beyond the new layout's requirements and returning them for
// deallocation. It panics if newSize is larger than the current size.
func (m *Meta) Shrink(newSize uint64, c *cache.Cache) (freedIndex, freedData []uint64, err error) {
	if newSize > m.Size {
		panic("fs: Shrink to a larger size")
	}
	prevDataBlocks := m.DataBlocks()
	currInfo := IndexBlocks(m.Size)
	newInfo := IndexBlocks(newSize)
	m.Size = newSize

	index, data, err := m.Blocks(c)
	if err != nil {
		return nil, nil, err
	}

	dropIndex := currInfo.IndexBlockCount() - newInfo.IndexBlockCount()
	for i := uint64(0); i < dropIndex; i++ {
		freedIndex = append(freedIndex, index[len(index)-1])
		index = index[:len(index)-1]
	}
	dropData := prevDataBlocks - dataBlocksFor(newSize)
	for i := uint64(0); i < dropData; i++ {
		freedData = append(freedData, data[len(data)-1])
		data = data[:len(data)-1]
	}

	if err := m.forward(newInfo, index, data, c); err != nil {
		return nil, nil, err
	}
	return freedIndex, freedData, nil
}

func dataBlocksFor(size uint64) uint64 {
	return ceilDiv(size, BlockSize)
}

// ClearSize resets the record to empty (preserving type and name) and
// returns the full union of index and data ids it had been using, for
// the caller to deallocate.
func (m *Meta) ClearSize(c *cache.Cache) ([]uint64, error) {
	index, data, err := m.Blocks(c)
	if err != nil {
		return nil, err
	}
	m.Init(m.Type, m.Name)
	return append(index, data...), nil
}
