package fs

import (
	"bytes"
	"encoding/binary"
)

// SuperblockMagic identifies a CAFS partition on disk.
const SuperblockMagic uint32 = 0x5138

// Superblock is the persistent layout descriptor stored at block 0.
type Superblock struct {
	Magic             uint32
	TotalBlocks       uint64
	InodeBitmapBlocks uint64
	InodeAreaBlocks   uint64
	DataBitmapBlocks  uint64
	DataAreaBlocks    uint64
}

// IsValid reports whether the superblock's magic matches SuperblockMagic.
func (s *Superblock) IsValid() bool {
	return s.Magic == SuperblockMagic
}

// MarshalBinary encodes the superblock into a full, zero-padded block.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	fields := []any{
		s.Magic, s.TotalBlocks, s.InodeBitmapBlocks,
		s.InodeAreaBlocks, s.DataBitmapBlocks, s.DataAreaBlocks,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, BlockSize)
	copy(out, buf.Bytes())
	return out, nil
}

// UnmarshalBinary decodes a superblock from a full block's worth of bytes.
func (s *Superblock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	fields := []any{
		&s.Magic, &s.TotalBlocks, &s.InodeBitmapBlocks,
		&s.InodeAreaBlocks, &s.DataBitmapBlocks, &s.DataAreaBlocks,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
