// Package blockdev provides the block-addressed storage abstraction CAFS is
// built on: a fixed-size block read/written by a 64-bit id. It has no
// knowledge of the filesystem living on top of it; the cache package
// serialises all access.
package blockdev

import (
	"fmt"
	"os"
)

// BlockSize is the fixed block size in bytes used throughout CAFS.
const BlockSize = 512

// Device reads and writes fixed-size blocks by id. Implementations are not
// required to be safe for concurrent use; callers serialise access through
// the cache package.
type Device interface {
	// TotalBlocks returns the number of addressable blocks.
	TotalBlocks() uint64
	// ReadBlock reads the block at id into buf, which must be BlockSize bytes.
	ReadBlock(id uint64, buf []byte) error
	// WriteBlock writes buf, which must be BlockSize bytes, to the block at id.
	WriteBlock(id uint64, buf []byte) error
}

// FileDevice is a Device backed by a plain *os.File, addressed through
// ReadAt/WriteAt the way the teacher's Superblock addresses its table
// reader offsets.
type FileDevice struct {
	f           *os.File
	totalBlocks uint64
}

// NewFileDevice wraps f as a Device with totalBlocks addressable blocks.
// It does not truncate or grow f; callers format or open an image of the
// right size first.
func NewFileDevice(f *os.File, totalBlocks uint64) *FileDevice {
	return &FileDevice{f: f, totalBlocks: totalBlocks}
}

func (d *FileDevice) TotalBlocks() uint64 { return d.totalBlocks }

func (d *FileDevice) ReadBlock(id uint64, buf []byte) error {
	if err := checkBounds(id, d.totalBlocks, len(buf)); err != nil {
		return err
	}
	_, err := d.f.ReadAt(buf, int64(id)*BlockSize)
	return err
}

func (d *FileDevice) WriteBlock(id uint64, buf []byte) error {
	if err := checkBounds(id, d.totalBlocks, len(buf)); err != nil {
		return err
	}
	_, err := d.f.WriteAt(buf, int64(id)*BlockSize)
	return err
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

func checkBounds(id, total uint64, bufLen int) error {
	if id >= total {
		return fmt.Errorf("blockdev: block id %d out of range (total %d)", id, total)
	}
	if bufLen != BlockSize {
		return fmt.Errorf("blockdev: buffer length %d, want %d", bufLen, BlockSize)
	}
	return nil
}
