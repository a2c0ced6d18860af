// Package gpt locates the CAFS partition on a GPT-partitioned block
// device. Full GPT parsing (backup header recovery, CRC32 validation,
// arbitrary partition types) is explicitly out of scope for this
// filesystem — GPT is one of the abstract interfaces CAFS consumes, not a
// layer it owns — so this package implements just enough of the spec
// (ESP-style GPT header + 128-byte entry array) to find the one partition
// whose type GUID marks it as CAFS, and hand back a byte-offset view of
// the backing device for that partition alone.
package gpt

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/kestrelfs/cafs/blockdev"
)

// CAFSPartitionType is the partition type GUID that marks a GPT partition
// as holding a CAFS filesystem.
var CAFSPartitionType = uuid.MustParse("0c421611-8e4a-464e-b683-96265fc14532")

const (
	headerLBA    = 1
	gptSignature = "EFI PART"
)

type header struct {
	PartitionEntryLBA    uint64
	NumPartitionEntries  uint32
	SizeOfPartitionEntry uint32
}

// Locate reads the GPT header and partition entry array from dev and
// returns the starting LBA and block count of the first partition whose
// type GUID matches CAFSPartitionType.
func Locate(dev blockdev.Device) (startLBA, blockCount uint64, err error) {
	var hdrBlock [blockdev.BlockSize]byte
	if err := dev.ReadBlock(headerLBA, hdrBlock[:]); err != nil {
		return 0, 0, fmt.Errorf("gpt: reading header: %w", err)
	}
	if string(hdrBlock[0:8]) != gptSignature {
		return 0, 0, fmt.Errorf("gpt: missing %q signature", gptSignature)
	}

	var h header
	h.PartitionEntryLBA = binary.LittleEndian.Uint64(hdrBlock[72:80])
	h.NumPartitionEntries = binary.LittleEndian.Uint32(hdrBlock[80:84])
	h.SizeOfPartitionEntry = binary.LittleEndian.Uint32(hdrBlock[84:88])

	entriesPerBlock := blockdev.BlockSize / int(h.SizeOfPartitionEntry)
	entriesNeeded := int(h.NumPartitionEntries)

	for block := uint64(0); entriesNeeded > 0; block++ {
		var buf [blockdev.BlockSize]byte
		if err := dev.ReadBlock(h.PartitionEntryLBA+block, buf[:]); err != nil {
			return 0, 0, fmt.Errorf("gpt: reading partition entries: %w", err)
		}
		n := entriesPerBlock
		if n > entriesNeeded {
			n = entriesNeeded
		}
		for i := 0; i < n; i++ {
			off := i * int(h.SizeOfPartitionEntry)
			entry := buf[off : off+int(h.SizeOfPartitionEntry)]
			typeGUID, err := uuid.FromBytes(mixedEndian(entry[0:16]))
			if err != nil {
				continue
			}
			if typeGUID == CAFSPartitionType {
				first := binary.LittleEndian.Uint64(entry[32:40])
				last := binary.LittleEndian.Uint64(entry[40:48])
				return first, last - first + 1, nil
			}
		}
		entriesNeeded -= n
	}

	return 0, 0, fmt.Errorf("gpt: no partition with type %s found", CAFSPartitionType)
}

// mixedEndian converts a GPT-encoded mixed-endian GUID (the first three
// fields little-endian, the last two big-endian) into the big-endian
// byte order uuid.FromBytes expects.
func mixedEndian(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:16])
	return out
}

// PartitionDevice is a byte-range view of an underlying blockdev.Device,
// letting the rest of CAFS address the partition as if it were its own
// whole device.
type PartitionDevice struct {
	dev        blockdev.Device
	startBlock uint64
	blocks     uint64
}

// NewPartitionDevice wraps dev, restricting block ids to
// [startBlock, startBlock+blocks).
func NewPartitionDevice(dev blockdev.Device, startBlock, blocks uint64) *PartitionDevice {
	return &PartitionDevice{dev: dev, startBlock: startBlock, blocks: blocks}
}

func (p *PartitionDevice) TotalBlocks() uint64 { return p.blocks }

func (p *PartitionDevice) ReadBlock(id uint64, buf []byte) error {
	if id >= p.blocks {
		return fmt.Errorf("gpt: block %d out of partition range (%d blocks)", id, p.blocks)
	}
	return p.dev.ReadBlock(p.startBlock+id, buf)
}

func (p *PartitionDevice) WriteBlock(id uint64, buf []byte) error {
	if id >= p.blocks {
		return fmt.Errorf("gpt: block %d out of partition range (%d blocks)", id, p.blocks)
	}
	return p.dev.WriteBlock(p.startBlock+id, buf)
}
