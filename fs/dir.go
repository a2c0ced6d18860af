package fs

import "bytes"

// DirEntrySize is the on-disk width of one encoded directory entry: 8
// bytes of (possibly escaped) inode number, a 1-byte escape flag, and a
// 1-byte meta flag disambiguating a genuinely-all-escaped number from one
// that needed no escaping at all.
const DirEntrySize = 10

// metaFlagNormal/metaFlagAllEscaped mirror the original's meta_flag values
// of 10 and 20: when every byte happened to need escaping, flag naturally
// comes out as 0xFF, which is indistinguishable from "flag was forced to
// 0xFF because nothing needed escaping" unless something else records
// which case actually happened. The meta flag is that something else:
// metaFlagAllEscaped (20) is written for the forced-0xFF case, i.e. when no
// byte was escaped, and metaFlagNormal (10) for every other record.
const (
	metaFlagNormal     = 10
	metaFlagAllEscaped = 20
)

// EncodeDirEntry encodes an inode number into its 10-byte directory
// payload record: 8 little-endian bytes with any zero byte replaced by
// 0xFF (tracked in a flag bit), the flag byte, and a meta flag byte. For a
// zero-free number the flag would be 0, itself a zero byte, so it is forced
// to 0xFF instead; because 0xFF is also the flag of a number whose bytes
// were all escaped, the meta flag records which case applies.
func EncodeDirEntry(number uint64) [DirEntrySize]byte {
	var out [DirEntrySize]byte
	var flag byte
	metaFlag := byte(metaFlagNormal)
	for i := 0; i < 8; i++ {
		b := byte(number >> (8 * i))
		if b == 0 {
			out[i] = 0xFF
			flag |= 1 << uint(i)
		} else {
			out[i] = b
		}
	}
	if flag == 0 {
		flag = 0xFF
		metaFlag = metaFlagAllEscaped
	}
	out[8] = flag
	out[9] = metaFlag
	return out
}

// DecodeDirEntry reverses EncodeDirEntry.
func DecodeDirEntry(rec [DirEntrySize]byte) uint64 {
	metaFlag := rec[9]
	flag := rec[8]
	if metaFlag == metaFlagAllEscaped {
		flag = 0
	}
	var number uint64
	for i := 0; i < 8; i++ {
		b := rec[i]
		if flag&(1<<uint(i)) != 0 {
			b = 0
		}
		number |= uint64(b) << (8 * i)
	}
	return number
}

// AppendDirEntry appends number's encoded record to an existing directory
// payload, inserting the 0x00 separator first when the payload is
// non-empty. The encoding never produces a zero byte within a record, so
// a single 0x00 unambiguously marks the boundary between entries.
func AppendDirEntry(data []byte, number uint64) []byte {
	if len(data) > 0 {
		data = append(data, 0x00)
	}
	rec := EncodeDirEntry(number)
	return append(data, rec[:]...)
}

// DecodeDirEntries splits a directory inode's raw data payload on its 0x00
// separator bytes and decodes each resulting DirEntrySize-byte record into
// an inode number.
func DecodeDirEntries(data []byte) []uint64 {
	if len(data) == 0 {
		return nil
	}
	var numbers []uint64
	for _, part := range bytes.Split(data, []byte{0x00}) {
		if len(part) != DirEntrySize {
			continue
		}
		var rec [DirEntrySize]byte
		copy(rec[:], part)
		numbers = append(numbers, DecodeDirEntry(rec))
	}
	return numbers
}
