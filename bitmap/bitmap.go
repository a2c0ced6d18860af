// Package bitmap implements the free-space bitmap allocator CAFS uses for
// both the inode table and the data area, grounded directly on the
// original implementation's Bitmap (fs/src/cafs/bitmap.rs): a bitmap is a
// run of cache-backed blocks, each block an array of 64-bit words, bit i
// living at word i/64 position i%64 within its block.
package bitmap

import (
	"fmt"
	"math/bits"

	"github.com/kestrelfs/cafs/blockdev"
	"github.com/kestrelfs/cafs/cache"
)

const wordsPerBlock = blockdev.BlockSize / 8
const blockBits = blockdev.BlockSize * 8

// Bitmap allocates and frees bits over Blocks contiguous blocks
// starting at Start, backed by a shared cache.
type Bitmap struct {
	Start  uint64
	Blocks uint64
	cache  *cache.Cache
}

// New constructs a Bitmap over blocks [start, start+blocks) of cache.
func New(start, blocks uint64, c *cache.Cache) *Bitmap {
	return &Bitmap{Start: start, Blocks: blocks, cache: c}
}

// TotalCount returns the number of bits the bitmap represents.
func (b *Bitmap) TotalCount() uint64 {
	return b.Blocks * blockBits
}

// FreeCount returns the number of currently clear bits.
func (b *Bitmap) FreeCount() (uint64, error) {
	var count uint64
	for blockOff := uint64(0); blockOff < b.Blocks; blockOff++ {
		e, err := b.cache.Get(blockOff + b.Start)
		if err != nil {
			return 0, err
		}
		e.View(0, func(p []byte) {
			for w := 0; w < wordsPerBlock; w++ {
				word := leUint64(p[w*8:])
				count += 64 - uint64(bits.OnesCount64(word))
			}
		})
		e.Release()
	}
	return count, nil
}

// Alloc finds the lowest clear bit, sets it, and returns its global index.
// It returns ok=false if every bit is set.
func (b *Bitmap) Alloc() (pos uint64, ok bool, err error) {
	for blockOff := uint64(0); blockOff < b.Blocks; blockOff++ {
		e, gerr := b.cache.Get(blockOff + b.Start)
		if gerr != nil {
			return 0, false, gerr
		}

		wordPos := -1
		innerPos := 0
		e.View(0, func(p []byte) {
			for w := 0; w < wordsPerBlock; w++ {
				word := leUint64(p[w*8:])
				if word != ^uint64(0) {
					wordPos = w
					innerPos = bits.TrailingZeros64(^word)
					break
				}
			}
		})
		if wordPos == -1 {
			e.Release()
			continue
		}

		e.Modify(0, func(p []byte) {
			off := wordPos * 8
			word := leUint64(p[off:])
			word |= 1 << uint(innerPos)
			putLeUint64(p[off:], word)
		})
		e.Release()

		return blockOff*blockBits + uint64(wordPos)*64 + uint64(innerPos), true, nil
	}
	return 0, false, nil
}

// Dealloc clears bit, which must currently be set; it panics otherwise,
// matching the original's assert (a cleared-already bit means the caller
// double-freed a block, an invariant violation rather than a recoverable
// I/O error).
func (b *Bitmap) Dealloc(bit uint64) error {
	blockOff, wordPos, innerPos := decompose(bit)
	e, err := b.cache.Get(blockOff + b.Start)
	if err != nil {
		return err
	}
	defer e.Release()

	e.Modify(0, func(p []byte) {
		off := wordPos * 8
		word := leUint64(p[off:])
		mask := uint64(1) << uint(innerPos)
		if word&mask == 0 {
			panic(fmt.Sprintf("bitmap: dealloc of already-clear bit %d", bit))
		}
		putLeUint64(p[off:], word-mask)
	})
	return nil
}

func decompose(bit uint64) (blockOff uint64, wordPos int, innerPos int) {
	blockOff = bit / blockBits
	bit %= blockBits
	return blockOff, int(bit / 64), int(bit % 64)
}

func leUint64(p []byte) uint64 {
	return uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24 |
		uint64(p[4])<<32 | uint64(p[5])<<40 | uint64(p[6])<<48 | uint64(p[7])<<56
}

func putLeUint64(p []byte, v uint64) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
	p[3] = byte(v >> 24)
	p[4] = byte(v >> 32)
	p[5] = byte(v >> 40)
	p[6] = byte(v >> 48)
	p[7] = byte(v >> 56)
}
