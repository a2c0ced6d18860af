package bitmap

import (
	"testing"

	"github.com/kestrelfs/cafs/blockdev"
	"github.com/kestrelfs/cafs/cache"
)

func newTestBitmap(t *testing.T, blocks uint64) *Bitmap {
	t.Helper()
	dev := blockdev.NewMemDevice(blocks + 1)
	c := cache.New(dev, nil)
	return New(1, blocks, c)
}

func TestAllocNeverReusesBitBeforeDealloc(t *testing.T) {
	b := newTestBitmap(t, 1)
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		pos, ok, err := b.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %s", err)
		}
		if !ok {
			t.Fatalf("Alloc ran out early at i=%d", i)
		}
		if seen[pos] {
			t.Fatalf("Alloc returned bit %d twice without a Dealloc", pos)
		}
		seen[pos] = true
	}
}

func TestFreeCountPlusPopcountEqualsTotal(t *testing.T) {
	b := newTestBitmap(t, 1)
	for i := 0; i < 10; i++ {
		if _, ok, err := b.Alloc(); err != nil || !ok {
			t.Fatalf("Alloc: ok=%v err=%v", ok, err)
		}
	}
	free, err := b.FreeCount()
	if err != nil {
		t.Fatalf("FreeCount: %s", err)
	}
	total := b.TotalCount()
	if free != total-10 {
		t.Fatalf("free=%d, want %d", free, total-10)
	}
}

func TestDeallocFreesBitForReuse(t *testing.T) {
	b := newTestBitmap(t, 1)
	pos, ok, err := b.Alloc()
	if err != nil || !ok {
		t.Fatalf("Alloc: ok=%v err=%v", ok, err)
	}
	if err := b.Dealloc(pos); err != nil {
		t.Fatalf("Dealloc: %s", err)
	}
	free, err := b.FreeCount()
	if err != nil {
		t.Fatalf("FreeCount: %s", err)
	}
	if free != b.TotalCount() {
		t.Fatalf("free=%d after dealloc, want %d", free, b.TotalCount())
	}
}

func TestDeallocOfClearBitPanics(t *testing.T) {
	b := newTestBitmap(t, 1)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic deallocating a clear bit")
		}
	}()
	b.Dealloc(0)
}

func TestAllocExhaustion(t *testing.T) {
	b := newTestBitmap(t, 1)
	total := b.TotalCount()
	for i := uint64(0); i < total; i++ {
		if _, ok, err := b.Alloc(); err != nil || !ok {
			t.Fatalf("Alloc %d: ok=%v err=%v", i, ok, err)
		}
	}
	_, ok, err := b.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %s", err)
	}
	if ok {
		t.Fatalf("expected Alloc to report exhaustion")
	}
}
