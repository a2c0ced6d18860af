package fs

import "testing"

func TestIndexBlocksBoundaries(t *testing.T) {
	cases := []struct {
		size uint64
		want LevelInfo
	}{
		{0, LevelInfo{Direct: 0}},
		{10, LevelInfo{Direct: 1}},
		{BlockSize - 1, LevelInfo{Direct: 1}},
		{BlockSize, LevelInfo{Direct: 1}},
		{BlockSize + 1, LevelInfo{Direct: 2}},
		{DirectMax - 10, LevelInfo{Direct: DirectCount}},
		{DirectMax, LevelInfo{Direct: DirectCount}},
		{DirectMax + 1, LevelInfo{BlockTable: 1, Direct: DirectCount}},
		{BlockTableMax, LevelInfo{BlockTable: 1, Direct: DirectCount}},
		{BlockTableMax + 1, LevelInfo{BlockDirectory: 1, BlockTable: 2, Direct: DirectCount}},
	}

	for _, c := range cases {
		got := IndexBlocks(c.size)
		if got != c.want {
			t.Errorf("IndexBlocks(%d) = %+v, want %+v", c.size, got, c.want)
		}
	}
}

func TestIndexBlocksL3AndL4Boundaries(t *testing.T) {
	size := uint64(L3Max)
	got := IndexBlocks(size)
	indirectSize := size - DirectMax
	wantBD := ceilDiv(indirectSize, BlockDirectoryIndirectMax)
	wantBT := ceilDiv(indirectSize, BlockTableIndirectMax)
	want := LevelInfo{L3: 1, BlockDirectory: wantBD, BlockTable: wantBT, Direct: DirectCount}
	if got != want {
		t.Errorf("IndexBlocks(L3Max) = %+v, want %+v", got, want)
	}

	size = L3Max + 1
	got = IndexBlocks(size)
	indirectSize = size - DirectMax
	wantBD = ceilDiv(indirectSize, BlockDirectoryIndirectMax)
	wantBT = ceilDiv(indirectSize, BlockTableIndirectMax)
	want = LevelInfo{L4: 1, L3: 2, BlockDirectory: wantBD, BlockTable: wantBT, Direct: DirectCount}
	if got != want {
		t.Errorf("IndexBlocks(L3Max+1) = %+v, want %+v", got, want)
	}
}

func TestRootLevel(t *testing.T) {
	if _, ok := (LevelInfo{}).RootLevel(); ok {
		t.Error("empty LevelInfo should have no root level")
	}
	if typ, ok := (LevelInfo{BlockTable: 1}).RootLevel(); !ok || typ != BlockTableType {
		t.Errorf("BlockTable:1 root level = %v, %v", typ, ok)
	}
	if typ, ok := (LevelInfo{BlockDirectory: 1, BlockTable: 2}).RootLevel(); !ok || typ != BlockDirectoryType {
		t.Errorf("BlockDirectory:1 root level = %v, %v", typ, ok)
	}
	if typ, ok := (LevelInfo{L3: 1, BlockDirectory: 3, BlockTable: 5}).RootLevel(); !ok || typ != L3Type {
		t.Errorf("L3:1 root level = %v, %v", typ, ok)
	}
	if typ, ok := (LevelInfo{L4: 1, L3: 2}).RootLevel(); !ok || typ != L4Type {
		t.Errorf("L4:1 root level = %v, %v", typ, ok)
	}
}
