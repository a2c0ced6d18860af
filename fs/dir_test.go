package fs

import "testing"

func TestEncodeDecodeDirEntryRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 42, 255, 256, 65535, 0x0102030405060708, ^uint64(0)}
	for _, number := range cases {
		rec := EncodeDirEntry(number)
		got := DecodeDirEntry(rec)
		if got != number {
			t.Errorf("round trip %d -> %v -> %d", number, rec, got)
		}
	}
}

func TestEncodeDirEntryNeverProducesZeroByte(t *testing.T) {
	cases := []uint64{0, 1, 256, 0x0100000000000000, 0x0001020304050607}
	for _, number := range cases {
		rec := EncodeDirEntry(number)
		for i, b := range rec {
			if b == 0 {
				t.Errorf("EncodeDirEntry(%d)[%d] == 0, encoding must never produce a zero byte", number, i)
			}
		}
	}
}

func TestAppendAndDecodeDirEntries(t *testing.T) {
	var data []byte
	want := []uint64{0, 7, 1000, 99999}
	for _, n := range want {
		data = AppendDirEntry(data, n)
	}

	got := DecodeDirEntries(data)
	if len(got) != len(want) {
		t.Fatalf("DecodeDirEntries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeDirEntriesEmpty(t *testing.T) {
	if got := DecodeDirEntries(nil); got != nil {
		t.Errorf("DecodeDirEntries(nil) = %v, want nil", got)
	}
}
