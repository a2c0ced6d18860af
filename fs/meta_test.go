package fs

import "testing"

func TestMetaRoundTripBinary(t *testing.T) {
	var m Meta
	name, err := encodeName("example")
	if err != nil {
		t.Fatalf("encodeName: %v", err)
	}
	m.Init(FileType, name)
	m.Size = 12345
	m.Direct[0] = 7
	m.Direct[35] = 99
	m.Indirect = 42

	buf, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(buf) != MetaSize {
		t.Fatalf("encoded meta length = %d, want %d", len(buf), MetaSize)
	}

	var got Meta
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != m {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
	if decodeName(got.Name) != "example" {
		t.Errorf("decoded name = %q, want %q", decodeName(got.Name), "example")
	}
}

func TestMetaDataBlocks(t *testing.T) {
	cases := []struct {
		size uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{BlockSize - 1, 1},
		{BlockSize, 1},
		{BlockSize + 1, 2},
	}
	for _, c := range cases {
		m := Meta{Size: c.size}
		if got := m.DataBlocks(); got != c.want {
			t.Errorf("DataBlocks() at size %d = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestEncodeNameTooLong(t *testing.T) {
	long := make([]byte, NameLengthLimit+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := encodeName(string(long)); err != ErrNameTooLong {
		t.Errorf("encodeName(too long) error = %v, want ErrNameTooLong", err)
	}
}
