package blockdev

import "testing"

func TestMemDeviceReadWrite(t *testing.T) {
	dev := NewMemDevice(5)

	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = 5
	}
	if err := dev.WriteBlock(2, data); err != nil {
		t.Fatalf("WriteBlock: %s", err)
	}

	out := make([]byte, BlockSize)
	if err := dev.ReadBlock(2, out); err != nil {
		t.Fatalf("ReadBlock: %s", err)
	}
	for i := range out {
		if out[i] != 5 {
			t.Fatalf("byte %d = %d, want 5", i, out[i])
		}
	}
}

func TestMemDeviceOutOfRange(t *testing.T) {
	dev := NewMemDevice(5)
	buf := make([]byte, BlockSize)
	if err := dev.ReadBlock(5, buf); err == nil {
		t.Fatalf("expected error reading out-of-range block")
	}
	if err := dev.WriteBlock(100, buf); err == nil {
		t.Fatalf("expected error writing out-of-range block")
	}
}

func TestMemDeviceBadBufferSize(t *testing.T) {
	dev := NewMemDevice(5)
	if err := dev.ReadBlock(0, make([]byte, 10)); err == nil {
		t.Fatalf("expected error with undersized buffer")
	}
}
