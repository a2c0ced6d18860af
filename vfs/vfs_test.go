package vfs

import (
	"bytes"
	"testing"

	"github.com/kestrelfs/cafs/blockdev"
	"github.com/kestrelfs/cafs/fs"
)

func newTestVFS(t *testing.T) *FS {
	t.Helper()
	dev := blockdev.NewMemDevice(40960)
	fsys, err := fs.Format(dev, 40960, 10, nil)
	if err != nil {
		t.Fatalf("fs.Format: %v", err)
	}
	v, err := New(fsys)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return v
}

func TestLsRootOnFreshImage(t *testing.T) {
	v := newTestVFS(t)
	got := v.LsRoot()
	if len(got) != 1 || got[0] != "/" {
		t.Errorf("LsRoot() = %v, want [\"/\"]", got)
	}
}

func TestCreateThenLsRoot(t *testing.T) {
	v := newTestVFS(t)
	if err := v.Create("/test.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Create("/hello"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := v.LsRoot()
	want := []string{"/", "test.txt", "hello"}
	if len(got) != len(want) {
		t.Fatalf("LsRoot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LsRoot()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWriteThenReadUnstable(t *testing.T) {
	v := newTestVFS(t)
	if err := v.Create("/test.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := v.Write("/test.txt", []byte("Test File")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := v.ReadUnstable("/test.txt")
	if err != nil {
		t.Fatalf("ReadUnstable: %v", err)
	}
	if !bytes.Equal(got, []byte("Test File")) {
		t.Errorf("ReadUnstable = %q, want %q", got, "Test File")
	}
}

func TestReadUnstableMissingPathReturnsNotExist(t *testing.T) {
	v := newTestVFS(t)
	_, err := v.ReadUnstable("/missing")
	if err == nil {
		t.Fatal("expected an error for a missing path")
	}
	if _, ok := err.(*NotExistError); !ok {
		t.Errorf("error = %v (%T), want *NotExistError", err, err)
	}
}

func TestParsePath(t *testing.T) {
	cases := []struct {
		path    string
		parents []string
		name    string
	}{
		{"/test.txt", []string{}, "test.txt"},
		{"/a/b/c", []string{"a", "b"}, "c"},
	}
	for _, c := range cases {
		got := ParsePath(c.path)
		if got.Name != c.name {
			t.Errorf("ParsePath(%q).Name = %q, want %q", c.path, got.Name, c.name)
		}
		if len(got.Parents) != len(c.parents) {
			t.Errorf("ParsePath(%q).Parents = %v, want %v", c.path, got.Parents, c.parents)
			continue
		}
		for i := range c.parents {
			if got.Parents[i] != c.parents[i] {
				t.Errorf("ParsePath(%q).Parents[%d] = %q, want %q", c.path, i, got.Parents[i], c.parents[i])
			}
		}
	}
}
