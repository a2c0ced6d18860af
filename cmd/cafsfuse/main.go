//go:build fuse

// Command cafsfuse mounts a CAFS image as a read-only FUSE filesystem.
// Adapted from the teacher's low-level go-fuse raw Inode glue
// (inode_fuse.go) onto go-fuse's higher-level fs.InodeEmbedder API: CAFS's
// directory model (an eagerly materialized dentry tree, no on-demand
// directory reader) fits the simpler embedder style better than the
// teacher's rawInode/inodeRef machinery, which existed to stream entries
// lazily out of a compressed table this filesystem doesn't have.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/kestrelfs/cafs/blockdev"
	cfs "github.com/kestrelfs/cafs/fs"
	"github.com/sirupsen/logrus"
)

type node struct {
	fs.Inode
	fsys        *cfs.FS
	inodeNumber uint64
}

var _ fs.NodeGetattrer = (*node)(nil)
var _ fs.NodeLookuper = (*node)(nil)
var _ fs.NodeReaddirer = (*node)(nil)
var _ fs.NodeOpener = (*node)(nil)
var _ fs.NodeReader = (*node)(nil)

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ino, err := n.fsys.Inode(n.inodeNumber)
	if err != nil {
		return syscall.EIO
	}
	defer ino.Release()
	out.Size = ino.Size()
	out.SetTimeout(time.Second)
	if ino.IsDir() {
		out.Mode = syscall.S_IFDIR | 0555
	} else {
		out.Mode = syscall.S_IFREG | 0444
	}
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	subNumbers, err := n.fsys.SubInodes(n.inodeNumber)
	if err != nil {
		return nil, syscall.EIO
	}
	for _, number := range subNumbers {
		ino, err := n.fsys.Inode(number)
		if err != nil {
			return nil, syscall.EIO
		}
		match := ino.Name() == name
		ino.Release()
		if match {
			return n.childInode(ctx, number, out)
		}
	}
	return nil, syscall.ENOENT
}

func (n *node) childInode(ctx context.Context, number uint64, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ino, err := n.fsys.Inode(number)
	if err != nil {
		return nil, syscall.EIO
	}
	isDir := ino.IsDir()
	size := ino.Size()
	ino.Release()

	mode := uint32(fuse.S_IFREG)
	if isDir {
		mode = fuse.S_IFDIR
	}
	out.Attr.Mode = mode | 0444
	out.Attr.Size = size
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(time.Second)

	child := n.NewInode(ctx, &node{fsys: n.fsys, inodeNumber: number}, fs.StableAttr{
		Mode: mode,
		Ino:  number + 1,
	})
	return child, 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	subNumbers, err := n.fsys.SubInodes(n.inodeNumber)
	if err != nil {
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(subNumbers))
	for _, number := range subNumbers {
		ino, err := n.fsys.Inode(number)
		if err != nil {
			return nil, syscall.EIO
		}
		mode := uint32(fuse.S_IFREG)
		if ino.IsDir() {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: ino.Name(), Mode: mode, Ino: number + 1})
		ino.Release()
	}
	return fs.NewListDirStream(entries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	ino, err := n.fsys.Inode(n.inodeNumber)
	if err != nil {
		return nil, syscall.EIO
	}
	defer ino.Release()
	data, err := ino.Data()
	if err != nil {
		return nil, syscall.EIO
	}
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <image> <mountpoint>\n", os.Args[0])
		os.Exit(1)
	}
	imagePath, mountpoint := os.Args[1], os.Args[2]

	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cafsfuse:", err)
		os.Exit(1)
	}
	st, err := f.Stat()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cafsfuse:", err)
		os.Exit(1)
	}
	totalBlocks := uint64(st.Size()) / blockdev.BlockSize
	dev := blockdev.NewFileDevice(f, totalBlocks)

	log := logrus.New()
	fsys, err := cfs.Open(dev, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cafsfuse:", err)
		os.Exit(1)
	}

	root := &node{fsys: fsys, inodeNumber: cfs.RootInodeNumber}
	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{FsName: "cafs", Name: "cafs"},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "cafsfuse: mount failed:", err)
		os.Exit(1)
	}
	log.WithField("mountpoint", mountpoint).Info("cafsfuse: mounted")
	server.Wait()
}
