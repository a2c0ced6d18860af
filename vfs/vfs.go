package vfs

import (
	"github.com/kestrelfs/cafs/fs"
)

// FS is the dentry-tree view over an underlying CAFS filesystem: a single
// eagerly-materialized root directory subtree, addressed by path.
type FS struct {
	fsys *fs.FS
	root *Dentry
}

// New builds a VFS over fsys, eagerly materializing the entire directory
// tree starting from the root inode.
func New(fsys *fs.FS) (*FS, error) {
	root, err := newDentry(fsys, fs.RootInodeNumber, "/", nil)
	if err != nil {
		return nil, err
	}
	if err := readSubDentry(fsys, root); err != nil {
		return nil, err
	}
	return &FS{fsys: fsys, root: root}, nil
}

// LsRoot returns the root directory's own name followed by the names of
// its immediate children.
func (v *FS) LsRoot() []string {
	return append([]string{v.root.name}, v.root.Names()...)
}

// findDir walks segments from the root, returning the dentry for the
// directory named by the last segment. An empty segments list returns
// the root itself.
func (v *FS) findDir(segments []string) (*Dentry, error) {
	cur := v.root
	for _, seg := range segments {
		next := cur.childNamed(seg)
		if next == nil {
			return nil, errNotExist(seg)
		}
		cur = next
	}
	return cur, nil
}

// findDentry walks a full parsed path (parents and final name) and
// returns the dentry for the final element.
func (v *FS) findDentry(p ParsedPath) (*Dentry, error) {
	dir, err := v.findDir(p.Parents)
	if err != nil {
		return nil, err
	}
	child := dir.childNamed(p.Name)
	if child == nil {
		return nil, errNotExist(p.Name)
	}
	return child, nil
}

// Create creates a new, empty file at path under an already-existing parent
// directory. It does not check for an existing entry of the same name;
// creating such a path again adds a second entry with that name.
func (v *FS) Create(path string) error {
	parsed := ParsePath(path)
	parentDentry, err := v.findDir(parsed.Parents)
	if err != nil {
		return err
	}

	ino, err := v.fsys.Create(parentDentry.inodeNumber, parsed.Name)
	if err != nil {
		return err
	}
	number := ino.Number()
	ino.Release()

	child, err := newDentry(v.fsys, number, parsed.Name, parentDentry)
	if err != nil {
		return err
	}
	parentDentry.addChild(child)
	return nil
}

// ReadUnstable reads the full contents of the file at path.
func (v *FS) ReadUnstable(path string) ([]byte, error) {
	d, err := v.findDentry(ParsePath(path))
	if err != nil {
		return nil, err
	}
	ino, err := v.fsys.Inode(d.inodeNumber)
	if err != nil {
		return nil, err
	}
	defer ino.Release()
	return ino.Data()
}

// Write replaces the contents of the file at path.
func (v *FS) Write(path string, contents []byte) error {
	d, err := v.findDentry(ParsePath(path))
	if err != nil {
		return err
	}
	return v.fsys.Write(d.inodeNumber, contents)
}
