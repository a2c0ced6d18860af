package vfs

import (
	"sync"

	"github.com/kestrelfs/cafs/fs"
)

// Dentry is one node of the in-memory directory tree: its inode identity,
// a back-pointer to its parent (a plain field — Go's collector handles the
// resulting cycle, unlike the original's Weak<RwLock<DirEntry>> which
// exists only to keep Rc reference counting acyclic), and its materialized
// children.
type Dentry struct {
	mu          sync.RWMutex
	inodeType   fs.InodeType
	inodeNumber uint64
	name        string
	parent      *Dentry
	children    []*Dentry
}

func newDentry(fsys *fs.FS, number uint64, name string, parent *Dentry) (*Dentry, error) {
	ino, err := fsys.Inode(number)
	if err != nil {
		return nil, err
	}
	defer ino.Release()

	return &Dentry{
		inodeType:   ino.Type(),
		inodeNumber: number,
		name:        name,
		parent:      parent,
	}, nil
}

// readSubDentry eagerly materializes d's entire subtree, recursing into
// every directory child it discovers.
func readSubDentry(fsys *fs.FS, d *Dentry) error {
	if d.inodeType != fs.DirType {
		return nil
	}

	subNumbers, err := fsys.SubInodes(d.inodeNumber)
	if err != nil {
		return err
	}

	for _, number := range subNumbers {
		ino, err := fsys.Inode(number)
		if err != nil {
			return err
		}
		name := ino.Name()
		ino.Release()

		child, err := newDentry(fsys, number, name, d)
		if err != nil {
			return err
		}
		if err := readSubDentry(fsys, child); err != nil {
			return err
		}
		d.mu.Lock()
		d.children = append(d.children, child)
		d.mu.Unlock()
	}
	return nil
}

// childNamed returns the already-materialized child dentry with the given
// name, or nil.
func (d *Dentry) childNamed(name string) *Dentry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (d *Dentry) addChild(c *Dentry) {
	d.mu.Lock()
	d.children = append(d.children, c)
	d.mu.Unlock()
}

// Names lists the names of d's own materialized children, mirroring
// ls_root's direct-children listing.
func (d *Dentry) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.children))
	for i, c := range d.children {
		names[i] = c.name
	}
	return names
}
