// Package vfs implements the dentry-tree view over an fs.FS: path parsing,
// eager subtree materialization, and the handful of path-addressed
// operations (ls, create, read, write) a consumer of CAFS actually calls.
// Grounded on the original implementation's fs/src/vfs/{mod,dir_entry,path}.rs.
package vfs

import "strings"

// ParsedPath is an absolute path split into its parent directory segments
// and its final element's name.
type ParsedPath struct {
	Parents []string
	Name    string
}

// ParsePath splits an absolute slash-separated path into its parent
// segments and final name, mirroring the original's path::parse: the
// leading empty segment from the initial '/' is dropped, and the last
// segment becomes Name.
func ParsePath(path string) ParsedPath {
	segments := strings.Split(path, "/")
	if len(segments) > 0 && segments[0] == "" {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return ParsedPath{}
	}
	name := segments[len(segments)-1]
	parents := segments[:len(segments)-1]
	return ParsedPath{Parents: parents, Name: name}
}
