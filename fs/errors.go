package fs

import "errors"

// Package-specific error variables, usable with errors.Is, matching the
// teacher's errors.go sentinel style.
var (
	// ErrInvalidSuper is returned by Open when block 0's magic doesn't match.
	ErrInvalidSuper = errors.New("fs: invalid CAFS superblock")

	// ErrNameTooLong is returned when a name exceeds NameLengthLimit bytes.
	ErrNameTooLong = errors.New("fs: name exceeds length limit")
)
