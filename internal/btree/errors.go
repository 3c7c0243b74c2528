package btree

import "errors"

var (
	// ErrDuplicateKey is returned by Insert on a unique index when the
	// key already maps to a different document offset.
	ErrDuplicateKey = errors.New("btree: duplicate key")
	// ErrCorruption is returned when a node frame fails its checksum or
	// cannot be parsed.
	ErrCorruption = errors.New("btree: corruption")
	// ErrNotFound is returned by Delete when the key/offset pair is absent.
	ErrNotFound = errors.New("btree: key not found")
)
