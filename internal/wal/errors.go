package wal

import "errors"

// ErrTornWrite names a frame whose CRC32 does not match, the signature of
// a write that was interrupted mid-append. Replay does not return it: it
// treats such a frame as the end of the durable log.
var ErrTornWrite = errors.New("wal: torn write detected")

// ErrClosed is returned by any operation on a WAL after Close.
var ErrClosed = errors.New("wal: log is closed")
