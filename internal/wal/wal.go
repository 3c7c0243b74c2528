package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

const frameHeaderSize = 1 + 8 + 4 // entry_type + tx_id + payload_len

// WAL is a single-writer, append-only log file. Callers serialize access
// themselves at the transaction level; WAL only guards its own file handle.
type WAL struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// Open opens path, creating it if absent. It does not replay the log —
// callers needing recovery should call Replay(path) before Open, or after
// Open but before appending new entries.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}
	return &WAL{f: f, path: path}, nil
}

func encodeFrame(entryType EntryType, txID uint64, payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload)+4)
	buf[0] = byte(entryType)
	binary.LittleEndian.PutUint64(buf[1:9], txID)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(payload)))
	copy(buf[13:], payload)
	sum := crc32.ChecksumIEEE(buf[:frameHeaderSize+len(payload)])
	binary.LittleEndian.PutUint32(buf[frameHeaderSize+len(payload):], sum)
	return buf
}

// Append writes one frame at the current end of the log. It does not fsync;
// call Sync explicitly once a batch of frames (or a Commit marker) must be
// durable, per the two-phase commit protocol's fsync points.
func (w *WAL) Append(entryType EntryType, txID uint64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	if _, err := w.f.Write(encodeFrame(entryType, txID, payload)); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.f.Sync()
}

// Truncate clears the log to zero length, called once a commit marker (or a
// full successful replay) has made every entry in it redundant.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	_, err := w.f.Seek(0, io.SeekStart)
	return err
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *WAL) Path() string { return w.path }
