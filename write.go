// Low-level write operations for appending Document Records and Tombstones.
//
// All writes append at the tracked tail offset and never patch existing
// bytes in place, per the append-only Document Record invariant. This
// mirrors the teacher's tail-tracking append path, minus its in-place
// record-retyping trick, which the append-only model has no use for.
package ironbase

import (
	"encoding/binary"
	"fmt"
	"os"
)

// writeFrame appends payload as a [u32 length][payload] frame at offset
// and returns the number of bytes written.
func writeFrame(f *os.File, offset int64, payload []byte) (int64, error) {
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	if _, err := f.WriteAt(frame, offset); err != nil {
		return 0, fmt.Errorf("write frame: %w", ErrIo)
	}
	return int64(len(frame)), nil
}

func syncFile(f *os.File) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", ErrIo)
	}
	return nil
}
