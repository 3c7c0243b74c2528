// Low-level read operations for Document Record access.
//
// Records are framed as [u32 length][payload bytes] at an absolute file
// offset; these primitives handle bounded, concurrent-safe reads of that
// framing via io.SectionReader, mirroring the teacher's section-reader
// idiom for its own (newline-delimited) framing.
package ironbase

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const lengthPrefixSize = 4

// readFrame reads the [u32 length][payload] record whose length prefix
// begins at offset, returning the payload bytes and the total number of
// bytes the frame occupies on disk (prefix + payload).
func readFrame(f *os.File, offset int64) ([]byte, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat: %w", ErrIo)
	}
	if info.Size()-offset < lengthPrefixSize {
		return nil, 0, io.EOF
	}

	section := io.NewSectionReader(f, offset, info.Size()-offset)

	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(section, lenBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("read length prefix: %w", ErrIo)
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])

	if info.Size()-offset-lengthPrefixSize < int64(payloadLen) {
		// Trailing partial record from a crash mid-write; callers treat
		// this the same as EOF rather than Corruption, since records
		// after the last known catalog offset are never indexed.
		return nil, 0, io.EOF
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(section, payload); err != nil {
		return nil, 0, fmt.Errorf("read payload: %w", ErrIo)
	}

	return payload, lengthPrefixSize + int64(payloadLen), nil
}

func fileSize(f *os.File) int64 {
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}
