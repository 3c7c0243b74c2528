// Database file header.
//
// The header occupies the fixed first 256 bytes of the file, JSON-encoded,
// space-padded, and newline-terminated, the same fixed-width-header pattern
// the B+Tree index files use (see internal/btree/header.go). It is rewritten
// atomically on every metadata flush.
package ironbase

import (
	"bytes"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// HeaderSize is the fixed size of the database file header in bytes.
const HeaderSize = 256

// Magic identifies an IronBase database file.
const Magic = "MONGOLTE"

// Format versions. V1 keeps the metadata snapshot inside the Reserved
// Metadata region; V2 instead appends it as a frame at the end of the
// file, so a flush never risks truncating live documents.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// DataStart is the first byte offset at which Document Records and
// Tombstones may be written. [HeaderSize, DataStart) is the Reserved
// Metadata region.
const DataStart = 64 * 1024

// Header is the on-disk database file header.
type Header struct {
	Magic        string             `json:"_m"`
	Version      int                `json:"_v"`
	Dirty        bool               `json:"_e"`
	PageSize     int                `json:"_p"`
	Algorithm    checksum.Algorithm `json:"_alg"`
	MetaOffset   int64              `json:"_mo"` // v2+: end-of-file metadata snapshot offset
	MetaSize     int64              `json:"_ms"`
}

func readHeader(f *os.File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", ErrIo)
	}

	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(buf), &h); err != nil {
		return nil, fmt.Errorf("%w: malformed header", ErrCorruption)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruption)
	}
	if h.Version != FormatV1 && h.Version != FormatV2 {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruption, h.Version)
	}
	return &h, nil
}

// encode serializes h to exactly HeaderSize bytes with trailing-space
// padding and a final newline.
func (h *Header) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data)+1 > HeaderSize {
		return nil, fmt.Errorf("%w: header overflow", ErrCorruption)
	}

	buf := make([]byte, HeaderSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'
	return buf, nil
}

// writeHeader rewrites the header in place. Called after every metadata
// flush so Dirty/MetaOffset/MetaSize are always consistent with what is
// actually on disk.
func writeHeader(f *os.File, h *Header) error {
	buf, err := h.encode()
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write header: %w", ErrIo)
	}
	return nil
}

// setDirty flips the crash-recovery flag and rewrites the header.
func setDirty(f *os.File, dirty bool) error {
	h, err := readHeader(f)
	if err != nil {
		return err
	}
	h.Dirty = dirty
	return writeHeader(f, h)
}
