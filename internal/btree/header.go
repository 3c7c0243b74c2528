package btree

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// headerSize is the fixed size of an index file's header, padded with
// spaces and newline-terminated the same way the database file's own
// header is, so both formats can be eyeballed with a text tool.
const headerSize = 64

const indexMagic = "IBIDX1"

type fileHeader struct {
	Magic     string              `json:"_m"`
	Root      int64               `json:"_r"`
	Height    int                 `json:"_h"`
	KeyCount  int                 `json:"_n"`
	Unique    bool                `json:"_u"`
	Algorithm checksum.Algorithm  `json:"_a"`
}

func (h fileHeader) encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(data)+1 > headerSize {
		return nil, fmt.Errorf("%w: index header overflow", ErrCorruption)
	}
	buf := make([]byte, headerSize)
	copy(buf, data)
	for i := len(data); i < headerSize-1; i++ {
		buf[i] = ' '
	}
	buf[headerSize-1] = '\n'
	return buf, nil
}

func decodeHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if len(buf) < headerSize {
		return h, fmt.Errorf("%w: short index header", ErrCorruption)
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf[:headerSize]), &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if h.Magic != indexMagic {
		return h, fmt.Errorf("%w: bad index magic", ErrCorruption)
	}
	return h, nil
}
