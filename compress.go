// Compression for the Metadata Snapshot.
//
// The snapshot (per-collection metadata plus the Document Catalog) must fit
// inside the 64 KiB Reserved Metadata region in v1 format. Large catalogs
// are zstd-compressed before the overflow check, buying headroom without
// changing the on-disk length-prefixed framing. No ascii85 wrapping is
// needed here, unlike the teacher's inline _h field: the snapshot is its
// own length-prefixed binary blob, not a value embedded inside a JSON
// string, so raw compressed bytes are written directly.
package ironbase

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder, built once: zstd encoder/decoder construction is
// expensive and both are documented safe for concurrent use. SpeedFastest
// is deliberate — flush_metadata runs synchronously on every commit in
// Safe mode, so encode latency matters more than ratio for typical
// catalog sizes.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressSnapshot(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompressSnapshot(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruption, err)
	}
	return out, nil
}
