// Sequential scanning over the Document Record region.
//
// scanRecords walks [u32 length][payload] frames starting at a given
// offset, the binary analogue of the teacher's newline-delimited All scan:
// lazy, pull-based, and stoppable by the caller via range. It backs catalog
// rebuild on open, WAL recovery's "records beyond the last known catalog
// offset" check, and the live-document pass compaction streams through.
package ironbase

import (
	"fmt"
	"io"
	"iter"
	"os"
)

// scannedRecord is one frame encountered by scanRecords.
type scannedRecord struct {
	Offset  int64
	Payload map[string]any
}

// scanRecords yields every record from start to end-of-file, in file
// order. A truncated trailing frame (a crash mid-write) ends the scan
// without error, since bytes past the last fully-written record are, by
// the Storage Engine's append-only invariant, not yet referenced by any
// catalog entry.
func scanRecords(f *os.File, start int64) iter.Seq2[scannedRecord, error] {
	return func(yield func(scannedRecord, error) bool) {
		offset := start
		size := fileSize(f)
		for offset < size {
			payload, consumed, err := readFrame(f, offset)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(scannedRecord{}, fmt.Errorf("scan at %d: %w", offset, err))
				return
			}

			m, err := decodeRecord(payload)
			if err != nil {
				yield(scannedRecord{}, fmt.Errorf("scan at %d: %w", offset, err))
				return
			}
			if !yield(scannedRecord{Offset: offset, Payload: m}, nil) {
				return
			}
			offset += consumed
		}
	}
}

// rebuildCatalog scans the full Document Record region and reconstructs,
// per collection, the latest live offset for every document id. Later
// records (by file position, which is also insertion order) always win,
// so a superseding write or tombstone correctly shadows the original.
// Used when no metadata snapshot is present or it fails validation.
func rebuildCatalog(f *os.File) (map[string]map[any]int64, error) {
	catalog := make(map[string]map[any]int64)
	for rec, err := range scanRecords(f, DataStart) {
		if err != nil {
			return nil, err
		}
		if isMetaFrame(rec.Payload) {
			// A v2 Metadata Snapshot frame lives in this same stream,
			// written at the tail on every flush. It carries no
			// _collection/_id of its own and plays no part in catalog
			// reconstruction, which always starts from zero.
			continue
		}
		coll, _ := rec.Payload["_collection"].(string)
		id := normalizeID(recordID(rec.Payload))
		if catalog[coll] == nil {
			catalog[coll] = make(map[any]int64)
		}
		if isTombstone(rec.Payload) {
			// A Superseded tombstone is purely archival: the live
			// catalog entry for its id was already (or will later be,
			// in file order) overwritten by the replacing record's own
			// offset, which always appears before its superseded
			// tombstone in file order. Explicit/CollectionDropped/
			// Expired tombstones really do remove the id.
			if category, _ := rec.Payload["_category"].(string); category != DeleteSuperseded {
				delete(catalog[coll], id)
			}
			continue
		}
		catalog[coll][id] = rec.Offset
	}
	return catalog, nil
}
