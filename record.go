// Record format and type definitions.
//
// A Document Record is a JSON payload framed as [u32 length][payload] at an
// absolute file offset (see read.go/write.go). A record once written is
// immutable: updates and deletes append a new record rather than patch
// existing bytes, unlike the teacher's in-place type-byte retyping scheme.
package ironbase

import (
	"time"

	json "github.com/goccy/go-json"
)

// DocumentSizeLimit is the soft cap on an encoded document's payload size.
const DocumentSizeLimit = 16 * 1024 * 1024 // 16 MiB

// Delete categories recorded on a Tombstone.
const (
	DeleteExplicit          = "Explicit"
	DeleteSuperseded        = "Superseded"
	DeleteCollectionDropped = "CollectionDropped"
	DeleteExpired           = "Expired"
)

// Document is a stored document body: user fields plus the reserved keys
// every record carries.
type Document map[string]any

// encodeDocument marshals doc as a Document Record payload, injecting the
// reserved _id/_collection keys.
func encodeDocument(collection string, id any, doc Document) ([]byte, error) {
	out := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	out["_collection"] = collection

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(data) > DocumentSizeLimit {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

// encodeTombstone marshals a Tombstone payload for id, recording the
// delete category, a logical timestamp, and an optional offset of the
// record that superseded it.
func encodeTombstone(collection string, id any, category string, supersededBy int64) ([]byte, error) {
	out := map[string]any{
		"_id":         id,
		"_collection": collection,
		"_tombstone":  true,
		"_category":   category,
		"_ts":         now(),
	}
	if supersededBy != 0 {
		out["_supersedes_offset"] = supersededBy
	}
	return json.Marshal(out)
}

// decodeRecord unmarshals a Document Record or Tombstone payload into a
// generic map for catalog/scan inspection.
func decodeRecord(payload []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, ErrCorruption
	}
	return m, nil
}

func isTombstone(m map[string]any) bool {
	v, ok := m["_tombstone"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func recordID(m map[string]any) any { return m["_id"] }

func now() int64 { return time.Now().UnixMilli() }
