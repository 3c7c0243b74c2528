// Metadata Snapshot and Document Catalog.
//
// The snapshot is the self-describing blob flush_metadata writes: one entry
// per collection carrying counts, last_id, the index-name list, and the
// Document Catalog (document id -> absolute file offset). It is framed as
// [u32 length][payload], optionally zstd-compressed, the same envelope
// Document Records use.
package ironbase

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// catalogEntry is the wire form of one Document Catalog mapping; IDs are
// kept as `any` in memory (int64, string, or arbitrary JSON value) but
// JSON object keys must be strings, so the snapshot uses a slice of pairs.
type catalogEntry struct {
	ID     any   `json:"id"`
	Offset int64 `json:"o"`
}

// indexDescriptor is the wire form of one index's metadata: everything
// needed to reconstruct an indexMeta (short of the *btree.Tree itself,
// which is reopened from its own backing file) without consulting
// anything but the Metadata Snapshot.
type indexDescriptor struct {
	Name   string   `json:"name"`
	Paths  []string `json:"paths"`
	Unique bool     `json:"unique"`
	Sparse bool     `json:"sparse"`
}

// collectionMeta is the per-collection section of a Metadata Snapshot.
type collectionMeta struct {
	Name           string            `json:"name"`
	DocumentCount  int               `json:"docs"`
	TombstoneCount int               `json:"tombstones"`
	LastID         int64             `json:"last_id"`
	DataOffset     int64             `json:"data_offset"`
	Indexes        []indexDescriptor `json:"indexes"`
	Catalog        []catalogEntry    `json:"catalog"`
}

// metadataSnapshot is the full flush_metadata payload.
type metadataSnapshot struct {
	Collections []collectionMeta `json:"collections"`
}

// collectionState is the in-memory counterpart of collectionMeta: the
// Catalog is a live map for O(1) lookup rather than a wire-format slice.
type collectionState struct {
	name           string
	catalog        map[any]int64
	documentCount  int
	tombstoneCount int
	lastID         int64
	indexes        map[string]*indexMeta
}

func newCollectionState(name string) *collectionState {
	return &collectionState{
		name:    name,
		catalog: make(map[any]int64),
		indexes: make(map[string]*indexMeta),
	}
}

func (c *collectionState) toMeta() collectionMeta {
	entries := make([]catalogEntry, 0, len(c.catalog))
	for id, off := range c.catalog {
		entries = append(entries, catalogEntry{ID: id, Offset: off})
	}
	descs := make([]indexDescriptor, 0, len(c.indexes))
	for name, idx := range c.indexes {
		descs = append(descs, indexDescriptor{Name: name, Paths: idx.Paths, Unique: idx.Unique, Sparse: idx.Sparse})
	}
	return collectionMeta{
		Name:           c.name,
		DocumentCount:  c.documentCount,
		TombstoneCount: c.tombstoneCount,
		LastID:         c.lastID,
		DataOffset:     DataStart,
		Indexes:        descs,
		Catalog:        entries,
	}
}

func collectionStateFromMeta(m collectionMeta) *collectionState {
	c := newCollectionState(m.Name)
	c.documentCount = m.DocumentCount
	c.tombstoneCount = m.TombstoneCount
	c.lastID = m.LastID
	for _, e := range m.Catalog {
		c.catalog[normalizeID(e.ID)] = e.Offset
	}
	for _, d := range m.Indexes {
		c.indexes[d.Name] = &indexMeta{Name: d.Name, Collection: m.Name, Paths: d.Paths, Unique: d.Unique, Sparse: d.Sparse}
	}
	return c
}

// normalizeID canonicalizes an id to the form every catalog lookup uses,
// regardless of whether it arrived via JSON decoding (goccy/go-json
// decodes all bare numbers as float64) or as a native Go numeric literal
// from a caller-constructed Document (int, int32, int64, ...). Any
// integer-valued number collapses to int64 so both paths hit the same
// catalog entry; non-integer floats and every other type pass through
// unchanged.
func normalizeID(id any) any {
	switch v := id.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
		return v
	case float32:
		if float64(v) == float64(int64(v)) {
			return int64(v)
		}
		return v
	default:
		return id
	}
}

// encodeSnapshot serializes the snapshot, compressing with zstd when the
// uncompressed form would overflow the Reserved Metadata region in v1
// mode. The first byte of the returned payload is a compression flag.
func encodeSnapshot(snap metadataSnapshot, version int) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	budget := DataStart - HeaderSize - lengthPrefixSize - 1
	if version == FormatV1 && len(raw) > budget {
		compressed := compressSnapshot(raw)
		if len(compressed) > budget {
			return nil, fmt.Errorf("%w: metadata snapshot overflows reserved region", ErrCorruption)
		}
		return append([]byte{1}, compressed...), nil
	}
	return append([]byte{0}, raw...), nil
}

func decodeSnapshot(payload []byte) (metadataSnapshot, error) {
	var snap metadataSnapshot
	if len(payload) == 0 {
		return snap, nil
	}
	flag, body := payload[0], payload[1:]
	if flag == 1 {
		var err error
		body, err = decompressSnapshot(body)
		if err != nil {
			return snap, err
		}
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("%w: malformed metadata snapshot", ErrCorruption)
	}
	return snap, nil
}

// metaFrameEnvelope is the outer shape every Metadata Snapshot frame is
// written as, reserving the "_meta" key the same way a Document Record
// reserves "_id"/"_collection" and a Tombstone reserves "_tombstone". A
// v2 snapshot lives in the same append-only stream as Document Records
// (at the tail, not the fixed Reserved Region v1 uses), so a full scan
// over that stream — the fallback rebuildCatalog takes when the header's
// MetaOffset is missing or unreadable — needs a way to recognize and skip
// a snapshot frame instead of trying to decode it as a document.
type metaFrameEnvelope struct {
	Meta bool   `json:"_meta"`
	Blob []byte `json:"blob"`
}

func wrapMetaFrame(raw []byte) ([]byte, error) {
	return json.Marshal(metaFrameEnvelope{Meta: true, Blob: raw})
}

func unwrapMetaFrame(payload []byte) ([]byte, error) {
	var env metaFrameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || !env.Meta {
		return nil, fmt.Errorf("%w: malformed metadata frame", ErrCorruption)
	}
	return env.Blob, nil
}

func isMetaFrame(m map[string]any) bool {
	v, _ := m["_meta"].(bool)
	return v
}
