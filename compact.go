// Compaction: the streaming rewrite that reclaims space held by
// tombstones and superseded records. Grounded on the teacher's Repair
// (temp file, phase-1 heavy lifting under the current lock, phase-2
// handle swap) generalized from folio's single-type record stream to a
// per-collection catalog rewrite plus index bulk-rebuild.
package ironbase

import (
	"fmt"
	"os"

	"github.com/ironbase-db/ironbase/internal/btree"
)

// compactBatchSize is how many catalog entries each pass of the rewrite
// loop handles. It bounds neither logging (one log line per collection)
// nor memory: every live document body stays in the collection's docs
// map for the index rebuild.
const compactBatchSize = 1000

// compactedCollection holds one collection's freshly rewritten catalog
// plus the decoded document bodies the index-rebuild pass needs, so
// those bodies do not have to be read back from disk a second time.
type compactedCollection struct {
	state *collectionState
	docs  map[any]map[string]any
}

// Compact rewrites the database file, discarding every tombstoned and
// superseded record, then rebuilds every index against the new offsets.
// It is exclusive: no other operation may run concurrently.
func (db *Database) Compact() error {
	se := db.storage
	if err := se.blockWrite(); err != nil {
		return err
	}
	defer se.unblockWrite()

	tmpName := se.name + ".compact"
	tmp, err := se.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("ironbase: create compact file: %w", ErrIo)
	}
	abort := func(err error) error {
		tmp.Close()
		se.root.Remove(tmpName)
		return err
	}

	if err := tmp.Truncate(DataStart); err != nil {
		return abort(fmt.Errorf("ironbase: reserve compact region: %w", ErrIo))
	}

	fresh := make(map[string]*compactedCollection, len(se.collections))
	tail := int64(DataStart)

	for name, cs := range se.collections {
		newCS := newCollectionState(name)
		newCS.lastID = cs.lastID
		for iname, idx := range cs.indexes {
			newCS.indexes[iname] = &indexMeta{Name: idx.Name, Collection: idx.Collection, Paths: idx.Paths, Unique: idx.Unique, Sparse: idx.Sparse}
		}
		docs := make(map[any]map[string]any, len(cs.catalog))

		ids := make([]any, 0, len(cs.catalog))
		for id := range cs.catalog {
			ids = append(ids, id)
		}
		for start := 0; start < len(ids); start += compactBatchSize {
			end := start + compactBatchSize
			if end > len(ids) {
				end = len(ids)
			}
			for _, id := range ids[start:end] {
				offset := cs.catalog[id]
				payload, _, err := readFrame(se.reader, offset)
				if err != nil {
					return abort(err)
				}
				doc, err := decodeRecord(payload)
				if err != nil {
					return abort(err)
				}
				if isTombstone(doc) {
					continue
				}
				n, err := writeFrame(tmp, tail, payload)
				if err != nil {
					return abort(err)
				}
				newCS.catalog[id] = tail
				newCS.documentCount++
				docs[id] = doc
				tail += n
			}
		}
		se.log.Info().Str("collection", name).Int("live_documents", newCS.documentCount).Msg("compaction rewrote collection")
		fresh[name] = &compactedCollection{state: newCS, docs: docs}
	}

	newCollections := make(map[string]*collectionState, len(fresh))
	for name, r := range fresh {
		newCollections[name] = r.state
	}

	snap := metadataSnapshot{Collections: make([]collectionMeta, 0, len(newCollections))}
	for _, cs := range newCollections {
		snap.Collections = append(snap.Collections, cs.toMeta())
	}
	raw, err := encodeSnapshot(snap, se.config.FormatVersion)
	if err != nil {
		return abort(err)
	}
	framed, err := wrapMetaFrame(raw)
	if err != nil {
		return abort(err)
	}
	metaOffset := tail
	if se.config.FormatVersion == FormatV1 {
		metaOffset = HeaderSize
	}
	if _, err := writeFrame(tmp, metaOffset, framed); err != nil {
		return abort(err)
	}

	hdr := &Header{
		Magic:      Magic,
		Version:    se.config.FormatVersion,
		Dirty:      se.header.Dirty,
		PageSize:   HeaderSize,
		Algorithm:  se.config.ChecksumAlgorithm,
		MetaOffset: metaOffset,
		MetaSize:   int64(len(framed)),
	}
	hdrBuf, err := hdr.encode()
	if err != nil {
		return abort(err)
	}
	if _, err := tmp.WriteAt(hdrBuf, 0); err != nil {
		return abort(fmt.Errorf("ironbase: write compact header: %w", ErrIo))
	}
	if err := syncFile(tmp); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		return abort(fmt.Errorf("ironbase: close compact file: %w", ErrIo))
	}

	if err := db.rebuildIndexes(fresh); err != nil {
		se.root.Remove(tmpName)
		return err
	}

	if err := se.swapCompactedFile(tmpName); err != nil {
		return err
	}

	se.collections = newCollections
	for name := range se.collections {
		db.cache.InvalidateCollection(name)
	}
	db.log.Info().Msg("compaction complete")
	return nil
}

// rebuildIndexes bulk-loads every index against the freshly assigned
// offsets. A compaction changes every live document's offset, so an
// index tree cannot simply be carried over: it is discarded and rebuilt
// from the new catalog, matching the spec's "bulk-load is acceptable"
// allowance.
func (db *Database) rebuildIndexes(fresh map[string]*compactedCollection) error {
	se := db.storage
	for _, r := range fresh {
		for _, idx := range r.state.indexes {
			path := indexFilePath(se.dir, idx.Collection, idx.Name)
			os.Remove(path)
			tree, err := btree.Open(path, idx.Unique, se.config.ChecksumAlgorithm)
			if err != nil {
				return fmt.Errorf("ironbase: rebuild index %s: %w", idx.Name, err)
			}
			idx.Tree = tree

			for id, doc := range r.docs {
				key, ok := buildIndexKey(idx, Document(doc))
				if !ok {
					continue
				}
				offset := r.state.catalog[id]
				if err := tree.Insert(key, offset); err != nil {
					return fmt.Errorf("ironbase: rebuild index %s: %w", idx.Name, classifyIndexError(err))
				}
			}
			tmp, err := tree.Prepare(nil)
			if err != nil {
				return fmt.Errorf("ironbase: persist rebuilt index %s: %w", idx.Name, err)
			}
			if err := tree.Commit(tmp); err != nil {
				return fmt.Errorf("ironbase: persist rebuilt index %s: %w", idx.Name, err)
			}
		}
	}
	return nil
}

// swapCompactedFile performs phase 2 of compaction: close the current
// handles, rename the compacted file into place (keeping `<name>.old`
// until the reopen below succeeds), then reopen reader/writer against
// the swapped file.
func (se *storageEngine) swapCompactedFile(tmpName string) error {
	if err := se.reader.Close(); err != nil {
		return fmt.Errorf("ironbase: close reader before swap: %w", ErrIo)
	}
	if err := se.writer.Close(); err != nil {
		return fmt.Errorf("ironbase: close writer before swap: %w", ErrIo)
	}

	oldName := se.name + ".old"
	se.root.Remove(oldName)
	if err := se.root.Rename(se.name, oldName); err != nil {
		return fmt.Errorf("ironbase: stage old file: %w", ErrIo)
	}
	if err := se.root.Rename(tmpName, se.name); err != nil {
		se.root.Rename(oldName, se.name)
		return fmt.Errorf("ironbase: rename compact file: %w", ErrIo)
	}

	reader, err := se.root.OpenFile(se.name, os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ironbase: reopen reader: %w", ErrIo)
	}
	writer, err := se.root.OpenFile(se.name, os.O_RDWR, 0o644)
	if err != nil {
		reader.Close()
		return fmt.Errorf("ironbase: reopen writer: %w", ErrIo)
	}

	hdr, err := readHeader(reader)
	if err != nil {
		reader.Close()
		writer.Close()
		return err
	}

	se.reader = reader
	se.writer = writer
	se.header = hdr
	se.tail = maxInt64(fileSize(writer), DataStart)

	se.root.Remove(oldName)
	return nil
}
