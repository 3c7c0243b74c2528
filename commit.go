// Two-phase commit: the protocol driving every Transaction to disk.
//
// Ordering follows the spec's resolved Open Question: WAL prepared
// (Begin+Operations+IndexChanges, fsynced) -> index changes prepared into
// temp files -> data written & fsynced -> index temp files renamed ->
// metadata flushed -> WAL Commit appended & fsynced -> WAL truncated.
// The data fsync, the metadata flush and the WAL fsync+truncate run only
// on commits dueForFlush reports as due; Unsafe also skips the WAL.
package ironbase

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/btree"
	"github.com/ironbase-db/ironbase/internal/wal"
)

// plannedWrite is one data-file append computed before any bytes are
// actually written, so index Prepare (which needs the document's offset)
// can run before the write it describes.
type plannedWrite struct {
	collection  string
	docID       any
	offset      int64
	payload     []byte
	isTombstone bool
}

func offKey(collection string, id any) string {
	return collection + "\x00" + fmt.Sprint(normalizeID(id))
}

// runCommit executes the two-phase commit protocol for tx's staged
// operations. The storage engine's exclusive write lock is held for the
// protocol's entire duration.
func (db *Database) runCommit(tx *Transaction) error {
	se := db.storage
	if err := se.blockWrite(); err != nil {
		return err
	}
	defer se.unblockWrite()

	durability := db.config.Durability
	useWAL := durability.Mode != Unsafe

	if useWAL {
		if err := db.logTransaction(tx); err != nil {
			return err
		}
	}

	planned, newOffsets, err := planWrites(se, tx.ops)
	if err != nil {
		return err
	}

	changesByIndex := make(map[string][]btree.Change)
	indexesByName := make(map[string]*indexMeta)
	for _, ic := range tx.indexChanges {
		indexesByName[ic.idx.Name] = ic.idx
		switch ic.kind {
		case wal.IndexInsert:
			off := newOffsets[offKey(ic.idx.Collection, ic.docID)]
			changesByIndex[ic.idx.Name] = append(changesByIndex[ic.idx.Name], btree.Change{Op: btree.OpInsert, Key: ic.key, Offset: off})
		case wal.IndexDelete:
			changesByIndex[ic.idx.Name] = append(changesByIndex[ic.idx.Name], btree.Change{Op: btree.OpDelete, Key: ic.key, Offset: ic.oldOffset})
		case wal.IndexUpdate:
			off := newOffsets[offKey(ic.idx.Collection, ic.docID)]
			changesByIndex[ic.idx.Name] = append(changesByIndex[ic.idx.Name],
				btree.Change{Op: btree.OpDelete, Key: ic.oldKey, Offset: ic.oldOffset},
				btree.Change{Op: btree.OpInsert, Key: ic.key, Offset: off},
			)
		}
	}

	tempPaths := make(map[string]string)
	for name, changes := range changesByIndex {
		idx := indexesByName[name]
		tmp, err := idx.Tree.Prepare(changes)
		if err != nil {
			for _, p := range tempPaths {
				idx.Tree.Rollback(p)
			}
			return fmt.Errorf("ironbase: prepare index %s: %w", name, classifyIndexError(err))
		}
		tempPaths[name] = tmp
	}

	for _, pw := range planned {
		if _, err := writeFrame(se.writer, pw.offset, pw.payload); err != nil {
			return err
		}
		se.tail = pw.offset + lengthPrefixSize + int64(len(pw.payload))
		if pw.isTombstone {
			delete(se.collection(pw.collection).catalog, normalizeID(pw.docID))
		} else if newOffsets[offKey(pw.collection, pw.docID)] == pw.offset {
			se.collection(pw.collection).catalog[normalizeID(pw.docID)] = pw.offset
		}
	}

	due := db.dueForFlush(durability)
	if due {
		if err := syncFile(se.writer); err != nil {
			return err
		}
	}

	applyMetaDeltas(se, tx.ops)

	for name, tmp := range tempPaths {
		if err := indexesByName[name].Tree.Commit(tmp); err != nil {
			return fmt.Errorf("ironbase: commit index %s: %w", name, err)
		}
	}

	if due {
		if err := se.flushMetadata(); err != nil {
			return err
		}
	}

	if useWAL {
		if err := db.finishTransactionLog(tx, due); err != nil {
			return err
		}
	}

	for coll := range tx.touched {
		db.cache.InvalidateCollection(coll)
	}

	db.log.Info().Str("tx", tx.id).Int("ops", len(tx.ops)).Msg("transaction committed")
	return nil
}

// planWrites lays out tx's operations as a sequence of frames starting at
// the engine's current tail, without writing anything: the offsets it
// assigns are what index Prepare stages against, and what the later
// write pass reproduces exactly (nothing else can advance se.tail while
// the write lock is held).
func planWrites(se *storageEngine, ops []stagedOp) ([]plannedWrite, map[string]int64, error) {
	var planned []plannedWrite
	newOffsets := make(map[string]int64)
	offset := se.tail

	for _, op := range ops {
		switch op.kind {
		case wal.OpInsert:
			payload, err := marshalChecked(op.document)
			if err != nil {
				return nil, nil, err
			}
			planned = append(planned, plannedWrite{collection: op.collection, docID: op.docID, offset: offset, payload: payload})
			newOffsets[offKey(op.collection, op.docID)] = offset
			offset += lengthPrefixSize + int64(len(payload))

		case wal.OpUpdate:
			payload, err := marshalChecked(op.document)
			if err != nil {
				return nil, nil, err
			}
			newOffset := offset
			planned = append(planned, plannedWrite{collection: op.collection, docID: op.docID, offset: newOffset, payload: payload})
			newOffsets[offKey(op.collection, op.docID)] = newOffset
			offset += lengthPrefixSize + int64(len(payload))

			tombPayload, err := encodeTombstone(op.collection, op.oldDocID, DeleteSuperseded, newOffset)
			if err != nil {
				return nil, nil, err
			}
			planned = append(planned, plannedWrite{collection: op.collection, docID: op.oldDocID, offset: offset, payload: tombPayload, isTombstone: false})
			offset += lengthPrefixSize + int64(len(tombPayload))
			// The superseded tombstone above is intentionally not
			// flagged isTombstone: that flag controls whether the write
			// pass deletes the live catalog entry, and here the live
			// entry must keep pointing at newOffset, written just above.
			// The write pass points a catalog entry only at the offset
			// newOffsets records for it, so this frame leaves it alone.

		case wal.OpDelete:
			payload, err := encodeTombstone(op.collection, op.docID, DeleteExplicit, 0)
			if err != nil {
				return nil, nil, err
			}
			planned = append(planned, plannedWrite{collection: op.collection, docID: op.docID, offset: offset, payload: payload, isTombstone: true})
			offset += lengthPrefixSize + int64(len(payload))
		}
	}

	return planned, newOffsets, nil
}

func marshalChecked(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if len(data) > DocumentSizeLimit {
		return nil, ErrDocumentTooLarge
	}
	return data, nil
}

// applyMetaDeltas updates each touched collection's document/tombstone
// counts and last_id in memory; the caller's flushMetadata persists the
// result on a due commit (or a later Checkpoint or Close).
func applyMetaDeltas(se *storageEngine, ops []stagedOp) {
	for _, op := range ops {
		cs := se.collection(op.collection)
		switch op.kind {
		case wal.OpInsert:
			cs.documentCount++
			if id, ok := normalizeID(op.docID).(int64); ok && id > cs.lastID {
				cs.lastID = id
			}
		case wal.OpDelete:
			cs.documentCount--
			cs.tombstoneCount++
		case wal.OpUpdate:
			cs.tombstoneCount++
		}
	}
}

// logTransaction appends Begin, every Operation, and every IndexChange
// entry for tx, then fsyncs the WAL — phase 1 of the commit protocol.
func (db *Database) logTransaction(tx *Transaction) error {
	if err := db.txlog.Append(wal.Begin, tx.walID, nil); err != nil {
		return fmt.Errorf("ironbase: wal begin: %w", ErrIo)
	}
	for _, op := range tx.ops {
		payload, err := wal.EncodeOperation(wal.OperationPayload{
			Kind: op.kind, Collection: op.collection, DocID: op.docID, OldDocID: op.oldDocID, Document: op.document,
		})
		if err != nil {
			return err
		}
		if err := db.txlog.Append(wal.Operation, tx.walID, payload); err != nil {
			return fmt.Errorf("ironbase: wal operation: %w", ErrIo)
		}
	}
	for _, ic := range tx.indexChanges {
		payload, err := wal.EncodeIndexChange(wal.IndexChangePayload{
			IndexName: ic.idx.Name, Kind: ic.kind, Key: ic.key, OldKey: ic.oldKey, DocID: ic.docID,
		})
		if err != nil {
			return err
		}
		if err := db.txlog.Append(wal.IndexChange, tx.walID, payload); err != nil {
			return fmt.Errorf("ironbase: wal index change: %w", ErrIo)
		}
	}
	return db.txlog.Sync()
}

// dueForFlush reports whether this commit should fsync the data file,
// flush the metadata snapshot, and fsync+truncate the WAL, for the given
// durability policy. Safe is due on every commit. Batch shares one
// counter across all three so they land together every BatchSize
// transactions, amortizing fsync cost the way the mode's name promises.
// Unsafe is never due on a normal commit: per §4.3/§6, it skips WAL
// writes for normal operations and defers metadata flushing entirely to
// an explicit Checkpoint, trading a Checkpoint-bounded data-loss window
// for zero per-write fsync cost.
func (db *Database) dueForFlush(d Durability) bool {
	switch d.Mode {
	case Safe:
		return true
	case Unsafe:
		return false
	default: // Batch
		db.batchMu.Lock()
		defer db.batchMu.Unlock()
		db.batchPending++
		due := db.batchPending >= d.BatchSize
		if due {
			db.batchPending = 0
		}
		return due
	}
}

// finishTransactionLog appends the Commit marker and, if due, fsyncs and
// truncates the WAL now; otherwise the marker sits unflushed until a
// later commit's due flush or an explicit Checkpoint.
func (db *Database) finishTransactionLog(tx *Transaction, due bool) error {
	if err := db.txlog.Append(wal.Commit, tx.walID, nil); err != nil {
		return fmt.Errorf("ironbase: wal commit: %w", ErrIo)
	}
	if !due {
		return nil
	}
	if err := db.txlog.Sync(); err != nil {
		return err
	}
	return db.txlog.Truncate()
}

func classifyIndexError(err error) error {
	if errors.Is(err, btree.ErrDuplicateKey) {
		return ErrDuplicateKey
	}
	return err
}
