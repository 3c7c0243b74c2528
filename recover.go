// WAL replay on open (§4.3's recovery contract).
//
// Under the commit protocol's mandated ordering — WAL prepared, data
// written, indexes committed, metadata flushed, THEN the WAL Commit marker
// appended — a transaction Replay returns (it always found a Commit frame)
// has, by construction, already been fully durable before that marker was
// written. Recovery's job is therefore a defensive idempotency pass: walk
// every committed transaction and reapply only what the reopened catalog
// does not already reflect, the window being a crash between the Commit
// fsync and the WAL truncate that normally follows it.
package ironbase

import (
	"fmt"

	"github.com/ironbase-db/ironbase/internal/wal"
)

// recover replays the WAL against the already-loaded catalog and index
// trees, then clears the log. Called once from Open, before the engine
// accepts any traffic, so it mutates storage directly rather than going
// through blockWrite/runCommit.
func (db *Database) recover() error {
	txs, err := wal.Replay(db.txlog.Path())
	if err != nil {
		return fmt.Errorf("ironbase: wal replay: %w", ErrIo)
	}
	if len(txs) == 0 {
		return nil
	}

	se := db.storage
	touched := make(map[*indexMeta]bool)
	for _, tx := range txs {
		if err := db.reapplyTransaction(tx, touched); err != nil {
			return err
		}
	}

	// Tree.Insert/Delete (the direct-mutation path reapplyIndexChange
	// uses) only update the in-memory node set; persist every index
	// recovery actually touched the same way a transaction commit would,
	// reusing Prepare/Commit with zero additional changes.
	for idx := range touched {
		tmp, err := idx.Tree.Prepare(nil)
		if err != nil {
			return fmt.Errorf("ironbase: persist recovered index %s: %w", idx.Name, err)
		}
		if err := idx.Tree.Commit(tmp); err != nil {
			return fmt.Errorf("ironbase: persist recovered index %s: %w", idx.Name, err)
		}
	}

	if err := se.flushMetadata(); err != nil {
		return err
	}
	db.log.Info().Int("transactions", len(txs)).Msg("wal recovery replayed")
	return db.txlog.Truncate()
}

// reapplyTransaction re-applies one committed transaction's logged
// operations and index changes, skipping anything the catalog already
// reflects. Every index actually mutated is recorded in touched so the
// caller can persist it once recovery finishes.
func (db *Database) reapplyTransaction(tx wal.Transaction, touched map[*indexMeta]bool) error {
	se := db.storage

	for _, op := range tx.Operations {
		if err := db.reapplyOperation(op); err != nil {
			return fmt.Errorf("ironbase: replay tx %d: %w", tx.ID, err)
		}
	}

	for _, ic := range tx.IndexChanges {
		idx := findIndexByName(se, ic.IndexName)
		if idx == nil {
			// The index was dropped after this entry was logged; nothing
			// to reapply against.
			continue
		}
		mutated, err := db.reapplyIndexChange(idx, ic)
		if err != nil {
			db.log.Warn().Err(err).Str("index", ic.IndexName).Msg("wal recovery: index change could not be reapplied")
			continue
		}
		if mutated {
			touched[idx] = true
		}
	}

	return nil
}

func (db *Database) reapplyOperation(op wal.OperationPayload) error {
	se := db.storage
	cs := se.collection(op.Collection)

	switch op.Kind {
	case wal.OpInsert:
		if _, already := cs.catalog[normalizeID(op.DocID)]; already {
			return nil
		}
		payload, err := encodeDocument(op.Collection, op.DocID, Document(op.Document))
		if err != nil {
			return err
		}
		if _, err := se.writeRecord(op.Collection, op.DocID, payload); err != nil {
			return err
		}
		cs.documentCount++
		if id, ok := normalizeID(op.DocID).(int64); ok && id > cs.lastID {
			cs.lastID = id
		}

	case wal.OpUpdate:
		current, ok, err := se.readDocument(op.Collection, op.DocID)
		if err != nil {
			return err
		}
		if ok && documentsEqual(current, op.Document) {
			return nil
		}
		oldOffset, hadOld := cs.catalog[normalizeID(op.OldDocID)]
		payload, err := encodeDocument(op.Collection, op.DocID, Document(op.Document))
		if err != nil {
			return err
		}
		newOffset, err := se.writeRecord(op.Collection, op.DocID, payload)
		if err != nil {
			return err
		}
		if hadOld {
			tomb, err := encodeTombstone(op.Collection, op.OldDocID, DeleteSuperseded, newOffset)
			if err != nil {
				return err
			}
			if _, err := writeFrame(se.writer, se.tail, tomb); err != nil {
				return err
			}
			se.tail += int64(lengthPrefixSize + len(tomb))
			_ = oldOffset
			cs.tombstoneCount++
		}

	case wal.OpDelete:
		if _, already := cs.catalog[normalizeID(op.DocID)]; !already {
			return nil
		}
		payload, err := encodeTombstone(op.Collection, op.DocID, DeleteExplicit, 0)
		if err != nil {
			return err
		}
		if _, err := se.writeTombstone(op.Collection, op.DocID, payload); err != nil {
			return err
		}
		cs.documentCount--
		cs.tombstoneCount++
	}
	return nil
}

// reapplyIndexChange reapplies ic against idx if not already reflected,
// reporting whether it actually mutated the tree (so the caller knows
// whether the in-memory-only direct mutation needs persisting).
func (db *Database) reapplyIndexChange(idx *indexMeta, ic wal.IndexChangePayload) (bool, error) {
	se := db.storage
	cs := se.collection(idx.Collection)

	switch ic.Kind {
	case wal.IndexInsert:
		offset, ok := cs.catalog[normalizeID(ic.DocID)]
		if !ok {
			return false, nil
		}
		key := keyFromWAL(ic.Key)
		if existing, found := idx.Tree.Search(key); found && existing == offset {
			return false, nil
		}
		return true, idx.Tree.Insert(key, offset)

	case wal.IndexDelete:
		key := keyFromWAL(ic.Key)
		offset, found := idx.Tree.Search(key)
		if !found {
			return false, nil
		}
		return true, idx.Tree.Delete(key, offset)

	case wal.IndexUpdate:
		mutated := false
		oldKey := keyFromWAL(ic.OldKey)
		if offset, found := idx.Tree.Search(oldKey); found {
			if err := idx.Tree.Delete(oldKey, offset); err != nil {
				return mutated, err
			}
			mutated = true
		}
		newOffset, ok := cs.catalog[normalizeID(ic.DocID)]
		if !ok {
			return mutated, nil
		}
		newKey := keyFromWAL(ic.Key)
		if existing, found := idx.Tree.Search(newKey); found && existing == newOffset {
			return mutated, nil
		}
		return true, idx.Tree.Insert(newKey, newOffset)
	}
	return false, nil
}

func findIndexByName(se *storageEngine, name string) *indexMeta {
	for _, cs := range se.collections {
		if idx, ok := cs.indexes[name]; ok {
			return idx
		}
	}
	return nil
}

// documentsEqual compares two decoded document bodies for the "already
// applied" idempotency check, ignoring the reserved bookkeeping keys that
// differ between the WAL-logged intent and the on-disk record's envelope.
func documentsEqual(stored, logged map[string]any) bool {
	for k, v := range logged {
		sv, ok := stored[k]
		if !ok || !valuesEqual(sv, v) {
			return false
		}
	}
	for k := range stored {
		if k == "_id" || k == "_collection" {
			continue
		}
		if _, ok := logged[k]; !ok {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		return documentsEqual(am, bm)
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return as == bs
}
