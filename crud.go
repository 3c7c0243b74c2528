// Collection write surface: Insert/Update/Delete, each in an implicit
// single-operation transaction, plus *_tx variants that stage onto a
// caller-supplied explicit Transaction instead of committing immediately.
package ironbase

import (
	"errors"
	"fmt"

	"github.com/ironbase-db/ironbase/internal/query"
	"github.com/ironbase-db/ironbase/internal/wal"
)

// InsertOne inserts doc, assigning an auto-incrementing integer _id
// unless doc already carries one.
func (c *Collection) InsertOne(doc Document) (any, error) {
	tx, err := c.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	id, err := c.InsertOneTx(tx, doc)
	if err != nil {
		c.db.RollbackTransaction(tx)
		return nil, err
	}
	if err := c.db.CommitTransaction(tx); err != nil {
		return nil, err
	}
	return id, nil
}

// InsertMany inserts every document in docs as a single transaction: all
// succeed or none do.
func (c *Collection) InsertMany(docs []Document) ([]any, error) {
	tx, err := c.db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		id, err := c.InsertOneTx(tx, doc)
		if err != nil {
			c.db.RollbackTransaction(tx)
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := c.db.CommitTransaction(tx); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertOneTx stages an insert on tx without committing it.
func (c *Collection) InsertOneTx(tx *Transaction, doc Document) (any, error) {
	se := c.db.storage
	id, ok := doc["_id"]
	if !ok {
		reserved, err := c.reserveID()
		if err != nil {
			return nil, err
		}
		id = reserved
	}
	id = normalizeID(id)

	full := make(Document, len(doc)+2)
	for k, v := range doc {
		full[k] = v
	}
	full["_id"] = id
	full["_collection"] = c.name

	if err := se.blockRead(); err != nil {
		return nil, err
	}
	if _, exists := se.collection(c.name).catalog[id]; exists {
		se.unblockRead()
		return nil, fmt.Errorf("ironbase: insert: %w", ErrDuplicateKey)
	}
	changes := c.indexChangesForInsert(id, full)
	se.unblockRead()

	op := stagedOp{kind: wal.OpInsert, collection: c.name, docID: id, document: full}
	if err := tx.stage(op, changes); err != nil {
		return nil, err
	}
	return id, nil
}

func (c *Collection) reserveID() (int64, error) {
	se := c.db.storage
	if err := se.blockWrite(); err != nil {
		return 0, err
	}
	defer se.unblockWrite()
	cs := se.collection(c.name)
	cs.lastID++
	return cs.lastID, nil
}

func (c *Collection) indexChangesForInsert(id any, doc Document) []stagedIndexChange {
	se := c.db.storage
	cs := se.collection(c.name)
	changes := make([]stagedIndexChange, 0, len(cs.indexes))
	for _, idx := range cs.indexes {
		key, ok := buildIndexKey(idx, doc)
		if !ok {
			continue
		}
		changes = append(changes, stagedIndexChange{idx: idx, kind: wal.IndexInsert, key: key, docID: id})
	}
	return changes
}

// UpdateOne applies updateSpec to the first document matching filter,
// returning whether a document was matched and whether it was actually
// modified (a no-op $set that sets a field to its current value still
// counts as matched but not modified).
func (c *Collection) UpdateOne(filter, updateSpec map[string]any) (matched, modified int, err error) {
	return c.updateWithLimit(filter, updateSpec, 1)
}

// UpdateMany applies updateSpec to every document matching filter.
func (c *Collection) UpdateMany(filter, updateSpec map[string]any) (matched, modified int, err error) {
	return c.updateWithLimit(filter, updateSpec, 0)
}

func (c *Collection) updateWithLimit(filter, updateSpec map[string]any, limit int) (int, int, error) {
	docs, _, err := c.executeFind(filter, FindOptions{Limit: limit})
	if err != nil {
		return 0, 0, err
	}
	if len(docs) == 0 {
		return 0, 0, nil
	}

	tx, err := c.db.BeginTransaction()
	if err != nil {
		return 0, 0, err
	}
	modified := 0
	for _, doc := range docs {
		didModify, err := c.updateOneTxLocked(tx, doc, updateSpec)
		if err != nil {
			c.db.RollbackTransaction(tx)
			return 0, 0, err
		}
		if didModify {
			modified++
		}
	}
	if err := c.db.CommitTransaction(tx); err != nil {
		return 0, 0, err
	}
	return len(docs), modified, nil
}

// UpdateOneTx stages an update for the given already-fetched document
// (typically returned by FindOne/Find) onto tx.
func (c *Collection) UpdateOneTx(tx *Transaction, doc Document, updateSpec map[string]any) (bool, error) {
	return c.updateOneTxLocked(tx, doc, updateSpec)
}

func (c *Collection) updateOneTxLocked(tx *Transaction, doc Document, updateSpec map[string]any) (bool, error) {
	updated, err := query.ApplyUpdate(doc, updateSpec)
	if err != nil {
		return false, classifyQueryError(err)
	}
	if documentsEqual(doc, updated) {
		return false, nil
	}

	id := normalizeID(recordID(doc))
	updated["_id"] = id
	updated["_collection"] = c.name

	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return false, err
	}
	changes := c.indexChangesForUpdate(id, doc, updated)
	se.unblockRead()

	op := stagedOp{kind: wal.OpUpdate, collection: c.name, docID: id, oldDocID: id, document: updated}
	if err := tx.stage(op, changes); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection) indexChangesForUpdate(id any, oldDoc, newDoc Document) []stagedIndexChange {
	se := c.db.storage
	cs := se.collection(c.name)
	oldOffset := cs.catalog[normalizeID(id)]
	changes := make([]stagedIndexChange, 0, len(cs.indexes))
	for _, idx := range cs.indexes {
		oldKey, hadOld := buildIndexKey(idx, oldDoc)
		newKey, hasNew := buildIndexKey(idx, newDoc)
		switch {
		case hadOld && hasNew:
			if oldKey.Equal(newKey) {
				continue
			}
			changes = append(changes, stagedIndexChange{idx: idx, kind: wal.IndexUpdate, key: newKey, oldKey: oldKey, docID: id, oldOffset: oldOffset})
		case hadOld && !hasNew:
			changes = append(changes, stagedIndexChange{idx: idx, kind: wal.IndexDelete, key: oldKey, docID: id, oldOffset: oldOffset})
		case !hadOld && hasNew:
			changes = append(changes, stagedIndexChange{idx: idx, kind: wal.IndexInsert, key: newKey, docID: id})
		}
	}
	return changes
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(filter map[string]any) (int, error) {
	return c.deleteWithLimit(filter, 1)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(filter map[string]any) (int, error) {
	return c.deleteWithLimit(filter, 0)
}

func (c *Collection) deleteWithLimit(filter map[string]any, limit int) (int, error) {
	docs, _, err := c.executeFind(filter, FindOptions{Limit: limit})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTransaction()
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if err := c.DeleteOneTx(tx, doc); err != nil {
			c.db.RollbackTransaction(tx)
			return 0, err
		}
	}
	if err := c.db.CommitTransaction(tx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// DeleteOneTx stages a delete for an already-fetched document onto tx.
func (c *Collection) DeleteOneTx(tx *Transaction, doc Document) error {
	id := normalizeID(recordID(doc))

	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return err
	}
	cs := se.collection(c.name)
	oldOffset := cs.catalog[id]
	changes := make([]stagedIndexChange, 0, len(cs.indexes))
	for _, idx := range cs.indexes {
		key, ok := buildIndexKey(idx, doc)
		if !ok {
			continue
		}
		changes = append(changes, stagedIndexChange{idx: idx, kind: wal.IndexDelete, key: key, docID: id, oldOffset: oldOffset})
	}
	se.unblockRead()

	op := stagedOp{kind: wal.OpDelete, collection: c.name, docID: id}
	return tx.stage(op, changes)
}

func classifyQueryError(err error) error {
	switch {
	case errors.Is(err, query.ErrImmutableField):
		return fmt.Errorf("ironbase: update: %w", ErrImmutableField)
	case errors.Is(err, query.ErrInvalidUpdateSpec):
		return fmt.Errorf("ironbase: update: %w", ErrInvalidUpdateSpec)
	case errors.Is(err, query.ErrUnsupportedOperator):
		return fmt.Errorf("ironbase: update: %w", ErrUnsupportedOperator)
	default:
		return err
	}
}
