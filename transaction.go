// Transaction: an ordered, in-memory batch of data operations and index
// changes that becomes durable as a unit via the two-phase commit protocol
// in commit.go. Grounded on the teacher's DB-level exclusivity model (one
// writer at a time, enforced by storageEngine.blockWrite), generalized
// from "one record write" to "one transaction's worth of writes".
package ironbase

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ironbase-db/ironbase/internal/btree"
	"github.com/ironbase-db/ironbase/internal/wal"
)

// TxStatus is a Transaction's lifecycle state.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxCommitted
	TxAborted
)

func (s TxStatus) String() string {
	switch s {
	case TxCommitted:
		return "Committed"
	case TxAborted:
		return "Aborted"
	default:
		return "Pending"
	}
}

// stagedOp is one data operation accumulated on a Transaction, carrying
// everything commit.go needs to both log it to the WAL and apply it to
// the main file.
type stagedOp struct {
	kind       wal.OpKind
	collection string
	docID      any
	oldDocID   any
	document   Document // full record payload (Insert/Update); nil for Delete
}

// stagedIndexChange is one index mutation accumulated alongside a
// stagedOp. offset is already known for removals (the live offset looked
// up before the document was tombstoned); it is left zero for insertions,
// whose offset commit.go resolves from the sibling stagedOp's freshly
// written record.
type stagedIndexChange struct {
	idx      *indexMeta
	kind     wal.IndexChangeKind
	key      btree.Key
	oldKey   btree.Key
	docID    any
	oldOffset int64
}

// Transaction accumulates a batch of operations, applied atomically by
// CommitTransaction. Per the spec's single-writer concurrency model, the
// exclusive storage lock is held for the full duration of the two-phase
// commit, not for the transaction's entire lifetime: operations staged
// via *_tx collection methods are invisible to other readers (and to the
// transaction's own finds) until commit runs. See DESIGN.md for the
// rationale.
type Transaction struct {
	db     *Database
	id     string
	walID  uint64
	mu     sync.Mutex
	status TxStatus

	ops          []stagedOp
	indexChanges []stagedIndexChange
	touched      map[string]bool
}

// ID returns the transaction's UUID, assigned at BeginTransaction.
func (t *Transaction) ID() string { return t.id }

// Status reports the transaction's current lifecycle state.
func (t *Transaction) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) stage(op stagedOp, changes []stagedIndexChange) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxPending {
		return ErrTransactionAborted
	}
	t.ops = append(t.ops, op)
	t.indexChanges = append(t.indexChanges, changes...)
	if t.touched == nil {
		t.touched = make(map[string]bool)
	}
	t.touched[op.collection] = true
	return nil
}

// BeginTransaction starts an explicit transaction. The caller must follow
// up with CommitTransaction or RollbackTransaction; an abandoned pending
// transaction holds no locks (nothing is applied until commit) but does
// occupy an entry in the Database's transaction table until resolved.
func (db *Database) BeginTransaction() (*Transaction, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	tx := &Transaction{
		db:      db,
		id:      uuid.NewString(),
		walID:   db.nextWalTxID(),
		status:  TxPending,
		touched: make(map[string]bool),
	}
	db.mu.Lock()
	db.txns[tx.id] = tx
	db.mu.Unlock()
	return tx, nil
}

// CommitTransaction runs the two-phase commit protocol (§4.3) over every
// operation staged on tx. On success tx transitions to Committed; on
// failure every in-memory change is rolled back and tx transitions to
// Aborted, matching the "any error during commit rolls back" contract.
func (db *Database) CommitTransaction(tx *Transaction) error {
	tx.mu.Lock()
	if tx.status != TxPending {
		tx.mu.Unlock()
		return fmt.Errorf("ironbase: commit: %w", ErrTransactionAborted)
	}
	tx.mu.Unlock()

	if err := db.runCommit(tx); err != nil {
		tx.mu.Lock()
		tx.status = TxAborted
		tx.mu.Unlock()
		db.mu.Lock()
		delete(db.txns, tx.id)
		db.mu.Unlock()
		return err
	}

	tx.mu.Lock()
	tx.status = TxCommitted
	tx.mu.Unlock()
	db.mu.Lock()
	delete(db.txns, tx.id)
	db.mu.Unlock()
	return nil
}

// RollbackTransaction discards every staged operation. Because nothing
// is applied to disk or in-memory state until CommitTransaction runs,
// rollback never touches the storage engine: it only retires tx's
// bookkeeping entry.
func (db *Database) RollbackTransaction(tx *Transaction) error {
	tx.mu.Lock()
	if tx.status != TxPending {
		tx.mu.Unlock()
		return fmt.Errorf("ironbase: rollback: %w", ErrTransactionNotFound)
	}
	tx.status = TxAborted
	tx.mu.Unlock()

	db.mu.Lock()
	delete(db.txns, tx.id)
	db.mu.Unlock()
	return nil
}
