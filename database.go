// Database: the top-level handle coordinating the Storage Engine, the WAL,
// every open Collection's indexes, and the shared query/plan cache.
//
// Grounded on the teacher's DB.Open/Close lifecycle (db.go), generalized
// from a single flat keyspace to the collection/index/WAL stack this
// engine's data model requires.
package ironbase

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ironbase-db/ironbase/internal/checksum"
	"github.com/ironbase-db/ironbase/internal/planner"
	"github.com/ironbase-db/ironbase/internal/wal"
)

// Database is the entry point for opening a collection, running explicit
// transactions, and performing whole-file maintenance (compact, checkpoint).
type Database struct {
	dir    string
	name   string
	config Config
	log    zerolog.Logger

	storage *storageEngine
	txlog   *wal.WAL
	cache   *planner.Cache

	walSeq atomic.Uint64

	mu          sync.Mutex
	collections map[string]*Collection
	txns        map[string]*Transaction

	batchMu      sync.Mutex
	batchPending int

	closed atomic.Bool
}

// Open opens dir/name, creating it if absent, recovering the WAL, and
// reopening every index named by the metadata snapshot. If config is the
// zero value, DefaultConfig() is used.
func Open(dir, name string, config Config) (*Database, error) {
	config = config.normalize()
	log := componentLogger(config.Logger, "database")

	se, err := openStorage(dir, name, config, config.Logger)
	if err != nil {
		return nil, err
	}

	if err := openAllIndexes(dir, se, config.ChecksumAlgorithm); err != nil {
		se.close()
		return nil, err
	}

	txlog, err := wal.Open(walPath(dir, name))
	if err != nil {
		se.close()
		return nil, fmt.Errorf("ironbase: open wal: %w", ErrIo)
	}

	db := &Database{
		dir:         dir,
		name:        name,
		config:      config,
		log:         log,
		storage:     se,
		txlog:       txlog,
		cache:       planner.NewCache(config.CacheCapacity),
		collections: make(map[string]*Collection),
		txns:        make(map[string]*Transaction),
	}

	if err := db.recover(); err != nil {
		txlog.Close()
		se.close()
		return nil, err
	}

	if err := se.markDirty(true); err != nil {
		log.Warn().Err(err).Msg("failed to set dirty flag")
	}

	return db, nil
}

func walPath(dir, name string) string {
	return filepath.Join(dir, name+".wal")
}

// openAllIndexes opens (or creates) the backing *btree.Tree for every
// index named in every collection's metadata, called once at startup
// before WAL recovery so recovered IndexChange entries have a live tree
// to mutate.
func openAllIndexes(dir string, se *storageEngine, alg checksum.Algorithm) error {
	for _, cs := range se.collections {
		for _, idx := range cs.indexes {
			if idx.Tree != nil {
				continue
			}
			if err := openIndex(dir, idx, alg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Collection returns a handle for name, creating its bookkeeping lazily.
// A collection with no documents and no indexes is otherwise
// indistinguishable from one that was never used, matching the teacher's
// implicit-namespace-creation style: there is no separate CreateCollection
// call required before inserting into a fresh name.
func (db *Database) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c
	}
	se := db.storage
	if err := se.blockWrite(); err == nil {
		se.collection(name) // ensures collectionState exists
		se.unblockWrite()
	}

	c := &Collection{db: db, name: name}
	db.collections[name] = c
	return c
}

// ListCollections returns every collection name known to the engine,
// including ones with zero live documents but at least one index or a
// prior write.
func (db *Database) ListCollections() []string {
	if err := db.storage.blockRead(); err != nil {
		return nil
	}
	defer db.storage.unblockRead()

	names := make([]string, 0, len(db.storage.collections))
	for name := range db.storage.collections {
		names = append(names, name)
	}
	return names
}

// Checkpoint fsyncs the data file, flushes metadata, then fsyncs and
// truncates the WAL, immediately. It is the only way Unsafe-mode writes
// become durable (Unsafe's commit path skips all of it). Under Batch it
// completes the flush for commits the current batch has not yet flushed;
// under Safe every commit has already done the same work.
func (db *Database) Checkpoint() error {
	if err := db.storage.blockWrite(); err != nil {
		return err
	}
	defer db.storage.unblockWrite()
	if err := syncFile(db.storage.writer); err != nil {
		return err
	}
	if err := db.storage.flushMetadata(); err != nil {
		return err
	}
	if err := db.txlog.Sync(); err != nil {
		return err
	}
	return db.txlog.Truncate()
}

// Close flushes metadata, clears the dirty flag, and releases every file
// handle this Database holds (the primary file, the WAL, and every open
// index file).
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	db.mu.Lock()
	for _, c := range db.collections {
		c.closeIndexes()
	}
	db.mu.Unlock()

	var firstErr error
	if err := db.storage.flushMetadata(); err != nil {
		firstErr = err
	}
	if err := db.txlog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.storage.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// nextWalTxID hands out the monotonically increasing identifier the WAL
// frame format's tx_id field carries. It is distinct from a Transaction's
// user-facing UUID: the WAL wants a compact, strictly ordered counter,
// while the public identity is a UUID per the wider engine's convention
// for naming request-scoped entities.
func (db *Database) nextWalTxID() uint64 {
	return db.walSeq.Add(1)
}
