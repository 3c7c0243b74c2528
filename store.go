// Storage Engine: durable document storage, the Reserved Region invariant,
// and the in-memory Document Catalog. Grounded on the teacher's DB type —
// os.Root-sandboxed file handles, a tail offset tracking the append
// position, and a state machine of atomic.Int32 + sync.Cond guarding
// concurrent access — minus the teacher's OS-level fileLock: multi-process
// concurrent access to the same file is an explicit non-goal here, so the
// in-process reader-writer lock is the only serialization this engine needs.
package ironbase

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Engine states. stateReadOnly mirrors the teacher's "only readers allowed
// during compaction" state; there is no rehash-equivalent "block everyone"
// state because this engine has no in-place reindexing pass.
const (
	stateAll int32 = iota
	stateReadOnly
	stateClosed
)

// storageEngine owns the primary database file: header, tail offset, and
// the per-collection catalogs. It does not know about indexes, the WAL, or
// query evaluation — those are layered on top by Database and Collection.
type storageEngine struct {
	root   *os.Root
	dir    string
	name   string
	reader *os.File
	writer *os.File
	header *Header
	config Config

	tail int64 // next free offset for a document record

	mu    sync.RWMutex
	state atomic.Int32
	cond  *sync.Cond

	collections map[string]*collectionState

	log zerolog.Logger
}

// openStorage opens dir/name, creating it if absent, and reconstructs the
// in-memory catalog from the metadata snapshot (falling back to a full
// scan if the snapshot is missing or fails to decode). It performs the
// compaction crash-recovery housekeeping described in §4.8 (stray
// `.compact` files are discarded; a `.old` file with no live main file is
// promoted back) before touching the primary file. It does not replay the
// WAL — that is Database.Open's job, since recovery needs the index
// subsystem too.
func openStorage(dir, name string, config Config, log zerolog.Logger) (*storageEngine, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("ironbase: open root %s: %w", dir, ErrIo)
	}

	if err := recoverCompactionArtifacts(root, name); err != nil {
		root.Close()
		return nil, err
	}

	if _, err := root.Stat(name); os.IsNotExist(err) {
		if err := createEmptyDatabase(root, name, config); err != nil {
			root.Close()
			return nil, err
		}
	}

	reader, err := root.OpenFile(name, os.O_RDONLY, 0o644)
	if err != nil {
		root.Close()
		return nil, fmt.Errorf("ironbase: open reader: %w", ErrIo)
	}
	writer, err := root.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		reader.Close()
		root.Close()
		return nil, fmt.Errorf("ironbase: open writer: %w", ErrIo)
	}

	hdr, err := readHeader(reader)
	if err != nil {
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}

	se := &storageEngine{
		root:        root,
		dir:         dir,
		name:        name,
		reader:      reader,
		writer:      writer,
		header:      hdr,
		config:      config,
		tail:        DataStart,
		cond:        sync.NewCond(&sync.Mutex{}),
		collections: make(map[string]*collectionState),
		log:         componentLogger(log, "storage"),
	}
	se.state.Store(stateAll)

	if err := se.loadCatalog(); err != nil {
		reader.Close()
		writer.Close()
		root.Close()
		return nil, err
	}

	if hdr.Dirty {
		se.log.Warn().Msg("database was not closed cleanly, WAL recovery will run")
	}

	return se, nil
}

func recoverCompactionArtifacts(root *os.Root, name string) error {
	compactName := name + ".compact"
	oldName := name + ".old"

	if _, err := root.Stat(compactName); err == nil {
		if err := root.Remove(compactName); err != nil {
			return fmt.Errorf("ironbase: remove stray %s: %w", compactName, ErrIo)
		}
	}

	_, mainErr := root.Stat(name)
	if _, oldErr := root.Stat(oldName); oldErr == nil && os.IsNotExist(mainErr) {
		if err := root.Rename(oldName, name); err != nil {
			return fmt.Errorf("ironbase: promote %s: %w", oldName, ErrIo)
		}
	}
	return nil
}

func createEmptyDatabase(root *os.Root, name string, config Config) error {
	f, err := root.Create(name)
	if err != nil {
		return fmt.Errorf("ironbase: create %s: %w", name, ErrIo)
	}
	defer f.Close()

	hdr := &Header{
		Magic:     Magic,
		Version:   config.FormatVersion,
		PageSize:  HeaderSize,
		Algorithm: config.ChecksumAlgorithm,
	}
	buf, err := hdr.encode()
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("ironbase: write header: %w", ErrIo)
	}
	if err := f.Truncate(DataStart); err != nil {
		return fmt.Errorf("ironbase: reserve region: %w", ErrIo)
	}
	return syncFile(f)
}

// loadCatalog reconstructs se.collections either from the metadata
// snapshot referenced by the header or, failing that, by scanning the
// entire document region from DataStart.
func (se *storageEngine) loadCatalog() error {
	snap, ok, err := se.readSnapshot()
	if err != nil || !ok {
		return se.rebuildFromScan()
	}

	se.collections = make(map[string]*collectionState, len(snap.Collections))
	for _, m := range snap.Collections {
		se.collections[m.Name] = collectionStateFromMeta(m)
	}
	se.tail = maxInt64(fileSize(se.writer), DataStart)
	return nil
}

func (se *storageEngine) readSnapshot() (metadataSnapshot, bool, error) {
	if se.header.MetaOffset == 0 || se.header.MetaSize == 0 {
		return metadataSnapshot{}, false, nil
	}
	payload, _, err := readFrame(se.reader, se.header.MetaOffset)
	if err != nil {
		se.log.Warn().Err(err).Msg("metadata snapshot unreadable, rebuilding catalog from scan")
		return metadataSnapshot{}, false, nil
	}
	raw, err := unwrapMetaFrame(payload)
	if err != nil {
		se.log.Warn().Err(err).Msg("metadata frame malformed, rebuilding catalog from scan")
		return metadataSnapshot{}, false, nil
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		se.log.Warn().Err(err).Msg("metadata snapshot malformed, rebuilding catalog from scan")
		return metadataSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (se *storageEngine) rebuildFromScan() error {
	byColl, err := rebuildCatalog(se.reader)
	if err != nil {
		return err
	}
	se.collections = make(map[string]*collectionState, len(byColl))
	for name, cat := range byColl {
		cs := newCollectionState(name)
		for id, off := range cat {
			cs.catalog[id] = off
			cs.documentCount++
			if id64, ok := id.(int64); ok && id64 > cs.lastID {
				cs.lastID = id64
			}
		}
		se.collections[name] = cs
	}
	se.tail = maxInt64(fileSize(se.writer), DataStart)
	return nil
}

func (se *storageEngine) collection(name string) *collectionState {
	cs, ok := se.collections[name]
	if !ok {
		cs = newCollectionState(name)
		se.collections[name] = cs
	}
	return cs
}

// writeRecord appends payload at the current tail and points id's catalog
// entry at the new offset. It does not adjust document/tombstone counts —
// callers (crud.go) own that bookkeeping since it differs between insert,
// update, and delete.
func (se *storageEngine) writeRecord(collection string, id any, payload []byte) (int64, error) {
	offset := se.tail
	n, err := writeFrame(se.writer, offset, payload)
	if err != nil {
		return 0, err
	}
	se.tail += n
	se.collection(collection).catalog[normalizeID(id)] = offset
	return offset, nil
}

// writeTombstone appends a tombstone record and removes id from the live
// catalog, so subsequent reads immediately observe the deletion even
// before the next flush_metadata.
func (se *storageEngine) writeTombstone(collection string, id any, payload []byte) (int64, error) {
	offset := se.tail
	n, err := writeFrame(se.writer, offset, payload)
	if err != nil {
		return 0, err
	}
	se.tail += n
	delete(se.collection(collection).catalog, normalizeID(id))
	return offset, nil
}

// readDocument returns the live record for id, or (nil, false) if it is
// absent or has no catalog entry (already tombstoned/compacted away).
func (se *storageEngine) readDocument(collection string, id any) (map[string]any, bool, error) {
	cs, ok := se.collections[collection]
	if !ok {
		return nil, false, nil
	}
	offset, ok := cs.catalog[normalizeID(id)]
	if !ok {
		return nil, false, nil
	}
	payload, _, err := readFrame(se.reader, offset)
	if err != nil {
		return nil, false, err
	}
	doc, err := decodeRecord(payload)
	if err != nil {
		return nil, false, err
	}
	if isTombstone(doc) {
		return nil, false, nil
	}
	return doc, true, nil
}

// scanLive yields every live document in collection in file-offset order
// (insertion order for documents never updated), skipping any catalog
// entry that happens to resolve to a tombstone (defensive; writeTombstone
// already removes the catalog entry so this should not occur in practice).
func (se *storageEngine) scanLive(collection string) ([]map[string]any, error) {
	cs, ok := se.collections[collection]
	if !ok {
		return nil, nil
	}
	offsets := make([]int64, 0, len(cs.catalog))
	for _, offset := range cs.catalog {
		offsets = append(offsets, offset)
	}
	slices.Sort(offsets)
	out := make([]map[string]any, 0, len(offsets))
	for _, offset := range offsets {
		payload, _, err := readFrame(se.reader, offset)
		if err != nil {
			return nil, err
		}
		doc, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		if isTombstone(doc) {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// flushMetadata serializes every collection's state and writes it as its
// own frame. FormatV1 always targets the fixed Reserved Metadata Region
// at HeaderSize and never touches se.tail. FormatV2 targets the current
// tail like any other frame and advances se.tail past it, so the next
// document write can never land on the same offset and silently
// overwrite the metadata a crash recovery would otherwise need to read.
func (se *storageEngine) flushMetadata() error {
	snap := metadataSnapshot{Collections: make([]collectionMeta, 0, len(se.collections))}
	for _, cs := range se.collections {
		snap.Collections = append(snap.Collections, cs.toMeta())
	}

	raw, err := encodeSnapshot(snap, se.config.FormatVersion)
	if err != nil {
		return err
	}
	framed, err := wrapMetaFrame(raw)
	if err != nil {
		return err
	}

	offset := se.tail
	if se.config.FormatVersion == FormatV1 {
		offset = HeaderSize
	}
	n, err := writeFrame(se.writer, offset, framed)
	if err != nil {
		return err
	}
	if se.config.FormatVersion != FormatV1 {
		se.tail = offset + n
	}

	se.header.Version = se.config.FormatVersion
	se.header.MetaOffset = offset
	se.header.MetaSize = int64(len(framed))
	if err := writeHeader(se.writer, se.header); err != nil {
		return err
	}
	return syncFile(se.writer)
}

func (se *storageEngine) markDirty(dirty bool) error {
	se.header.Dirty = dirty
	return writeHeader(se.writer, se.header)
}

func (se *storageEngine) close() error {
	se.cond.L.Lock()
	se.state.Store(stateClosed)
	se.cond.Broadcast()
	se.cond.L.Unlock()

	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.markDirty(false); err != nil {
		se.log.Warn().Err(err).Msg("failed to clear dirty flag on close")
	}

	var firstErr error
	for _, err := range []error{se.reader.Close(), se.writer.Close(), se.root.Close()} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// blockWrite waits for exclusive access (no compaction in flight) and
// takes the write lock. Pair with unblockWrite.
func (se *storageEngine) blockWrite() error {
	se.cond.L.Lock()
	for se.state.Load() != stateAll {
		if se.state.Load() == stateClosed {
			se.cond.L.Unlock()
			return ErrClosed
		}
		se.cond.Wait()
	}
	se.mu.Lock()
	se.cond.L.Unlock()
	return nil
}

func (se *storageEngine) unblockWrite() { se.mu.Unlock() }

// blockRead waits for the engine to be open (reads are allowed both in
// the normal state and while a compaction holds stateReadOnly) and takes
// the read lock.
func (se *storageEngine) blockRead() error {
	se.cond.L.Lock()
	for se.state.Load() == stateClosed {
		se.cond.L.Unlock()
		return ErrClosed
	}
	se.mu.RLock()
	se.cond.L.Unlock()
	return nil
}

func (se *storageEngine) unblockRead() { se.mu.RUnlock() }

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
