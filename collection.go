// Collection: the per-namespace handle exposing the document CRUD and
// index-lifecycle surface. A Collection owns no storage itself — every
// document and index lives in the Database's storage engine and index
// trees — it is a thin, name-scoped view plus its own index-manager lock,
// the way the spec's Index Manager is described as "guarded by its own
// reader-writer lock" distinct from the Storage Engine's.
package ironbase

import (
	"fmt"
	"os"
	"sync"

	"github.com/ironbase-db/ironbase/internal/planner"
)

// Collection is a named view over a Database's documents and indexes.
type Collection struct {
	db   *Database
	name string

	idxMu sync.RWMutex
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// CreateIndex builds a single-field index on path. Sparse indexes omit
// documents missing the field; unique indexes reject a build (or a
// subsequent write) that would map two different documents to the same
// key.
func (c *Collection) CreateIndex(name, path string, unique, sparse bool) error {
	return c.createIndex(name, []string{path}, unique, sparse)
}

// CreateCompoundIndex builds a multi-field index over paths, in order:
// the first path is the leading (most selective for prefix matching)
// field.
func (c *Collection) CreateCompoundIndex(name string, paths []string, unique, sparse bool) error {
	return c.createIndex(name, paths, unique, sparse)
}

func (c *Collection) createIndex(name string, paths []string, unique, sparse bool) error {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	se := c.db.storage
	if err := se.blockWrite(); err != nil {
		return err
	}
	defer se.unblockWrite()

	cs := se.collection(c.name)
	if _, exists := cs.indexes[name]; exists {
		return fmt.Errorf("ironbase: create index %s: %w", name, ErrIndexBuildFailed)
	}

	idx := &indexMeta{Name: name, Collection: c.name, Paths: paths, Unique: unique, Sparse: sparse}
	if err := openIndex(se.dir, idx, c.db.config.ChecksumAlgorithm); err != nil {
		return err
	}

	docs, err := se.scanLive(c.name)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		key, ok := buildIndexKey(idx, doc)
		if !ok {
			continue
		}
		offset := cs.catalog[normalizeID(recordID(doc))]
		if err := idx.Tree.Insert(key, offset); err != nil {
			os.Remove(indexFilePath(se.dir, c.name, name))
			return fmt.Errorf("ironbase: build index %s: %w", name, classifyIndexError(err))
		}
	}

	tmp, err := idx.Tree.Prepare(nil)
	if err != nil {
		return fmt.Errorf("ironbase: persist index %s: %w", name, err)
	}
	if err := idx.Tree.Commit(tmp); err != nil {
		return fmt.Errorf("ironbase: persist index %s: %w", name, err)
	}

	cs.indexes[name] = idx
	c.db.cache.InvalidateCollection(c.name)
	return se.flushMetadata()
}

// DropIndex removes name's backing file and metadata entry.
func (c *Collection) DropIndex(name string) error {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	se := c.db.storage
	if err := se.blockWrite(); err != nil {
		return err
	}
	defer se.unblockWrite()

	cs := se.collection(c.name)
	if _, ok := cs.indexes[name]; !ok {
		return fmt.Errorf("ironbase: drop index %s: %w", name, ErrIndexNotFound)
	}
	delete(cs.indexes, name)
	if err := os.Remove(indexFilePath(se.dir, c.name, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ironbase: remove index file %s: %w", name, ErrIo)
	}
	c.db.cache.InvalidateCollection(c.name)
	return se.flushMetadata()
}

// ListIndexes returns every index descriptor defined on the collection.
func (c *Collection) ListIndexes() []planner.IndexDescriptor {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()

	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return nil
	}
	defer se.unblockRead()

	cs, ok := se.collections[c.name]
	if !ok {
		return nil
	}
	out := make([]planner.IndexDescriptor, 0, len(cs.indexes))
	for _, idx := range cs.indexes {
		out = append(out, planner.IndexDescriptor{Name: idx.Name, Paths: idx.Paths, Unique: idx.Unique, Sparse: idx.Sparse})
	}
	return out
}

// indexDescriptors is the same list in the shape the planner consumes,
// used internally by the query path rather than exposed to callers.
func (c *Collection) indexDescriptors() []planner.IndexDescriptor {
	se := c.db.storage
	cs, ok := se.collections[c.name]
	if !ok {
		return nil
	}
	out := make([]planner.IndexDescriptor, 0, len(cs.indexes))
	for _, idx := range cs.indexes {
		out = append(out, planner.IndexDescriptor{Name: idx.Name, Paths: idx.Paths, Unique: idx.Unique, Sparse: idx.Sparse})
	}
	return out
}

func (c *Collection) indexByName(name string) *indexMeta {
	se := c.db.storage
	cs, ok := se.collections[c.name]
	if !ok {
		return nil
	}
	return cs.indexes[name]
}

// closeIndexes is a no-op placeholder for Database.Close's per-collection
// teardown: indexes hold no open file handle between Prepare/Commit calls
// (unlike the primary data file and the WAL), so there is nothing to
// release here beyond what Close already does for the engine as a whole.
func (c *Collection) closeIndexes() {}
