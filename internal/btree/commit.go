package btree

import (
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// Prepare clones the live tree, applies changes to the clone, and
// serializes the result to "<final>.tmp" without touching the live
// file. It returns the temp path for the caller (the WAL coordinator)
// to pass to Commit once every other part of the transaction has
// staged successfully.
func (t *Tree) Prepare(changes []Change) (tempPath string, err error) {
	t.mu.RLock()
	ws := t.cloneWorkspace()
	t.mu.RUnlock()

	for _, c := range changes {
		if err := applyChange(ws, c); err != nil {
			return "", err
		}
	}

	tempPath = t.path + ".tmp"
	if err := writeWorkspace(ws, tempPath, t.unique, t.alg); err != nil {
		os.Remove(tempPath)
		return "", err
	}
	return tempPath, nil
}

// Commit atomically renames tempPath into place and reloads the tree's
// in-memory state from the new file.
func (t *Tree) Commit(tempPath string) error {
	if err := atomic.ReplaceFile(tempPath, t.path); err != nil {
		return fmt.Errorf("btree: commit rename: %w", err)
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("btree: reload after commit: %w", err)
	}
	reloaded, err := loadTree(t.path, data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = reloaded.nodes
	t.root = reloaded.root
	t.nextID = reloaded.nextID
	t.height = reloaded.height
	t.keyCnt = reloaded.keyCnt
	return nil
}

// Rollback discards a staged temp file. The live tree is untouched
// because Prepare only ever mutated a clone.
func (t *Tree) Rollback(tempPath string) error {
	err := os.Remove(tempPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeWorkspace lays out every node in ws in two passes: the first
// assigns each node's final file offset using only element counts (see
// bodyLen), the second encodes each node with its children/nextLeaf
// translated from synthetic ids to those resolved offsets.
func writeWorkspace(ws *workspace, path string, unique bool, alg checksum.Algorithm) error {
	ids := make([]int64, 0, len(ws.nodes))
	keysJSON := make(map[int64][]byte, len(ws.nodes))
	for id, n := range ws.nodes {
		kj, err := marshalKeys(n.keys)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		keysJSON[id] = kj
	}

	offsets := make(map[int64]int64, len(ids))
	cur := int64(headerSize)
	for _, id := range ids {
		offsets[id] = cur
		cur += int64(totalFrameSize(ws.nodes[id], keysJSON[id]))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := fileHeader{Magic: indexMagic, Root: offsets[ws.root], Height: ws.height, KeyCount: ws.keyCnt, Unique: unique, Algorithm: alg}
	hdrBytes, err := hdr.encode()
	if err != nil {
		return err
	}
	if _, err := f.Write(hdrBytes); err != nil {
		return err
	}

	for _, id := range ids {
		n := ws.nodes[id]
		var resolvedChildren []int64
		var resolvedNext int64
		if n.isLeaf() {
			if n.nextLeaf != 0 {
				resolvedNext = offsets[n.nextLeaf]
			}
		} else {
			resolvedChildren = make([]int64, len(n.children))
			for i, c := range n.children {
				resolvedChildren[i] = offsets[c]
			}
		}
		frame, err := encode(n, alg, resolvedChildren, resolvedNext)
		if err != nil {
			return err
		}
		if _, err := f.Write(frame); err != nil {
			return err
		}
	}

	return f.Sync()
}
