package btree

import (
	"os"
	"sync"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// Change describes a single pending mutation to apply during Prepare.
type Change struct {
	Op     ChangeOp
	Key    Key
	Offset int64 // Insert: new document offset. Delete: offset being removed.
	OldKey Key   // Update only: the key under which Offset was previously stored.
}

type ChangeOp int

const (
	OpInsert ChangeOp = iota
	OpDelete
	OpUpdate
)

// Tree is a disk-resident B+Tree index. The live node set is held
// entirely in memory as a synthetic-id -> node map; Prepare clones this
// map, applies a batch of changes to the clone, and serializes the
// clone to a temp file. Commit atomically renames that temp file into
// place and reloads state from it. This matches the two-phase contract
// in full: nothing touched by Prepare is visible until Commit succeeds.
type Tree struct {
	mu sync.RWMutex

	path   string
	unique bool
	alg    checksum.Algorithm

	nodes  map[int64]*node
	root   int64
	nextID int64
	height int
	keyCnt int
}

// Open loads path if it exists, or initializes a new empty tree (a
// single empty leaf root) otherwise.
func Open(path string, unique bool, alg checksum.Algorithm) (*Tree, error) {
	t := &Tree{path: path, unique: unique, alg: alg, nodes: map[int64]*node{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		root := newLeaf()
		t.nextID = 1
		id := t.nextID
		t.nextID++
		t.nodes[id] = root
		t.root = id
		t.height = 1
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	return loadTree(path, data)
}

func loadTree(path string, data []byte) (*Tree, error) {
	if len(data) < headerSize {
		return nil, ErrCorruption
	}
	hdr, err := decodeHeader(data[:headerSize])
	if err != nil {
		return nil, err
	}

	t := &Tree{
		path:   path,
		unique: hdr.Unique,
		alg:    hdr.Algorithm,
		nodes:  map[int64]*node{},
		root:   hdr.Root,
		height: hdr.Height,
		keyCnt: hdr.KeyCount,
	}

	pos := headerSize
	maxID := int64(0)
	for pos < len(data) {
		n, consumed, err := decodeAt(data[pos:], t.alg)
		if err != nil {
			return nil, err
		}
		// The node's id is the real file offset it was written at,
		// which is also what every referencing child/nextLeaf pointer
		// already stores, so no translation is needed on load.
		id := int64(pos)
		t.nodes[id] = n
		if id > maxID {
			maxID = id
		}
		pos += consumed
	}
	t.nextID = maxID + 1
	return t, nil
}

func (t *Tree) node(id int64) *node { return t.nodes[id] }

// Search descends from root doing a binary search over each node's keys
// until a leaf, returning the matching document offset if present.
func (t *Tree) Search(key Key) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.node(t.root)
	for !n.isLeaf() {
		idx := upperBound(n.keys, key)
		n = t.node(n.children[idx])
	}
	idx := lowerBound(n.keys, key)
	if idx < len(n.keys) && n.keys[idx].Equal(key) {
		return n.values[idx], true
	}
	return 0, false
}

// RangeScan walks the leaf-linked list starting from lo's leaf, emitting
// offsets whose key falls within [lo, hi] per the inclusivity flags. A
// nil lo means "from the first key"; a nil hi means "to the last key".
func (t *Tree) RangeScan(lo, hi *Key, loInclusive, hiInclusive bool) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.node(t.root)
	for !n.isLeaf() {
		var idx int
		if lo == nil {
			idx = 0
		} else {
			idx = upperBound(n.keys, *lo)
		}
		n = t.node(n.children[idx])
	}

	var out []int64
	for n != nil {
		for i, k := range n.keys {
			if lo != nil {
				c := k.Compare(*lo)
				if c < 0 || (c == 0 && !loInclusive) {
					continue
				}
			}
			if hi != nil {
				c := k.Compare(*hi)
				if c > 0 || (c == 0 && !hiInclusive) {
					return out
				}
			}
			out = append(out, n.values[i])
		}
		if n.nextLeaf == 0 {
			break
		}
		n = t.node(n.nextLeaf)
	}
	return out
}

// lowerBound returns the index of the first key >= target.
func lowerBound(keys []Key, target Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid].Compare(target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the child index to descend into for target: the
// count of keys <= target.
func upperBound(keys []Key, target Key) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid].Compare(target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
