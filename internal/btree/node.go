package btree

import (
	"encoding/binary"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// Order is the B+Tree fan-out: at most Order-1 keys per node. Deletes
// remove keys without merging or rebalancing nodes, so a non-root node
// can hold fewer than Order/2 keys.
const Order = 32

const (
	maxKeys = Order - 1 // 31
	minKeys = Order / 2 // 16
)

type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindInternal
)

// node is the in-memory representation of one B+Tree page, addressed
// within a Tree by a synthetic id (see tree.go). children/next/values
// ultimately resolve to real index-file byte offsets only at encode
// time, via the two-pass layout commit() performs.
type node struct {
	kind nodeKind
	keys []Key

	// Leaf fields: values[i] is the document offset for keys[i].
	values   []int64
	nextLeaf int64 // id of the next leaf in this Tree's node map, 0 if none

	// Internal fields: len(children) == len(keys)+1, each a node id.
	children []int64
}

func newLeaf() *node      { return &node{kind: kindLeaf} }
func newInternal() *node  { return &node{kind: kindInternal} }
func (n *node) isLeaf() bool { return n.kind == kindLeaf }
func (n *node) full() bool   { return len(n.keys) > maxKeys }

type wireKey struct {
	Kind      Kind      `json:"t"`
	Int       int64     `json:"i,omitempty"`
	Float     float64   `json:"f,omitempty"`
	Str       string    `json:"s,omitempty"`
	Bool      bool      `json:"b,omitempty"`
	Composite []wireKey `json:"c,omitempty"`
}

func toWireKey(k Key) wireKey {
	w := wireKey{Kind: k.Kind, Int: k.Int, Float: k.Float, Str: k.Str, Bool: k.Bool}
	for _, c := range k.Composite {
		w.Composite = append(w.Composite, toWireKey(c))
	}
	return w
}

func fromWireKey(w wireKey) Key {
	k := Key{Kind: w.Kind, Int: w.Int, Float: w.Float, Str: w.Str, Bool: w.Bool}
	for _, c := range w.Composite {
		k.Composite = append(k.Composite, fromWireKey(c))
	}
	return k
}

func marshalKeys(keys []Key) ([]byte, error) {
	wks := make([]wireKey, len(keys))
	for i, k := range keys {
		wks[i] = toWireKey(k)
	}
	return json.Marshal(wks)
}

func unmarshalKeys(buf []byte) ([]Key, error) {
	var wks []wireKey
	if err := json.Unmarshal(buf, &wks); err != nil {
		return nil, err
	}
	keys := make([]Key, len(wks))
	for i, w := range wks {
		keys[i] = fromWireKey(w)
	}
	return keys, nil
}

// bodyLen returns the exact body length (kind + keys + values/children
// section, excluding the outer u32 length prefix and the trailing u64
// checksum) this node will occupy once encoded with the given keysJSON
// blob. It depends only on element counts, never on the actual offset
// values resolved for children/nextLeaf/values, which is what lets
// commit() lay out every node's position in one forward pass before any
// offset is known.
func bodyLen(n *node, keysJSON []byte) int {
	size := 1 + 4 + len(keysJSON) // kind + keysLen + keys
	if n.isLeaf() {
		size += 4 + 8*len(n.values) // valuesCount + values
		size += 8                  // nextLeaf
	} else {
		size += 4 + 8*len(n.children) // childrenCount + children
	}
	return size
}

// totalFrameSize is the full on-disk size of a node frame: u32 length
// prefix + body + u64 checksum.
func totalFrameSize(n *node, keysJSON []byte) int {
	return 4 + bodyLen(n, keysJSON) + 8
}

// encode serializes n using resolvedChildren/resolvedNextLeaf in place of
// the synthetic ids stored on n, and resolvedValues which for a leaf are
// already real document-file offsets (no resolution needed).
func encode(n *node, alg checksum.Algorithm, resolvedChildren []int64, resolvedNextLeaf int64) ([]byte, error) {
	keysJSON, err := marshalKeys(n.keys)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, bodyLen(n, keysJSON))
	body = append(body, byte(n.kind))
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(keysJSON)))
	body = append(body, lb[:]...)
	body = append(body, keysJSON...)

	var u8 [8]byte
	if n.isLeaf() {
		binary.LittleEndian.PutUint32(lb[:], uint32(len(n.values)))
		body = append(body, lb[:]...)
		for _, v := range n.values {
			binary.LittleEndian.PutUint64(u8[:], uint64(v))
			body = append(body, u8[:]...)
		}
		binary.LittleEndian.PutUint64(u8[:], uint64(resolvedNextLeaf))
		body = append(body, u8[:]...)
	} else {
		binary.LittleEndian.PutUint32(lb[:], uint32(len(resolvedChildren)))
		body = append(body, lb[:]...)
		for _, c := range resolvedChildren {
			binary.LittleEndian.PutUint64(u8[:], uint64(c))
			body = append(body, u8[:]...)
		}
	}

	sum := checksum.Sum8(alg, body)

	frame := make([]byte, 4+len(body)+8)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)
	binary.LittleEndian.PutUint64(frame[4+len(body):], sum)
	return frame, nil
}

// decodeAt parses the node frame starting at buf[0], returning the node
// (with children/nextLeaf/values holding real file offsets, reused
// directly as this Tree's node ids for a freshly loaded tree) and the
// number of bytes consumed.
func decodeAt(buf []byte, alg checksum.Algorithm) (*node, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("%w: short node frame", ErrCorruption)
	}
	bodyLen := binary.LittleEndian.Uint32(buf[0:4])
	total := 4 + int(bodyLen) + 8
	if len(buf) < total {
		return nil, 0, fmt.Errorf("%w: truncated node frame", ErrCorruption)
	}
	body := buf[4 : 4+bodyLen]
	wantSum := binary.LittleEndian.Uint64(buf[4+bodyLen : total])
	if checksum.Sum8(alg, body) != wantSum {
		return nil, 0, fmt.Errorf("%w: node checksum mismatch", ErrCorruption)
	}

	pos := 0
	kind := nodeKind(body[pos])
	pos++
	keysLen := binary.LittleEndian.Uint32(body[pos : pos+4])
	pos += 4
	keys, err := unmarshalKeys(body[pos : pos+int(keysLen)])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	pos += int(keysLen)

	n := &node{kind: kind, keys: keys}
	if kind == kindLeaf {
		count := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		n.values = make([]int64, count)
		for i := range n.values {
			n.values[i] = int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
			pos += 8
		}
		n.nextLeaf = int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
		pos += 8
	} else {
		count := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		n.children = make([]int64, count)
		for i := range n.children {
			n.children[i] = int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
			pos += 8
		}
	}

	return n, total, nil
}
