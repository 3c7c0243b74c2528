// Index Metadata and the per-collection index manager.
//
// Each index owns one internal/btree.Tree backed by its own file,
// `<collection>_<index>.idx`, alongside the database file.
package ironbase

import (
	"fmt"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/btree"
	"github.com/ironbase-db/ironbase/internal/checksum"
	"github.com/ironbase-db/ironbase/internal/query"
)

// indexMeta describes one index: its owning collection, the field path(s)
// it is built on (more than one path means a compound index), and the
// B+Tree backing it.
type indexMeta struct {
	Name       string
	Collection string
	Paths      []string
	Unique     bool
	Sparse     bool
	Tree       *btree.Tree
}

func indexFilePath(dir, collection, name string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.idx", collection, name))
}

// openIndex opens (or creates) the backing tree for idx. Called both when
// a new index is created and when reopening a database whose metadata
// snapshot already names this index.
func openIndex(dir string, idx *indexMeta, alg checksum.Algorithm) error {
	tree, err := btree.Open(indexFilePath(dir, idx.Collection, idx.Name), idx.Unique, alg)
	if err != nil {
		return fmt.Errorf("open index %s: %w", idx.Name, err)
	}
	idx.Tree = tree
	return nil
}

// buildIndexKey extracts idx's field path(s) from doc and converts the
// extracted value(s) into a btree.Key, honoring sparsity: a sparse index
// on a document missing the field yields (zero Key, false).
func buildIndexKey(idx *indexMeta, doc Document) (btree.Key, bool) {
	if len(idx.Paths) == 1 {
		v, ok := query.GetPath(doc, idx.Paths[0])
		if !ok {
			if idx.Sparse {
				return btree.Key{}, false
			}
			return btree.Null(), true
		}
		return valueToKey(v), true
	}

	parts := make([]btree.Key, 0, len(idx.Paths))
	anyPresent := false
	for _, p := range idx.Paths {
		v, ok := query.GetPath(doc, p)
		if ok {
			anyPresent = true
			parts = append(parts, valueToKey(v))
		} else {
			parts = append(parts, btree.Null())
		}
	}
	if idx.Sparse && !anyPresent {
		return btree.Key{}, false
	}
	return btree.Composite(parts...), true
}

// valueToKey maps a value onto the btree.Key variant set. Most callers
// pass a JSON-decoded document (so numbers always arrive as float64), but
// a document field can also still be a native Go numeric literal here:
// the index is built from the in-memory document a caller just passed to
// InsertOneTx/UpdateOneTx, before that document has made its own round
// trip through the JSON record encoding. Every integer width collapses to
// the same btree.Float representation as float64 so a key built from
// either source lands in the same tree position.
func valueToKey(v any) btree.Key {
	switch t := v.(type) {
	case nil:
		return btree.Null()
	case bool:
		return btree.Bool(t)
	case float64:
		return btree.Float(t)
	case float32:
		return btree.Float(float64(t))
	case int:
		return btree.Float(float64(t))
	case int32:
		return btree.Float(float64(t))
	case int64:
		return btree.Float(float64(t))
	case string:
		return btree.String(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return btree.Null()
		}
		return btree.String(string(data))
	}
}

// indexFileName derives the collection_index base name an on-disk index
// file uses, for listing/cleanup.
func indexFileName(collection, name string) string {
	return strings.Join([]string{collection, name}, "_") + ".idx"
}

// keyFromWAL rebuilds a btree.Key from the generic `any` a WAL
// IndexChangePayload decodes Key/OldKey into. A btree.Key assigned to an
// IndexChangePayload's `any` field round-trips through JSON as a plain
// object keyed by its exported field names, so decoding it back lands on
// a map[string]any rather than the original struct.
func keyFromWAL(v any) btree.Key {
	m, ok := v.(map[string]any)
	if !ok {
		return btree.Null()
	}
	kindFloat, _ := m["Kind"].(float64)
	switch btree.Kind(int(kindFloat)) {
	case btree.KindInt:
		f, _ := m["Int"].(float64)
		return btree.Int(int64(f))
	case btree.KindFloat:
		f, _ := m["Float"].(float64)
		return btree.Float(f)
	case btree.KindString:
		s, _ := m["Str"].(string)
		return btree.String(s)
	case btree.KindBool:
		b, _ := m["Bool"].(bool)
		return btree.Bool(b)
	case btree.KindComposite:
		raw, _ := m["Composite"].([]any)
		parts := make([]btree.Key, len(raw))
		for i, r := range raw {
			parts[i] = keyFromWAL(r)
		}
		return btree.Composite(parts...)
	default:
		return btree.Null()
	}
}
