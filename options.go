// FindOptions and the sort/skip/limit/projection pipeline applied after a
// plan's candidate documents have been filtered.
package ironbase

import (
	"sort"

	"github.com/ironbase-db/ironbase/internal/query"
)

// SortSpec is one field in a multi-key sort, direction 1 (ascending) or
// -1 (descending).
type SortSpec struct {
	Path      string
	Direction int
}

// FindOptions controls post-filter processing of a Find/FindOne result
// set: ordering, pagination, field projection, and an optional forced
// index choice.
type FindOptions struct {
	Sort       []SortSpec
	Skip       int
	Limit      int // 0 means unlimited
	Projection map[string]bool
	Hint       string
}

// applySort performs a stable multi-key sort using MongoDB's cross-type
// ordering: Null < Number < String < Bool < Object < Array, with a
// missing field treated as sorting first (as if it were Null).
func applySort(docs []Document, specs []SortSpec) {
	if len(specs) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range specs {
			vi, oki := query.GetPath(docs[i], s.Path)
			vj, okj := query.GetPath(docs[j], s.Path)
			c := compareSortValues(vi, oki, vj, okj)
			if c == 0 {
				continue
			}
			if s.Direction < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func sortRank(v any, present bool) int {
	if !present || v == nil {
		return 0
	}
	switch v.(type) {
	case float64, int64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case map[string]any:
		return 4
	case []any:
		return 5
	default:
		return 6
	}
}

func compareSortValues(a any, aOk bool, b any, bOk bool) int {
	ra, rb := sortRank(a, aOk), sortRank(b, bOk)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 2:
		as, bs := a.(string), b.(string)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	case 3:
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	default:
		return 0 // objects/arrays: no total order defined, stable sort preserves input order
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}

// applySkipLimit truncates docs per MongoDB's find cursor semantics: skip
// first, then limit (0 = unlimited).
func applySkipLimit(docs []Document, skip, limit int) []Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// applyProjection returns a copy of doc restricted (include mode) or with
// fields removed (exclude mode). An include-mode projection drops `_id`
// only if the caller explicitly sets projection["_id"] = false; by default
// `_id` survives an otherwise-exclusive include list, matching the
// MongoDB projection convention this engine's API mirrors.
func applyProjection(doc Document, projection map[string]bool) Document {
	if len(projection) == 0 {
		return doc
	}

	include := false
	for field, want := range projection {
		if field == "_id" {
			continue
		}
		if want {
			include = true
			break
		}
	}

	out := make(Document, len(doc))
	if include {
		for field, want := range projection {
			if !want || field == "_id" {
				continue
			}
			if v, ok := doc[field]; ok {
				out[field] = v
			}
		}
		if keep, explicit := projection["_id"]; !explicit || keep {
			if v, ok := doc["_id"]; ok {
				out["_id"] = v
			}
		}
		return out
	}

	for k, v := range doc {
		out[k] = v
	}
	for field, want := range projection {
		if !want {
			delete(out, field)
		}
	}
	return out
}
