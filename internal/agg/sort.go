package agg

import (
	"sort"

	"github.com/ironbase-db/ironbase/internal/query"
)

// sortStage orders the stream by one or more fields; spec maps a dot path
// to 1 (ascending) or -1 (descending). Keys are applied in map-range
// order, so when spec names several fields their precedence is not fixed
// (FindOptions' sort, an ordered slice, does not have this property).
type sortStage struct {
	spec map[string]any
}

func (s *sortStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, len(docs))
	copy(out, docs)

	fields := make([]string, 0, len(s.spec))
	dirs := make([]bool, 0, len(s.spec)) // true = descending
	for field, dirAny := range s.spec {
		dir, _ := dirAny.(float64)
		fields = append(fields, field)
		dirs = append(dirs, dir < 0)
	}

	sort.SliceStable(out, func(i, j int) bool {
		for k, field := range fields {
			vi, _ := query.GetPath(out[i], field)
			vj, _ := query.GetPath(out[j], field)
			c, ok := compareValues(vi, vj)
			if !ok || c == 0 {
				continue
			}
			if dirs[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, nil
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

type limitStage struct{ n int }

func (s *limitStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	if s.n >= len(docs) {
		return docs, nil
	}
	return docs[:s.n], nil
}

type skipStage struct{ n int }

func (s *skipStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	if s.n >= len(docs) {
		return nil, nil
	}
	return docs[s.n:], nil
}
