package agg

import (
	"fmt"
	"strings"

	"github.com/ironbase-db/ironbase/internal/query"
)

// projectStage reshapes each document per spec: include (value 1/true),
// exclude (value 0/false), rename/copy (value "$source.path"), or a literal
// value. Dot paths are honored on both the destination key and any "$path"
// source expression. A spec is either pure-exclusion or a mix of
// inclusion/rename/literal; mixing true inclusion with exclusion (besides
// _id) is rejected the way MongoDB itself rejects it.
type projectStage struct {
	exclude bool
	spec    map[string]any
}

func newProjectStage(spec map[string]any) (*projectStage, error) {
	if len(spec) == 0 {
		return nil, fmt.Errorf("%w: $project requires at least one field", ErrInvalidStage)
	}
	exclusionOnly := true
	hasExclusion := false
	for field, v := range spec {
		if field == "_id" {
			continue
		}
		if isExclusionValue(v) {
			hasExclusion = true
		} else {
			exclusionOnly = false
		}
	}
	if !exclusionOnly && hasExclusion {
		return nil, fmt.Errorf("%w: $project cannot mix inclusion and exclusion", ErrInvalidStage)
	}
	return &projectStage{exclude: exclusionOnly, spec: spec}, nil
}

func isExclusionValue(v any) bool {
	switch t := v.(type) {
	case float64:
		return t == 0
	case bool:
		return t == false
	default:
		return false
	}
}

func isInclusionValue(v any) bool {
	switch t := v.(type) {
	case float64:
		return t != 0
	case bool:
		return t == true
	default:
		return false
	}
}

func (s *projectStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		if s.exclude {
			out[i] = s.applyExclusion(doc)
		} else {
			out[i] = s.applyInclusion(doc)
		}
	}
	return out, nil
}

func (s *projectStage) applyExclusion(doc map[string]any) map[string]any {
	clone := shallowCopy(doc)
	for field := range s.spec {
		// Copy each nested object on a dot path before unsetting, so the
		// input document's own nested maps are left untouched.
		parts := strings.Split(field, ".")
		cur := clone
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				break
			}
			next = shallowCopy(next)
			cur[p] = next
			cur = next
		}
		query.UnsetPath(clone, field)
	}
	return clone
}

func (s *projectStage) applyInclusion(doc map[string]any) map[string]any {
	out := make(map[string]any)
	if v, present := doc["_id"]; present {
		if exclude, ok := s.spec["_id"]; !ok || !isExclusionValue(exclude) {
			out["_id"] = v
		}
	}
	for field, v := range s.spec {
		if field == "_id" {
			continue
		}
		if isInclusionValue(v) {
			if fv, present := query.GetPath(doc, field); present {
				query.SetPath(out, field, fv)
			}
			continue
		}
		query.SetPath(out, field, resolveExpr(doc, v))
	}
	return out
}

func shallowCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
