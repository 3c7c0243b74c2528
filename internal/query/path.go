// Dot-path field access over decoded JSON documents.
package query

import "strings"

// GetPath resolves a dot-separated field path against doc. Intermediate
// values that are not objects cause the path to resolve as "missing"
// (ok=false), matching the evaluation contract's definition of a missing
// field lookup rather than treating it as an error.
func GetPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, present := m[p]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// SetPath writes value at path, creating intermediate objects as needed.
// A path segment that resolves through a non-object value overwrites that
// value with a fresh object, matching MongoDB's $set semantics for dotted
// paths.
func SetPath(doc map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
}

// UnsetPath removes the field at path if it exists. It does not prune
// emptied parent objects.
func UnsetPath(doc map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}
