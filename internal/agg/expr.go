package agg

import "github.com/ironbase-db/ironbase/internal/query"

// resolveExpr evaluates a $project/$group value expression against doc: a
// string of the form "$path" copies the field at that dot-path, anything
// else is a literal carried through unchanged.
func resolveExpr(doc map[string]any, expr any) any {
	s, ok := expr.(string)
	if !ok || len(s) == 0 || s[0] != '$' {
		return expr
	}
	v, _ := query.GetPath(doc, s[1:])
	return v
}
