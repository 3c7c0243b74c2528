package agg

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// groupStage groups documents by an _id expression and reduces each group
// with the requested accumulators. Input order is preserved as group
// discovery order; empty input produces zero groups, and an _id expression
// of the literal null forms exactly one group spanning all input documents.
type groupStage struct {
	idExpr       any
	accumulators map[string]accumulatorSpec
}

type accumulatorSpec struct {
	op   string
	expr any
}

var supportedAccumulators = map[string]bool{
	"$sum": true, "$avg": true, "$min": true, "$max": true, "$first": true, "$last": true,
}

func newGroupStage(spec map[string]any) (*groupStage, error) {
	idExpr, hasID := spec["_id"]
	if !hasID {
		return nil, fmt.Errorf("%w: $group requires an _id expression", ErrInvalidStage)
	}
	accs := make(map[string]accumulatorSpec)
	for field, v := range spec {
		if field == "_id" {
			continue
		}
		accSpec, ok := v.(map[string]any)
		if !ok || len(accSpec) != 1 {
			return nil, fmt.Errorf("%w: %s must name exactly one accumulator", ErrInvalidStage, field)
		}
		for op, expr := range accSpec {
			if !supportedAccumulators[op] {
				return nil, fmt.Errorf("%w: accumulator %s", ErrUnsupportedStage, op)
			}
			accs[field] = accumulatorSpec{op: op, expr: expr}
		}
	}
	return &groupStage{idExpr: idExpr, accumulators: accs}, nil
}

type groupAccum struct {
	id       any
	sums     map[string]float64
	counts   map[string]int
	extreme  map[string]any
	first    map[string]any
	last     map[string]any
	firstSet map[string]bool
}

func newGroupAccum(id any) *groupAccum {
	return &groupAccum{
		id:       id,
		sums:     make(map[string]float64),
		counts:   make(map[string]int),
		extreme:  make(map[string]any),
		first:    make(map[string]any),
		last:     make(map[string]any),
		firstSet: make(map[string]bool),
	}
}

func (s *groupStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	order := make([]string, 0)
	groups := make(map[string]*groupAccum)

	for _, doc := range docs {
		idVal := resolveGroupID(doc, s.idExpr)
		key, err := canonicalKey(idVal)
		if err != nil {
			return nil, fmt.Errorf("%w: non-encodable _id expression result", ErrInvalidStage)
		}
		g, ok := groups[key]
		if !ok {
			g = newGroupAccum(idVal)
			groups[key] = g
			order = append(order, key)
		}
		for field, accSpec := range s.accumulators {
			v := resolveExpr(doc, accSpec.expr)
			applyAccumulator(g, field, accSpec.op, v)
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		g := groups[key]
		result := map[string]any{"_id": g.id}
		for field, accSpec := range s.accumulators {
			result[field] = finalizeAccumulator(g, field, accSpec.op)
		}
		out = append(out, result)
	}
	return out, nil
}

func resolveGroupID(doc map[string]any, idExpr any) any {
	switch t := idExpr.(type) {
	case nil:
		return nil
	case string:
		return resolveExpr(doc, t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = resolveExpr(doc, v)
		}
		return out
	default:
		return t
	}
}

func canonicalKey(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func applyAccumulator(g *groupAccum, field, op string, v any) {
	switch op {
	case "$sum":
		g.sums[field] += toFloatOrZero(v)
	case "$avg":
		g.sums[field] += toFloatOrZero(v)
		g.counts[field]++
	case "$min":
		if cur, ok := g.extreme[field]; !ok || less(v, cur) {
			g.extreme[field] = v
		}
	case "$max":
		if cur, ok := g.extreme[field]; !ok || less(cur, v) {
			g.extreme[field] = v
		}
	case "$first":
		if !g.firstSet[field] {
			g.first[field] = v
			g.firstSet[field] = true
		}
	case "$last":
		g.last[field] = v
	}
}

func finalizeAccumulator(g *groupAccum, field, op string) any {
	switch op {
	case "$sum":
		return g.sums[field]
	case "$avg":
		if g.counts[field] == 0 {
			return nil
		}
		return g.sums[field] / float64(g.counts[field])
	case "$min", "$max":
		return g.extreme[field]
	case "$first":
		return g.first[field]
	case "$last":
		return g.last[field]
	default:
		return nil
	}
}

func toFloatOrZero(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}

// less orders a and b when both are numbers or both are strings; any other
// combination treats a as not-less-than b so the first observed value wins.
func less(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	default:
		return false
	}
}
