package planner

import "math"

// predicate is what the planner extracts per top-level field in a filter:
// whether it carries an equality term, a range bound, or a bare $exists.
type predicate struct {
	hasEquality bool
	equalsTo    any
	hasRange    bool
	lo, hi      any
	loIncl      bool
	hiIncl      bool
	hasExists   bool
	existsVal   bool
}

func extractPredicates(filter map[string]any) map[string]predicate {
	preds := make(map[string]predicate)
	for field, val := range filter {
		if len(field) == 0 || field[0] == '$' {
			continue // logical operators are not planner-visible equality/range terms
		}
		p := predicate{loIncl: true, hiIncl: true}
		switch v := val.(type) {
		case map[string]any:
			isOps := len(v) > 0
			for k := range v {
				if len(k) == 0 || k[0] != '$' {
					isOps = false
					break
				}
			}
			if !isOps {
				p.hasEquality = true
				p.equalsTo = val
				break
			}
			for op, arg := range v {
				switch op {
				case "$eq":
					p.hasEquality = true
					p.equalsTo = arg
				case "$gt":
					p.hasRange = true
					p.lo, p.loIncl = arg, false
				case "$gte":
					p.hasRange = true
					p.lo, p.loIncl = arg, true
				case "$lt":
					p.hasRange = true
					p.hi, p.hiIncl = arg, false
				case "$lte":
					p.hasRange = true
					p.hi, p.hiIncl = arg, true
				case "$exists":
					p.hasExists = true
					if b, ok := arg.(bool); ok {
						p.existsVal = b
					}
				}
			}
		default:
			p.hasEquality = true
			p.equalsTo = val
		}
		preds[field] = p
	}
	return preds
}

// SelectPlan scores every candidate index against filter's extracted
// predicates and returns the highest scorer, or a CollectionScan if
// nothing qualifies. estimatedDocCount and estimatedMatchFraction feed the
// range selectivity disqualification rule; callers without real
// statistics may pass a conservative default (e.g. 0.5).
func SelectPlan(filter map[string]any, indexes []IndexDescriptor, estimatedDocCount int, estimatedMatchFraction func(field string) float64) Plan {
	preds := extractPredicates(filter)

	if p, ok := preds["_id"]; ok && p.hasEquality {
		return Plan{
			Kind:          IndexPointLookup,
			Index:         "_id",
			EqualityPaths: []string{"_id"},
			Score:         math.Inf(1),
			EstimatedRows: 1,
			PostSteps:     []PostStep{ApplyFilter, Sort, SkipLimit, Project},
		}
	}

	var best Plan
	best.Kind = CollectionScan
	best.EstimatedRows = estimatedDocCount
	best.Score = 0
	best.PostSteps = []PostStep{ApplyFilter, Sort, SkipLimit, Project}

	consider := func(candidate Plan) {
		if candidate.Score > best.Score {
			candidate.PostSteps = []PostStep{ApplyFilter, Sort, SkipLimit, Project}
			best = candidate
		}
	}

	for _, idx := range indexes {
		if len(idx.Paths) == 1 {
			field := idx.Paths[0]
			p, ok := preds[field]
			if !ok {
				continue
			}
			if p.hasEquality {
				score := 500.0
				if idx.Unique {
					score = 1000.0
				}
				consider(Plan{Kind: IndexPointLookup, Index: idx.Name, EqualityPaths: []string{field}, Score: score, EstimatedRows: 1})
				continue
			}
			if p.hasRange {
				sel := 0.5
				if estimatedMatchFraction != nil {
					sel = estimatedMatchFraction(field)
				}
				if sel < 0.3 {
					consider(Plan{
						Kind: IndexRangeScan, Index: idx.Name,
						RangeLo: p.lo, RangeHi: p.hi, RangeLoIncl: p.loIncl, RangeHiIncl: p.hiIncl,
						Score:         100 / math.Max(sel, 0.001),
						EstimatedRows: int(float64(estimatedDocCount) * sel),
					})
				}
				continue
			}
			if p.hasExists && idx.Sparse {
				consider(Plan{Kind: IndexPointLookup, Index: idx.Name, Score: 10, EstimatedRows: estimatedDocCount})
			}
			continue
		}

		// Compound index: score by the length of the leading prefix of
		// Paths matched by equality terms.
		matched := 0
		for _, path := range idx.Paths {
			p, ok := preds[path]
			if !ok || !p.hasEquality {
				break
			}
			matched++
		}
		if matched == 0 {
			continue
		}
		score := 500.0 + float64(matched)*10 // prefer longer matched prefixes over single-field equality
		if idx.Unique && matched == len(idx.Paths) {
			score = 1000.0 + float64(matched)*10
		}
		consider(Plan{
			Kind: CompoundIndexScan, Index: idx.Name,
			EqualityPaths: append([]string(nil), idx.Paths[:matched]...),
			Score:         score,
			EstimatedRows: estimatedDocCount / (matched + 1),
		})
	}

	return best
}
