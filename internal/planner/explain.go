package planner

import "fmt"

// Explain is the human-readable rendering of a Plan: its strategy, the
// chosen index if any, estimated row count, and the ordered post-steps.
type Explain struct {
	PlanKind      string
	Index         string
	EstimatedRows int
	PostSteps     []string
}

func ExplainPlan(p Plan) Explain {
	steps := make([]string, len(p.PostSteps))
	for i, s := range p.PostSteps {
		steps[i] = postStepName(s)
	}
	return Explain{
		PlanKind:      p.Kind.String(),
		Index:         p.Index,
		EstimatedRows: p.EstimatedRows,
		PostSteps:     steps,
	}
}

func postStepName(s PostStep) string {
	switch s {
	case ApplyFilter:
		return "ApplyFilter"
	case Sort:
		return "Sort"
	case SkipLimit:
		return "SkipLimit"
	case Project:
		return "Project"
	default:
		return "Unknown"
	}
}

// ErrHintNotFound is returned when a caller-supplied index hint does not
// name an existing index.
type ErrHintNotFound struct{ Hint string }

func (e *ErrHintNotFound) Error() string { return fmt.Sprintf("planner: hint %q does not name an index", e.Hint) }

// ErrHintDoesNotCover is returned when the hinted index does not cover any
// field referenced by the query's top-level predicates.
type ErrHintDoesNotCover struct{ Hint string }

func (e *ErrHintDoesNotCover) Error() string {
	return fmt.Sprintf("planner: hint %q does not cover the query's fields", e.Hint)
}

// ValidateHint confirms hint names one of indexes and that its leading
// path appears among filter's top-level predicate fields.
func ValidateHint(hint string, filter map[string]any, indexes []IndexDescriptor) (IndexDescriptor, error) {
	for _, idx := range indexes {
		if idx.Name != hint {
			continue
		}
		preds := extractPredicates(filter)
		if _, ok := preds[idx.Paths[0]]; !ok {
			return idx, &ErrHintDoesNotCover{Hint: hint}
		}
		return idx, nil
	}
	return IndexDescriptor{}, &ErrHintNotFound{Hint: hint}
}

// PlanWithHint builds a Plan that forces the given index, skipping scoring
// entirely once ValidateHint has confirmed it is usable.
func PlanWithHint(idx IndexDescriptor, filter map[string]any) Plan {
	preds := extractPredicates(filter)
	p := preds[idx.Paths[0]]
	if p.hasEquality {
		return Plan{Kind: IndexPointLookup, Index: idx.Name, EqualityPaths: idx.Paths[:1], Score: 1000, PostSteps: []PostStep{ApplyFilter, Sort, SkipLimit, Project}}
	}
	return Plan{
		Kind: IndexRangeScan, Index: idx.Name,
		RangeLo: p.lo, RangeHi: p.hi, RangeLoIncl: p.loIncl, RangeHiIncl: p.hiIncl,
		PostSteps: []PostStep{ApplyFilter, Sort, SkipLimit, Project},
	}
}
