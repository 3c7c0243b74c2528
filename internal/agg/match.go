package agg

import "github.com/ironbase-db/ironbase/internal/query"

// matchStage delegates to the Query Engine's filter evaluator. A $match
// placed first in the pipeline is the stage the planner can fold into an
// IndexScan before aggregation ever runs.
type matchStage struct {
	filter map[string]any
}

func (s *matchStage) Apply(docs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		ok, err := query.Evaluate(doc, s.filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}
