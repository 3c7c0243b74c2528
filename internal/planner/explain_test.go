package planner

import "testing"

func TestExplainPlanRendersPostSteps(t *testing.T) {
	p := Plan{Kind: IndexPointLookup, Index: "status_idx", EstimatedRows: 1, PostSteps: []PostStep{ApplyFilter, Sort, SkipLimit, Project}}
	ex := ExplainPlan(p)
	if ex.PlanKind != "IndexPointLookup" || ex.Index != "status_idx" {
		t.Fatalf("unexpected explain: %+v", ex)
	}
	want := []string{"ApplyFilter", "Sort", "SkipLimit", "Project"}
	for i, w := range want {
		if ex.PostSteps[i] != w {
			t.Errorf("PostSteps[%d] = %s, want %s", i, ex.PostSteps[i], w)
		}
	}
}

func TestValidateHintNotFound(t *testing.T) {
	_, err := ValidateHint("missing_idx", map[string]any{"a": 1}, nil)
	if _, ok := err.(*ErrHintNotFound); !ok {
		t.Fatalf("expected ErrHintNotFound, got %v", err)
	}
}

func TestValidateHintDoesNotCover(t *testing.T) {
	indexes := []IndexDescriptor{{Name: "a_idx", Paths: []string{"a"}}}
	_, err := ValidateHint("a_idx", map[string]any{"b": 1}, indexes)
	if _, ok := err.(*ErrHintDoesNotCover); !ok {
		t.Fatalf("expected ErrHintDoesNotCover, got %v", err)
	}
}

func TestValidateHintOK(t *testing.T) {
	indexes := []IndexDescriptor{{Name: "a_idx", Paths: []string{"a"}}}
	idx, err := ValidateHint("a_idx", map[string]any{"a": float64(1)}, indexes)
	if err != nil || idx.Name != "a_idx" {
		t.Fatalf("expected a valid hint resolution, got %+v err %v", idx, err)
	}
}

func TestPlanWithHintEquality(t *testing.T) {
	idx := IndexDescriptor{Name: "a_idx", Paths: []string{"a"}}
	p := PlanWithHint(idx, map[string]any{"a": float64(1)})
	if p.Kind != IndexPointLookup || p.Index != "a_idx" {
		t.Fatalf("expected a forced point lookup, got %+v", p)
	}
}

func TestPlanWithHintRange(t *testing.T) {
	idx := IndexDescriptor{Name: "a_idx", Paths: []string{"a"}}
	p := PlanWithHint(idx, map[string]any{"a": map[string]any{"$gte": float64(1)}})
	if p.Kind != IndexRangeScan {
		t.Fatalf("expected a forced range scan, got %+v", p)
	}
}
