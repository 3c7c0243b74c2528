package planner

import (
	"math"
	"testing"
)

func TestSelectPlanIDEqualityWinsOutright(t *testing.T) {
	filter := map[string]any{"_id": float64(7), "status": "active"}
	indexes := []IndexDescriptor{{Name: "status_idx", Paths: []string{"status"}, Unique: true}}

	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Kind != IndexPointLookup || p.Index != "_id" {
		t.Fatalf("expected _id point lookup, got %+v", p)
	}
	if !math.IsInf(p.Score, 1) {
		t.Errorf("expected infinite score for _id equality, got %v", p.Score)
	}
}

func TestSelectPlanUniqueEqualityBeatsNonUnique(t *testing.T) {
	filter := map[string]any{"email": "a@example.com"}
	indexes := []IndexDescriptor{
		{Name: "email_unique", Paths: []string{"email"}, Unique: true},
	}
	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Kind != IndexPointLookup || p.Index != "email_unique" {
		t.Fatalf("expected unique index point lookup, got %+v", p)
	}
	if p.Score != 1000 {
		t.Errorf("score = %v, want 1000", p.Score)
	}
}

func TestSelectPlanNonUniqueEquality(t *testing.T) {
	filter := map[string]any{"status": "active"}
	indexes := []IndexDescriptor{{Name: "status_idx", Paths: []string{"status"}}}
	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Kind != IndexPointLookup || p.Score != 500 {
		t.Fatalf("expected non-unique equality score 500, got %+v", p)
	}
}

func TestSelectPlanRangeDisqualifiedAboveSelectivityThreshold(t *testing.T) {
	filter := map[string]any{"age": map[string]any{"$gte": float64(18)}}
	indexes := []IndexDescriptor{{Name: "age_idx", Paths: []string{"age"}}}

	p := SelectPlan(filter, indexes, 1000, func(string) float64 { return 0.9 })
	if p.Kind != CollectionScan {
		t.Fatalf("expected selective-range index to be disqualified into a collection scan, got %+v", p)
	}
}

func TestSelectPlanRangeQualifiesBelowThreshold(t *testing.T) {
	filter := map[string]any{"age": map[string]any{"$gte": float64(18), "$lt": float64(21)}}
	indexes := []IndexDescriptor{{Name: "age_idx", Paths: []string{"age"}}}

	p := SelectPlan(filter, indexes, 1000, func(string) float64 { return 0.05 })
	if p.Kind != IndexRangeScan || p.Index != "age_idx" {
		t.Fatalf("expected a range scan using age_idx, got %+v", p)
	}
}

func TestSelectPlanSparseExists(t *testing.T) {
	filter := map[string]any{"nickname": map[string]any{"$exists": true}}
	indexes := []IndexDescriptor{{Name: "nickname_idx", Paths: []string{"nickname"}, Sparse: true}}

	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Kind != IndexPointLookup || p.Score != 10 {
		t.Fatalf("expected sparse $exists plan with score 10, got %+v", p)
	}
}

func TestSelectPlanCompoundIndexPrefixMatch(t *testing.T) {
	filter := map[string]any{"country": "fr", "city": "paris"}
	indexes := []IndexDescriptor{{Name: "geo_idx", Paths: []string{"country", "city", "zip"}}}

	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Kind != CompoundIndexScan || len(p.EqualityPaths) != 2 {
		t.Fatalf("expected a 2-field compound prefix match, got %+v", p)
	}
}

func TestSelectPlanCompoundIndexFullyMatchedUnique(t *testing.T) {
	filter := map[string]any{"country": "fr", "city": "paris"}
	indexes := []IndexDescriptor{{Name: "geo_idx", Paths: []string{"country", "city"}, Unique: true}}

	p := SelectPlan(filter, indexes, 1000, nil)
	if p.Score < 1000 {
		t.Fatalf("expected a fully-matched unique compound index to score above 1000, got %+v", p)
	}
}

func TestSelectPlanFallsBackToCollectionScan(t *testing.T) {
	filter := map[string]any{"unindexed": "value"}
	p := SelectPlan(filter, nil, 1000, nil)
	if p.Kind != CollectionScan {
		t.Fatalf("expected a collection scan with no usable indexes, got %+v", p)
	}
}
