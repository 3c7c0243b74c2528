package query

import (
	"errors"
	"testing"
)

func TestEvaluateImplicitEquality(t *testing.T) {
	doc := map[string]any{"status": "active"}
	got, err := Evaluate(doc, map[string]any{"status": "active"})
	if err != nil || !got {
		t.Errorf("implicit equality should match, got %v err %v", got, err)
	}
}

func TestEvaluateFieldOperatorConjunction(t *testing.T) {
	doc := map[string]any{"age": float64(42)}
	got, err := Evaluate(doc, map[string]any{"age": map[string]any{"$gte": float64(18), "$lt": float64(65)}})
	if err != nil || !got {
		t.Errorf("conjunction should match, got %v err %v", got, err)
	}
}

func TestEvaluateAndOrNor(t *testing.T) {
	doc := map[string]any{"a": float64(1), "b": float64(2)}

	and, err := Evaluate(doc, map[string]any{"$and": []any{
		map[string]any{"a": float64(1)},
		map[string]any{"b": float64(2)},
	}})
	if err != nil || !and {
		t.Errorf("$and should match, got %v err %v", and, err)
	}

	or, err := Evaluate(doc, map[string]any{"$or": []any{
		map[string]any{"a": float64(9)},
		map[string]any{"b": float64(2)},
	}})
	if err != nil || !or {
		t.Errorf("$or should match on second branch, got %v err %v", or, err)
	}

	nor, err := Evaluate(doc, map[string]any{"$nor": []any{
		map[string]any{"a": float64(9)},
		map[string]any{"b": float64(9)},
	}})
	if err != nil || !nor {
		t.Errorf("$nor should match when no branch matches, got %v err %v", nor, err)
	}
}

func TestEvaluateOrEmptyArrayIsError(t *testing.T) {
	_, err := Evaluate(map[string]any{}, map[string]any{"$or": []any{}})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestEvaluateNot(t *testing.T) {
	doc := map[string]any{"a": float64(1)}
	got, err := Evaluate(doc, map[string]any{"$not": map[string]any{"a": float64(2)}})
	if err != nil || !got {
		t.Errorf("$not should negate a non-matching sub-filter, got %v err %v", got, err)
	}
}

func TestEvaluateUnsupportedLogicalOperator(t *testing.T) {
	_, err := Evaluate(map[string]any{}, map[string]any{"$bogus": []any{}})
	if !errors.Is(err, ErrUnsupportedOperator) {
		t.Errorf("expected ErrUnsupportedOperator, got %v", err)
	}
}

func TestEvaluateDeepNestingExceedsMaxDepth(t *testing.T) {
	filter := map[string]any{"a": float64(1)}
	for i := 0; i < MaxDepth+5; i++ {
		filter = map[string]any{"$not": filter}
	}
	_, err := Evaluate(map[string]any{"a": float64(1)}, filter)
	if !errors.Is(err, ErrQueryError) {
		t.Errorf("expected ErrQueryError for excessive nesting, got %v", err)
	}
}

func TestOperatorConjunctionDistinguishesFromLiteralObject(t *testing.T) {
	if _, ok := operatorConjunction(map[string]any{"city": "paris"}); ok {
		t.Error("a literal object filter value must not be treated as an operator conjunction")
	}
	if _, ok := operatorConjunction(map[string]any{"$gt": float64(1)}); !ok {
		t.Error("an all-$ keyed object must be treated as an operator conjunction")
	}
	if _, ok := operatorConjunction(map[string]any{}); ok {
		t.Error("an empty object must not be treated as an operator conjunction")
	}
}

func TestEvaluateNestedFieldPath(t *testing.T) {
	doc := map[string]any{"address": map[string]any{"city": "paris"}}
	got, err := Evaluate(doc, map[string]any{"address.city": "paris"})
	if err != nil || !got {
		t.Errorf("dot-path field filter should match, got %v err %v", got, err)
	}
}
