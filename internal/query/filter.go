// Filter AST evaluation: recursion-bounded, capability-dispatch matching
// of a MongoDB-style filter document against a decoded JSON document.
package query

import (
	"fmt"
	"strings"
)

// MaxDepth bounds recursive filter evaluation (logical operators and
// $elemMatch sub-filters) to guard against pathological nesting.
const MaxDepth = 100

type evaluator struct {
	depth int
}

// Evaluate reports whether doc matches filter.
func Evaluate(doc map[string]any, filter map[string]any) (bool, error) {
	ev := &evaluator{}
	return ev.evalFilter(doc, filter)
}

func (ev *evaluator) evalFilter(doc map[string]any, filter map[string]any) (bool, error) {
	ev.depth++
	defer func() { ev.depth-- }()
	if ev.depth > MaxDepth {
		return false, fmt.Errorf("%w: filter recursion exceeds depth %d", ErrQueryError, MaxDepth)
	}

	for key, val := range filter {
		var ok bool
		var err error
		if strings.HasPrefix(key, "$") {
			ok, err = ev.evalLogical(doc, key, val)
		} else {
			ok, err = ev.evalField(doc, key, val)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (ev *evaluator) evalLogical(doc map[string]any, op string, val any) (bool, error) {
	switch op {
	case "$and":
		subs, err := asFilterList(val)
		if err != nil {
			return false, err
		}
		for _, s := range subs {
			ok, err := ev.evalFilter(doc, s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "$or":
		subs, err := asFilterList(val)
		if err != nil {
			return false, err
		}
		if len(subs) == 0 {
			return false, fmt.Errorf("%w: $or requires a non-empty array", ErrInvalidQuery)
		}
		for _, s := range subs {
			ok, err := ev.evalFilter(doc, s)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "$nor":
		subs, err := asFilterList(val)
		if err != nil {
			return false, err
		}
		for _, s := range subs {
			ok, err := ev.evalFilter(doc, s)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	case "$not":
		sub, ok := val.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: $not requires an object", ErrInvalidQuery)
		}
		matched, err := ev.evalFilter(doc, sub)
		if err != nil {
			return false, err
		}
		return !matched, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

func asFilterList(val any) ([]map[string]any, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an array of filter documents", ErrInvalidQuery)
	}
	out := make([]map[string]any, len(arr))
	for i, v := range arr {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected an array of filter documents", ErrInvalidQuery)
		}
		out[i] = m
	}
	return out, nil
}

func (ev *evaluator) evalField(doc map[string]any, path string, filterVal any) (bool, error) {
	docVal, present := GetPath(doc, path)

	if asOps, ok := operatorConjunction(filterVal); ok {
		for opName, arg := range asOps {
			fn, known := fieldOperators[opName]
			if !known {
				return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, opName)
			}
			matched, err := fn(ev, docVal, present, arg)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil
	}

	return opEq(ev, docVal, present, filterVal)
}

// operatorConjunction reports whether v is a non-empty object every key of
// which is a `$`-operator, in which case it is a conjunction of field-level
// operators rather than an implicit equality against an object literal.
func operatorConjunction(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}
