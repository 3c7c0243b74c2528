// The operator registry: a capability-based dispatch table rather than an
// inheritance hierarchy. Each entry knows only how to match its own
// operator; Evaluate (filter.go) owns path resolution and composition.
package query

import (
	"fmt"
	"regexp"
	"sort"

	json "github.com/goccy/go-json"
)

// fieldOperator matches a single field-level operator against the value
// found at a path (ok reports whether the path resolved at all) using the
// operator's filter argument. whole is the complete document, needed by
// $elemMatch to recurse through Evaluate.
type fieldOperator func(ev *evaluator, docValue any, present bool, arg any) (bool, error)

var fieldOperators = map[string]fieldOperator{
	"$eq":        opEq,
	"$ne":        opNe,
	"$gt":        opCmp(func(c int) bool { return c > 0 }),
	"$gte":       opCmp(func(c int) bool { return c >= 0 }),
	"$lt":        opCmp(func(c int) bool { return c < 0 }),
	"$lte":       opCmp(func(c int) bool { return c <= 0 }),
	"$in":        opIn,
	"$nin":       opNin,
	"$exists":    opExists,
	"$type":      opType,
	"$regex":     opRegex,
	"$all":       opAll,
	"$elemMatch": opElemMatch,
	"$size":      opSize,
}

func deepEqual(a, b any) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	var na, nb any
	_ = json.Unmarshal(aj, &na)
	_ = json.Unmarshal(bj, &nb)
	return canonicalJSON(na) == canonicalJSON(nb)
}

// canonicalJSON re-marshals v with object keys sorted, giving a string
// suitable for equality comparison regardless of key order.
func canonicalJSON(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += ","
			}
			kb, _ := json.Marshal(k)
			s += string(kb) + ":" + canonicalJSON(t[k])
		}
		return s + "}"
	case []any:
		s := "["
		for i, e := range t {
			if i > 0 {
				s += ","
			}
			s += canonicalJSON(e)
		}
		return s + "]"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func opEq(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	if !present {
		return arg == nil, nil
	}
	return deepEqual(docValue, arg), nil
}

func opNe(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	eq, _ := opEq(nil, docValue, present, arg)
	return !eq, nil
}

// numericCompare orders two decoded JSON values if both are numbers or
// both are strings; any other combination is incomparable.
func numericCompare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func opCmp(accept func(int) bool) fieldOperator {
	return func(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
		if !present {
			return false, nil
		}
		c, ok := numericCompare(docValue, arg)
		if !ok {
			return false, nil
		}
		return accept(c), nil
	}
}

func opIn(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	list, ok := arg.([]any)
	if !ok {
		return false, fmt.Errorf("%w: $in requires an array", ErrInvalidQuery)
	}
	if !present {
		docValue = nil
	}
	for _, v := range list {
		if deepEqual(docValue, v) {
			return true, nil
		}
	}
	return false, nil
}

func opNin(ev *evaluator, docValue any, present bool, arg any) (bool, error) {
	in, err := opIn(ev, docValue, present, arg)
	if err != nil {
		return false, err
	}
	return !in, nil
}

func opExists(_ *evaluator, _ any, present bool, arg any) (bool, error) {
	want, _ := arg.(bool)
	return present == want, nil
}

func jsonTypeTag(v any, present bool) string {
	if !present || v == nil {
		return "null"
	}
	switch v.(type) {
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "null"
	}
}

func opType(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	want, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("%w: $type requires a string", ErrInvalidQuery)
	}
	return jsonTypeTag(docValue, present) == want, nil
}

func opRegex(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	if !present {
		return false, nil
	}
	s, ok := docValue.(string)
	if !ok {
		return false, nil
	}
	pattern, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("%w: $regex requires a string pattern", ErrInvalidQuery)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("%w: invalid $regex pattern: %v", ErrInvalidQuery, err)
	}
	return re.MatchString(s), nil
}

func opAll(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	want, ok := arg.([]any)
	if !ok {
		return false, fmt.Errorf("%w: $all requires an array", ErrInvalidQuery)
	}
	if !present {
		return len(want) == 0, nil
	}
	arr, ok := docValue.([]any)
	if !ok {
		return false, nil
	}
	for _, w := range want {
		found := false
		for _, v := range arr {
			if deepEqual(v, w) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func opSize(_ *evaluator, docValue any, present bool, arg any) (bool, error) {
	if !present {
		return false, nil
	}
	arr, ok := docValue.([]any)
	if !ok {
		return false, nil
	}
	want, ok := arg.(float64)
	if !ok {
		return false, fmt.Errorf("%w: $size requires a number", ErrInvalidQuery)
	}
	return float64(len(arr)) == want, nil
}

func opElemMatch(ev *evaluator, docValue any, present bool, arg any) (bool, error) {
	if !present {
		return false, nil
	}
	arr, ok := docValue.([]any)
	if !ok {
		return false, nil
	}
	sub, ok := arg.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%w: $elemMatch requires an object", ErrInvalidQuery)
	}
	for _, el := range arr {
		if elDoc, ok := el.(map[string]any); ok {
			match, err := ev.evalFilter(elDoc, sub)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
			continue
		}

		// Scalar array element: sub must be a conjunction of field
		// operators (e.g. {$gte:80,$lt:85}) applied to the element
		// itself rather than a nested field path.
		if ops, ok := operatorConjunction(sub); ok {
			allMatch := true
			for opName, arg := range ops {
				fn, known := fieldOperators[opName]
				if !known {
					return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, opName)
				}
				matched, err := fn(ev, el, true, arg)
				if err != nil {
					return false, err
				}
				if !matched {
					allMatch = false
					break
				}
			}
			if allMatch {
				return true, nil
			}
			continue
		}
		if deepEqual(el, sub) {
			return true, nil
		}
	}
	return false, nil
}
