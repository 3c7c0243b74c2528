// Update operator family: $set/$unset/$inc/$mul/$min/$max/$push/$pull/
// $pop/$addToSet/$rename, applied to a document copy before it is written
// as a new record.
package query

import (
	"fmt"
	"sort"
)

// ApplyUpdate returns a new document with updateSpec's operators applied
// to a copy of doc. _id is immutable: any operator path, or any
// conflicting operator naming the same path twice, is rejected before any
// mutation is made.
func ApplyUpdate(doc map[string]any, updateSpec map[string]any) (map[string]any, error) {
	if err := validateUpdateSpec(updateSpec); err != nil {
		return nil, err
	}

	out := deepCopyDoc(doc)
	for op, argsAny := range updateSpec {
		args, ok := argsAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires an object argument", ErrInvalidUpdateSpec, op)
		}
		var err error
		switch op {
		case "$set":
			for path, v := range args {
				SetPath(out, path, v)
			}
		case "$unset":
			for path := range args {
				UnsetPath(out, path)
			}
		case "$inc":
			err = applyNumeric(out, args, func(cur, delta float64) float64 { return cur + delta })
		case "$mul":
			err = applyNumeric(out, args, func(cur, factor float64) float64 { return cur * factor })
		case "$min":
			err = applyNumeric(out, args, func(cur, v float64) float64 {
				if v < cur {
					return v
				}
				return cur
			})
		case "$max":
			err = applyNumeric(out, args, func(cur, v float64) float64 {
				if v > cur {
					return v
				}
				return cur
			})
		case "$push":
			err = applyPush(out, args)
		case "$pull":
			err = applyPull(out, args)
		case "$pop":
			err = applyPop(out, args)
		case "$addToSet":
			err = applyAddToSet(out, args)
		case "$rename":
			err = applyRename(out, args)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// validateUpdateSpec rejects _id modification and any field path named by
// more than one operator, both checked before the update is applied.
func validateUpdateSpec(spec map[string]any) error {
	seen := make(map[string]string)
	for op, argsAny := range spec {
		args, ok := argsAny.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s requires an object argument", ErrInvalidUpdateSpec, op)
		}
		for path := range args {
			if path == "_id" {
				return ErrImmutableField
			}
			if prior, ok := seen[path]; ok && prior != op {
				return fmt.Errorf("%w: conflicting operators on %q", ErrInvalidUpdateSpec, path)
			}
			seen[path] = op
		}
	}
	return nil
}

func applyNumeric(doc map[string]any, args map[string]any, combine func(cur, v float64) float64) error {
	for path, vAny := range args {
		v, ok := toFloat(vAny)
		if !ok {
			return fmt.Errorf("%w: numeric operator on %q requires a number", ErrInvalidUpdateSpec, path)
		}
		cur := 0.0
		if existing, ok := GetPath(doc, path); ok {
			cf, ok := toFloat(existing)
			if !ok {
				return fmt.Errorf("%w: %q is not numeric", ErrInvalidUpdateSpec, path)
			}
			cur = cf
		}
		SetPath(doc, path, combine(cur, v))
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func applyPush(doc map[string]any, args map[string]any) error {
	for path, vAny := range args {
		toAppend, slice, position, sortBy := parsePushModifiers(vAny)

		arr, _ := existingArray(doc, path)
		if position >= 0 && position <= len(arr) {
			arr = append(arr[:position:position], append(toAppend, arr[position:]...)...)
		} else {
			arr = append(arr, toAppend...)
		}

		if sortBy != nil {
			sortArray(arr, sortBy)
		}
		if slice != nil {
			arr = applySlice(arr, *slice)
		}
		SetPath(doc, path, arr)
	}
	return nil
}

// parsePushModifiers interprets a $push argument: either a bare value to
// append, or a {$each, $position, $slice, $sort} modifier document.
func parsePushModifiers(v any) (toAppend []any, slice *int, position int, sortBy any) {
	position = -1
	m, ok := v.(map[string]any)
	if !ok {
		return []any{v}, nil, -1, nil
	}
	each, hasEach := m["$each"]
	if !hasEach {
		return []any{v}, nil, -1, nil
	}
	toAppend, _ = each.([]any)
	if p, ok := m["$position"]; ok {
		if pf, ok := p.(float64); ok {
			position = int(pf)
		}
	}
	if s, ok := m["$slice"]; ok {
		if sf, ok := s.(float64); ok {
			si := int(sf)
			slice = &si
		}
	}
	sortBy = m["$sort"]
	return toAppend, slice, position, sortBy
}

func sortArray(arr []any, sortBy any) {
	switch s := sortBy.(type) {
	case float64:
		desc := s < 0
		sort.SliceStable(arr, func(i, j int) bool {
			c, _ := numericCompare(arr[i], arr[j])
			if desc {
				return c > 0
			}
			return c < 0
		})
	case map[string]any:
		sort.SliceStable(arr, func(i, j int) bool {
			for field, dirAny := range s {
				dir, _ := dirAny.(float64)
				vi, _ := GetPath(asDoc(arr[i]), field)
				vj, _ := GetPath(asDoc(arr[j]), field)
				c, ok := numericCompare(vi, vj)
				if !ok || c == 0 {
					continue
				}
				if dir < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
}

func asDoc(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func applySlice(arr []any, n int) []any {
	if n >= 0 {
		if n < len(arr) {
			return arr[:n]
		}
		return arr
	}
	start := len(arr) + n
	if start < 0 {
		start = 0
	}
	return arr[start:]
}

func applyPull(doc map[string]any, args map[string]any) error {
	for path, cond := range args {
		arr, ok := existingArray(doc, path)
		if !ok {
			continue
		}
		var kept []any
		for _, el := range arr {
			matches, err := pullMatches(el, cond)
			if err != nil {
				return err
			}
			if !matches {
				kept = append(kept, el)
			}
		}
		SetPath(doc, path, kept)
	}
	return nil
}

func pullMatches(el, cond any) (bool, error) {
	if sub, ok := cond.(map[string]any); ok {
		if elDoc, ok := el.(map[string]any); ok {
			return Evaluate(elDoc, sub)
		}
		if ops, ok := operatorConjunction(sub); ok {
			ev := &evaluator{}
			for opName, arg := range ops {
				fn, known := fieldOperators[opName]
				if !known {
					return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, opName)
				}
				matched, err := fn(ev, el, true, arg)
				if err != nil || !matched {
					return false, err
				}
			}
			return true, nil
		}
	}
	return deepEqual(el, cond), nil
}

func applyPop(doc map[string]any, args map[string]any) error {
	for path, dirAny := range args {
		arr, ok := existingArray(doc, path)
		if !ok || len(arr) == 0 {
			continue
		}
		dir, _ := toFloat(dirAny)
		if dir < 0 {
			SetPath(doc, path, arr[1:])
		} else {
			SetPath(doc, path, arr[:len(arr)-1])
		}
	}
	return nil
}

func applyAddToSet(doc map[string]any, args map[string]any) error {
	for path, vAny := range args {
		arr, _ := existingArray(doc, path)
		toAdd := []any{vAny}
		if m, ok := vAny.(map[string]any); ok {
			if each, ok := m["$each"].([]any); ok {
				toAdd = each
			}
		}
		for _, v := range toAdd {
			found := false
			for _, existing := range arr {
				if deepEqual(existing, v) {
					found = true
					break
				}
			}
			if !found {
				arr = append(arr, v)
			}
		}
		SetPath(doc, path, arr)
	}
	return nil
}

func applyRename(doc map[string]any, args map[string]any) error {
	for from, toAny := range args {
		to, ok := toAny.(string)
		if !ok {
			return fmt.Errorf("%w: $rename target must be a string path", ErrInvalidUpdateSpec)
		}
		v, present := GetPath(doc, from)
		if !present {
			continue
		}
		UnsetPath(doc, from)
		SetPath(doc, to, v)
	}
	return nil
}

func existingArray(doc map[string]any, path string) ([]any, bool) {
	v, ok := GetPath(doc, path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func deepCopyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
