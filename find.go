// Query execution: turning a planner.Plan into a candidate document set,
// then filtering, sorting, paginating, and projecting it.
package ironbase

import (
	json "github.com/goccy/go-json"

	"github.com/ironbase-db/ironbase/internal/btree"
	"github.com/ironbase-db/ironbase/internal/planner"
	"github.com/ironbase-db/ironbase/internal/query"
)

// Find returns every live document matching filter, after sort/skip/
// limit/projection. The result is fully materialized; there is no
// server-side streaming cursor over disk, matching the planner's own
// one-shot candidate-set model.
func (c *Collection) Find(filter map[string]any, opts FindOptions) (*FindCursor, error) {
	docs, _, err := c.executeFind(filter, opts)
	if err != nil {
		return nil, err
	}
	return &FindCursor{docs: docs}, nil
}

// FindOne returns the first matching document, or (nil, false) if none
// matches.
func (c *Collection) FindOne(filter map[string]any) (Document, bool, error) {
	docs, _, err := c.executeFind(filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// CountDocuments returns the number of live documents matching filter.
func (c *Collection) CountDocuments(filter map[string]any) (int, error) {
	docs, _, err := c.executeFind(filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Distinct returns the set of distinct values found at path across every
// document matching filter, in first-seen order.
func (c *Collection) Distinct(path string, filter map[string]any) ([]any, error) {
	docs, _, err := c.executeFind(filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []any
	for _, doc := range docs {
		v, ok := query.GetPath(doc, path)
		if !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if !seen[string(raw)] {
			seen[string(raw)] = true
			out = append(out, v)
		}
	}
	return out, nil
}

// Explain resolves a plan for filter (honoring opts.Hint if set) without
// executing it.
func (c *Collection) Explain(filter map[string]any, opts FindOptions) (planner.Explain, error) {
	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return planner.Explain{}, err
	}
	cs := se.collections[c.name]
	docCount := 0
	if cs != nil {
		docCount = cs.documentCount
	}
	indexes := c.indexDescriptors()
	se.unblockRead()

	plan, err := c.resolvePlan(filter, opts, indexes, docCount)
	if err != nil {
		return planner.Explain{}, err
	}
	return planner.ExplainPlan(plan), nil
}

func (c *Collection) resolvePlan(filter map[string]any, opts FindOptions, indexes []planner.IndexDescriptor, docCount int) (planner.Plan, error) {
	if opts.Hint != "" {
		idx, err := planner.ValidateHint(opts.Hint, filter, indexes)
		if err != nil {
			return planner.Plan{}, err
		}
		return planner.PlanWithHint(idx, filter), nil
	}
	return planner.SelectPlan(filter, indexes, docCount, nil), nil
}

// executeFind runs the full read path: plan selection (consulting the
// plan cache, which is bypassed while a pending transaction has staged
// operations on this collection), candidate retrieval, filter evaluation,
// then the post-scan sort/skip/limit/projection pipeline. Returns the plan
// actually used alongside the results so callers like UpdateOne/DeleteOne
// can log it.
func (c *Collection) executeFind(filter map[string]any, opts FindOptions) ([]Document, planner.Plan, error) {
	inTx := false
	c.db.mu.Lock()
	for _, tx := range c.db.txns {
		tx.mu.Lock()
		if tx.status == TxPending && tx.touched[c.name] {
			inTx = true
		}
		tx.mu.Unlock()
	}
	c.db.mu.Unlock()

	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return nil, planner.Plan{}, err
	}
	defer se.unblockRead()

	cs, ok := se.collections[c.name]
	docCount := 0
	if ok {
		docCount = cs.documentCount
	}
	indexes := c.indexDescriptors()

	cacheKey := planner.CacheKey{Collection: c.name, FilterDigest: digest(filter), OptionsDigest: digest(opts)}
	var plan planner.Plan
	if entry, hit := c.db.cache.Get(cacheKey); hit && !inTx {
		plan = entry.Plan
	} else {
		p, err := c.resolvePlan(filter, opts, indexes, docCount)
		if err != nil {
			return nil, planner.Plan{}, err
		}
		plan = p
		if !inTx {
			c.db.cache.Put(cacheKey, planner.CacheEntry{Plan: plan})
		}
	}

	candidates, err := c.candidatesForPlan(se, plan, filter)
	if err != nil {
		return nil, plan, err
	}

	matched := make([]Document, 0, len(candidates))
	for _, doc := range candidates {
		ok, err := query.Evaluate(doc, filter)
		if err != nil {
			return nil, plan, err
		}
		if ok {
			matched = append(matched, Document(doc))
		}
	}

	applySort(matched, opts.Sort)
	matched = applySkipLimit(matched, opts.Skip, opts.Limit)
	if len(opts.Projection) > 0 {
		for i, d := range matched {
			matched[i] = applyProjection(d, opts.Projection)
		}
	}
	return matched, plan, nil
}

// candidatesForPlan materializes the document superset a plan names,
// without applying filter itself: index-narrowed plans still need the
// full Evaluate pass for any predicate fields the index does not cover.
func (c *Collection) candidatesForPlan(se *storageEngine, plan planner.Plan, filter map[string]any) ([]map[string]any, error) {
	cs, ok := se.collections[c.name]
	if !ok {
		return nil, nil
	}

	switch plan.Kind {
	case planner.CollectionScan:
		return se.scanLive(c.name)

	case planner.IndexPointLookup:
		if plan.Index == "_id" {
			id, _ := extractEqualityValue(filter, "_id")
			if offset, ok := cs.catalog[normalizeID(id)]; ok {
				return readLiveSingleton(se, offset)
			}
			return nil, nil
		}
		idx := c.indexByName(plan.Index)
		if idx == nil {
			return se.scanLive(c.name)
		}
		val, _ := extractEqualityValue(filter, plan.EqualityPaths[0])
		key := valueToKey(val)
		offset, found := idx.Tree.Search(key)
		if !found {
			return nil, nil
		}
		return readLiveSingleton(se, offset)

	case planner.IndexRangeScan:
		idx := c.indexByName(plan.Index)
		if idx == nil {
			return se.scanLive(c.name)
		}
		lo, hi := keyPtr(plan.RangeLo), keyPtr(plan.RangeHi)
		offsets := idx.Tree.RangeScan(lo, hi, plan.RangeLoIncl, plan.RangeHiIncl)
		return readAllOffsets(se, offsets)

	case planner.CompoundIndexScan:
		idx := c.indexByName(plan.Index)
		if idx == nil {
			return se.scanLive(c.name)
		}
		parts := make([]btree.Key, len(plan.EqualityPaths))
		for i, p := range plan.EqualityPaths {
			val, _ := extractEqualityValue(filter, p)
			parts[i] = valueToKey(val)
		}
		composite := btree.Composite(parts...)
		offset, found := idx.Tree.Search(composite)
		if !found {
			return nil, nil
		}
		return readLiveSingleton(se, offset)
	}
	return se.scanLive(c.name)
}

// readLiveSingleton reads one candidate offset, dropping it if it turns
// out to resolve to a tombstone — a defensive check against an index
// entry that lagged behind a delete.
func readLiveSingleton(se *storageEngine, offset int64) ([]map[string]any, error) {
	doc, err := readAt(se, offset)
	if err != nil {
		return nil, err
	}
	if isTombstone(doc) {
		return nil, nil
	}
	return []map[string]any{doc}, nil
}

func keyPtr(v any) *btree.Key {
	if v == nil {
		return nil
	}
	k := valueToKey(v)
	return &k
}

func readAt(se *storageEngine, offset int64) (map[string]any, error) {
	payload, _, err := readFrame(se.reader, offset)
	if err != nil {
		return nil, err
	}
	return decodeRecord(payload)
}

func readAllOffsets(se *storageEngine, offsets []int64) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(offsets))
	for _, off := range offsets {
		doc, err := readAt(se, off)
		if err != nil {
			return nil, err
		}
		if isTombstone(doc) {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// extractEqualityValue pulls the equality value a planner predicate
// matched against path out of filter directly: either a bare literal or
// an explicit {$eq: value}. The planner only reports which paths and
// operator shapes qualified, not the literal value, by design (it has no
// reason to retain it once scoring is done).
func extractEqualityValue(filter map[string]any, path string) (any, bool) {
	v, ok := filter[path]
	if !ok {
		return nil, false
	}
	if m, ok := v.(map[string]any); ok {
		if eq, ok := m["$eq"]; ok {
			return eq, true
		}
		return nil, false
	}
	return v, true
}

// digest canonicalizes v (a filter or FindOptions) to a cache-key string.
// goccy/go-json, like the standard library, sorts map[string]any keys
// when marshaling, so two structurally identical filters always digest
// identically regardless of original key order.
func digest(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
