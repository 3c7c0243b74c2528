// Aggregation pipeline execution. A leading $match stage is resolved
// through the same planner/cache path Find uses, so an indexed pipeline
// never falls back to a full collection scan just because it runs
// through Aggregate instead of Find.
package ironbase

import (
	"errors"
	"fmt"

	"github.com/ironbase-db/ironbase/internal/agg"
)

// Aggregate runs pipeline over the collection's live documents and
// returns the final stage's output.
func (c *Collection) Aggregate(pipeline []map[string]any) ([]Document, error) {
	stages, err := agg.Build(pipeline)
	if err != nil {
		return nil, classifyAggError(err)
	}

	docs, rest, err := c.seedDocuments(pipeline)
	if err != nil {
		return nil, err
	}
	if rest <= len(stages) {
		stages = stages[rest:]
	}

	result, err := agg.Run(docs, stages)
	if err != nil {
		return nil, classifyAggError(err)
	}

	out := make([]Document, len(result))
	for i, d := range result {
		out[i] = Document(d)
	}
	return out, nil
}

// seedDocuments materializes the pipeline's starting document set. When
// pipeline's first stage is $match, the filter is pushed through
// executeFind so an eligible index narrows the scan before any stage
// runs; the returned skip count tells the caller that first stage has
// already been applied and should not run again.
func (c *Collection) seedDocuments(pipeline []map[string]any) ([]map[string]any, int, error) {
	if len(pipeline) > 0 {
		if filter, ok := pipeline[0]["$match"].(map[string]any); ok && len(pipeline[0]) == 1 {
			docs, _, err := c.executeFind(filter, FindOptions{})
			if err != nil {
				return nil, 0, err
			}
			out := make([]map[string]any, len(docs))
			for i, d := range docs {
				out[i] = d
			}
			return out, 1, nil
		}
	}

	se := c.db.storage
	if err := se.blockRead(); err != nil {
		return nil, 0, err
	}
	defer se.unblockRead()
	docs, err := se.scanLive(c.name)
	if err != nil {
		return nil, 0, err
	}
	return docs, 0, nil
}

func classifyAggError(err error) error {
	switch {
	case errors.Is(err, agg.ErrUnsupportedStage):
		return fmt.Errorf("ironbase: aggregate: %w", ErrUnsupportedStage)
	case errors.Is(err, agg.ErrInvalidStage):
		return fmt.Errorf("ironbase: aggregate: %w", ErrInvalidQuery)
	default:
		return fmt.Errorf("ironbase: aggregate: %w", err)
	}
}
