// Aggregation pipeline coverage: $match pushed through the planner, then
// $group/$sort/$limit/$skip over dot-path fields.
package ironbase_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
)

// TestAggregateGroupByCityWithSumAndFirst is Scenario E: group by a field
// reference, accumulate $sum and $first over dot-path values, then sort
// descending on the computed total.
func TestAggregateGroupByCityWithSumAndFirst(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("orders")

	_, err := coll.InsertOne(ironbase.Document{"city": "NYC", "addr": map[string]any{"zip": "10001"}, "amount": float64(10)})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"city": "NYC", "addr": map[string]any{"zip": "10002"}, "amount": float64(15)})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"city": "LA", "addr": map[string]any{"zip": "90001"}, "amount": float64(20)})
	require.NoError(t, err)

	pipeline := []map[string]any{
		{"$group": map[string]any{
			"_id":      "$city",
			"total":    map[string]any{"$sum": "$amount"},
			"firstZip": map[string]any{"$first": "$addr.zip"},
		}},
		{"$sort": map[string]any{"total": float64(-1)}},
	}

	out, err := coll.Aggregate(pipeline)
	require.NoError(t, err)
	require.Len(t, out, 2)

	want := []ironbase.Document{
		{"_id": "NYC", "total": float64(25), "firstZip": "10001"},
		{"_id": "LA", "total": float64(20), "firstZip": "90001"},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("aggregate output mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateLeadingMatchUsesIndexedPath(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("events")
	require.NoError(t, coll.CreateIndex("events_kind", "kind", false, false))

	_, err := coll.InsertOne(ironbase.Document{"kind": "click", "value": float64(1)})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"kind": "click", "value": float64(2)})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"kind": "view", "value": float64(5)})
	require.NoError(t, err)

	pipeline := []map[string]any{
		{"$match": map[string]any{"kind": "click"}},
		{"$group": map[string]any{
			"_id":   nil,
			"total": map[string]any{"$sum": "$value"},
		}},
	}

	out, err := coll.Aggregate(pipeline)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Nil(t, out[0]["_id"])
	require.Equal(t, float64(3), out[0]["total"])
}

func TestAggregateLimitAndSkip(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("queue")
	for i := 0; i < 5; i++ {
		_, err := coll.InsertOne(ironbase.Document{"n": float64(i)})
		require.NoError(t, err)
	}

	pipeline := []map[string]any{
		{"$sort": map[string]any{"n": float64(1)}},
		{"$skip": float64(1)},
		{"$limit": float64(2)},
	}

	out, err := coll.Aggregate(pipeline)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, float64(1), out[0]["n"])
	require.Equal(t, float64(2), out[1]["n"])
}

func TestAggregateUnsupportedStageErrors(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("queue")

	_, err := coll.Aggregate([]map[string]any{{"$lookup": map[string]any{}}})
	require.Error(t, err)
	require.ErrorIs(t, err, ironbase.ErrUnsupportedStage)
}
