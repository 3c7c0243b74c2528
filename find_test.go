// Find/Explain/sort/projection coverage, including planner index
// selection for exact-match lookups.
package ironbase_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
	"github.com/ironbase-db/ironbase/internal/planner"
)

// TestFindWithIndexExactAndRangeMatch is Scenario B: 1000 documents
// {n: i}, an index on n, an exact match, and a range match with sort
// verification.
func TestFindWithIndexExactAndRangeMatch(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("numbers")

	for i := 0; i < 1000; i++ {
		_, err := coll.InsertOne(ironbase.Document{"n": i})
		require.NoError(t, err)
	}
	require.NoError(t, coll.CreateIndex("numbers_n", "n", false, false))

	cursor, err := coll.Find(map[string]any{"n": float64(517)}, ironbase.FindOptions{})
	require.NoError(t, err)
	docs := cursor.All()
	require.Len(t, docs, 1)
	require.Equal(t, float64(517), docs[0]["n"])

	cursor, err = coll.Find(
		map[string]any{"n": map[string]any{"$gte": float64(100), "$lt": float64(110)}},
		ironbase.FindOptions{Sort: []ironbase.SortSpec{{Path: "n", Direction: 1}}},
	)
	require.NoError(t, err)
	rangeDocs := cursor.All()
	require.Len(t, rangeDocs, 10)
	for i, d := range rangeDocs {
		require.Equal(t, float64(100+i), d["n"])
	}

	explain, err := coll.Explain(map[string]any{"n": float64(517)}, ironbase.FindOptions{})
	require.NoError(t, err)
	require.Equal(t, planner.IndexPointLookup.String(), explain.PlanKind)
	require.Equal(t, "numbers_n", explain.Index)
}

func TestFindOneReturnsNotFoundWhenNoMatch(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("numbers")

	doc, found, err := coll.FindOne(map[string]any{"n": float64(42)})
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, doc)
}

func TestFindSortSkipLimit(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("people")

	names := []string{"carol", "alice", "bob", "dave", "erin"}
	for i, n := range names {
		_, err := coll.InsertOne(ironbase.Document{"name": n, "rank": i})
		require.NoError(t, err)
	}

	cursor, err := coll.Find(nil, ironbase.FindOptions{
		Sort:  []ironbase.SortSpec{{Path: "name", Direction: 1}},
		Skip:  1,
		Limit: 2,
	})
	require.NoError(t, err)
	docs := cursor.All()
	require.Len(t, docs, 2)
	require.Equal(t, "bob", docs[0]["name"])
	require.Equal(t, "carol", docs[1]["name"])
}

func TestFindProjectionIncludeAndExclude(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("people")
	_, err := coll.InsertOne(ironbase.Document{"name": "alice", "age": 30, "city": "NYC"})
	require.NoError(t, err)

	doc, found, err := coll.FindOne(map[string]any{"name": "alice"})
	require.NoError(t, err)
	require.True(t, found)
	id := doc["_id"]

	cursor, err := coll.Find(map[string]any{"name": "alice"}, ironbase.FindOptions{
		Projection: map[string]bool{"name": true},
	})
	require.NoError(t, err)
	included := cursor.All()[0]
	require.Equal(t, "alice", included["name"])
	require.Equal(t, id, included["_id"])
	require.NotContains(t, included, "age")
	require.NotContains(t, included, "city")

	cursor, err = coll.Find(map[string]any{"name": "alice"}, ironbase.FindOptions{
		Projection: map[string]bool{"city": false},
	})
	require.NoError(t, err)
	excluded := cursor.All()[0]
	require.Equal(t, "alice", excluded["name"])
	require.NotContains(t, excluded, "city")
	require.Contains(t, excluded, "age")
}

func TestDistinctReturnsFirstSeenUniqueValues(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("tags")
	_, err := coll.InsertOne(ironbase.Document{"label": "red"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"label": "blue"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"label": "red"})
	require.NoError(t, err)

	values, err := coll.Distinct("label", nil)
	require.NoError(t, err)
	require.Equal(t, []any{"red", "blue"}, values)
}

func TestCreateIndexRejectsDuplicateName(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("numbers")
	require.NoError(t, coll.CreateIndex("idx_n", "n", false, false))
	err := coll.CreateIndex("idx_n", "n", false, false)
	require.Error(t, err)
}

func TestDropIndexRemovesFromListAndExplain(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("numbers")
	require.NoError(t, coll.CreateIndex("idx_n", "n", false, false))
	require.Len(t, coll.ListIndexes(), 1)

	require.NoError(t, coll.DropIndex("idx_n"))
	require.Len(t, coll.ListIndexes(), 0)

	err := coll.DropIndex("idx_n")
	require.Error(t, err)
	require.ErrorIs(t, err, ironbase.ErrIndexNotFound)
}

func TestUniqueIndexRejectsDuplicateValueOnInsert(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("users")
	require.NoError(t, coll.CreateIndex("users_email", "email", true, false))

	_, err := coll.InsertOne(ironbase.Document{"email": "a@example.com"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"email": "a@example.com"})
	require.Error(t, err)
}

func TestCursorNextDocumentAllClose(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("items")
	for i := 0; i < 3; i++ {
		_, err := coll.InsertOne(ironbase.Document{"i": i})
		require.NoError(t, err)
	}

	cursor, err := coll.Find(nil, ironbase.FindOptions{})
	require.NoError(t, err)

	count := 0
	for cursor.Next() {
		_ = cursor.Document()
		count++
	}
	require.Equal(t, 3, count)
	require.False(t, cursor.Next())
	require.NoError(t, cursor.Close())
}
