// Compaction coverage, Scenario F: bulk insert, bulk delete, compact, and
// confirm the file shrinks while every remaining document and index entry
// survives both an in-process check and a reopen.
package ironbase_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
)

func TestCompactReclaimsSpaceAndPreservesLiveDocuments(t *testing.T) {
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "compact.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)

	coll := db.Collection("items")
	require.NoError(t, coll.CreateIndex("items_n", "n", false, false))

	for i := 0; i < 1000; i++ {
		_, err := coll.InsertOne(ironbase.Document{"n": float64(i)})
		require.NoError(t, err)
	}

	_, err = coll.DeleteMany(map[string]any{"n": map[string]any{"$lt": float64(500)}})
	require.NoError(t, err)

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 500, count)

	path := filepath.Join(dir, "compact.mlite")
	before, err := fileSize(path)
	require.NoError(t, err)

	require.NoError(t, db.Compact())

	after, err := fileSize(path)
	require.NoError(t, err)
	require.Less(t, after, before)

	count, err = coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 500, count)

	for i := 500; i < 1000; i += 137 {
		doc, found, err := coll.FindOne(map[string]any{"n": float64(i)})
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, float64(i), doc["n"])
	}

	explain, err := coll.Explain(map[string]any{"n": float64(777)}, ironbase.FindOptions{})
	require.NoError(t, err)
	require.Equal(t, "items_n", explain.Index)

	require.NoError(t, db.Close())

	db2, err := ironbase.Open(dir, "compact.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	count, err = db2.Collection("items").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 500, count)

	doc, found, err := db2.Collection("items").FindOne(map[string]any{"n": float64(999)})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(999), doc["n"])
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
