// Lifecycle and persistence tests: open/reopen, durability modes, and
// the reopen-survives-everything guarantee the rest of the suite leans
// on via openTestDB.
package ironbase_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
)

// openTestDB creates a fresh database in a temporary directory and
// registers cleanup to close it when the test finishes.
func openTestDB(t *testing.T) *ironbase.Database {
	t.Helper()
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "test.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesNewFile(t *testing.T) {
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "fresh.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	require.FileExists(t, filepath.Join(dir, "fresh.mlite"))
}

// TestReopenPersistence is seed Scenario A: insert three documents in
// Safe mode, close, reopen, and confirm both the count and a field
// lookup survive.
func TestReopenPersistence(t *testing.T) {
	dir := t.TempDir()

	db1, err := ironbase.Open(dir, "users.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	users1 := db1.Collection("users")
	_, err = users1.InsertOne(ironbase.Document{"name": "Alice", "age": 30})
	require.NoError(t, err)
	_, err = users1.InsertOne(ironbase.Document{"name": "Bob", "age": 25})
	require.NoError(t, err)
	_, err = users1.InsertOne(ironbase.Document{"name": "Carol", "age": 35})
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := ironbase.Open(dir, "users.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	users2 := db2.Collection("users")
	count, err := users2.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	doc, found, err := users2.FindOne(map[string]any{"name": "Bob"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(25), doc["age"])
}

func TestListCollectionsReflectsUsage(t *testing.T) {
	db := openTestDB(t)
	_ = db.Collection("orders")
	names := db.ListCollections()
	require.Contains(t, names, "orders")
}

func TestCheckpointFlushesUnsafeWrites(t *testing.T) {
	dir := t.TempDir()
	cfg := ironbase.DefaultConfig()
	cfg.Durability = ironbase.Durability{Mode: ironbase.Unsafe}
	path := filepath.Join(dir, "unsafe.mlite")

	db1, err := ironbase.Open(dir, "unsafe.mlite", cfg)
	require.NoError(t, err)
	_, err = db1.Collection("events").InsertOne(ironbase.Document{"kind": "click"})
	require.NoError(t, err)

	beforeCheckpoint, err := fileSize(path)
	require.NoError(t, err)

	require.NoError(t, db1.Checkpoint())

	afterCheckpoint, err := fileSize(path)
	require.NoError(t, err)
	require.Greater(t, afterCheckpoint, beforeCheckpoint,
		"Checkpoint must write a metadata snapshot frame that an Unsafe-mode insert does not")

	require.NoError(t, db1.Close())

	db2, err := ironbase.Open(dir, "unsafe.mlite", cfg)
	require.NoError(t, err)
	defer db2.Close()
	count, err := db2.Collection("events").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
