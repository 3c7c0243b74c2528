// Crash recovery coverage, Scenario D: a transaction logged to the WAL
// without a Commit frame must never surface after reopen, while one whose
// Commit frame made it to disk must be fully replayed even if the data
// file itself was never touched — the exact gap a crash between the WAL
// fsync and the main-file write would leave behind.
package ironbase_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
	"github.com/ironbase-db/ironbase/internal/wal"
)

func walFilePath(dir, name string) string {
	return filepath.Join(dir, name+".wal")
}

func TestRecoveryDiscardsTransactionWithoutCommit(t *testing.T) {
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "crash.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	w, err := wal.Open(walFilePath(dir, "crash.mlite"))
	require.NoError(t, err)

	payload, err := wal.EncodeOperation(wal.OperationPayload{
		Kind:       wal.OpInsert,
		Collection: "users",
		DocID:      float64(1),
		Document:   map[string]any{"_id": float64(1), "_collection": "users", "name": "ghost"},
	})
	require.NoError(t, err)

	require.NoError(t, w.Append(wal.Begin, 1, nil))
	require.NoError(t, w.Append(wal.Operation, 1, payload))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	db2, err := ironbase.Open(dir, "crash.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	count, err := db2.Collection("users").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRecoveryReplaysCommittedTransactionNeverAppliedToDataFile(t *testing.T) {
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "crash2.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	w, err := wal.Open(walFilePath(dir, "crash2.mlite"))
	require.NoError(t, err)

	payload, err := wal.EncodeOperation(wal.OperationPayload{
		Kind:       wal.OpInsert,
		Collection: "users",
		DocID:      float64(1),
		Document:   map[string]any{"_id": float64(1), "_collection": "users", "name": "recovered"},
	})
	require.NoError(t, err)

	require.NoError(t, w.Append(wal.Begin, 1, nil))
	require.NoError(t, w.Append(wal.Operation, 1, payload))
	require.NoError(t, w.Append(wal.Commit, 1, nil))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	db2, err := ironbase.Open(dir, "crash2.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	count, err := db2.Collection("users").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	doc, found, err := db2.Collection("users").FindOne(map[string]any{"_id": float64(1)})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "recovered", doc["name"])

	require.NoError(t, db2.Close())
	db3, err := ironbase.Open(dir, "crash2.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db3.Close()
	count, err = db3.Collection("users").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count, "recovery must have truncated the WAL so the entry is not replayed twice")
}

func TestRecoveryHonorsAbortMarker(t *testing.T) {
	dir := t.TempDir()
	db, err := ironbase.Open(dir, "abort.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	w, err := wal.Open(walFilePath(dir, "abort.mlite"))
	require.NoError(t, err)

	payload, err := wal.EncodeOperation(wal.OperationPayload{
		Kind:       wal.OpInsert,
		Collection: "users",
		DocID:      float64(1),
		Document:   map[string]any{"_id": float64(1), "_collection": "users", "name": "aborted"},
	})
	require.NoError(t, err)

	require.NoError(t, w.Append(wal.Begin, 1, nil))
	require.NoError(t, w.Append(wal.Operation, 1, payload))
	require.NoError(t, w.Append(wal.Abort, 1, nil))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	db2, err := ironbase.Open(dir, "abort.mlite", ironbase.DefaultConfig())
	require.NoError(t, err)
	defer db2.Close()

	count, err := db2.Collection("users").CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
