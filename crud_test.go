// Insert/Update/Delete coverage, including the explicit-transaction
// variants and the immutable-_id rejection path.
package ironbase_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	ironbase "github.com/ironbase-db/ironbase"
)

func TestInsertOneAssignsAutoIncrementID(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("widgets")

	id1, err := coll.InsertOne(ironbase.Document{"name": "a"})
	require.NoError(t, err)
	id2, err := coll.InsertOne(ironbase.Document{"name": "b"})
	require.NoError(t, err)

	require.Equal(t, int64(1), id1)
	require.Equal(t, int64(2), id2)
}

func TestInsertOneRejectsDuplicateID(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("widgets")

	_, err := coll.InsertOne(ironbase.Document{"_id": int64(1), "name": "a"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"_id": int64(1), "name": "b"})
	require.Error(t, err)
	require.ErrorIs(t, err, ironbase.ErrDuplicateKey)
}

func TestInsertManyAllOrNothing(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("widgets")

	_, err := coll.InsertOne(ironbase.Document{"_id": int64(5), "name": "existing"})
	require.NoError(t, err)

	_, err = coll.InsertMany([]ironbase.Document{
		{"_id": int64(6), "name": "fresh"},
		{"_id": int64(5), "name": "collides"},
	})
	require.Error(t, err)

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

// TestUpdateOneIncAndPush is Scenario C: insert {_id:1, age:30, tags:["a"]},
// then $inc age and $push a tag in one update_one call.
func TestUpdateOneIncAndPush(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("accounts")

	_, err := coll.InsertOne(ironbase.Document{"_id": float64(1), "age": float64(30), "tags": []any{"a"}})
	require.NoError(t, err)

	matched, modified, err := coll.UpdateOne(
		map[string]any{"_id": float64(1)},
		map[string]any{"$inc": map[string]any{"age": float64(1)}, "$push": map[string]any{"tags": "b"}},
	)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Equal(t, 1, modified)

	doc, found, err := coll.FindOne(map[string]any{"_id": float64(1)})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(31), doc["age"])
	require.Equal(t, []any{"a", "b"}, doc["tags"])

	_, _, err = coll.UpdateOne(
		map[string]any{"_id": float64(1)},
		map[string]any{"$set": map[string]any{"_id": float64(2)}},
	)
	require.Error(t, err)
	require.True(t, errors.Is(err, ironbase.ErrImmutableField))
}

func TestUpdateOneNoopSetStillCountsAsMatched(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("accounts")

	_, err := coll.InsertOne(ironbase.Document{"_id": float64(1), "status": "active"})
	require.NoError(t, err)

	matched, modified, err := coll.UpdateOne(
		map[string]any{"_id": float64(1)},
		map[string]any{"$set": map[string]any{"status": "active"}},
	)
	require.NoError(t, err)
	require.Equal(t, 1, matched)
	require.Equal(t, 0, modified)
}

func TestUpdateManyAppliesToEveryMatch(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("accounts")

	for i := 0; i < 5; i++ {
		_, err := coll.InsertOne(ironbase.Document{"status": "pending"})
		require.NoError(t, err)
	}

	matched, modified, err := coll.UpdateMany(
		map[string]any{"status": "pending"},
		map[string]any{"$set": map[string]any{"status": "done"}},
	)
	require.NoError(t, err)
	require.Equal(t, 5, matched)
	require.Equal(t, 5, modified)

	count, err := coll.CountDocuments(map[string]any{"status": "done"})
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestDeleteOneRemovesSingleMatch(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("sessions")

	_, err := coll.InsertOne(ironbase.Document{"token": "x"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ironbase.Document{"token": "x"})
	require.NoError(t, err)

	n, err := coll.DeleteOne(map[string]any{"token": "x"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	count, err := coll.CountDocuments(map[string]any{"token": "x"})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDeleteManyRemovesAllMatches(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("sessions")

	for i := 0; i < 4; i++ {
		_, err := coll.InsertOne(ironbase.Document{"expired": true})
		require.NoError(t, err)
	}
	_, err := coll.InsertOne(ironbase.Document{"expired": false})
	require.NoError(t, err)

	n, err := coll.DeleteMany(map[string]any{"expired": true})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExplicitTransactionCommitAppliesAllStagedOps(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("ledger")

	tx, err := db.BeginTransaction()
	require.NoError(t, err)

	_, err = coll.InsertOneTx(tx, ironbase.Document{"_id": int64(1), "amount": 10})
	require.NoError(t, err)
	_, err = coll.InsertOneTx(tx, ironbase.Document{"_id": int64(2), "amount": 20})
	require.NoError(t, err)

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count, "staged operations must not be visible before commit")

	require.NoError(t, db.CommitTransaction(tx))

	count, err = coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestExplicitTransactionRollbackDiscardsEverything(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("ledger")

	tx, err := db.BeginTransaction()
	require.NoError(t, err)

	_, err = coll.InsertOneTx(tx, ironbase.Document{"_id": int64(1), "amount": 10})
	require.NoError(t, err)

	require.NoError(t, db.RollbackTransaction(tx))

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	err = db.CommitTransaction(tx)
	require.Error(t, err)
}

func TestTransactionDeleteAndUpdateTxVariants(t *testing.T) {
	db := openTestDB(t)
	coll := db.Collection("inventory")

	_, err := coll.InsertOne(ironbase.Document{"_id": int64(1), "qty": 5})
	require.NoError(t, err)
	doc, found, err := coll.FindOne(map[string]any{"_id": int64(1)})
	require.NoError(t, err)
	require.True(t, found)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)

	modified, err := coll.UpdateOneTx(tx, doc, map[string]any{"$set": map[string]any{"qty": 9}})
	require.NoError(t, err)
	require.True(t, modified)

	require.NoError(t, db.CommitTransaction(tx))

	doc, found, err = coll.FindOne(map[string]any{"_id": int64(1)})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(9), doc["qty"])

	tx, err = db.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, coll.DeleteOneTx(tx, doc))
	require.NoError(t, db.CommitTransaction(tx))

	count, err := coll.CountDocuments(nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
