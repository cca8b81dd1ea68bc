package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/storage"
)

// TableContract checks the behaviour every storage.Table must share. table must be empty.
func TableContract(t *testing.T, table storage.Table) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("get missing", func(t *testing.T) {
		_, err := table.Get(ctx, storage.PartitionConfig, "missing")
		assert.True(t, storage.IsNotFound(err), "err = %v", err)
	})

	t.Run("upsert then get", func(t *testing.T) {
		for _, key := range [][2]string{
			{storage.PartitionDuties, storage.RowCurrent},
			{storage.PartitionConfig, storage.RowChildren},
			{storage.PartitionAudit, "0001_a"},
		} {
			e := storage.Entity{PartitionKey: key[0], RowKey: key[1], Data: []byte(`{"v":1}`), LastUpdated: now}
			require.NoError(t, table.Upsert(ctx, e))

			got, err := table.Get(ctx, key[0], key[1])
			require.NoError(t, err)
			assert.Equal(t, key[0], got.PartitionKey)
			assert.Equal(t, key[1], got.RowKey)
			assert.JSONEq(t, `{"v":1}`, string(got.Data))
			assert.False(t, got.LastUpdated.IsZero())
		}
	})

	t.Run("upsert replaces", func(t *testing.T) {
		e := storage.Entity{PartitionKey: storage.PartitionConfig, RowKey: storage.RowChildren, Data: []byte(`{"v":2,"w":[1]}`), LastUpdated: now}
		require.NoError(t, table.Upsert(ctx, e))
		got, err := table.Get(ctx, storage.PartitionConfig, storage.RowChildren)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2,"w":[1]}`, string(got.Data))
	})

	t.Run("list is ordered by row key", func(t *testing.T) {
		for _, rk := range []string{"0003_c", "0002_b"} {
			e := storage.Entity{PartitionKey: storage.PartitionAudit, RowKey: rk, Data: []byte(`{}`), LastUpdated: now}
			require.NoError(t, table.Upsert(ctx, e))
		}
		entities, err := table.List(ctx, storage.PartitionAudit)
		require.NoError(t, err)
		keys := make([]string, len(entities))
		for i, e := range entities {
			keys[i] = e.RowKey
			assert.Equal(t, storage.PartitionAudit, e.PartitionKey)
		}
		assert.Equal(t, []string{"0001_a", "0002_b", "0003_c"}, keys)
	})

	t.Run("partitions do not mix", func(t *testing.T) {
		entities, err := table.List(ctx, storage.PartitionDuties)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, storage.RowCurrent, entities[0].RowKey)

		entities, err = table.List(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, entities)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, table.Delete(ctx, storage.PartitionAudit, "0002_b"))
		require.NoError(t, table.Delete(ctx, storage.PartitionAudit, "0002_b"), "deleting twice is fine")

		_, err := table.Get(ctx, storage.PartitionAudit, "0002_b")
		assert.True(t, storage.IsNotFound(err))
		entities, err := table.List(ctx, storage.PartitionAudit)
		require.NoError(t, err)
		assert.Len(t, entities, 2)
	})
}
