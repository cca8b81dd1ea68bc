package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/inmem"
	"github.com/trezcool/trafikkvakt/tests"
)

func TestFallbackTable(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy primary", func(t *testing.T) {
		logger := testutil.NewLogger(t)
		primary, secondary := inmem.NewTable(), inmem.NewTable()
		table := storage.NewFallbackTable(primary, secondary, logger)
		assert.Equal(t, "memory+memory", table.Name())

		testutil.TableContract(t, table)

		entities, err := secondary.List(ctx, storage.PartitionAudit)
		require.NoError(t, err)
		assert.Empty(t, entities, "secondary is untouched")
		assert.Empty(t, logger.Entries("WARN"), "not found is an answer")
	})

	t.Run("failing primary", func(t *testing.T) {
		logger := testutil.NewLogger(t)
		secondary := inmem.NewTable()
		table := storage.NewFallbackTable(testutil.FailingTable{}, secondary, logger)

		testutil.TableContract(t, table)

		entities, err := secondary.List(ctx, storage.PartitionAudit)
		require.NoError(t, err)
		assert.Len(t, entities, 2)
		assert.NotEmpty(t, logger.Entries("WARN"))
		assert.Empty(t, logger.Entries("ERROR"))
	})

	t.Run("both failing", func(t *testing.T) {
		table := storage.NewFallbackTable(testutil.FailingTable{}, testutil.FailingTable{}, testutil.NewLogger(t))
		_, err := table.Get(ctx, "p", "r")
		assert.ErrorIs(t, err, testutil.ErrStoreDown)
	})
}
