package jsonfile

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/tests"
)

func newTestTable(t *testing.T) *Table {
	table, err := NewTable(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return table
}

func TestTable(t *testing.T) {
	testutil.TableContract(t, newTestTable(t))
}

func TestTable_layout(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	for _, e := range []storage.Entity{
		{PartitionKey: storage.PartitionDuties, RowKey: storage.RowCurrent, Data: []byte(`{"duties":{}}`)},
		{PartitionKey: storage.PartitionConfig, RowKey: storage.RowChildren, Data: []byte(`{"children":["Ada"]}`)},
		{PartitionKey: storage.PartitionAudit, RowKey: "0001_x", Data: []byte(`{"id":"x"}`)},
	} {
		require.NoError(t, table.Upsert(ctx, e))
	}

	for _, path := range []string{"duties.json", "children.json", filepath.Join("audit", "0001_x.json")} {
		_, err := os.Stat(filepath.Join(table.Dir(), path))
		assert.NoError(t, err, path)
	}

	// files are indented for hand editing
	raw, err := ioutil.ReadFile(filepath.Join(table.Dir(), "children.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"children\": [\n    \"Ada\"\n  ]\n}", string(raw))

	// no temporary file is left behind
	tmp, err := filepath.Glob(filepath.Join(table.Dir(), "*"+tmpSuffix))
	require.NoError(t, err)
	assert.Empty(t, tmp)

	config, err := table.List(ctx, storage.PartitionConfig)
	require.NoError(t, err)
	require.Len(t, config, 1)
	assert.Equal(t, storage.RowChildren, config[0].RowKey)
}

func TestTable_invalidJSON(t *testing.T) {
	table := newTestTable(t)
	err := table.Upsert(context.Background(), storage.Entity{PartitionKey: "p", RowKey: "r", Data: []byte(`{`)})
	assert.Error(t, err)
}

func TestTable_ownWrite(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)
	path := filepath.Join(table.Dir(), "duties.json")

	assert.False(t, table.ownWrite(path), "never written")

	require.NoError(t, table.Upsert(ctx, storage.Entity{PartitionKey: storage.PartitionDuties, RowKey: storage.RowCurrent, Data: []byte(`{"duties":{}}`)}))
	assert.True(t, table.ownWrite(path))

	require.NoError(t, ioutil.WriteFile(path, []byte(`{"duties":{"Elm St":{}}}`), filePerms))
	assert.False(t, table.ownWrite(path), "edited by hand")

	require.NoError(t, table.Delete(ctx, storage.PartitionDuties, storage.RowCurrent))
	assert.True(t, table.ownWrite(path))
}

func TestTable_keysStayInDataDir(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	children := storage.Entity{PartitionKey: storage.PartitionConfig, RowKey: storage.RowChildren, Data: []byte(`{"children":["Ada","Bob"]}`)}
	require.NoError(t, table.Upsert(ctx, children))

	for _, key := range [][2]string{
		{storage.PartitionAudit, "0001_/../../children"},
		{storage.PartitionAudit, "/../../../../outside"},
		{"..", "children"},
		{storage.PartitionConfig, `..\children`},
	} {
		e := storage.Entity{PartitionKey: key[0], RowKey: key[1], Data: []byte(`{"children":[]}`)}
		err := table.Upsert(ctx, e)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)

		_, err = table.Get(ctx, key[0], key[1])
		assert.ErrorIs(t, err, storage.ErrInvalidKey, key)
		assert.ErrorIs(t, table.Delete(ctx, key[0], key[1]), storage.ErrInvalidKey, key)
	}
	_, err := table.List(ctx, "../config")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)

	got, err := table.Get(ctx, storage.PartitionConfig, storage.RowChildren)
	require.NoError(t, err)
	assert.JSONEq(t, `{"children":["Ada","Bob"]}`, string(got.Data))

	_, err = os.Stat(filepath.Join(filepath.Dir(table.Dir()), "outside.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(table.Dir(), "..", "..", "outside.json"))
	assert.True(t, os.IsNotExist(err))
}
