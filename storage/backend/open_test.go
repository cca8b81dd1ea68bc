package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/tests"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(conf *core.Config)
		wantTable string
		wantFiles bool
		wantErr   bool
	}{
		{
			name:      "memory",
			mutate:    func(conf *core.Config) {},
			wantTable: "memory",
		},
		{
			name:      "file",
			mutate:    func(conf *core.Config) { conf.Storage.Backend = core.StorageFile },
			wantTable: "file",
			wantFiles: true,
		},
		{
			name: "sqlite",
			mutate: func(conf *core.Config) {
				conf.Storage.Backend = core.StorageDatabase
				conf.Database.Driver = "sqlite"
			},
			wantTable: "database:sqlite",
		},
		{
			name: "sqlite with fallback",
			mutate: func(conf *core.Config) {
				conf.Storage.Backend = core.StorageDatabase
				conf.Storage.Fallback = true
				conf.Database.Driver = "sqlite"
			},
			wantTable: "database:sqlite+file",
			wantFiles: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(conf *core.Config) { conf.Storage.Backend = "floppy" },
			wantErr: true,
		},
		{
			name:    "azure without connection string",
			mutate:  func(conf *core.Config) { conf.Storage.Backend = core.StorageAzure },
			wantErr: true,
		},
		{
			name: "azure without connection string falls back",
			mutate: func(conf *core.Config) {
				conf.Storage.Backend = core.StorageAzure
				conf.Storage.Fallback = true
			},
			wantTable: "file",
			wantFiles: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			dir := t.TempDir()
			conf.Storage.DataDir = filepath.Join(dir, "data")
			conf.Database.URL = filepath.Join(dir, "trafikkvakt.db")
			tt.mutate(conf)

			store, err := Open(ctx, conf, testutil.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { assert.NoError(t, store.Close()) }()

			assert.Equal(t, tt.wantTable, store.Table.Name())
			assert.Equal(t, tt.wantFiles, store.Files != nil)

			diag := store.Diagnostics()
			assert.Equal(t, conf.Storage.Backend, diag["storageBackend"])
			assert.Equal(t, tt.wantTable, diag["storageTable"])
			assert.Equal(t, true, diag["dataServiceInitialized"])
		})
	}
}

func TestOpen_azureFallbackDiagnostics(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Storage.Backend = core.StorageAzure
	conf.Storage.Fallback = true
	conf.Storage.DataDir = t.TempDir()
	conf.Storage.AzureTableName = "trafikkvakt"
	logger := testutil.NewLogger(t)

	store, err := Open(context.Background(), conf, logger)
	require.NoError(t, err)

	diag := store.Diagnostics()
	assert.Equal(t, false, diag["dataServiceUseAzure"])
	assert.Equal(t, false, diag["connectionStringPresent"])
	assert.Equal(t, "trafikkvakt", diag["tableName"])
	assert.Len(t, logger.Entries("ERROR"), 1)
	assert.Len(t, logger.Entries("WARN"), 1)
}
