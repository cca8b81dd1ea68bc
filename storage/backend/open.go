package backend

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/azuretable"
	"github.com/trezcool/trafikkvakt/storage/database"
	"github.com/trezcool/trafikkvakt/storage/inmem"
	"github.com/trezcool/trafikkvakt/storage/jsonfile"
)

// Store is the opened storage backend.
type Store struct {
	Table storage.Table
	// Files is the JSON-file table when it serves as backend or fallback, nil otherwise.
	Files *jsonfile.Table

	backend  string
	fallback bool
	conf     core.StorageConfig
	closers  []io.Closer
}

// Open builds the table selected by conf.Storage.Backend.
// With fallback enabled a primary that cannot be reached at start up is replaced by the JSON files,
// and one failing later has each failed call served from them.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*Store, error) {
	s := &Store{backend: conf.Storage.Backend, fallback: conf.Storage.Fallback, conf: conf.Storage}

	var (
		primary storage.Table
		err     error
	)
	switch conf.Storage.Backend {
	case core.StorageMemory:
		s.Table = inmem.NewTable()
		return s, nil
	case core.StorageFile:
		if s.Files, err = jsonfile.NewTable(conf.Storage.DataDir); err != nil {
			return nil, err
		}
		s.Table = s.Files
		return s, nil
	case core.StorageDatabase:
		primary, err = s.openDatabase(conf.Database)
	case core.StorageAzure:
		initCtx, cancel := context.WithTimeout(ctx, conf.Storage.InitTimeout)
		primary, err = azuretable.New(initCtx, conf.Storage.AzureConnectionString, conf.Storage.AzureTableName)
		cancel()
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}

	if err != nil {
		if !s.fallback {
			return nil, errors.Wrapf(err, "opening %s storage", conf.Storage.Backend)
		}
		logger.Error("opening "+conf.Storage.Backend+" storage", err)
		primary = nil
	}
	if !s.fallback {
		s.Table = primary
		return s, nil
	}

	if s.Files, err = jsonfile.NewTable(conf.Storage.DataDir); err != nil {
		return nil, err
	}
	if primary == nil {
		logger.Warn("storage unavailable, using JSON files", map[string]interface{}{
			"backend": conf.Storage.Backend,
			"dataDir": conf.Storage.DataDir,
		})
		s.Table = s.Files
		return s, nil
	}
	s.Table = storage.NewFallbackTable(primary, s.Files, logger)
	return s, nil
}

func (s *Store) openDatabase(conf core.DatabaseConfig) (storage.Table, error) {
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.closers = append(s.closers, db)
	return database.NewTable(db), nil
}

// Close releases the backend connections.
func (s *Store) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Diagnostics describes the storage for the health endpoint.
func (s *Store) Diagnostics() map[string]interface{} {
	return map[string]interface{}{
		"storageBackend":          s.backend,
		"storageTable":            s.Table.Name(),
		"storageFallback":         s.fallback,
		"connectionStringPresent": s.conf.AzureConnectionString != "",
		"connectionStringLength":  len(s.conf.AzureConnectionString),
		"tableName":               s.conf.AzureTableName,
		"dataServiceInitialized":  s.Table != nil,
		"dataServiceUseAzure":     s.backend == core.StorageAzure && s.Table != storage.Table(s.Files),
	}
}
