package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/trafikkvakt/storage"
)

type entityRow struct {
	PartitionKey string      `db:"partition_key"`
	RowKey       string      `db:"row_key"`
	Data         string      `db:"data"`
	LastUpdated  null.String `db:"last_updated"`
}

func (r entityRow) entity() storage.Entity {
	e := storage.Entity{PartitionKey: r.PartitionKey, RowKey: r.RowKey, Data: []byte(r.Data)}
	if r.LastUpdated.Valid {
		if t, err := time.Parse(time.RFC3339Nano, r.LastUpdated.String); err == nil {
			e.LastUpdated = t
		}
	}
	return e
}

// Table stores entities in the "entities" SQL table.
type Table struct {
	db *sqlx.DB
}

var _ storage.Table = (*Table)(nil)

func NewTable(db *sqlx.DB) *Table {
	return &Table{db: db}
}

func (t *Table) Name() string { return "database:" + t.db.DriverName() }

func (t *Table) Get(ctx context.Context, pk, rk string) (storage.Entity, error) {
	var row entityRow
	q := t.db.Rebind(`SELECT partition_key, row_key, data, last_updated FROM entities WHERE partition_key = ? AND row_key = ?`)
	if err := t.db.GetContext(ctx, &row, q, pk, rk); err != nil {
		if err == sql.ErrNoRows {
			return storage.Entity{}, storage.ErrNotFound
		}
		return storage.Entity{}, errors.Wrap(err, "selecting entity")
	}
	return row.entity(), nil
}

func (t *Table) Upsert(ctx context.Context, e storage.Entity) error {
	lastUpdated := null.String{}
	if !e.LastUpdated.IsZero() {
		lastUpdated = null.StringFrom(e.LastUpdated.UTC().Format(time.RFC3339Nano))
	}
	q := t.db.Rebind(`
		INSERT INTO entities (partition_key, row_key, data, last_updated) VALUES (?, ?, ?, ?)
		ON CONFLICT (partition_key, row_key) DO UPDATE SET data = excluded.data, last_updated = excluded.last_updated`)
	_, err := t.db.ExecContext(ctx, q, e.PartitionKey, e.RowKey, string(e.Data), lastUpdated)
	return errors.Wrap(err, "upserting entity")
}

func (t *Table) Delete(ctx context.Context, pk, rk string) error {
	q := t.db.Rebind(`DELETE FROM entities WHERE partition_key = ? AND row_key = ?`)
	_, err := t.db.ExecContext(ctx, q, pk, rk)
	return errors.Wrap(err, "deleting entity")
}

func (t *Table) List(ctx context.Context, pk string) ([]storage.Entity, error) {
	var rows []entityRow
	q := t.db.Rebind(`SELECT partition_key, row_key, data, last_updated FROM entities WHERE partition_key = ? ORDER BY row_key`)
	if err := t.db.SelectContext(ctx, &rows, q, pk); err != nil {
		return nil, errors.Wrap(err, "selecting entities")
	}
	entities := make([]storage.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity())
	}
	return entities, nil
}
