package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/trezcool/trafikkvakt/storage"
)

type Table struct {
	mutex sync.RWMutex
	rows  map[string]map[string]storage.Entity // {partition: {row: entity}}
}

var _ storage.Table = (*Table)(nil)

func NewTable() *Table {
	return &Table{rows: make(map[string]map[string]storage.Entity)}
}

func (t *Table) Name() string { return "memory" }

func (t *Table) Get(_ context.Context, pk, rk string) (storage.Entity, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if e, ok := t.rows[pk][rk]; ok {
		return copyEntity(e), nil
	}
	return storage.Entity{}, storage.ErrNotFound
}

func (t *Table) Upsert(_ context.Context, e storage.Entity) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	part, ok := t.rows[e.PartitionKey]
	if !ok {
		part = make(map[string]storage.Entity)
		t.rows[e.PartitionKey] = part
	}
	part[e.RowKey] = copyEntity(e)
	return nil
}

func (t *Table) Delete(_ context.Context, pk, rk string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.rows[pk], rk)
	return nil
}

func (t *Table) List(_ context.Context, pk string) ([]storage.Entity, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	entities := make([]storage.Entity, 0, len(t.rows[pk]))
	for _, e := range t.rows[pk] {
		entities = append(entities, copyEntity(e))
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].RowKey < entities[j].RowKey })
	return entities, nil
}

// Reset drops every entity.
func (t *Table) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.rows = make(map[string]map[string]storage.Entity)
}

func copyEntity(e storage.Entity) storage.Entity {
	data := make([]byte, len(e.Data))
	copy(data, e.Data)
	e.Data = data
	return e
}
