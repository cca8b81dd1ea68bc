package storage

import (
	"context"

	"github.com/trezcool/trafikkvakt/core"
)

type fallbackTable struct {
	primary   Table
	secondary Table
	logger    core.Logger
}

var _ Table = (*fallbackTable)(nil)

// NewFallbackTable serves every call from primary and, when it fails, logs a warning
// and serves the call from secondary instead.
// A primary ErrNotFound is an answer, not a failure.
func NewFallbackTable(primary, secondary Table, logger core.Logger) Table {
	return &fallbackTable{primary: primary, secondary: secondary, logger: logger}
}

func (t *fallbackTable) Name() string {
	return t.primary.Name() + "+" + t.secondary.Name()
}

func (t *fallbackTable) warn(op string, err error) {
	t.logger.Warn("primary table failed, using "+t.secondary.Name(), map[string]interface{}{
		"op":      op,
		"primary": t.primary.Name(),
		"error":   err.Error(),
	})
}

func (t *fallbackTable) Get(ctx context.Context, pk, rk string) (Entity, error) {
	e, err := t.primary.Get(ctx, pk, rk)
	if err == nil || IsNotFound(err) {
		return e, err
	}
	t.warn("get", err)
	return t.secondary.Get(ctx, pk, rk)
}

func (t *fallbackTable) Upsert(ctx context.Context, e Entity) error {
	err := t.primary.Upsert(ctx, e)
	if err == nil {
		return nil
	}
	t.warn("upsert", err)
	return t.secondary.Upsert(ctx, e)
}

func (t *fallbackTable) Delete(ctx context.Context, pk, rk string) error {
	err := t.primary.Delete(ctx, pk, rk)
	if err == nil {
		return nil
	}
	t.warn("delete", err)
	return t.secondary.Delete(ctx, pk, rk)
}

func (t *fallbackTable) List(ctx context.Context, pk string) ([]Entity, error) {
	entities, err := t.primary.List(ctx, pk)
	if err == nil {
		return entities, nil
	}
	t.warn("list", err)
	return t.secondary.List(ctx, pk)
}
