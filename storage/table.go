package storage

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

// Partitions and rows of the fixed documents.
const (
	PartitionDuties = "duties"
	PartitionConfig = "config"
	PartitionAudit  = "audit"

	RowCurrent       = "current"
	RowChildren      = "children"
	RowCrossings     = "crossings"
	RowSchedule      = "schedule"
	RowNotifications = "notifications"
)

var (
	// ErrNotFound is returned by Table.Get when no entity has the given keys.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidKey is returned for keys that cannot address an entity.
	ErrInvalidKey = errors.New("invalid entity key")
)

type (
	// Entity is one JSON document addressed by partition and row key.
	Entity struct {
		PartitionKey string
		RowKey       string
		Data         []byte
		LastUpdated  time.Time
	}

	// Table is a minimal partition/row key-value store.
	Table interface {
		// Name identifies the backend in logs and diagnostics.
		Name() string
		Get(ctx context.Context, partitionKey, rowKey string) (Entity, error)
		// Upsert replaces the entity wholesale.
		Upsert(ctx context.Context, e Entity) error
		// Delete is a no-op when the entity does not exist.
		Delete(ctx context.Context, partitionKey, rowKey string) error
		// List returns the entities of a partition ordered by row key.
		List(ctx context.Context, partitionKey string) ([]Entity, error)
	}
)

// IsNotFound reports whether the cause of err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// CheckKey rejects empty keys and keys with characters that are not allowed in a
// table key or file name: path separators, "#", "?", control characters and "..".
func CheckKey(key string) error {
	if key == "" || key == "." || strings.Contains(key, "..") || strings.ContainsAny(key, `/\#?`) {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return errors.Wrapf(ErrInvalidKey, "%q", key)
		}
	}
	return nil
}
