package jsonfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/storage"
)

const (
	fileExt    = ".json"
	tmpSuffix  = ".tmp"
	filePerms  = 0644
	dirPerms   = 0755
	dutiesFile = "duties"
)

// Table keeps every entity in its own JSON file under a data directory:
// duties/current in duties.json, config/<row> in <row>.json, anything else in <partition>/<row>.json.
type Table struct {
	dir string

	mutex   sync.RWMutex
	written map[string][sha256.Size]byte // content hash of our own last write, per path
}

// removed marks a path this table deleted itself.
var removed [sha256.Size]byte

var _ storage.Table = (*Table)(nil)

func NewTable(dir string) (*Table, error) {
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, errors.Wrapf(err, "creating data dir %s", dir)
	}
	return &Table{dir: dir, written: make(map[string][sha256.Size]byte)}, nil
}

func (t *Table) Name() string { return "file" }

// Dir is the data directory.
func (t *Table) Dir() string { return t.dir }

// path maps the keys to a file under the data dir. Keys that could leave it are rejected.
func (t *Table) path(pk, rk string) (string, error) {
	if err := storage.CheckKey(pk); err != nil {
		return "", err
	}
	if err := storage.CheckKey(rk); err != nil {
		return "", err
	}
	switch {
	case pk == storage.PartitionDuties && rk == storage.RowCurrent:
		return filepath.Join(t.dir, dutiesFile+fileExt), nil
	case pk == storage.PartitionConfig:
		return filepath.Join(t.dir, rk+fileExt), nil
	default:
		return filepath.Join(t.dir, pk, rk+fileExt), nil
	}
}

func (t *Table) Get(_ context.Context, pk, rk string) (storage.Entity, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	path, err := t.path(pk, rk)
	if err != nil {
		return storage.Entity{}, err
	}
	return t.read(pk, rk, path)
}

func (t *Table) read(pk, rk, path string) (storage.Entity, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Entity{}, storage.ErrNotFound
		}
		return storage.Entity{}, errors.Wrapf(err, "reading %s", path)
	}
	e := storage.Entity{PartitionKey: pk, RowKey: rk, Data: data}
	if fi, err := os.Stat(path); err == nil {
		e.LastUpdated = fi.ModTime().UTC()
	}
	return e, nil
}

// Upsert writes to a temporary file first and renames it over the target.
func (t *Table) Upsert(_ context.Context, e storage.Entity) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	path, err := t.path(e.PartitionKey, e.RowKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}

	var data bytes.Buffer
	if err := json.Indent(&data, e.Data, "", "  "); err != nil {
		return errors.Wrapf(err, "indenting %s/%s", e.PartitionKey, e.RowKey)
	}

	tmpFile := path + tmpSuffix
	if err := ioutil.WriteFile(tmpFile, data.Bytes(), filePerms); err != nil {
		return errors.Wrapf(err, "writing %s", tmpFile)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		return errors.Wrapf(err, "renaming %s", tmpFile)
	}
	t.written[path] = sha256.Sum256(data.Bytes())
	return nil
}

func (t *Table) Delete(_ context.Context, pk, rk string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	path, err := t.path(pk, rk)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	t.written[path] = removed
	return nil
}

func (t *Table) List(_ context.Context, pk string) ([]storage.Entity, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if err := storage.CheckKey(pk); err != nil {
		return nil, err
	}
	if pk == storage.PartitionConfig || pk == storage.PartitionDuties {
		// these partitions share the top level directory
		return t.listTopLevel(pk)
	}
	paths, err := filepath.Glob(filepath.Join(t.dir, pk, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", pk)
	}
	sort.Strings(paths)

	entities := make([]storage.Entity, 0, len(paths))
	for _, path := range paths {
		rk := strings.TrimSuffix(filepath.Base(path), fileExt)
		e, err := t.read(pk, rk, path)
		if err != nil {
			if storage.IsNotFound(err) { // removed in between
				continue
			}
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (t *Table) listTopLevel(pk string) ([]storage.Entity, error) {
	paths, err := filepath.Glob(filepath.Join(t.dir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", pk)
	}
	sort.Strings(paths)

	var entities []storage.Entity
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), fileExt)
		rk := name
		if pk == storage.PartitionDuties {
			if name != dutiesFile {
				continue
			}
			rk = storage.RowCurrent
		} else if name == dutiesFile {
			continue
		}
		e, err := t.read(pk, rk, path)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// ownWrite reports whether the file at path still holds what this table last wrote there.
func (t *Table) ownWrite(path string) bool {
	t.mutex.RLock()
	sum, ok := t.written[path]
	t.mutex.RUnlock()
	if !ok {
		return false
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return os.IsNotExist(err) && sum == removed
	}
	return sha256.Sum256(data) == sum
}
