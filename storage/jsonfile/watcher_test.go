package jsonfile

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/tests"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func startWatcher(t *testing.T, table *Table, seen *changes) (stop func()) {
	w, err := NewWatcher(table, testutil.NewLogger(t), seen.add)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	// let the watches settle
	time.Sleep(50 * time.Millisecond)

	return func() {
		w.Stop()
		require.NoError(t, <-done)
	}
}

func TestWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	table := newTestTable(t)
	require.NoError(t, os.MkdirAll(filepath.Join(table.Dir(), storage.PartitionAudit), dirPerms))

	seen := new(changes)
	stop := startWatcher(t, table, seen)
	defer stop()

	// own writes are ignored
	require.NoError(t, table.Upsert(ctx, storage.Entity{PartitionKey: storage.PartitionConfig, RowKey: storage.RowChildren, Data: []byte(`{"children":[]}`)}))
	require.NoError(t, table.Upsert(ctx, storage.Entity{PartitionKey: storage.PartitionAudit, RowKey: "0001_x", Data: []byte(`{}`)}))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, seen.get())

	// an edit made by hand is reported once, however many writes it took
	path := filepath.Join(table.Dir(), "children.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, ioutil.WriteFile(path, []byte(`{"children":["Ada"]}`), filePerms))
	}
	assert.Eventually(t, func() bool { return len(seen.get()) == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{path}, seen.get())

	// other files do not count
	require.NoError(t, ioutil.WriteFile(filepath.Join(table.Dir(), "notes.txt"), []byte("hi"), filePerms))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, seen.get(), 1)
}

func TestWatcher_newPartitionDir(t *testing.T) {
	table := newTestTable(t)
	seen := new(changes)
	stop := startWatcher(t, table, seen)
	defer stop()

	dir := filepath.Join(table.Dir(), "archive")
	require.NoError(t, os.MkdirAll(dir, dirPerms))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "week41.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{}`), filePerms))
	assert.Eventually(t, func() bool {
		got := seen.get()
		return len(got) == 1 && got[0] == path
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_stopWithoutRun(t *testing.T) {
	w, err := NewWatcher(newTestTable(t), testutil.NewLogger(t), func(string) {})
	require.NoError(t, err)
	w.Stop()
}

func TestWatcher_contextDone(t *testing.T) {
	w, err := NewWatcher(newTestTable(t), testutil.NewLogger(t), func(string) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after the context was done")
	}
	w.Stop()
}
