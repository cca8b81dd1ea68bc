package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
	"github.com/trezcool/trafikkvakt/storage"
	"github.com/trezcool/trafikkvakt/storage/database"
)

// ErrStoreDown is returned by every FailingTable call.
var ErrStoreDown = errors.New("store is down")

type (
	// Logger is a core.Logger that writes to the test log and remembers what it got.
	Logger struct {
		t       testing.TB
		mu      sync.Mutex
		entries []LogEntry
	}

	LogEntry struct {
		Level string
		Msg   string
		Args  []interface{}
	}

	// FailingTable is a storage.Table whose every call fails.
	FailingTable struct{}
)

var (
	_ core.Logger   = (*Logger)(nil)
	_ storage.Table = FailingTable{}
)

func NewLogger(t testing.TB) *Logger {
	return &Logger{t: t}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
	l.t.Logf("%s: %s %v", level, msg, args)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// Entries returns the logged entries of the given level, all of them if level is "".
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entries []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

func (FailingTable) Name() string { return "failing" }

func (FailingTable) Get(context.Context, string, string) (storage.Entity, error) {
	return storage.Entity{}, ErrStoreDown
}

func (FailingTable) Upsert(context.Context, storage.Entity) error { return ErrStoreDown }

func (FailingTable) Delete(context.Context, string, string) error { return ErrStoreDown }

func (FailingTable) List(context.Context, string) ([]storage.Entity, error) {
	return nil, ErrStoreDown
}

// NewConfig returns the configuration tests run with.
func NewConfig() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Trafikkvakt",
		Build:     "test",
		SecretKey: "secret",
		Server: core.ServerConfig{
			Port:           "3001",
			AllowedOrigins: []string{"http://localhost:5173"},
			DisableReqLogs: true,
		},
		Storage: core.StorageConfig{
			Backend:     core.StorageMemory,
			InitTimeout: time.Second,
		},
		WhatsApp: core.WhatsAppConfig{
			AccessToken:     "token",
			PhoneNumberID:   "1234",
			RecipientNumber: "+4799999999",
			APIVersion:      "v22.0",
			Timeout:         5 * time.Second,
		},
		Notifications: core.NotificationsConfig{
			Time:     "07:00",
			Timezone: "Europe/Oslo",
		},
		Auth: core.AuthConfig{JWTExpirationDelta: time.Hour},
	}
}

// OpenSQLite opens a migrated SQLite database that lives as long as the test.
func OpenSQLite(t testing.TB) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trafikkvakt.db")
	db, err := database.Open(core.DatabaseConfig{Driver: "sqlite", URL: path})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return db
}

// Seed stores children and crossings.
func Seed(t testing.TB, repo duty.Repository, children []string, crossings ...string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.SaveChildren(ctx, duty.Children{Children: children}); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	cs := duty.Crossings{Crossings: make([]duty.Crossing, len(crossings))}
	for i, name := range crossings {
		cs.Crossings[i] = duty.Crossing{Name: name, GoogleMapsLink: duty.DefaultMapsLink(name)}
	}
	if err := repo.SaveCrossings(ctx, cs); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
}

// Children returns n distinct child names.
func Children(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Child %02d", i+1)
	}
	return names
}
