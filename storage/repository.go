package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core/duty"
)

type dutyRepository struct {
	table Table
}

var _ duty.Repository = (*dutyRepository)(nil)

// NewDutyRepository stores the duty documents in table.
func NewDutyRepository(table Table) duty.Repository {
	return &dutyRepository{table: table}
}

// load decodes the document into v. found is false when it was never stored.
func (repo *dutyRepository) load(ctx context.Context, pk, rk string, v interface{}) (found bool, err error) {
	e, err := repo.table.Get(ctx, pk, rk)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "getting %s/%s", pk, rk)
	}
	if err = json.Unmarshal(e.Data, v); err != nil {
		return false, errors.Wrapf(err, "decoding %s/%s", pk, rk)
	}
	return true, nil
}

func (repo *dutyRepository) store(ctx context.Context, pk, rk string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s/%s", pk, rk)
	}
	e := Entity{PartitionKey: pk, RowKey: rk, Data: data, LastUpdated: time.Now().UTC()}
	return errors.Wrapf(repo.table.Upsert(ctx, e), "upserting %s/%s", pk, rk)
}

func (repo *dutyRepository) GetDuties(ctx context.Context) (duty.Table, error) {
	t := duty.NewTable()
	if _, err := repo.load(ctx, PartitionDuties, RowCurrent, &t); err != nil {
		return duty.Table{}, err
	}
	if t.Duties == nil {
		t.Duties = make(duty.Assignments)
	}
	return t, nil
}

func (repo *dutyRepository) SaveDuties(ctx context.Context, t duty.Table) error {
	return repo.store(ctx, PartitionDuties, RowCurrent, t)
}

func (repo *dutyRepository) GetChildren(ctx context.Context) (duty.Children, error) {
	var c duty.Children
	if _, err := repo.load(ctx, PartitionConfig, RowChildren, &c); err != nil {
		return duty.Children{}, err
	}
	if c.Children == nil {
		c.Children = []string{}
	}
	return c, nil
}

func (repo *dutyRepository) SaveChildren(ctx context.Context, c duty.Children) error {
	return repo.store(ctx, PartitionConfig, RowChildren, c)
}

func (repo *dutyRepository) GetCrossings(ctx context.Context) (duty.Crossings, error) {
	var c duty.Crossings
	if _, err := repo.load(ctx, PartitionConfig, RowCrossings, &c); err != nil {
		return duty.Crossings{}, err
	}
	if c.Crossings == nil {
		c.Crossings = []duty.Crossing{}
	}
	return c, nil
}

func (repo *dutyRepository) SaveCrossings(ctx context.Context, c duty.Crossings) error {
	return repo.store(ctx, PartitionConfig, RowCrossings, c)
}

func (repo *dutyRepository) GetSchedule(ctx context.Context) (duty.Schedule, error) {
	var s duty.Schedule
	_, err := repo.load(ctx, PartitionConfig, RowSchedule, &s)
	return s, err
}

func (repo *dutyRepository) SaveSchedule(ctx context.Context, s duty.Schedule) error {
	return repo.store(ctx, PartitionConfig, RowSchedule, s)
}

func (repo *dutyRepository) GetNotificationSettings(ctx context.Context) (duty.NotificationSettings, bool, error) {
	var n duty.NotificationSettings
	found, err := repo.load(ctx, PartitionConfig, RowNotifications, &n)
	return n, found, err
}

func (repo *dutyRepository) SaveNotificationSettings(ctx context.Context, n duty.NotificationSettings) error {
	return repo.store(ctx, PartitionConfig, RowNotifications, n)
}

// auditRowKey sorts entries by time, the id breaks ties.
func auditRowKey(e duty.AuditEntry) string {
	return fmt.Sprintf("%019d_%s", e.Timestamp.UnixNano(), e.ID)
}

func (repo *dutyRepository) ListAuditEntries(ctx context.Context) ([]duty.AuditEntry, error) {
	entities, err := repo.table.List(ctx, PartitionAudit)
	if err != nil {
		return nil, errors.Wrap(err, "listing audit entries")
	}
	entries := make([]duty.AuditEntry, 0, len(entities))
	for _, e := range entities {
		var entry duty.AuditEntry
		if err = json.Unmarshal(e.Data, &entry); err != nil {
			return nil, errors.Wrapf(err, "decoding audit entry %s", e.RowKey)
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	return entries, nil
}

func (repo *dutyRepository) AddAuditEntry(ctx context.Context, e duty.AuditEntry) error {
	return repo.store(ctx, PartitionAudit, auditRowKey(e), e)
}

func (repo *dutyRepository) ClearAuditLog(ctx context.Context) error {
	entities, err := repo.table.List(ctx, PartitionAudit)
	if err != nil {
		return errors.Wrap(err, "listing audit entries")
	}
	for _, e := range entities {
		if err = repo.table.Delete(ctx, e.PartitionKey, e.RowKey); err != nil {
			return errors.Wrapf(err, "deleting audit entry %s", e.RowKey)
		}
	}
	return nil
}
