package azuretable

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/storage"
)

// the subset of *aztables.Client the Table needs
type tableAPI interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// entity is the stored shape: the document travels as a JSON string property.
type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Data         string `json:"data"`
	LastUpdated  string `json:"lastUpdated,omitempty"`
}

// Table stores entities in an Azure Storage table.
type Table struct {
	client tableAPI
	name   string
}

var _ storage.Table = (*Table)(nil)

// New connects to the table and creates it if missing.
func New(ctx context.Context, connectionString, tableName string) (*Table, error) {
	if connectionString == "" {
		return nil, errors.New("AZURE_STORAGE_CONNECTION_STRING is not set")
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating table client")
	}
	client := svc.NewClient(tableName)
	t := &Table{client: client, name: tableName}
	if err = t.ensureTable(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) ensureTable(ctx context.Context) error {
	if _, err := t.client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) &&
			(respErr.StatusCode == http.StatusConflict || respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil
		}
		return errors.Wrapf(err, "creating table %s", t.name)
	}
	return nil
}

func (t *Table) Name() string { return "azure:" + t.name }

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func (t *Table) Get(ctx context.Context, pk, rk string) (storage.Entity, error) {
	resp, err := t.client.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isNotFound(err) {
			return storage.Entity{}, storage.ErrNotFound
		}
		return storage.Entity{}, errors.Wrapf(err, "getting entity %s/%s", pk, rk)
	}
	return decode(resp.Value)
}

func (t *Table) Upsert(ctx context.Context, e storage.Entity) error {
	if err := storage.CheckKey(e.PartitionKey); err != nil {
		return err
	}
	if err := storage.CheckKey(e.RowKey); err != nil {
		return err
	}
	stored := entity{PartitionKey: e.PartitionKey, RowKey: e.RowKey, Data: string(e.Data)}
	if !e.LastUpdated.IsZero() {
		stored.LastUpdated = e.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "encoding entity")
	}
	_, err = t.client.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return errors.Wrapf(err, "upserting entity %s/%s", e.PartitionKey, e.RowKey)
}

func (t *Table) Delete(ctx context.Context, pk, rk string) error {
	if _, err := t.client.DeleteEntity(ctx, pk, rk, nil); err != nil && !isNotFound(err) {
		return errors.Wrapf(err, "deleting entity %s/%s", pk, rk)
	}
	return nil
}

func (t *Table) List(ctx context.Context, pk string) ([]storage.Entity, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(pk, "'", "''") + "'"
	pager := t.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})

	var entities []storage.Entity
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "listing partition %s", pk)
		}
		for _, raw := range page.Entities {
			e, err := decode(raw)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func decode(raw []byte) (storage.Entity, error) {
	var stored entity
	if err := json.Unmarshal(raw, &stored); err != nil {
		return storage.Entity{}, errors.Wrap(err, "decoding entity")
	}
	e := storage.Entity{PartitionKey: stored.PartitionKey, RowKey: stored.RowKey, Data: []byte(stored.Data)}
	if stored.LastUpdated != "" {
		if ts, err := time.Parse(time.RFC3339Nano, stored.LastUpdated); err == nil {
			e.LastUpdated = ts
		}
	}
	return e, nil
}
