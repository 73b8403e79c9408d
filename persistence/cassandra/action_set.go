package cassandra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
)

const actionSetColumns = "id, name, current_status, current_action, actions, dispatched_at, created_at, updated_at, consumed"

var _ persistence.ActionSetStorage = new(cassandraActionSetStorage)

type cassandraActionSetStorage struct {
	*baseDao
	actionsEncoderDecoder util.EncoderDecoder[[]model.RawAction]
}

func NewActionSetStorage(baseDao *baseDao) *cassandraActionSetStorage {
	return &cassandraActionSetStorage{
		baseDao:               baseDao,
		actionsEncoderDecoder: util.NewJsonEncoderDecoder[[]model.RawAction](),
	}
}

// currentType is denormalized from current_status so stale event sets can be
// searched on an indexed column.
func currentType(status string) string {
	t, _, ok := model.SplitStatus(status)
	if !ok {
		return ""
	}
	return string(t)
}

func (c *cassandraActionSetStorage) Create(ctx context.Context, raw model.RawActionSet) error {
	actions, err := c.actionsEncoderDecoder.Encode(raw.Actions)
	if err != nil {
		return err
	}
	applied, err := c.Session.Query(
		"INSERT INTO action_set (id, name, current_status, current_type, current_action, actions, dispatched_at, created_at, updated_at, consumed) VALUES (?,?,?,?,?,?,?,?,?,?) IF NOT EXISTS",
		raw.Id, raw.Name, raw.CurrentStatus, currentType(raw.CurrentStatus), raw.CurrentAction, string(actions),
		raw.DispatchedAt, raw.CreatedAt, raw.UpdatedAt, raw.Consumed,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !applied {
		return persistence.ConflictError{Entity: persistence.ENTITY_ACTION_SET, Id: raw.Id}
	}
	return nil
}

func (c *cassandraActionSetStorage) Get(ctx context.Context, query model.ActionSetQuery) (*model.RawActionSet, error) {
	iter := c.Session.Query("SELECT "+actionSetColumns+" FROM action_set WHERE id=?", query.Id).WithContext(ctx).Iter()
	raw, ok, err := c.scan(iter)
	if closeErr := iter.Close(); closeErr != nil {
		return nil, persistence.StorageLayerError{Message: closeErr.Error()}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
	}
	return raw, nil
}

// Update writes only the columns present in update, guarded by IF EXISTS so
// a missing row is reported instead of upserted.
func (c *cassandraActionSetStorage) Update(ctx context.Context, query model.ActionSetQuery, update model.ActionSetUpdate) (*model.RawActionSet, error) {
	var sets []string
	var values []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+"=?")
		values = append(values, value)
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.CurrentStatus != nil {
		add("current_status", *update.CurrentStatus)
		add("current_type", currentType(*update.CurrentStatus))
	}
	if update.CurrentAction != nil {
		add("current_action", *update.CurrentAction)
	}
	if update.Actions != nil {
		actions, err := c.actionsEncoderDecoder.Encode(update.Actions)
		if err != nil {
			return nil, err
		}
		add("actions", string(actions))
	}
	if update.DispatchedAt != nil {
		add("dispatched_at", *update.DispatchedAt)
	}
	if update.CreatedAt != nil {
		add("created_at", *update.CreatedAt)
	}
	if update.UpdatedAt != nil {
		add("updated_at", *update.UpdatedAt)
	}
	if update.Consumed != nil {
		add("consumed", *update.Consumed)
	}
	if len(sets) == 0 {
		return c.Get(ctx, query)
	}
	values = append(values, query.Id)
	stmt := fmt.Sprintf("UPDATE action_set SET %s WHERE id=? IF EXISTS", strings.Join(sets, ", "))
	applied, err := c.Session.Query(stmt, values...).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if !applied {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
	}
	return c.Get(ctx, query)
}

// searchStatement narrows on the indexed columns only. The remaining filter
// fields are matched on the decoded rows.
func searchStatement(filter model.ActionSetFilter) (string, []interface{}) {
	var where []string
	var values []interface{}
	if t, _, ok := model.SplitStatus(filter.StatusPrefix); ok {
		where = append(where, "current_type=?")
		values = append(values, string(t))
	}
	if filter.DispatchedBefore != nil {
		where = append(where, "dispatched_at<?")
		values = append(values, *filter.DispatchedBefore)
	}
	stmt := "SELECT " + actionSetColumns + " FROM action_set"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ") + " ALLOW FILTERING"
	}
	return stmt, values
}

func (c *cassandraActionSetStorage) Search(ctx context.Context, filter model.ActionSetFilter) ([]model.RawActionSet, error) {
	stmt, values := searchStatement(filter)
	iter := c.Session.Query(stmt, values...).WithContext(ctx).Iter()
	res := make([]model.RawActionSet, 0)
	for {
		raw, ok, err := c.scan(iter)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		if filter.Match(raw) {
			res = append(res, *raw)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	// rows come back in token order, the limit applies to the oldest dispatches
	return filter.Cut(res), nil
}

func (c *cassandraActionSetStorage) scan(iter *gocql.Iter) (*model.RawActionSet, bool, error) {
	var raw model.RawActionSet
	var actions string
	var dispatchedAt, createdAt, updatedAt time.Time
	if !iter.Scan(&raw.Id, &raw.Name, &raw.CurrentStatus, &raw.CurrentAction, &actions, &dispatchedAt, &createdAt, &updatedAt, &raw.Consumed) {
		return nil, false, nil
	}
	decoded, err := c.actionsEncoderDecoder.DecodeString(actions)
	if err != nil {
		return nil, false, persistence.StorageLayerError{Message: fmt.Errorf("action set %s: %w", raw.Id, err).Error()}
	}
	raw.Actions = *decoded
	raw.DispatchedAt = dispatchedAt.UTC()
	raw.CreatedAt = createdAt.UTC()
	raw.UpdatedAt = updatedAt.UTC()
	return &raw, true, nil
}
