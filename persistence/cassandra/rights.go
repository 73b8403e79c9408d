package cassandra

import (
	"context"

	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
)

var _ persistence.RightsStorage = new(cassandraRightsStorage)

type cassandraRightsStorage struct {
	*baseDao
}

func NewRightsStorage(baseDao *baseDao) *cassandraRightsStorage {
	return &cassandraRightsStorage{baseDao: baseDao}
}

func (c *cassandraRightsStorage) AddRights(ctx context.Context, user model.User, rights []model.RightDef) error {
	for _, def := range rights {
		if err := c.Session.Query(
			"UPDATE rights SET rights = rights + ? WHERE user_id=? AND entity=? AND entity_value=?",
			def.Rights, user.Id, def.Entity, def.EntityValue,
		).WithContext(ctx).Exec(); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	return nil
}

func (c *cassandraRightsStorage) GetRights(ctx context.Context, user model.User, entity string, entityValue string) (map[string]bool, error) {
	rights := map[string]bool{}
	iter := c.Session.Query(
		"SELECT rights FROM rights WHERE user_id=? AND entity=? AND entity_value=?",
		user.Id, entity, entityValue,
	).WithContext(ctx).Iter()
	iter.Scan(&rights)
	if err := iter.Close(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rights, nil
}
