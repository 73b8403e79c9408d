package redis

import (
	"context"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
)

const RIGHTS_KEY string = "RIGHTS"

var _ persistence.RightsStorage = new(redisRightsStorage)

type redisRightsStorage struct {
	*baseDao
}

func NewRightsStorage(baseDao *baseDao) *redisRightsStorage {
	return &redisRightsStorage{baseDao: baseDao}
}

func (r *redisRightsStorage) AddRights(ctx context.Context, user model.User, rights []model.RightDef) error {
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, def := range rights {
			values := make([]string, 0, 2*len(def.Rights))
			for right, granted := range def.Rights {
				values = append(values, right, strconv.FormatBool(granted))
			}
			if len(values) == 0 {
				continue
			}
			pipe.HSet(ctx, r.getNamespaceKey(RIGHTS_KEY, user.Id, def.Entity, def.EntityValue), values)
		}
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisRightsStorage) GetRights(ctx context.Context, user model.User, entity string, entityValue string) (map[string]bool, error) {
	values, err := r.redisClient.HGetAll(ctx, r.getNamespaceKey(RIGHTS_KEY, user.Id, entity, entityValue)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make(map[string]bool, len(values))
	for right, v := range values {
		granted, err := strconv.ParseBool(v)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		res[right] = granted
	}
	return res, nil
}
