package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
	"go.uber.org/zap"
)

const ACTION_SET_KEY string = "ACTION_SET"
const DISPATCH_INDEX_KEY string = "ACTION_SET_DISPATCH"

const maxUpdateRetries = 10
const searchPageSize = 100

var _ persistence.ActionSetStorage = new(redisActionSetStorage)

// redisActionSetStorage keeps one string key per ActionSet and, for every
// non terminal set, a member in the dispatch index of its current action
// type scored by dispatched_at.
type redisActionSetStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.RawActionSet]
}

func NewActionSetStorage(baseDao *baseDao) *redisActionSetStorage {
	return &redisActionSetStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.RawActionSet](),
	}
}

func (r *redisActionSetStorage) key(id string) string {
	return r.getNamespaceKey(ACTION_SET_KEY, id)
}

func (r *redisActionSetStorage) indexKey(actionType model.ActionType) string {
	return r.getNamespaceKey(DISPATCH_INDEX_KEY, string(actionType))
}

func indexType(status string) model.ActionType {
	t, _, ok := model.SplitStatus(status)
	if !ok {
		return ""
	}
	return t
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *redisActionSetStorage) Create(ctx context.Context, raw model.RawActionSet) error {
	data, err := r.encoderDecoder.Encode(raw)
	if err != nil {
		return err
	}
	created, err := r.redisClient.SetNX(ctx, r.key(raw.Id), data, 0).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return persistence.ConflictError{Entity: persistence.ENTITY_ACTION_SET, Id: raw.Id}
	}
	if t := indexType(raw.CurrentStatus); t != "" {
		member := rd.Z{Score: score(raw.DispatchedAt), Member: raw.Id}
		if err := r.redisClient.ZAdd(ctx, r.indexKey(t), member).Err(); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	return nil
}

func (r *redisActionSetStorage) Get(ctx context.Context, query model.ActionSetQuery) (*model.RawActionSet, error) {
	data, err := r.redisClient.Get(ctx, r.key(query.Id)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode(data)
}

// Update is a watched read-modify-write of the row, retried when the row
// changes between the read and the write.
func (r *redisActionSetStorage) Update(ctx context.Context, query model.ActionSetQuery, update model.ActionSetUpdate) (*model.RawActionSet, error) {
	key := r.key(query.Id)
	var res *model.RawActionSet
	txf := func(tx *rd.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: query.Id}
			}
			return err
		}
		raw, err := r.encoderDecoder.Decode(data)
		if err != nil {
			return err
		}
		prevType := indexType(raw.CurrentStatus)
		update.Apply(raw)
		encoded, err := r.encoderDecoder.Encode(*raw)
		if err != nil {
			return err
		}
		nextType := indexType(raw.CurrentStatus)
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if prevType != "" && prevType != nextType {
				pipe.ZRem(ctx, r.indexKey(prevType), raw.Id)
			}
			if nextType != "" {
				pipe.ZAdd(ctx, r.indexKey(nextType), rd.Z{Score: score(raw.DispatchedAt), Member: raw.Id})
			}
			return nil
		})
		if err != nil {
			return err
		}
		res = raw
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.redisClient.Watch(ctx, txf, key)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, rd.TxFailedErr) {
			logger.Debug("concurrent action set update, retrying", zap.String("actionSet", query.Id), zap.Int("attempt", i+1))
			continue
		}
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return nil, persistence.StorageLayerError{Message: "too many concurrent updates on " + query.Id}
}

// Search walks the dispatch index of the action types the status prefix can
// match, oldest dispatch first.
func (r *redisActionSetStorage) Search(ctx context.Context, filter model.ActionSetFilter) ([]model.RawActionSet, error) {
	types := []model.ActionType{model.ACTION_TYPE_INPUT, model.ACTION_TYPE_EVENT}
	if t, _, ok := model.SplitStatus(filter.StatusPrefix); ok {
		types = []model.ActionType{t}
	}
	maxScore := "+inf"
	if filter.DispatchedBefore != nil {
		maxScore = "(" + strconv.FormatInt(filter.DispatchedBefore.UnixMilli(), 10)
	}

	res := make([]model.RawActionSet, 0)
	for _, t := range types {
		var offset int64
		for {
			ids, err := r.redisClient.ZRangeByScore(ctx, r.indexKey(t), &rd.ZRangeBy{
				Min:    "-inf",
				Max:    maxScore,
				Offset: offset,
				Count:  searchPageSize,
			}).Result()
			if err != nil {
				if errors.Is(err, rd.Nil) {
					break
				}
				return nil, persistence.StorageLayerError{Message: err.Error()}
			}
			if len(ids) == 0 {
				break
			}
			rows, err := r.load(ctx, ids)
			if err != nil {
				return nil, err
			}
			for _, raw := range rows {
				if !filter.Match(&raw) {
					continue
				}
				res = append(res, raw)
				if filter.Limit > 0 && len(res) >= filter.Limit {
					return sortByDispatch(res), nil
				}
			}
			if len(ids) < searchPageSize {
				break
			}
			offset += int64(len(ids))
		}
	}
	return sortByDispatch(res), nil
}

func (r *redisActionSetStorage) load(ctx context.Context, ids []string) ([]model.RawActionSet, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	rows := make([]model.RawActionSet, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			logger.Warn("dangling dispatch index entry", zap.String("actionSet", ids[i]))
			continue
		}
		raw, err := r.encoderDecoder.DecodeString(s)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		rows = append(rows, *raw)
	}
	return rows, nil
}

func sortByDispatch(rows []model.RawActionSet) []model.RawActionSet {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DispatchedAt.Before(rows[j].DispatchedAt)
	})
	return rows
}
