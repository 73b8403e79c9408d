package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
	"go.uber.org/zap"
)

const QUEUE_KEY string = "QUEUE"

var _ persistence.Queue = new(redisQueue)

// redisQueue keeps job ids in one list per state and job bodies in a hash.
// Jobs are pushed on the left of the waiting list and moved from its right
// end to the active list, so polling is FIFO. Delayed jobs sit in a sorted
// set scored by their due time, and the activation time of active jobs is
// kept in the leases hash.
type redisQueue struct {
	*baseDao
	name           string
	encoderDecoder util.EncoderDecoder[model.Job]
}

func NewQueue(baseDao *baseDao, name string) *redisQueue {
	return &redisQueue{
		baseDao:        baseDao,
		name:           name,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Job](),
	}
}

func (rq *redisQueue) Name() string {
	return rq.name
}

func (rq *redisQueue) stateKey(state model.JobState) string {
	return rq.getNamespaceKey(QUEUE_KEY, rq.name, string(state))
}

func (rq *redisQueue) jobsKey() string {
	return rq.getNamespaceKey(QUEUE_KEY, rq.name, "jobs")
}

func (rq *redisQueue) leasesKey() string {
	return rq.getNamespaceKey(QUEUE_KEY, rq.name, "leases")
}

func (rq *redisQueue) Add(ctx context.Context, jobName string, data model.RawActionSet) (*model.Job, error) {
	job := &model.Job{
		Id:        uuid.NewString(),
		Name:      jobName,
		Queue:     rq.name,
		Data:      data,
		CreatedAt: time.Now(),
	}
	encoded, err := rq.encoderDecoder.Encode(*job)
	if err != nil {
		return nil, err
	}
	_, err = rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, rq.jobsKey(), job.Id, encoded)
		pipe.LPush(ctx, rq.stateKey(model.JOB_STATE_WAITING), job.Id)
		return nil
	})
	if err != nil {
		logger.Error("error while adding job", zap.String("queue", rq.name), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return job, nil
}

func (rq *redisQueue) Poll(ctx context.Context, batchSize int) ([]*model.Job, error) {
	now := time.Now()
	if err := rq.promote(ctx, now); err != nil {
		return nil, err
	}
	res := make([]*model.Job, 0, batchSize)
	for len(res) < batchSize {
		id, err := rq.redisClient.LMove(ctx, rq.stateKey(model.JOB_STATE_WAITING), rq.stateKey(model.JOB_STATE_ACTIVE), "RIGHT", "LEFT").Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				break
			}
			logger.Error("error while polling queue", zap.String("queue", rq.name), zap.Error(err))
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		if err := rq.redisClient.HSet(ctx, rq.leasesKey(), id, now.UnixMilli()).Err(); err != nil {
			logger.Error("error while leasing job", zap.String("queue", rq.name), zap.String("job", id), zap.Error(err))
		}
		job, err := rq.get(ctx, id)
		if err != nil {
			var notFound persistence.NotFoundError
			if errors.As(err, &notFound) {
				rq.redisClient.LRem(ctx, rq.stateKey(model.JOB_STATE_ACTIVE), 0, id)
				rq.redisClient.HDel(ctx, rq.leasesKey(), id)
				continue
			}
			return nil, err
		}
		job.ActivatedAt = now
		res = append(res, job)
	}
	return res, nil
}

// promote moves due delayed jobs to the waiting list. ZRem decides which
// poller moves a job when several promote at once.
func (rq *redisQueue) promote(ctx context.Context, now time.Time) error {
	delayedKey := rq.stateKey(model.JOB_STATE_DELAYED)
	ids, err := rq.redisClient.ZRangeByScore(ctx, delayedKey, &rd.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		logger.Error("error while promoting delayed jobs", zap.String("queue", rq.name), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	for _, id := range ids {
		removed, err := rq.redisClient.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
		if removed == 0 {
			continue
		}
		if err := rq.redisClient.LPush(ctx, rq.stateKey(model.JOB_STATE_WAITING), id).Err(); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	return nil
}

func (rq *redisQueue) get(ctx context.Context, jobId string) (*model.Job, error) {
	data, err := rq.redisClient.HGet(ctx, rq.jobsKey(), jobId).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: persistence.ENTITY_JOB, Id: jobId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rq.encoderDecoder.Decode(data)
}

func (rq *redisQueue) Ack(ctx context.Context, jobId string) error {
	if _, err := rq.get(ctx, jobId); err != nil {
		return err
	}
	_, err := rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.LRem(ctx, rq.stateKey(model.JOB_STATE_ACTIVE), 0, jobId)
		pipe.ZRem(ctx, rq.stateKey(model.JOB_STATE_DELAYED), jobId)
		pipe.HDel(ctx, rq.leasesKey(), jobId)
		pipe.HDel(ctx, rq.jobsKey(), jobId)
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// takeActive loads the job and removes it from the active list. Only the
// caller that removed it gets the job back.
func (rq *redisQueue) takeActive(ctx context.Context, jobId string) (*model.Job, error) {
	job, err := rq.get(ctx, jobId)
	if err != nil {
		return nil, err
	}
	removed, err := rq.redisClient.LRem(ctx, rq.stateKey(model.JOB_STATE_ACTIVE), 0, jobId).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if removed == 0 {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_JOB, Id: jobId}
	}
	return job, nil
}

func (rq *redisQueue) Fail(ctx context.Context, jobId string, reason string) error {
	job, err := rq.takeActive(ctx, jobId)
	if err != nil {
		return err
	}
	job.AttemptsMade++
	job.FailedReason = reason
	encoded, err := rq.encoderDecoder.Encode(*job)
	if err != nil {
		return err
	}
	_, err = rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, rq.jobsKey(), jobId, encoded)
		pipe.HDel(ctx, rq.leasesKey(), jobId)
		pipe.LPush(ctx, rq.stateKey(model.JOB_STATE_FAILED), jobId)
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisQueue) Retry(ctx context.Context, jobId string, reason string, delay time.Duration) error {
	job, err := rq.takeActive(ctx, jobId)
	if err != nil {
		return err
	}
	job.AttemptsMade++
	job.FailedReason = reason
	job.ActivatedAt = time.Time{}
	job.RetryAt = time.Now().Add(delay)
	encoded, err := rq.encoderDecoder.Encode(*job)
	if err != nil {
		return err
	}
	_, err = rq.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.HSet(ctx, rq.jobsKey(), jobId, encoded)
		pipe.HDel(ctx, rq.leasesKey(), jobId)
		pipe.ZAdd(ctx, rq.stateKey(model.JOB_STATE_DELAYED), rd.Z{Score: score(job.RetryAt), Member: jobId})
		return nil
	})
	if err != nil {
		logger.Error("error while delaying job", zap.String("queue", rq.name), zap.String("job", jobId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// Stalled reads the leases of the active jobs. An active job without a
// lease was polled by a process that died before writing it; it is leased
// now and reported once that lease expires.
func (rq *redisQueue) Stalled(ctx context.Context, activeBefore time.Time) ([]*model.Job, error) {
	ids, err := rq.redisClient.LRange(ctx, rq.stateKey(model.JOB_STATE_ACTIVE), 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make([]*model.Job, 0)
	if len(ids) == 0 {
		return res, nil
	}
	leases, err := rq.redisClient.HMGet(ctx, rq.leasesKey(), ids...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	for i, v := range leases {
		s, ok := v.(string)
		if !ok {
			rq.redisClient.HSetNX(ctx, rq.leasesKey(), ids[i], time.Now().UnixMilli())
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			logger.Warn("invalid job lease", zap.String("queue", rq.name), zap.String("job", ids[i]), zap.String("lease", s))
			continue
		}
		activatedAt := time.UnixMilli(ms)
		if !activatedAt.Before(activeBefore) {
			continue
		}
		job, err := rq.get(ctx, ids[i])
		if err != nil {
			var notFound persistence.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		job.ActivatedAt = activatedAt
		res = append(res, job)
	}
	return res, nil
}

func (rq *redisQueue) Progress(ctx context.Context, jobId string, percent int) error {
	job, err := rq.get(ctx, jobId)
	if err != nil {
		return err
	}
	job.Progress = percent
	encoded, err := rq.encoderDecoder.Encode(*job)
	if err != nil {
		return err
	}
	if err := rq.redisClient.HSet(ctx, rq.jobsKey(), jobId, encoded).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisQueue) GetJobs(ctx context.Context, states ...model.JobState) ([]*model.Job, error) {
	res := make([]*model.Job, 0)
	for _, state := range states {
		var ids []string
		var err error
		if state == model.JOB_STATE_DELAYED {
			ids, err = rq.redisClient.ZRange(ctx, rq.stateKey(state), 0, -1).Result()
		} else {
			ids, err = rq.redisClient.LRange(ctx, rq.stateKey(state), 0, -1).Result()
		}
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		if len(ids) == 0 {
			continue
		}
		values, err := rq.redisClient.HMGet(ctx, rq.jobsKey(), ids...).Result()
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			job, err := rq.encoderDecoder.DecodeString(s)
			if err != nil {
				return nil, persistence.StorageLayerError{Message: err.Error()}
			}
			res = append(res, job)
		}
	}
	return res, nil
}
