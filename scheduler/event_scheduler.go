package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ticket721/actionset/cache"
	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/executor"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/metrics"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
	"go.uber.org/zap"
)

const EVENT_STATUS_PREFIX = string(model.ACTION_TYPE_EVENT) + ":"

// SearchError means the scheduler could not list stale sets. The scheduler
// cannot make progress without it.
type SearchError struct {
	Err error
}

func (e SearchError) Error() string {
	return "stale action set search failed: " + e.Err.Error()
}

func (e SearchError) Unwrap() error {
	return e.Err
}

// EventScheduler re-dispatches event steps nobody picked up within the
// staleness window. Sets with a job still waiting or active in the event
// queue are left alone.
type EventScheduler struct {
	storage   persistence.ActionSetStorage
	queue     persistence.Queue
	guard     *cache.DispatchCache
	staleness time.Duration
	batchSize int
	onFailure func(error)
	now       func() time.Time
	ctx       context.Context
	tw        *util.TickWorker
}

var _ executor.Executor = new(EventScheduler)

func NewEventScheduler(storage persistence.ActionSetStorage, queue persistence.Queue, conf config.SchedulerConfig, onFailure func(error), wg *sync.WaitGroup) *EventScheduler {
	conf = conf.WithDefaults()
	s := &EventScheduler{
		storage:   storage,
		queue:     queue,
		guard:     cache.NewDispatchCache(conf.Staleness),
		staleness: conf.Staleness,
		batchSize: conf.BatchSize,
		onFailure: onFailure,
		now:       time.Now,
		ctx:       context.Background(),
	}
	s.tw = util.NewTickWorker(s.Name(), conf.Interval, s.handle, wg)
	return s
}

func (s *EventScheduler) Name() string {
	return "event-scheduler"
}

func (s *EventScheduler) Start() error {
	s.tw.Start()
	return nil
}

func (s *EventScheduler) Stop() error {
	s.tw.Stop()
	return nil
}

func (s *EventScheduler) handle() {
	count, err := s.Schedule(s.ctx)
	if err != nil {
		logger.Error("event scheduler failed", zap.Error(err))
		s.tw.Stop()
		if s.onFailure != nil {
			s.onFailure(err)
		}
		return
	}
	if count > 0 {
		logger.Info("re-dispatched stale event steps", zap.Int("count", count))
	}
}

// Schedule runs one scheduling round and returns the number of sets
// dispatched. Only a failed search is returned as an error, anything else is
// logged and retried on the next round.
func (s *EventScheduler) Schedule(ctx context.Context) (int, error) {
	now := s.now().UTC()
	before := now.Add(-s.staleness)
	stale, err := s.storage.Search(ctx, model.ActionSetFilter{
		StatusPrefix: EVENT_STATUS_PREFIX,
		ExcludeStatuses: []string{
			model.ComposeStatus(model.ACTION_TYPE_EVENT, model.ACTION_STATUS_ERROR),
			model.ComposeStatus(model.ACTION_TYPE_EVENT, model.ACTION_STATUS_INCOMPLETE),
		},
		DispatchedBefore: &before,
		Limit:            s.batchSize,
	})
	if err != nil {
		return 0, SearchError{Err: err}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	inFlight, err := s.inFlight(ctx)
	if err != nil {
		logger.Error("error while listing event jobs", zap.String("queue", s.queue.Name()), zap.Error(err))
		return 0, nil
	}

	count := 0
	for _, raw := range stale {
		if inFlight[raw.Id] || s.guard.RecentlyDispatched(raw.Id) {
			continue
		}
		if _, err := s.queue.Add(ctx, string(model.ACTION_TYPE_EVENT), raw); err != nil {
			logger.Error("error while re-dispatching action set", zap.String("actionSet", raw.Id), zap.Error(err))
			continue
		}
		s.guard.MarkDispatched(raw.Id, now)
		count++
		if _, err := s.storage.Update(ctx, model.ActionSetQuery{Id: raw.Id}, model.ActionSetUpdate{DispatchedAt: &now}); err != nil {
			logger.Error("error while updating dispatch time", zap.String("actionSet", raw.Id), zap.Error(err))
		}
	}
	if count > 0 {
		metrics.RecordRedispatched(ctx, count)
	}
	return count, nil
}

func (s *EventScheduler) inFlight(ctx context.Context) (map[string]bool, error) {
	jobs, err := s.queue.GetJobs(ctx, model.JOB_STATE_ACTIVE, model.JOB_STATE_WAITING, model.JOB_STATE_DELAYED)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		ids[job.Data.Id] = true
	}
	return ids, nil
}
