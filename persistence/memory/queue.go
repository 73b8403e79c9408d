package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"golang.org/x/exp/slices"
)

type queue struct {
	name    string
	mu      sync.Mutex
	jobs    map[string]*model.Job
	waiting []string
	active  []string
	failed  []string
	delayed []string
}

var _ persistence.Queue = new(queue)

func NewQueue(name string) *queue {
	return &queue{
		name: name,
		jobs: make(map[string]*model.Job),
	}
}

func (q *queue) Name() string {
	return q.name
}

func (q *queue) Add(ctx context.Context, jobName string, data model.RawActionSet) (*model.Job, error) {
	job := &model.Job{
		Id:        uuid.NewString(),
		Name:      jobName,
		Queue:     q.name,
		Data:      data,
		CreatedAt: time.Now(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.Id] = job
	q.waiting = append(q.waiting, job.Id)
	c := *job
	return &c, nil
}

func (q *queue) Poll(ctx context.Context, batchSize int) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	q.promote(now)
	res := make([]*model.Job, 0, batchSize)
	for len(res) < batchSize && len(q.waiting) > 0 {
		id := q.waiting[0]
		q.waiting = q.waiting[1:]
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		job.ActivatedAt = now
		q.active = append(q.active, id)
		c := *job
		res = append(res, &c)
	}
	return res, nil
}

// promote moves due delayed jobs to the end of the waiting list.
func (q *queue) promote(now time.Time) {
	kept := q.delayed[:0]
	for _, id := range q.delayed {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		if job.RetryAt.After(now) {
			kept = append(kept, id)
			continue
		}
		q.waiting = append(q.waiting, id)
	}
	q.delayed = kept
}

func (q *queue) Ack(ctx context.Context, jobId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[jobId]; !ok {
		return persistence.NotFoundError{Entity: persistence.ENTITY_JOB, Id: jobId}
	}
	q.active = remove(q.active, jobId)
	q.delayed = remove(q.delayed, jobId)
	q.waiting = remove(q.waiting, jobId)
	q.failed = remove(q.failed, jobId)
	delete(q.jobs, jobId)
	return nil
}

// takeActive returns the job if it is active and removes it from the active
// list.
func (q *queue) takeActive(jobId string) (*model.Job, error) {
	job, ok := q.jobs[jobId]
	if !ok || !slices.Contains(q.active, jobId) {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_JOB, Id: jobId}
	}
	q.active = remove(q.active, jobId)
	return job, nil
}

func (q *queue) Fail(ctx context.Context, jobId string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.takeActive(jobId)
	if err != nil {
		return err
	}
	job.AttemptsMade++
	job.FailedReason = reason
	q.failed = append(q.failed, jobId)
	return nil
}

func (q *queue) Retry(ctx context.Context, jobId string, reason string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.takeActive(jobId)
	if err != nil {
		return err
	}
	job.AttemptsMade++
	job.FailedReason = reason
	job.ActivatedAt = time.Time{}
	job.RetryAt = time.Now().Add(delay)
	q.delayed = append(q.delayed, jobId)
	return nil
}

func (q *queue) Stalled(ctx context.Context, activeBefore time.Time) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	res := make([]*model.Job, 0)
	for _, id := range q.active {
		if job := q.jobs[id]; job.ActivatedAt.Before(activeBefore) {
			c := *job
			res = append(res, &c)
		}
	}
	return res, nil
}

func (q *queue) Progress(ctx context.Context, jobId string, percent int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobId]
	if !ok {
		return persistence.NotFoundError{Entity: persistence.ENTITY_JOB, Id: jobId}
	}
	job.Progress = percent
	return nil
}

func (q *queue) GetJobs(ctx context.Context, states ...model.JobState) ([]*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	res := make([]*model.Job, 0)
	for _, state := range states {
		var ids []string
		switch state {
		case model.JOB_STATE_WAITING:
			ids = q.waiting
		case model.JOB_STATE_ACTIVE:
			ids = q.active
		case model.JOB_STATE_FAILED:
			ids = q.failed
		case model.JOB_STATE_DELAYED:
			ids = q.delayed
		}
		for _, id := range ids {
			c := *q.jobs[id]
			res = append(res, &c)
		}
	}
	return res, nil
}

func remove(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
