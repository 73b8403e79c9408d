package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/ticket721/actionset/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Entity string
	Id     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Id)
}

type ConflictError struct {
	Entity string
	Id     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Id)
}

const ENTITY_ACTION_SET = "action set"
const ENTITY_JOB = "job"

// ActionSetStorage is keyed CRUD over ActionSet rows. Update applies the
// non nil fields of the update to the row matching query and returns the
// resulting row.
type ActionSetStorage interface {
	Create(ctx context.Context, raw model.RawActionSet) error
	Get(ctx context.Context, query model.ActionSetQuery) (*model.RawActionSet, error)
	Update(ctx context.Context, query model.ActionSetQuery, update model.ActionSetUpdate) (*model.RawActionSet, error)
	Search(ctx context.Context, filter model.ActionSetFilter) ([]model.RawActionSet, error)
}

// Queue is one logical job queue. Jobs move waiting -> active on Poll, and
// leave active on Ack (removed), Fail (kept as failed) or Retry (delayed,
// back to waiting once due). Fail and Retry only apply to active jobs.
// Stalled lists the jobs activated before the given time.
type Queue interface {
	Name() string
	Add(ctx context.Context, jobName string, data model.RawActionSet) (*model.Job, error)
	Poll(ctx context.Context, batchSize int) ([]*model.Job, error)
	Ack(ctx context.Context, jobId string) error
	Fail(ctx context.Context, jobId string, reason string) error
	Retry(ctx context.Context, jobId string, reason string, delay time.Duration) error
	Stalled(ctx context.Context, activeBefore time.Time) ([]*model.Job, error)
	Progress(ctx context.Context, jobId string, percent int) error
	GetJobs(ctx context.Context, states ...model.JobState) ([]*model.Job, error)
}

type RightsStorage interface {
	AddRights(ctx context.Context, user model.User, rights []model.RightDef) error
	GetRights(ctx context.Context, user model.User, entity string, entityValue string) (map[string]bool, error)
}

// Queues holds the two engine queues, indexed by the action type they serve.
type Queues struct {
	Input Queue
	Event Queue
}

func (q Queues) For(actionType model.ActionType) (Queue, error) {
	switch actionType {
	case model.ACTION_TYPE_INPUT:
		return q.Input, nil
	case model.ACTION_TYPE_EVENT:
		return q.Event, nil
	}
	return nil, fmt.Errorf("no queue for action type %q", actionType)
}
