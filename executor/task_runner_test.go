package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/service"
)

type fakeEngine struct {
	Engine
	rows      map[string]model.RawActionSet
	handlers  map[string]service.Handler
	lookups   int
	persisted []model.RawActionSet
	proceeded []int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rows:     make(map[string]model.RawActionSet),
		handlers: make(map[string]service.Handler),
	}
}

func (f *fakeEngine) Handler(kind model.ActionType, name string) (service.Handler, bool) {
	f.lookups++
	h, ok := f.handlers[string(kind)+"/"+name]
	return h, ok
}

func (f *fakeEngine) Get(ctx context.Context, id string) (*model.ActionSet, error) {
	raw, ok := f.rows[id]
	if !ok {
		return nil, persistence.NotFoundError{Entity: persistence.ENTITY_ACTION_SET, Id: id}
	}
	return model.LoadActionSet(raw)
}

func (f *fakeEngine) Persist(ctx context.Context, actionSet *model.ActionSet) error {
	raw, err := actionSet.Raw()
	if err != nil {
		return err
	}
	f.rows[raw.Id] = raw
	f.persisted = append(f.persisted, raw)
	return nil
}

func (f *fakeEngine) Proceed(ctx context.Context, actionSet *model.ActionSet, previousIdx int) error {
	f.proceeded = append(f.proceeded, previousIdx)
	return nil
}

func twoStepRaw(t *testing.T) model.RawActionSet {
	raw, err := model.NewActionSet().
		SetId("as-1").
		SetName("@test/flow").
		SetStatus("input:in progress").
		SetActions([]*model.Action{
			model.NewAction().SetType(model.ACTION_TYPE_INPUT).SetName("first").SetData(map[string]any{"name": "hello"}).SetStatus(model.ACTION_STATUS_IN_PROGRESS),
			model.NewAction().SetType(model.ACTION_TYPE_EVENT).SetName("second").SetData(map[string]any{"name": "hello"}).SetStatus(model.ACTION_STATUS_IN_PROGRESS),
		}).Raw()
	require.NoError(t, err)
	return raw
}

func advance(ctx context.Context, as *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	progress(100)
	return as.Next(), true, nil
}

func TestTaskRunner(t *testing.T) {
	ctx := context.Background()

	for scenario, fn := range map[string]func(t *testing.T, engine *fakeEngine, runner *TaskRunner){
		"missing handler fails without persisting": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw

			err := runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil)
			var notFound service.HandlerNotFoundError
			require.ErrorAs(t, err, &notFound)
			require.Contains(t, err.Error(), "first")
			require.Contains(t, err.Error(), "as-1")
			require.Empty(t, engine.persisted)
			require.Empty(t, engine.proceeded)
		},
		"no change skips persistence": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw
			engine.handlers["input/first"] = func(ctx context.Context, as *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
				return as, false, nil
			}

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Empty(t, engine.persisted)
			require.Empty(t, engine.proceeded)
			require.Equal(t, 1, engine.lookups)
		},
		"advance persists and proceeds": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw
			engine.handlers["input/first"] = advance
			var reported []int

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, func(p int) { reported = append(reported, p) }))
			require.Equal(t, 2, engine.lookups)
			require.Len(t, engine.persisted, 1)
			require.Equal(t, "event:in progress", engine.persisted[0].CurrentStatus)
			require.Equal(t, 1, engine.persisted[0].CurrentAction)
			require.Equal(t, model.ACTION_STATUS_COMPLETE, engine.persisted[0].Actions[0].Status)
			require.Equal(t, []int{0}, engine.proceeded)
			require.Equal(t, []int{100}, reported)
		},
		"event job runs event handler": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			raw.CurrentAction = 1
			raw.CurrentStatus = "event:in progress"
			raw.Actions[0].Status = model.ACTION_STATUS_COMPLETE
			engine.rows[raw.Id] = raw
			engine.handlers["event/second"] = advance

			require.NoError(t, runner.Event(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Len(t, engine.persisted, 1)
			require.Equal(t, model.ACTION_SET_STATUS_COMPLETE, engine.persisted[0].CurrentStatus)
		},
		"stale snapshot is skipped": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			snapshot := twoStepRaw(t)
			stored := twoStepRaw(t)
			stored.CurrentAction = 1
			stored.CurrentStatus = "event:in progress"
			stored.Actions[0].Status = model.ACTION_STATUS_COMPLETE
			engine.rows[stored.Id] = stored
			engine.handlers["input/first"] = advance

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: snapshot}, nil))
			require.Zero(t, engine.lookups)
			require.Empty(t, engine.persisted)
		},
		"wrong queue is skipped": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw
			engine.handlers["event/first"] = advance

			require.NoError(t, runner.Event(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Zero(t, engine.lookups)
			require.Empty(t, engine.persisted)
		},
		"halted action is skipped": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			raw.CurrentStatus = "input:error"
			raw.Actions[0].Status = model.ACTION_STATUS_ERROR
			engine.rows[raw.Id] = raw
			engine.handlers["input/first"] = advance

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Empty(t, engine.persisted)
		},
		"complete set is skipped": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			stored := raw
			stored.CurrentStatus = model.ACTION_SET_STATUS_COMPLETE
			engine.rows[raw.Id] = stored
			engine.handlers["input/first"] = advance

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Empty(t, engine.persisted)
		},
		"handler error is returned": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw
			cause := errors.New("payment provider unreachable")
			engine.handlers["input/first"] = func(ctx context.Context, as *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
				return nil, false, cause
			}

			err := runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil)
			require.ErrorIs(t, err, cause)
			require.Empty(t, engine.persisted)
		},
		"validation failure is persisted as data": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			raw := twoStepRaw(t)
			engine.rows[raw.Id] = raw
			engine.handlers["input/first"] = func(ctx context.Context, as *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
				return as.SetActionError("name too short", nil), true, nil
			}

			require.NoError(t, runner.Input(ctx, &model.Job{Id: "job-1", Data: raw}, nil))
			require.Len(t, engine.persisted, 1)
			require.Equal(t, "input:error", engine.persisted[0].CurrentStatus)
			require.Equal(t, "name too short", engine.persisted[0].Actions[0].Error.Error)
		},
		"unknown action set": func(t *testing.T, engine *fakeEngine, runner *TaskRunner) {
			err := runner.Input(ctx, &model.Job{Id: "job-1", Data: twoStepRaw(t)}, nil)
			require.ErrorAs(t, err, &persistence.NotFoundError{})
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			engine := newFakeEngine()
			fn(t, engine, NewTaskRunner(engine))
		})
	}
}
