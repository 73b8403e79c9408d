package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"go.uber.org/zap"
)

// ActionSetService owns the ActionSet lifecycle: building from registered
// templates, feeding data into steps, forced failures, dispatch onto the job
// queues and completion hooks.
type ActionSetService struct {
	storage  persistence.ActionSetStorage
	queues   persistence.Queues
	rights   persistence.RightsStorage
	registry *registry
	now      func() time.Time
}

func NewActionSetService(storage persistence.ActionSetStorage, queues persistence.Queues, rights persistence.RightsStorage) *ActionSetService {
	return &ActionSetService{
		storage:  storage,
		queues:   queues,
		rights:   rights,
		registry: newRegistry(),
		now:      time.Now,
	}
}

func (s *ActionSetService) Get(ctx context.Context, id string) (*model.ActionSet, error) {
	raw, err := s.storage.Get(ctx, model.ActionSetQuery{Id: id})
	if err != nil {
		return nil, err
	}
	return model.LoadActionSet(*raw)
}

// Build instantiates the workflow template registered under name for caller
// and grants the caller ownership of the new set. Private templates can only
// be built with internal set.
func (s *ActionSetService) Build(ctx context.Context, name string, caller model.User, args map[string]any, internal bool) (*model.ActionSet, error) {
	builder, ok := s.getBuilder(name)
	if !ok {
		return nil, BuilderNotFoundError{Name: name}
	}
	if builder.IsPrivate() && !internal {
		return nil, PrivateBuilderError{Name: name}
	}
	actionSet, err := builder.BuildActionSet(ctx, caller, args)
	if err != nil {
		return nil, BuilderRejectedError{Name: name, Err: err}
	}

	now := s.now().UTC()
	actionSet.SetId(uuid.NewString()).
		SetName(name).
		SetCreatedAt(now).
		SetUpdatedAt(now).
		SetDispatchedAt(now)
	if actionSet.Status() == "" && actionSet.Action() != nil {
		actionSet.SetStatus(model.ComposeStatus(actionSet.Action().Type(), model.ACTION_STATUS_IN_PROGRESS))
	}
	if err := actionSet.Validate(); err != nil {
		return nil, BuilderRejectedError{Name: name, Err: err}
	}
	raw, err := actionSet.Raw()
	if err != nil {
		return nil, BuilderRejectedError{Name: name, Err: err}
	}
	if err := s.storage.Create(ctx, raw); err != nil {
		return nil, err
	}
	err = s.rights.AddRights(ctx, caller, []model.RightDef{{
		Entity:      model.RIGHTS_ENTITY_ACTION_SET,
		EntityValue: actionSet.Id(),
		Rights:      map[string]bool{model.RIGHT_OWNER: true},
	}})
	if err != nil {
		return nil, err
	}
	logger.Info("action set built", zap.String("name", name), zap.String("actionSet", actionSet.Id()), zap.String("caller", caller.Id))
	return actionSet, nil
}

// UpdateAction feeds data into the action at actionIdx of the stored set and
// dispatches it for processing.
func (s *ActionSetService) UpdateAction(ctx context.Context, id string, actionIdx int, data any) (*model.ActionSet, error) {
	actionSet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.UpdateActionSet(ctx, actionSet, actionIdx, data)
}

// UpdateActionSet is UpdateAction on an already loaded set. The target
// action is put in waiting state, the cursor moves onto it, the set is
// persisted and a job is added to the queue of the action type.
func (s *ActionSetService) UpdateActionSet(ctx context.Context, actionSet *model.ActionSet, actionIdx int, data any) (*model.ActionSet, error) {
	if actionSet.IsComplete() {
		return nil, ActionSetCompleteError{ActionSetId: actionSet.Id()}
	}
	if err := checkIndex(actionSet, actionIdx); err != nil {
		return nil, err
	}
	action := actionSet.Actions()[actionIdx]
	action.SetData(data).SetStatus(model.ACTION_STATUS_WAITING).SetError(nil)
	actionSet.SetCurrentAction(actionIdx).
		SetStatus(model.ComposeStatus(action.Type(), model.ACTION_STATUS_WAITING)).
		SetDispatchedAt(s.now().UTC())

	if err := s.Persist(ctx, actionSet); err != nil {
		return nil, err
	}
	if _, err := s.Dispatch(ctx, actionSet); err != nil {
		return nil, err
	}
	return actionSet, nil
}

// ErrorStep forces the action at actionIdx, and the set, into the error
// state. Used for failures detected outside of handlers.
func (s *ActionSetService) ErrorStep(ctx context.Context, id string, reason string, details any, actionIdx int) (*model.ActionSet, error) {
	actionSet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actionSet.IsComplete() {
		return nil, ActionSetCompleteError{ActionSetId: id}
	}
	if err := checkIndex(actionSet, actionIdx); err != nil {
		return nil, err
	}
	actionSet.SetCurrentAction(actionIdx).SetActionError(reason, details)
	if err := s.Persist(ctx, actionSet); err != nil {
		return nil, err
	}
	logger.Info("action set step errored", zap.String("actionSet", id), zap.Int("action", actionIdx), zap.String("reason", reason))
	return actionSet, nil
}

// OnComplete runs the completion hook registered for the set name, if any.
func (s *ActionSetService) OnComplete(ctx context.Context, actionSet *model.ActionSet) error {
	hook, ok := s.getCompletionHook(actionSet.Name())
	if !ok {
		return nil
	}
	return hook.OnComplete(ctx, actionSet)
}

// Dispatch adds a job for the current action of actionSet onto the queue of
// its type.
func (s *ActionSetService) Dispatch(ctx context.Context, actionSet *model.ActionSet) (*model.Job, error) {
	action := actionSet.Action()
	if action == nil {
		return nil, InvalidActionIndexError{ActionSetId: actionSet.Id(), Index: actionSet.CurrentAction()}
	}
	queue, err := s.queues.For(action.Type())
	if err != nil {
		return nil, err
	}
	raw, err := actionSet.Raw()
	if err != nil {
		return nil, err
	}
	job, err := queue.Add(ctx, string(action.Type()), raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("action set dispatched", zap.String("actionSet", actionSet.Id()), zap.String("queue", queue.Name()), zap.String("job", job.Id))
	return job, nil
}

// Persist writes every field of actionSet but its id.
func (s *ActionSetService) Persist(ctx context.Context, actionSet *model.ActionSet) error {
	actionSet.SetUpdatedAt(s.now().UTC())
	update, err := actionSet.WithoutQuery()
	if err != nil {
		return err
	}
	_, err = s.storage.Update(ctx, actionSet.GetQuery(), update)
	return err
}

// Proceed continues a set after a handler result was persisted. A complete
// set runs its completion hook; a set that moved onto an event action is
// dispatched right away instead of waiting for the scheduler.
func (s *ActionSetService) Proceed(ctx context.Context, actionSet *model.ActionSet, previousIdx int) error {
	if actionSet.IsComplete() {
		if err := s.OnComplete(ctx, actionSet); err != nil {
			logger.Error("completion hook failed", zap.String("actionSet", actionSet.Id()), zap.String("name", actionSet.Name()), zap.Error(err))
		}
		return nil
	}
	action := actionSet.Action()
	if actionSet.CurrentAction() == previousIdx || action == nil || action.Type() != model.ACTION_TYPE_EVENT {
		return nil
	}
	if _, err := s.Dispatch(ctx, actionSet); err != nil {
		return err
	}
	now := s.now().UTC()
	actionSet.SetDispatchedAt(now)
	_, err := s.storage.Update(ctx, actionSet.GetQuery(), model.ActionSetUpdate{DispatchedAt: &now})
	return err
}

// Consume flags a complete set as used by the business process that owns
// it. It is the only change a complete set accepts.
func (s *ActionSetService) Consume(ctx context.Context, id string) (*model.ActionSet, error) {
	actionSet, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actionSet.IsComplete() {
		return nil, ActionSetNotCompleteError{ActionSetId: id, Status: actionSet.Status()}
	}
	consumed := true
	raw, err := s.storage.Update(ctx, actionSet.GetQuery(), model.ActionSetUpdate{Consumed: &consumed})
	if err != nil {
		return nil, err
	}
	return model.LoadActionSet(*raw)
}

func (s *ActionSetService) GetRights(ctx context.Context, user model.User, id string) (map[string]bool, error) {
	return s.rights.GetRights(ctx, user, model.RIGHTS_ENTITY_ACTION_SET, id)
}

// checkIndex rejects indexes past the cursor: steps can be re-entered but
// never skipped ahead.
func checkIndex(actionSet *model.ActionSet, actionIdx int) error {
	if actionIdx < 0 || actionIdx >= len(actionSet.Actions()) || actionIdx > actionSet.CurrentAction() {
		return InvalidActionIndexError{
			ActionSetId:   actionSet.Id(),
			Index:         actionIdx,
			CurrentAction: actionSet.CurrentAction(),
			Length:        len(actionSet.Actions()),
		}
	}
	return nil
}
