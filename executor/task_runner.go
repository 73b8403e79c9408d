package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ticket721/actionset/analytics"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/metrics"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/service"
	"go.uber.org/zap"
)

// Engine is the part of the ActionSet service the task runner drives.
type Engine interface {
	Handler(kind model.ActionType, name string) (service.Handler, bool)
	Get(ctx context.Context, id string) (*model.ActionSet, error)
	Persist(ctx context.Context, actionSet *model.ActionSet) error
	Proceed(ctx context.Context, actionSet *model.ActionSet, previousIdx int) error
}

var _ Engine = new(service.ActionSetService)

// TaskRunner runs the handler of the current action for one job.
type TaskRunner struct {
	engine Engine
}

func NewTaskRunner(engine Engine) *TaskRunner {
	return &TaskRunner{engine: engine}
}

func (r *TaskRunner) Input(ctx context.Context, job *model.Job, progress service.Progress) error {
	return r.Run(ctx, model.ACTION_TYPE_INPUT, job, progress)
}

func (r *TaskRunner) Event(ctx context.Context, job *model.Job, progress service.Progress) error {
	return r.Run(ctx, model.ACTION_TYPE_EVENT, job, progress)
}

// Run processes job as a kind job. The set is reloaded and the job is skipped
// when the stored set moved on from the snapshot the job carries. A missing
// handler is returned as HandlerNotFoundError without touching the store.
func (r *TaskRunner) Run(ctx context.Context, kind model.ActionType, job *model.Job, progress service.Progress) error {
	start := time.Now()
	outcome := metrics.OUTCOME_FAILURE
	defer func() {
		metrics.RecordJob(ctx, string(kind), outcome, time.Since(start))
	}()

	snapshot, err := model.LoadActionSet(job.Data)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Id, err)
	}
	actionSet, err := r.engine.Get(ctx, snapshot.Id())
	if err != nil {
		return err
	}
	if reason := staleReason(kind, snapshot, actionSet); reason != "" {
		logger.Info("skipping job", zap.String("job", job.Id), zap.String("actionSet", actionSet.Id()), zap.String("reason", reason))
		outcome = metrics.OUTCOME_SKIPPED
		return nil
	}

	action := actionSet.Action()
	handler, ok := r.engine.Handler(kind, action.Name())
	if !ok {
		return service.HandlerNotFoundError{Kind: kind, ActionName: action.Name(), ActionSetId: actionSet.Id()}
	}
	previousIdx := actionSet.CurrentAction()
	if progress == nil {
		progress = func(int) {}
	}

	result, changed, err := handler(ctx, actionSet, progress)
	if err != nil {
		analytics.RecordStepFailure(actionSet.Name(), actionSet.Id(), action.Name(), previousIdx, err.Error())
		return fmt.Errorf("%s handler %s on action set %s: %w", kind, action.Name(), actionSet.Id(), err)
	}
	if !changed {
		logger.Debug("handler reported no change", zap.String("actionSet", actionSet.Id()), zap.String("action", action.Name()))
		outcome = metrics.OUTCOME_SKIPPED
		return nil
	}
	if result == nil {
		return fmt.Errorf("%s handler %s on action set %s returned no action set", kind, action.Name(), actionSet.Id())
	}
	if _, ok := r.engine.Handler(kind, action.Name()); !ok {
		return service.HandlerNotFoundError{Kind: kind, ActionName: action.Name(), ActionSetId: actionSet.Id()}
	}
	if err := r.engine.Persist(ctx, result); err != nil {
		return err
	}
	recordStep(result, previousIdx)
	outcome = metrics.OUTCOME_SUCCESS

	return r.engine.Proceed(ctx, result, previousIdx)
}

// staleReason returns why the stored set no longer matches the job, empty if
// the job is still current.
func staleReason(kind model.ActionType, snapshot *model.ActionSet, current *model.ActionSet) string {
	switch {
	case current.IsComplete():
		return "action set is complete"
	case current.CurrentAction() != snapshot.CurrentAction():
		return "current action moved"
	case current.Status() != snapshot.Status():
		return "status changed"
	case current.Action() == nil:
		return "no current action"
	case current.Action().Type() != kind:
		return "current action is not of type " + string(kind)
	case isHalted(current.Action().Status()):
		return "current action is halted"
	}
	return ""
}

func isHalted(status model.ActionStatus) bool {
	return status == model.ACTION_STATUS_ERROR || status == model.ACTION_STATUS_INCOMPLETE
}

func recordStep(result *model.ActionSet, idx int) {
	if idx < 0 || idx >= len(result.Actions()) {
		return
	}
	action := result.Actions()[idx]
	if isHalted(action.Status()) {
		reason := string(action.Status())
		if action.Error() != nil {
			reason = action.Error().Error
		}
		analytics.RecordStepFailure(result.Name(), result.Id(), action.Name(), idx, reason)
		return
	}
	analytics.RecordStepSuccess(result.Name(), result.Id(), action.Name(), idx, result.Status())
}
