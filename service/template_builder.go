package service

import (
	"context"
	"errors"

	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/util"
)

// ActionTemplate describes one action of a workflow template. String values
// of Data may hold "{$.path}" tokens resolved against the builder args.
type ActionTemplate struct {
	Type model.ActionType
	Name string
	Data map[string]any
}

// TemplateBuilder is a Builder assembled from a fixed list of action
// templates.
type TemplateBuilder struct {
	actions []ActionTemplate
	private bool
	check   func(caller model.User, args map[string]any) error
}

var _ Builder = new(TemplateBuilder)

func NewTemplateBuilder(actions ...ActionTemplate) *TemplateBuilder {
	return &TemplateBuilder{actions: actions}
}

func (b *TemplateBuilder) Private() *TemplateBuilder {
	b.private = true
	return b
}

// WithCheck sets a precondition run on the build args before any action is
// created. A failing check rejects the build.
func (b *TemplateBuilder) WithCheck(check func(caller model.User, args map[string]any) error) *TemplateBuilder {
	b.check = check
	return b
}

func (b *TemplateBuilder) IsPrivate() bool {
	return b.private
}

func (b *TemplateBuilder) BuildActionSet(ctx context.Context, caller model.User, args map[string]any) (*model.ActionSet, error) {
	if len(b.actions) == 0 {
		return nil, errors.New("template has no actions")
	}
	if b.check != nil {
		if err := b.check(caller, args); err != nil {
			return nil, err
		}
	}
	actions := make([]*model.Action, 0, len(b.actions))
	for _, tpl := range b.actions {
		action := model.NewAction().
			SetType(tpl.Type).
			SetName(tpl.Name).
			SetStatus(model.ACTION_STATUS_IN_PROGRESS)
		if tpl.Data != nil {
			action.SetData(util.ResolveTemplate(args, tpl.Data))
		}
		actions = append(actions, action)
	}
	return model.NewActionSet().
		SetActions(actions).
		SetCurrentAction(0).
		SetStatus(model.ComposeStatus(actions[0].Type(), model.ACTION_STATUS_IN_PROGRESS)), nil
}
