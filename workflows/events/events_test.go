package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/persistence/memory"
	"github.com/ticket721/actionset/service"
	"github.com/ticket721/actionset/validation"
	"github.com/ticket721/actionset/workflows"
)

func newService(t *testing.T) *service.ActionSetService {
	svc := service.NewActionSetService(memory.NewActionSetStorage(), persistence.Queues{
		Input: memory.NewQueue("input"),
		Event: memory.NewQueue("event"),
	}, memory.NewRightsStorage())
	require.NoError(t, Register(svc, validation.NewValidator()))
	return svc
}

func run(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) *model.ActionSet {
	handler, ok := svc.Handler(as.Action().Type(), as.Action().Name())
	require.True(t, ok)
	res, changed, err := handler(context.Background(), as, func(int) {})
	require.NoError(t, err)
	require.True(t, changed)
	return res
}

func validDates() map[string]any {
	return map[string]any{"dates": []any{
		map[string]any{"name": "day one", "eventBegin": "2026-07-01T18:00:00Z", "eventEnd": "2026-07-01T23:00:00Z"},
		map[string]any{"name": "day two", "eventBegin": "2026-07-02T18:00:00Z", "eventEnd": "2026-07-02T23:00:00Z"},
	}}
}

func TestEventCreation(t *testing.T) {
	ctx := context.Background()
	caller := model.User{Id: "organizer-1"}

	for scenario, fn := range map[string]func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet){
		"builds with the name from args": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			require.Len(t, as.Actions(), 3)
			require.Equal(t, "input:in progress", as.Status())
			var text TextMetadata
			require.NoError(t, as.Action().DecodeData(&text))
			require.Equal(t, "Summer fest", text.Name)
		},
		"walks through every step": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as = run(t, svc, as)
			require.Equal(t, 1, as.CurrentAction())
			require.Equal(t, "input:in progress", as.Status())

			as.Action().SetData(validDates())
			as = run(t, svc, as)
			require.Equal(t, 2, as.CurrentAction())
			require.Equal(t, "event:in progress", as.Status())

			as = run(t, svc, as)
			require.True(t, as.IsComplete())
			var ack CreationAcknowledgement
			require.NoError(t, as.Actions()[2].DecodeData(&ack))
			require.Equal(t, "Summer fest", ack.Name)
			require.Equal(t, 2, ack.DateCount)
			require.False(t, ack.AcknowledgedAt.IsZero())
		},
		"short name is a validation error": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as.Action().SetData(TextMetadata{Name: "ab"})
			as = run(t, svc, as)
			require.Equal(t, 0, as.CurrentAction())
			require.Equal(t, "input:error", as.Status())
			require.Equal(t, model.ACTION_STATUS_ERROR, as.Action().Status())
			require.Equal(t, workflows.VALIDATION_FAILED, as.Action().Error().Error)
			require.NotEmpty(t, as.Action().Error().Details)
		},
		"missing dates is incomplete": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as = run(t, svc, as)
			as.Action().SetData(map[string]any{"dates": []any{}})
			as = run(t, svc, as)
			require.Equal(t, "input:incomplete", as.Status())
			require.Equal(t, model.ACTION_STATUS_INCOMPLETE, as.Action().Status())
		},
		"date ending before it begins is an error": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as = run(t, svc, as)
			as.Action().SetData(DatesConfiguration{Dates: []EventDate{{
				Name:       "backwards",
				EventBegin: time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
				EventEnd:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			}}})
			as = run(t, svc, as)
			require.Equal(t, "input:error", as.Status())
			require.Equal(t, "event date ends before it begins", as.Action().Error().Error)
		},
		"malformed date is a validation error": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as = run(t, svc, as)
			as.Action().SetData(map[string]any{"dates": []any{
				map[string]any{"name": "day one", "eventBegin": "tomorrow", "eventEnd": "2026-07-01T23:00:00Z"},
			}})
			as = run(t, svc, as)
			require.Equal(t, "input:error", as.Status())
			require.Equal(t, workflows.VALIDATION_FAILED, as.Action().Error().Error)
		},
		"fixed data can be resubmitted": func(t *testing.T, svc *service.ActionSetService, as *model.ActionSet) {
			as.Action().SetData(TextMetadata{Name: "ab"})
			as = run(t, svc, as)
			require.NoError(t, svc.Persist(ctx, as))

			as, err := svc.UpdateAction(ctx, as.Id(), 0, TextMetadata{Name: "Summer fest", Description: "three days of music"})
			require.NoError(t, err)
			require.Equal(t, "input:waiting", as.Status())
			as = run(t, svc, as)
			require.Equal(t, "input:in progress", as.Status())
			require.Equal(t, 1, as.CurrentAction())
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			svc := newService(t)
			as, err := svc.Build(ctx, CREATION, caller, map[string]any{"name": "Summer fest"}, false)
			require.NoError(t, err)
			fn(t, svc, as)
		})
	}
}
