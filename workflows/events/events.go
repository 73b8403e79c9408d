package events

import (
	"context"
	"time"

	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/service"
	"github.com/ticket721/actionset/validation"
	"github.com/ticket721/actionset/workflows"
	"go.uber.org/zap"
)

const CREATION = "@events/creation"

const TEXT_METADATA = "@events/textMetadata"
const DATES_CONFIGURATION = "@events/datesConfiguration"
const CREATION_ACKNOWLEDGEMENT = "@events/creationAcknowledgement"

const textMetadataSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 3, "maxLength": 50},
		"description": {"type": "string", "maxLength": 10000}
	}
}`

const datesConfigurationSchema = `{
	"type": "object",
	"required": ["dates"],
	"properties": {
		"dates": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "eventBegin", "eventEnd"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"eventBegin": {"type": "string", "format": "date-time"},
					"eventEnd": {"type": "string", "format": "date-time"}
				}
			}
		}
	}
}`

type TextMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type EventDate struct {
	Name       string    `json:"name"`
	EventBegin time.Time `json:"eventBegin"`
	EventEnd   time.Time `json:"eventEnd"`
}

type DatesConfiguration struct {
	Dates []EventDate `json:"dates"`
}

type CreationAcknowledgement struct {
	Name           string    `json:"name"`
	DateCount      int       `json:"dateCount"`
	AcknowledgedAt time.Time `json:"acknowledgedAt"`
}

type module struct {
	validator *validation.Validator
	now       func() time.Time
}

// Register adds the event creation workflow to svc.
func Register(svc *service.ActionSetService, validator *validation.Validator) error {
	if err := validator.Register(TEXT_METADATA, textMetadataSchema); err != nil {
		return err
	}
	if err := validator.Register(DATES_CONFIGURATION, datesConfigurationSchema); err != nil {
		return err
	}
	m := &module{validator: validator, now: time.Now}
	svc.SetBuilder(CREATION, service.NewTemplateBuilder(
		service.ActionTemplate{Type: model.ACTION_TYPE_INPUT, Name: TEXT_METADATA, Data: map[string]any{"name": "{$.name}"}},
		service.ActionTemplate{Type: model.ACTION_TYPE_INPUT, Name: DATES_CONFIGURATION},
		service.ActionTemplate{Type: model.ACTION_TYPE_EVENT, Name: CREATION_ACKNOWLEDGEMENT},
	))
	svc.SetInputHandler(TEXT_METADATA, m.textMetadata)
	svc.SetInputHandler(DATES_CONFIGURATION, m.datesConfiguration)
	svc.SetEventHandler(CREATION_ACKNOWLEDGEMENT, m.creationAcknowledgement)
	return nil
}

func (m *module) textMetadata(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	var data TextMetadata
	ok, err := workflows.Decode(m.validator, actionSet, &data)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return actionSet, true, nil
	}
	return actionSet.Next(), true, nil
}

// datesConfiguration needs at least one date, each ending after it begins.
func (m *module) datesConfiguration(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	var data DatesConfiguration
	ok, err := workflows.Decode(m.validator, actionSet, &data)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return actionSet, true, nil
	}
	if len(data.Dates) == 0 {
		return actionSet.SetActionIncomplete("no dates configured", nil), true, nil
	}
	for idx, date := range data.Dates {
		if !date.EventBegin.Before(date.EventEnd) {
			return actionSet.SetActionError("event date ends before it begins", map[string]any{"date": idx, "name": date.Name}), true, nil
		}
	}
	return actionSet.Next(), true, nil
}

func (m *module) creationAcknowledgement(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	actions := actionSet.Actions()
	var text TextMetadata
	if err := actions[0].DecodeData(&text); err != nil {
		return nil, false, err
	}
	var dates DatesConfiguration
	if err := actions[1].DecodeData(&dates); err != nil {
		return nil, false, err
	}
	progress(50)
	actionSet.Action().SetData(CreationAcknowledgement{
		Name:           text.Name,
		DateCount:      len(dates.Dates),
		AcknowledgedAt: m.now().UTC(),
	})
	logger.Info("event creation acknowledged", zap.String("actionSet", actionSet.Id()), zap.String("event", text.Name))
	progress(100)
	return actionSet.Next(), true, nil
}
