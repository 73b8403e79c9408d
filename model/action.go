package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ActionType string

const ACTION_TYPE_INPUT ActionType = "input"
const ACTION_TYPE_EVENT ActionType = "event"

type ActionStatus string

const ACTION_STATUS_IN_PROGRESS ActionStatus = "in progress"
const ACTION_STATUS_WAITING ActionStatus = "waiting"
const ACTION_STATUS_INCOMPLETE ActionStatus = "incomplete"
const ACTION_STATUS_ERROR ActionStatus = "error"
const ACTION_STATUS_COMPLETE ActionStatus = "complete"

type ActionError struct {
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// RawAction is the storage shape of an Action. Data holds the JSON
// serialization of the payload.
type RawAction struct {
	Type   ActionType   `json:"type"`
	Name   string       `json:"name"`
	Data   string       `json:"data"`
	Status ActionStatus `json:"status"`
	Error  *ActionError `json:"error"`
}

// UnmarshalJSON accepts data either as its serialized string form or as an
// already decoded JSON value.
func (r *RawAction) UnmarshalJSON(b []byte) error {
	type alias RawAction
	var aux struct {
		alias
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = RawAction(aux.alias)
	data := bytes.TrimSpace(aux.Data)
	switch {
	case len(data) == 0:
		r.Data = ""
	case data[0] == '"':
		if err := json.Unmarshal(data, &r.Data); err != nil {
			return err
		}
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		r.Data = buf.String()
	}
	return nil
}

// Action is one named step of an ActionSet. The payload is kept serialized
// and only decoded on demand by the handler owning the step.
type Action struct {
	actionType ActionType
	name       string
	data       string
	status     ActionStatus
	err        *ActionError
	dataErr    error
}

func NewAction() *Action {
	return &Action{data: "null"}
}

func (a *Action) SetType(t ActionType) *Action {
	a.actionType = t
	return a
}

func (a *Action) SetName(name string) *Action {
	a.name = name
	return a
}

// SetData serializes data. A value that cannot be encoded to JSON is kept
// as an error reported by Raw.
func (a *Action) SetData(data any) *Action {
	b, err := json.Marshal(data)
	if err != nil {
		a.dataErr = fmt.Errorf("action %s: encode data: %w", a.name, err)
		return a
	}
	a.data = string(b)
	a.dataErr = nil
	return a
}

func (a *Action) SetStatus(status ActionStatus) *Action {
	a.status = status
	return a
}

func (a *Action) SetError(err *ActionError) *Action {
	a.err = err
	return a
}

func (a *Action) Type() ActionType {
	return a.actionType
}

func (a *Action) Name() string {
	return a.name
}

func (a *Action) Status() ActionStatus {
	return a.status
}

func (a *Action) Error() *ActionError {
	return a.err
}

// RawData is the serialized payload.
func (a *Action) RawData() string {
	return a.data
}

// Data decodes the payload into a generic JSON value.
func (a *Action) Data() (any, error) {
	var v any
	if err := a.DecodeData(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeData decodes the payload into v.
func (a *Action) DecodeData(v any) error {
	if err := json.Unmarshal([]byte(a.data), v); err != nil {
		return fmt.Errorf("action %s: decode data: %w", a.name, err)
	}
	return nil
}

func (a *Action) Raw() (RawAction, error) {
	if a.dataErr != nil {
		return RawAction{}, a.dataErr
	}
	return RawAction{
		Type:   a.actionType,
		Name:   a.name,
		Data:   a.data,
		Status: a.status,
		Error:  a.err,
	}, nil
}

// Load replaces the Action content with raw. Data that is not valid JSON is
// rejected: corrupt stored state must surface.
func (a *Action) Load(raw RawAction) (*Action, error) {
	if !json.Valid([]byte(raw.Data)) {
		return nil, fmt.Errorf("action %s: stored data is not valid json: %q", raw.Name, raw.Data)
	}
	a.actionType = raw.Type
	a.name = raw.Name
	a.data = raw.Data
	a.status = raw.Status
	a.err = raw.Error
	a.dataErr = nil
	return a, nil
}

func LoadAction(raw RawAction) (*Action, error) {
	return NewAction().Load(raw)
}
