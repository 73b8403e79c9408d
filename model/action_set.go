package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ACTION_SET_STATUS_COMPLETE is the terminal ActionSet status. Every other
// status has the form "<action type>:<action status>".
const ACTION_SET_STATUS_COMPLETE = "complete"

func ComposeStatus(actionType ActionType, status ActionStatus) string {
	return fmt.Sprintf("%s:%s", actionType, status)
}

// SplitStatus is the inverse of ComposeStatus. ok is false for the terminal
// status and for malformed values.
func SplitStatus(status string) (ActionType, ActionStatus, bool) {
	t, s, found := strings.Cut(status, ":")
	if !found {
		return "", "", false
	}
	return ActionType(t), ActionStatus(s), true
}

type RawActionSet struct {
	Id            string      `json:"id"`
	Name          string      `json:"name"`
	CurrentStatus string      `json:"current_status"`
	CurrentAction int         `json:"current_action"`
	Actions       []RawAction `json:"actions"`
	DispatchedAt  time.Time   `json:"dispatched_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Consumed      bool        `json:"consumed"`
}

// ActionSetQuery is the identity part of a stored ActionSet.
type ActionSetQuery struct {
	Id string `json:"id"`
}

// ActionSetUpdate carries the non identity fields of a stored ActionSet.
// Nil fields are left untouched by storage updates.
type ActionSetUpdate struct {
	Name          *string     `json:"name,omitempty"`
	CurrentStatus *string     `json:"current_status,omitempty"`
	CurrentAction *int        `json:"current_action,omitempty"`
	Actions       []RawAction `json:"actions,omitempty"`
	DispatchedAt  *time.Time  `json:"dispatched_at,omitempty"`
	CreatedAt     *time.Time  `json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `json:"updated_at,omitempty"`
	Consumed      *bool       `json:"consumed,omitempty"`
}

func (u ActionSetUpdate) Apply(raw *RawActionSet) {
	if u.Name != nil {
		raw.Name = *u.Name
	}
	if u.CurrentStatus != nil {
		raw.CurrentStatus = *u.CurrentStatus
	}
	if u.CurrentAction != nil {
		raw.CurrentAction = *u.CurrentAction
	}
	if u.Actions != nil {
		raw.Actions = append([]RawAction(nil), u.Actions...)
	}
	if u.DispatchedAt != nil {
		raw.DispatchedAt = *u.DispatchedAt
	}
	if u.CreatedAt != nil {
		raw.CreatedAt = *u.CreatedAt
	}
	if u.UpdatedAt != nil {
		raw.UpdatedAt = *u.UpdatedAt
	}
	if u.Consumed != nil {
		raw.Consumed = *u.Consumed
	}
}

// ActionSetFilter selects stored ActionSets whose status starts with
// StatusPrefix, is not one of ExcludeStatuses and, when set, whose dispatch
// is older than DispatchedBefore.
type ActionSetFilter struct {
	StatusPrefix     string
	ExcludeStatuses  []string
	DispatchedBefore *time.Time
	Limit            int
}

func (f ActionSetFilter) Match(raw *RawActionSet) bool {
	if !strings.HasPrefix(raw.CurrentStatus, f.StatusPrefix) {
		return false
	}
	for _, status := range f.ExcludeStatuses {
		if raw.CurrentStatus == status {
			return false
		}
	}
	if f.DispatchedBefore != nil && !raw.DispatchedAt.Before(*f.DispatchedBefore) {
		return false
	}
	return true
}

// Cut orders matched rows oldest dispatch first and keeps at most
// f.Limit of them.
func (f ActionSetFilter) Cut(rows []RawActionSet) []RawActionSet {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DispatchedAt.Before(rows[j].DispatchedAt)
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows
}

// ActionSet is one workflow instance: an ordered, fixed list of Actions, a
// cursor on the action being processed and a composite status.
type ActionSet struct {
	id            string
	name          string
	status        string
	currentAction int
	actions       []*Action
	dispatchedAt  time.Time
	createdAt     time.Time
	updatedAt     time.Time
	consumed      bool
}

func NewActionSet() *ActionSet {
	return &ActionSet{}
}

func (as *ActionSet) SetId(id string) *ActionSet {
	as.id = id
	return as
}

func (as *ActionSet) SetName(name string) *ActionSet {
	as.name = name
	return as
}

func (as *ActionSet) SetStatus(status string) *ActionSet {
	as.status = status
	return as
}

func (as *ActionSet) SetActions(actions []*Action) *ActionSet {
	as.actions = actions
	return as
}

func (as *ActionSet) SetCurrentAction(idx int) *ActionSet {
	as.currentAction = idx
	return as
}

func (as *ActionSet) SetDispatchedAt(t time.Time) *ActionSet {
	as.dispatchedAt = t
	return as
}

func (as *ActionSet) SetCreatedAt(t time.Time) *ActionSet {
	as.createdAt = t
	return as
}

func (as *ActionSet) SetUpdatedAt(t time.Time) *ActionSet {
	as.updatedAt = t
	return as
}

func (as *ActionSet) SetConsumed(consumed bool) *ActionSet {
	as.consumed = consumed
	return as
}

func (as *ActionSet) Id() string              { return as.id }
func (as *ActionSet) Name() string            { return as.name }
func (as *ActionSet) Status() string          { return as.status }
func (as *ActionSet) CurrentAction() int      { return as.currentAction }
func (as *ActionSet) Actions() []*Action      { return as.actions }
func (as *ActionSet) DispatchedAt() time.Time { return as.dispatchedAt }
func (as *ActionSet) CreatedAt() time.Time    { return as.createdAt }
func (as *ActionSet) UpdatedAt() time.Time    { return as.updatedAt }
func (as *ActionSet) Consumed() bool          { return as.consumed }

func (as *ActionSet) IsComplete() bool {
	return as.status == ACTION_SET_STATUS_COMPLETE
}

// Action returns the action at the cursor, nil if the set has no actions.
func (as *ActionSet) Action() *Action {
	if as.currentAction < 0 || as.currentAction >= len(as.actions) {
		return nil
	}
	return as.actions[as.currentAction]
}

// Next completes the current action and moves the cursor forward. On the
// last action the set becomes complete and the cursor stays in place, so
// calling Next again on a complete set changes nothing.
func (as *ActionSet) Next() *ActionSet {
	current := as.Action()
	if current == nil || as.IsComplete() {
		return as
	}
	current.SetStatus(ACTION_STATUS_COMPLETE)
	if as.currentAction == len(as.actions)-1 {
		as.status = ACTION_SET_STATUS_COMPLETE
		return as
	}
	as.currentAction++
	as.status = ComposeStatus(as.actions[as.currentAction].Type(), ACTION_STATUS_IN_PROGRESS)
	return as
}

// SetActionError halts the set on the current action with a validation error.
func (as *ActionSet) SetActionError(reason string, details any) *ActionSet {
	return as.haltCurrent(ACTION_STATUS_ERROR, reason, details)
}

// SetActionIncomplete halts the set on the current action: the data is well
// formed but prerequisites are not met yet.
func (as *ActionSet) SetActionIncomplete(reason string, details any) *ActionSet {
	return as.haltCurrent(ACTION_STATUS_INCOMPLETE, reason, details)
}

func (as *ActionSet) haltCurrent(status ActionStatus, reason string, details any) *ActionSet {
	current := as.Action()
	if current == nil {
		return as
	}
	current.SetStatus(status).SetError(&ActionError{Error: reason, Details: details})
	as.status = ComposeStatus(current.Type(), status)
	return as
}

func (as *ActionSet) rawActions() ([]RawAction, error) {
	actions := make([]RawAction, 0, len(as.actions))
	for _, a := range as.actions {
		raw, err := a.Raw()
		if err != nil {
			return nil, err
		}
		actions = append(actions, raw)
	}
	return actions, nil
}

func (as *ActionSet) Raw() (RawActionSet, error) {
	actions, err := as.rawActions()
	if err != nil {
		return RawActionSet{}, fmt.Errorf("action set %s: %w", as.id, err)
	}
	return RawActionSet{
		Id:            as.id,
		Name:          as.name,
		CurrentStatus: as.status,
		CurrentAction: as.currentAction,
		Actions:       actions,
		DispatchedAt:  as.dispatchedAt,
		CreatedAt:     as.createdAt,
		UpdatedAt:     as.updatedAt,
		Consumed:      as.consumed,
	}, nil
}

func (as *ActionSet) GetQuery() ActionSetQuery {
	return ActionSetQuery{Id: as.id}
}

// WithoutQuery returns every stored field but the id, all set.
func (as *ActionSet) WithoutQuery() (ActionSetUpdate, error) {
	raw, err := as.Raw()
	if err != nil {
		return ActionSetUpdate{}, err
	}
	return ActionSetUpdate{
		Name:          &raw.Name,
		CurrentStatus: &raw.CurrentStatus,
		CurrentAction: &raw.CurrentAction,
		Actions:       raw.Actions,
		DispatchedAt:  &raw.DispatchedAt,
		CreatedAt:     &raw.CreatedAt,
		UpdatedAt:     &raw.UpdatedAt,
		Consumed:      &raw.Consumed,
	}, nil
}

func (as *ActionSet) Load(raw RawActionSet) (*ActionSet, error) {
	actions := make([]*Action, 0, len(raw.Actions))
	for _, r := range raw.Actions {
		a, err := LoadAction(r)
		if err != nil {
			return nil, fmt.Errorf("action set %s: %w", raw.Id, err)
		}
		actions = append(actions, a)
	}
	as.id = raw.Id
	as.name = raw.Name
	as.status = raw.CurrentStatus
	as.currentAction = raw.CurrentAction
	as.actions = actions
	as.dispatchedAt = raw.DispatchedAt
	as.createdAt = raw.CreatedAt
	as.updatedAt = raw.UpdatedAt
	as.consumed = raw.Consumed
	return as, nil
}

func LoadActionSet(raw RawActionSet) (*ActionSet, error) {
	return NewActionSet().Load(raw)
}

// Validate checks the structural invariants of a set before it is stored.
func (as *ActionSet) Validate() error {
	if len(as.actions) == 0 {
		return fmt.Errorf("action set %s has no actions", as.name)
	}
	if as.currentAction < 0 || as.currentAction >= len(as.actions) {
		return fmt.Errorf("action set %s: current action %d out of range [0,%d)", as.name, as.currentAction, len(as.actions))
	}
	names := make(map[string]struct{}, len(as.actions))
	for i, a := range as.actions {
		if a.Type() != ACTION_TYPE_INPUT && a.Type() != ACTION_TYPE_EVENT {
			return fmt.Errorf("action set %s: action %d has invalid type %q", as.name, i, a.Type())
		}
		if _, ok := names[a.Name()]; ok {
			return fmt.Errorf("action set %s: duplicate action name %s", as.name, a.Name())
		}
		names[a.Name()] = struct{}{}
		if i < as.currentAction && a.Status() != ACTION_STATUS_COMPLETE {
			return fmt.Errorf("action set %s: action %d before cursor is not complete", as.name, i)
		}
	}
	if as.IsComplete() {
		return nil
	}
	t, _, ok := SplitStatus(as.status)
	if !ok || t != as.Action().Type() {
		return fmt.Errorf("action set %s: status %q does not match current action type %s", as.name, as.status, as.Action().Type())
	}
	return nil
}
