package service

import (
	"fmt"

	"github.com/ticket721/actionset/model"
)

// HandlerNotFoundError means no handler is registered for the action the
// set is positioned on. It is a deployment defect, never a user error.
type HandlerNotFoundError struct {
	Kind        model.ActionType
	ActionName  string
	ActionSetId string
}

func (e HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no %s handler registered for action %s of action set %s", e.Kind, e.ActionName, e.ActionSetId)
}

type BuilderNotFoundError struct {
	Name string
}

func (e BuilderNotFoundError) Error() string {
	return fmt.Sprintf("no builder registered for %s", e.Name)
}

type PrivateBuilderError struct {
	Name string
}

func (e PrivateBuilderError) Error() string {
	return fmt.Sprintf("builder %s is private", e.Name)
}

type BuilderRejectedError struct {
	Name string
	Err  error
}

func (e BuilderRejectedError) Error() string {
	return fmt.Sprintf("builder %s rejected the request: %s", e.Name, e.Err)
}

func (e BuilderRejectedError) Unwrap() error {
	return e.Err
}

type InvalidActionIndexError struct {
	ActionSetId   string
	Index         int
	CurrentAction int
	Length        int
}

func (e InvalidActionIndexError) Error() string {
	return fmt.Sprintf("action set %s: action index %d is not reachable (current %d, %d actions)", e.ActionSetId, e.Index, e.CurrentAction, e.Length)
}

type ActionSetCompleteError struct {
	ActionSetId string
}

func (e ActionSetCompleteError) Error() string {
	return fmt.Sprintf("action set %s is complete", e.ActionSetId)
}

type ActionSetNotCompleteError struct {
	ActionSetId string
	Status      string
}

func (e ActionSetNotCompleteError) Error() string {
	return fmt.Sprintf("action set %s is not complete (%s)", e.ActionSetId, e.Status)
}
