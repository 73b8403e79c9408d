package workflows

import (
	"errors"

	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/validation"
)

const VALIDATION_FAILED = "validation failed"

// Decode checks the data of the current action against the schema
// registered under the action name, then decodes it into v. Invalid data is
// recorded on the set as an action error and reported with false.
func Decode(validator *validation.Validator, actionSet *model.ActionSet, v any) (bool, error) {
	action := actionSet.Action()
	if action == nil {
		return false, errors.New("action set has no current action")
	}
	data, err := action.Data()
	if err != nil {
		return false, err
	}
	if err := validator.Validate(action.Name(), data); err != nil {
		var verr validation.ValidationError
		if errors.As(err, &verr) {
			actionSet.SetActionError(VALIDATION_FAILED, verr.Violations)
			return false, nil
		}
		return false, err
	}
	if err := action.DecodeData(v); err != nil {
		return false, err
	}
	return true, nil
}
