package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/service"
	"github.com/ticket721/actionset/validation"
	"github.com/ticket721/actionset/workflows"
	"go.uber.org/zap"
)

const CREATION = "@cart/creation"
const CHECKOUT = "@cart/checkout"

const TICKET_SELECTIONS = "@cart/ticketSelections"
const AUTHORIZATIONS = "@cart/authorizations"
const PAYMENT = "@cart/payment"

const MAX_TICKETS = 5

const PAYMENT_STATUS_PENDING = "pending"
const PAYMENT_STATUS_PAID = "paid"
const PAYMENT_STATUS_FAILED = "failed"

const ticketSelectionsSchema = `{
	"type": "object",
	"required": ["tickets"],
	"properties": {
		"tickets": {
			"type": "array",
			"minItems": 1,
			"maxItems": 5,
			"items": {
				"type": "object",
				"required": ["categoryId", "quantity"],
				"properties": {
					"categoryId": {"type": "string", "minLength": 1},
					"quantity": {"type": "integer", "minimum": 1}
				}
			}
		}
	}
}`

type TicketSelection struct {
	CategoryId string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}

type TicketSelections struct {
	Tickets []TicketSelection `json:"tickets"`
}

type Authorization struct {
	CategoryId string `json:"categoryId"`
	Code       string `json:"code"`
}

type Authorizations struct {
	Owner          string          `json:"owner"`
	Authorizations []Authorization `json:"authorizations,omitempty"`
}

type Payment struct {
	Cart    string `json:"cart,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Tickets int    `json:"tickets,omitempty"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// Creator is the part of the ActionSet service the completion hook needs.
type Creator interface {
	Build(ctx context.Context, name string, caller model.User, args map[string]any, internal bool) (*model.ActionSet, error)
	Consume(ctx context.Context, id string) (*model.ActionSet, error)
}

type module struct {
	validator *validation.Validator
	creator   Creator
}

// creationBuilder records the caller on the authorizations step so the
// checkout started on completion belongs to the same user.
type creationBuilder struct{}

func (creationBuilder) IsPrivate() bool {
	return false
}

func (creationBuilder) BuildActionSet(ctx context.Context, caller model.User, args map[string]any) (*model.ActionSet, error) {
	if caller.Id == "" {
		return nil, errors.New("cart needs an owner")
	}
	actions := []*model.Action{
		model.NewAction().SetType(model.ACTION_TYPE_INPUT).SetName(TICKET_SELECTIONS).SetStatus(model.ACTION_STATUS_IN_PROGRESS),
		model.NewAction().SetType(model.ACTION_TYPE_EVENT).SetName(AUTHORIZATIONS).SetStatus(model.ACTION_STATUS_IN_PROGRESS).SetData(Authorizations{Owner: caller.Id}),
	}
	return model.NewActionSet().
		SetActions(actions).
		SetStatus(model.ComposeStatus(model.ACTION_TYPE_INPUT, model.ACTION_STATUS_IN_PROGRESS)), nil
}

// Register adds the cart creation and checkout workflows to svc.
func Register(svc *service.ActionSetService, validator *validation.Validator) error {
	if err := validator.Register(TICKET_SELECTIONS, ticketSelectionsSchema); err != nil {
		return err
	}
	m := &module{validator: validator, creator: svc}
	svc.SetBuilder(CREATION, creationBuilder{})
	svc.SetBuilder(CHECKOUT, service.NewTemplateBuilder(
		service.ActionTemplate{Type: model.ACTION_TYPE_EVENT, Name: PAYMENT, Data: map[string]any{
			"cart":    "{$.cart}",
			"owner":   "{$.owner}",
			"tickets": "{$.tickets}",
			"status":  PAYMENT_STATUS_PENDING,
		}},
	).Private().WithCheck(func(caller model.User, args map[string]any) error {
		if _, ok := args["cart"].(string); !ok {
			return errors.New("checkout needs a cart id")
		}
		return nil
	}))
	svc.SetInputHandler(TICKET_SELECTIONS, m.ticketSelections)
	svc.SetEventHandler(AUTHORIZATIONS, m.authorizations)
	svc.SetEventHandler(PAYMENT, m.payment)
	svc.SetCompletionHook(CREATION, service.CompletionHookFunc(m.onCartComplete))
	return nil
}

func (m *module) ticketSelections(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	var data TicketSelections
	ok, err := workflows.Decode(m.validator, actionSet, &data)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return actionSet, true, nil
	}
	if total := countTickets(data); total > MAX_TICKETS {
		return actionSet.SetActionError("too many tickets", map[string]any{"max": MAX_TICKETS, "requested": total}), true, nil
	}
	return actionSet.Next(), true, nil
}

// authorizations issues one authorization code per selected ticket.
func (m *module) authorizations(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	var selections TicketSelections
	if err := actionSet.Actions()[0].DecodeData(&selections); err != nil {
		return nil, false, err
	}
	var data Authorizations
	if err := actionSet.Action().DecodeData(&data); err != nil {
		return nil, false, err
	}
	data.Authorizations = data.Authorizations[:0]
	total := countTickets(selections)
	for _, selection := range selections.Tickets {
		for i := 0; i < selection.Quantity; i++ {
			data.Authorizations = append(data.Authorizations, Authorization{
				CategoryId: selection.CategoryId,
				Code:       uuid.NewString(),
			})
			progress(len(data.Authorizations) * 100 / total)
		}
	}
	actionSet.Action().SetData(data)
	return actionSet.Next(), true, nil
}

// payment waits for the payment provider outcome to be fed into the step.
func (m *module) payment(ctx context.Context, actionSet *model.ActionSet, progress service.Progress) (*model.ActionSet, bool, error) {
	var data Payment
	if err := actionSet.Action().DecodeData(&data); err != nil {
		return nil, false, err
	}
	switch data.Status {
	case PAYMENT_STATUS_PAID:
		return actionSet.Next(), true, nil
	case PAYMENT_STATUS_FAILED:
		return actionSet.SetActionError("payment failed", data.Reason), true, nil
	}
	return actionSet, false, nil
}

// onCartComplete starts the checkout of a completed cart, then consumes it.
func (m *module) onCartComplete(ctx context.Context, actionSet *model.ActionSet) error {
	var selections TicketSelections
	if err := actionSet.Actions()[0].DecodeData(&selections); err != nil {
		return err
	}
	var auth Authorizations
	if err := actionSet.Actions()[1].DecodeData(&auth); err != nil {
		return err
	}
	checkout, err := m.creator.Build(ctx, CHECKOUT, model.User{Id: auth.Owner}, map[string]any{
		"cart":    actionSet.Id(),
		"owner":   auth.Owner,
		"tickets": countTickets(selections),
	}, true)
	if err != nil {
		return fmt.Errorf("cart %s: start checkout: %w", actionSet.Id(), err)
	}
	if _, err := m.creator.Consume(ctx, actionSet.Id()); err != nil {
		return fmt.Errorf("cart %s: consume: %w", actionSet.Id(), err)
	}
	logger.Info("cart checked out", zap.String("cart", actionSet.Id()), zap.String("checkout", checkout.Id()))
	return nil
}

func countTickets(selections TicketSelections) int {
	total := 0
	for _, selection := range selections.Tickets {
		total += selection.Quantity
	}
	return total
}
