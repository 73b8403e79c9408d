package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/persistence/memory"
	"github.com/ticket721/actionset/service"
	"github.com/ticket721/actionset/validation"
	"github.com/ticket721/actionset/workflows"
)

type testEnv struct {
	svc     *service.ActionSetService
	storage persistence.ActionSetStorage
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{storage: memory.NewActionSetStorage()}
	env.svc = service.NewActionSetService(env.storage, persistence.Queues{
		Input: memory.NewQueue("input"),
		Event: memory.NewQueue("event"),
	}, memory.NewRightsStorage())
	require.NoError(t, Register(env.svc, validation.NewValidator()))
	return env
}

func (env *testEnv) run(t *testing.T, as *model.ActionSet) (*model.ActionSet, bool) {
	handler, ok := env.svc.Handler(as.Action().Type(), as.Action().Name())
	require.True(t, ok)
	res, changed, err := handler(context.Background(), as, func(int) {})
	require.NoError(t, err)
	return res, changed
}

func selections(tickets ...TicketSelection) TicketSelections {
	return TicketSelections{Tickets: tickets}
}

type creatorMock struct {
	Creator
	built    []string
	consumed []string
	buildErr error
}

func (c *creatorMock) Build(ctx context.Context, name string, caller model.User, args map[string]any, internal bool) (*model.ActionSet, error) {
	if c.buildErr != nil {
		return nil, c.buildErr
	}
	c.built = append(c.built, name+"/"+caller.Id)
	return model.NewActionSet().SetId("checkout-1").SetName(name), nil
}

func (c *creatorMock) Consume(ctx context.Context, id string) (*model.ActionSet, error) {
	c.consumed = append(c.consumed, id)
	return nil, nil
}

func TestCart(t *testing.T) {
	ctx := context.Background()
	caller := model.User{Id: "buyer-1"}

	for scenario, fn := range map[string]func(t *testing.T, env *testEnv){
		"builds with the caller as owner": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CREATION, caller, nil, false)
			require.NoError(t, err)
			require.Equal(t, "input:in progress", as.Status())
			var auth Authorizations
			require.NoError(t, as.Actions()[1].DecodeData(&auth))
			require.Equal(t, "buyer-1", auth.Owner)
		},
		"anonymous cart is rejected": func(t *testing.T, env *testEnv) {
			_, err := env.svc.Build(ctx, CREATION, model.User{}, nil, false)
			require.ErrorAs(t, err, &service.BuilderRejectedError{})
		},
		"checkout is private": func(t *testing.T, env *testEnv) {
			_, err := env.svc.Build(ctx, CHECKOUT, caller, map[string]any{"cart": "cart-1"}, false)
			require.ErrorAs(t, err, &service.PrivateBuilderError{})

			as, err := env.svc.Build(ctx, CHECKOUT, caller, map[string]any{"cart": "cart-1", "owner": "buyer-1", "tickets": 2}, true)
			require.NoError(t, err)
			require.Equal(t, "event:in progress", as.Status())
			var payment Payment
			require.NoError(t, as.Action().DecodeData(&payment))
			require.Equal(t, Payment{Cart: "cart-1", Owner: "buyer-1", Tickets: 2, Status: PAYMENT_STATUS_PENDING}, payment)
		},
		"checkout needs a cart": func(t *testing.T, env *testEnv) {
			_, err := env.svc.Build(ctx, CHECKOUT, caller, nil, true)
			require.ErrorAs(t, err, &service.BuilderRejectedError{})
		},
		"selections are validated": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CREATION, caller, nil, false)
			require.NoError(t, err)
			as.Action().SetData(selections(TicketSelection{CategoryId: "vip", Quantity: 0}))
			as, changed := env.run(t, as)
			require.True(t, changed)
			require.Equal(t, "input:error", as.Status())
			require.Equal(t, workflows.VALIDATION_FAILED, as.Action().Error().Error)
		},
		"too many tickets is an error": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CREATION, caller, nil, false)
			require.NoError(t, err)
			as.Action().SetData(selections(TicketSelection{CategoryId: "vip", Quantity: 3}, TicketSelection{CategoryId: "regular", Quantity: 3}))
			as, _ = env.run(t, as)
			require.Equal(t, "input:error", as.Status())
			require.Equal(t, "too many tickets", as.Action().Error().Error)
		},
		"authorizations are issued per ticket": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CREATION, caller, nil, false)
			require.NoError(t, err)
			as.Action().SetData(selections(TicketSelection{CategoryId: "vip", Quantity: 1}, TicketSelection{CategoryId: "regular", Quantity: 2}))
			as, _ = env.run(t, as)
			require.Equal(t, "event:in progress", as.Status())

			as, _ = env.run(t, as)
			require.True(t, as.IsComplete())
			var auth Authorizations
			require.NoError(t, as.Actions()[1].DecodeData(&auth))
			require.Equal(t, "buyer-1", auth.Owner)
			require.Len(t, auth.Authorizations, 3)
			codes := map[string]bool{}
			for _, a := range auth.Authorizations {
				codes[a.Code] = true
			}
			require.Len(t, codes, 3)
		},
		"payment outcome drives checkout": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CHECKOUT, caller, map[string]any{"cart": "cart-1", "owner": "buyer-1", "tickets": 1}, true)
			require.NoError(t, err)

			_, changed := env.run(t, as)
			require.False(t, changed)

			as.Action().SetData(Payment{Status: PAYMENT_STATUS_FAILED, Reason: "card declined"})
			as, changed = env.run(t, as)
			require.True(t, changed)
			require.Equal(t, "event:error", as.Status())
			require.Equal(t, "card declined", as.Action().Error().Details)

			as.Action().SetData(Payment{Status: PAYMENT_STATUS_PAID})
			as, changed = env.run(t, as)
			require.True(t, changed)
			require.True(t, as.IsComplete())
		},
		"completed cart starts checkout and is consumed": func(t *testing.T, env *testEnv) {
			as, err := env.svc.Build(ctx, CREATION, caller, nil, false)
			require.NoError(t, err)
			as.Action().SetData(selections(TicketSelection{CategoryId: "vip", Quantity: 2}))
			as, _ = env.run(t, as)
			as, _ = env.run(t, as)
			require.NoError(t, env.svc.Persist(ctx, as))
			require.NoError(t, env.svc.OnComplete(ctx, as))

			stored, err := env.svc.Get(ctx, as.Id())
			require.NoError(t, err)
			require.True(t, stored.Consumed())

			checkouts, err := env.storage.Search(ctx, model.ActionSetFilter{StatusPrefix: "event:"})
			require.NoError(t, err)
			require.Len(t, checkouts, 1)
			require.Equal(t, CHECKOUT, checkouts[0].Name)
			checkout, err := model.LoadActionSet(checkouts[0])
			require.NoError(t, err)
			var payment Payment
			require.NoError(t, checkout.Action().DecodeData(&payment))
			require.Equal(t, as.Id(), payment.Cart)
			require.Equal(t, 2, payment.Tickets)

			rights, err := env.svc.GetRights(ctx, caller, checkout.Id())
			require.NoError(t, err)
			require.True(t, rights[model.RIGHT_OWNER])
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newTestEnv(t))
		})
	}
}

func TestCartCompletionHook(t *testing.T) {
	ctx := context.Background()
	cart := model.NewActionSet().SetId("cart-1").SetName(CREATION).SetActions([]*model.Action{
		model.NewAction().SetType(model.ACTION_TYPE_INPUT).SetName(TICKET_SELECTIONS).SetData(selections(TicketSelection{CategoryId: "vip", Quantity: 1})),
		model.NewAction().SetType(model.ACTION_TYPE_EVENT).SetName(AUTHORIZATIONS).SetData(Authorizations{Owner: "buyer-1"}),
	})

	for scenario, fn := range map[string]func(t *testing.T){
		"builds checkout for the owner before consuming": func(t *testing.T) {
			creator := &creatorMock{}
			m := &module{creator: creator}
			require.NoError(t, m.onCartComplete(ctx, cart))
			require.Equal(t, []string{CHECKOUT + "/buyer-1"}, creator.built)
			require.Equal(t, []string{"cart-1"}, creator.consumed)
		},
		"failed checkout leaves the cart unconsumed": func(t *testing.T) {
			creator := &creatorMock{buildErr: errors.New("storage down")}
			m := &module{creator: creator}
			err := m.onCartComplete(ctx, cart)
			require.ErrorContains(t, err, "storage down")
			require.Empty(t, creator.consumed)
		},
	} {
		t.Run(scenario, fn)
	}
}
