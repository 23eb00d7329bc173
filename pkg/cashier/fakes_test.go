package cashier_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/gocashier/pkg/cashier"
	"github.com/mihaimyh/gocashier/storage/memory"
)

// fakeGateway is an in-memory stand-in for the remote billing provider. It
// keeps real subscription state so reconciliation paths can be exercised
// end to end, plus a few knobs to script payment outcomes.
type fakeGateway struct {
	mu sync.Mutex

	subs    map[string]*cashier.RemoteSubscription
	intents map[string]*cashier.RemotePaymentIntent

	// latestIntent maps a subscription id to the intent backing its latest
	// invoice. Absent means the latest invoice has no payment intent.
	latestIntent map[string]string

	// meteredPrices marks price ids that bill by usage.
	meteredPrices map[string]bool

	// createStatus overrides the status of newly created subscriptions.
	createStatus cashier.Status

	// confirmErr, when set, fails every confirmation attempt.
	confirmErr error

	// confirmStatus is the intent status after a successful confirmation.
	// Defaults to succeeded.
	confirmStatus cashier.IntentStatus

	// calls records gateway method names in invocation order.
	calls []string

	nextSub      int
	nextItem     int
	nextCustomer int

	defaultMethods map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subs:           make(map[string]*cashier.RemoteSubscription),
		intents:        make(map[string]*cashier.RemotePaymentIntent),
		latestIntent:   make(map[string]string),
		meteredPrices:  make(map[string]bool),
		defaultMethods: make(map[string]string),
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) newItem(price string, quantity *int64) cashier.RemoteItem {
	g.nextItem++
	return cashier.RemoteItem{
		ID:        fmt.Sprintf("si_%d", g.nextItem),
		PriceID:   price,
		ProductID: "prod_" + price,
		Quantity:  quantity,
		Metered:   g.meteredPrices[price],
	}
}

func (g *fakeGateway) snapshot(sub *cashier.RemoteSubscription) *cashier.RemoteSubscription {
	out := *sub
	out.Items = append([]cashier.RemoteItem(nil), sub.Items...)
	return &out
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, params cashier.SubscriptionCreateParams) (*cashier.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateSubscription")

	g.nextSub++
	sub := &cashier.RemoteSubscription{
		ID:         fmt.Sprintf("sub_%d", g.nextSub),
		CustomerID: params.CustomerID,
		Status:     cashier.StatusActive,
		Metadata:   params.Metadata,
		Created:    time.Now(),
	}
	periodEnd := time.Now().AddDate(0, 1, 0)
	sub.CurrentPeriodEnd = &periodEnd

	for _, item := range params.Items {
		sub.Items = append(sub.Items, g.newItem(item.Price, item.Quantity))
	}
	if params.TrialEnd != nil && !params.TrialNow {
		sub.TrialEnd = params.TrialEnd
		sub.Status = cashier.StatusTrialing
	}
	if g.createStatus != "" {
		sub.Status = g.createStatus
	}

	g.subs[sub.ID] = sub
	return g.snapshot(sub), nil
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, id string, params cashier.SubscriptionUpdateParams) (*cashier.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateSubscription")

	sub, ok := g.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}

	for _, param := range params.Items {
		switch {
		case param.Deleted:
			for i, item := range sub.Items {
				if item.ID == param.RemoteID {
					sub.Items = append(sub.Items[:i], sub.Items[i+1:]...)
					break
				}
			}
		case param.RemoteID != "":
			for i := range sub.Items {
				if sub.Items[i].ID == param.RemoteID {
					if param.Quantity != nil {
						q := *param.Quantity
						sub.Items[i].Quantity = &q
					}
					if param.Price != "" && param.Price != sub.Items[i].PriceID {
						sub.Items[i].PriceID = param.Price
						sub.Items[i].ProductID = "prod_" + param.Price
						sub.Items[i].Metered = g.meteredPrices[param.Price]
					}
				}
			}
		default:
			sub.Items = append(sub.Items, g.newItem(param.Price, param.Quantity))
		}
	}

	if params.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	if params.CancelAt != nil {
		sub.CancelAt = params.CancelAt
	}
	if params.TrialNow {
		now := time.Now()
		sub.TrialEnd = &now
	} else if params.TrialEnd != nil {
		sub.TrialEnd = params.TrialEnd
	}

	return g.snapshot(sub), nil
}

func (g *fakeGateway) RetrieveSubscription(ctx context.Context, id string) (*cashier.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("RetrieveSubscription")

	sub, ok := g.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return g.snapshot(sub), nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, id string, params cashier.SubscriptionCancelParams) (*cashier.RemoteSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CancelSubscription")

	sub, ok := g.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	sub.Status = cashier.StatusCanceled
	now := time.Now()
	sub.CanceledAt = &now
	return g.snapshot(sub), nil
}

func (g *fakeGateway) CreateItem(ctx context.Context, params cashier.ItemCreateParams) (*cashier.RemoteItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateItem")

	sub, ok := g.subs[params.SubscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", params.SubscriptionID)
	}
	item := g.newItem(params.Price, params.Quantity)
	sub.Items = append(sub.Items, item)
	return &item, nil
}

func (g *fakeGateway) UpdateItem(ctx context.Context, id string, params cashier.ItemUpdateParams) (*cashier.RemoteItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateItem")

	for _, sub := range g.subs {
		for i := range sub.Items {
			if sub.Items[i].ID == id {
				if params.Quantity != nil {
					q := *params.Quantity
					sub.Items[i].Quantity = &q
				}
				item := sub.Items[i]
				return &item, nil
			}
		}
	}
	return nil, fmt.Errorf("no such item: %s", id)
}

func (g *fakeGateway) DeleteItem(ctx context.Context, id string, params cashier.ItemDeleteParams) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeleteItem")

	for _, sub := range g.subs {
		for i, item := range sub.Items {
			if item.ID == id {
				sub.Items = append(sub.Items[:i], sub.Items[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("no such item: %s", id)
}

func (g *fakeGateway) LatestPaymentIntent(ctx context.Context, subscriptionID string) (*cashier.RemotePaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("LatestPaymentIntent")

	intentID, ok := g.latestIntent[subscriptionID]
	if !ok {
		return nil, nil
	}
	intent := *g.intents[intentID]
	return &intent, nil
}

func (g *fakeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*cashier.RemotePaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("RetrievePaymentIntent")

	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	out := *intent
	return &out, nil
}

func (g *fakeGateway) ConfirmPaymentIntent(ctx context.Context, id string, params cashier.ConfirmParams) (*cashier.RemotePaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ConfirmPaymentIntent")

	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	if g.confirmErr != nil {
		intent.Status = cashier.IntentRequiresPaymentMethod
		return nil, g.confirmErr
	}
	if g.confirmStatus != "" {
		intent.Status = g.confirmStatus
	} else {
		intent.Status = cashier.IntentSucceeded
	}
	out := *intent
	return &out, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, params cashier.CustomerCreateParams) (*cashier.RemoteCustomer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateCustomer")

	g.nextCustomer++
	return &cashier.RemoteCustomer{
		ID:    fmt.Sprintf("cus_%d", g.nextCustomer),
		Email: params.Email,
		Name:  params.Name,
	}, nil
}

func (g *fakeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("SetDefaultPaymentMethod")

	g.defaultMethods[customerID] = paymentMethodID
	return nil
}

// setIntent scripts the payment intent backing the subscription's latest
// invoice.
func (g *fakeGateway) setIntent(subscriptionID, intentID string, status cashier.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.intents[intentID] = &cashier.RemotePaymentIntent{
		ID:       intentID,
		Status:   status,
		Amount:   1000,
		Currency: "usd",
	}
	g.latestIntent[subscriptionID] = intentID
}

// setStatus overrides the remote subscription status out of band, the way a
// provider-side state change would.
func (g *fakeGateway) setStatus(subscriptionID string, status cashier.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sub, ok := g.subs[subscriptionID]; ok {
		sub.Status = status
	}
}

type testEnv struct {
	cashier *cashier.Cashier
	gateway *fakeGateway
	store   *memory.Store
}

func newTestEnv(t interface{ Fatalf(string, ...interface{}) }, cfg ...func(*cashier.Config)) *testEnv {
	gateway := newFakeGateway()
	store := memory.New()

	config := cashier.Config{Gateway: gateway, Store: store}
	for _, fn := range cfg {
		fn(&config)
	}

	c, err := cashier.New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testEnv{cashier: c, gateway: gateway, store: store}
}

// seedOwner stores an owner that already has a remote customer.
func (e *testEnv) seedOwner(ctx context.Context, id string) *cashier.Owner {
	owner := &cashier.Owner{
		ID:               id,
		RemoteCustomerID: "cus_" + id,
		Email:            id + "@example.com",
	}
	_ = e.store.SaveOwner(ctx, owner)
	return owner
}

// subscribe creates a subscription through the builder and returns the mirror.
func (e *testEnv) subscribe(ctx context.Context, t interface{ Fatalf(string, ...interface{}) }, ownerID string, prices ...string) *cashier.Subscription {
	e.seedOwner(ctx, ownerID)
	sub, err := e.cashier.NewSubscription(ownerID, "default", prices...).Create(ctx, "pm_card")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return sub
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
