package cashier

import (
	"context"
	"time"
)

const defaultSubscriptionType = "default"

// Config configures a Cashier.
type Config struct {
	// Gateway is the remote payment provider client. Required.
	Gateway Gateway

	// Store is the local mirror persistence. Required.
	Store Store

	// Policy controls which provider statuses deactivate a subscription.
	Policy Policy

	// DefaultType labels subscriptions whose webhook metadata carries no
	// type. Defaults to "default".
	DefaultType string

	// Logger is an optional structured logger. Defaults to NoopLogger.
	Logger Logger

	// Metrics is an optional metrics collector. Defaults to NoopMetrics.
	Metrics Metrics

	// Hooks are optional reconciliation callbacks.
	Hooks Hooks

	// Deduper optionally filters webhook event redeliveries.
	Deduper EventDeduper

	// Clock is an optional time source for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Cashier drives the subscription lifecycle against the remote provider and
// keeps the local mirror reconciled.
type Cashier struct {
	gateway     Gateway
	store       Store
	policy      Policy
	defaultType string
	logger      Logger
	metrics     Metrics
	hooks       Hooks
	deduper     EventDeduper
	now         func() time.Time
	locks       *keyedMutex
	handlers    map[string]eventHandler
}

// New creates a Cashier from the given configuration.
func New(cfg Config) (*Cashier, error) {
	if cfg.Gateway == nil || cfg.Store == nil {
		return nil, ErrNotConfigured
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	defaultType := cfg.DefaultType
	if defaultType == "" {
		defaultType = defaultSubscriptionType
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Cashier{
		gateway:     cfg.Gateway,
		store:       cfg.Store,
		policy:      cfg.Policy,
		defaultType: defaultType,
		logger:      logger,
		metrics:     metrics,
		hooks:       cfg.Hooks,
		deduper:     cfg.Deduper,
		now:         clock,
		locks:       newKeyedMutex(),
	}
	c.handlers = c.eventHandlers()

	return c, nil
}

// Policy returns the deactivation policy in effect.
func (c *Cashier) Policy() Policy {
	return c.policy
}

// Valid reports whether the subscription is usable under the configured
// policy.
func (c *Cashier) Valid(sub *Subscription) bool {
	return sub.ValidAt(c.now(), c.policy)
}

// Active reports whether the subscription is active under the configured
// policy.
func (c *Cashier) Active(sub *Subscription) bool {
	return sub.ActiveAt(c.now(), c.policy)
}

// SubscriptionFor returns the owner's most recently created subscription of
// the given type, or ErrSubscriptionNotFound. Multiple live records per type
// are allowed; latest wins.
func (c *Cashier) SubscriptionFor(ctx context.Context, ownerID, subType string) (*Subscription, error) {
	subs, err := c.store.SubscriptionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if sub.Type == subType {
			return sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

// Subscribed reports whether the owner has a usable subscription of the given
// type, optionally narrowed to a price.
func (c *Cashier) Subscribed(ctx context.Context, ownerID, subType, price string) (bool, error) {
	sub, err := c.SubscriptionFor(ctx, ownerID, subType)
	if err == ErrSubscriptionNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !c.Valid(sub) {
		return false, nil
	}
	if price == "" {
		return true, nil
	}
	return c.HasPrice(ctx, sub, price)
}

// HasPrice reports whether the subscription carries the given price.
func (c *Cashier) HasPrice(ctx context.Context, sub *Subscription, price string) (bool, error) {
	if sub.HasSinglePrice() {
		return sub.Price == price, nil
	}
	items, err := c.store.ItemsBySubscription(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Price == price {
			return true, nil
		}
	}
	return false, nil
}

// HasProduct reports whether any of the subscription's items belongs to the
// given product.
func (c *Cashier) HasProduct(ctx context.Context, sub *Subscription, product string) (bool, error) {
	items, err := c.store.ItemsBySubscription(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Product == product {
			return true, nil
		}
	}
	return false, nil
}

// SyncStatus refetches the remote subscription and mirrors its status.
func (c *Cashier) SyncStatus(ctx context.Context, sub *Subscription) error {
	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return err
	}
	c.setStatus(sub, remote.Status)
	return c.store.UpdateSubscription(ctx, sub)
}

// setStatus mirrors a remote status change and records the transition.
func (c *Cashier) setStatus(sub *Subscription, status Status) {
	if sub.Status != status {
		c.metrics.RecordStatusChange(string(sub.Status), string(status))
	}
	sub.Status = status
}

// resolveCustomer returns the owner's remote customer id, creating the remote
// customer on first use.
func (c *Cashier) resolveCustomer(ctx context.Context, owner *Owner) (string, error) {
	if owner.RemoteCustomerID != "" {
		return owner.RemoteCustomerID, nil
	}

	customer, err := c.gateway.CreateCustomer(ctx, CustomerCreateParams{
		Email:    owner.Email,
		Name:     owner.Name,
		Metadata: map[string]string{"owner_id": owner.ID},
	})
	if err != nil {
		return "", err
	}

	owner.RemoteCustomerID = customer.ID
	if err := c.store.SaveOwner(ctx, owner); err != nil {
		return "", err
	}

	c.logger.Info("created remote customer",
		Field{Key: "owner_id", Value: owner.ID},
		Field{Key: "customer_id", Value: customer.ID})

	return customer.ID, nil
}
