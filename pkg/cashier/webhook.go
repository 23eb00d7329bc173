package cashier

import (
	"context"
	"time"
)

// Event is a provider-neutral webhook notification. The gateway adapter
// verifies the transport signature and converts the payload before handing
// it here.
type Event struct {
	ID      string
	Type    string
	Created time.Time

	// Subscription is set for subscription lifecycle events.
	Subscription *RemoteSubscription
}

// EventDeduper filters redeliveries of the same event id. Seen reports
// whether the id was recorded before and records it either way; Forget
// releases a recorded id so a redelivery is processed again, used when the
// handler fails after the id was recorded. Handlers are idempotent, so the
// deduper is an optimization, not a correctness requirement; a deduper error
// is logged and the event is processed anyway.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type eventHandler func(ctx context.Context, event *Event) error

func (c *Cashier) eventHandlers() map[string]eventHandler {
	return map[string]eventHandler{
		"customer.subscription.created": c.handleSubscriptionCreated,
		"customer.subscription.updated": c.handleSubscriptionUpdated,
		"customer.subscription.deleted": c.handleSubscriptionDeleted,
	}
}

// HandleEvent reconciles one webhook event into the local mirror. Delivery is
// at-least-once and unordered: every handler re-derives local state from the
// event's remote snapshot, so redeliveries and stale orderings converge to
// the same record. Events for the same remote subscription are serialized;
// events for different subscriptions run concurrently. Unknown event types
// and events for unknown owners are acknowledged without effect.
func (c *Cashier) HandleEvent(ctx context.Context, event *Event) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordWebhookProcessingDuration(event.Type, time.Since(start))
	}()

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.metrics.RecordWebhookEvent(event.Type, "ignored")
		c.logger.Debug("ignoring webhook event",
			Field{Key: "event_id", Value: event.ID},
			Field{Key: "event_type", Value: event.Type})
		return nil
	}

	var recorded bool
	if c.deduper != nil {
		seen, err := c.deduper.Seen(ctx, event.ID)
		if err != nil {
			c.logger.Warn("event dedup check failed",
				Field{Key: "event_id", Value: event.ID},
				Field{Key: "error", Value: err.Error()})
		} else if seen {
			c.logger.Debug("skipping duplicate webhook event",
				Field{Key: "event_id", Value: event.ID},
				Field{Key: "event_type", Value: event.Type})
			return nil
		} else {
			recorded = true
		}
	}

	if event.Subscription != nil {
		c.locks.lock(event.Subscription.ID)
		defer c.locks.unlock(event.Subscription.ID)
	}

	if err := handler(ctx, event); err != nil {
		// Release the id so the provider's redelivery is not filtered out
		// as a duplicate of this failed attempt.
		if recorded {
			if ferr := c.deduper.Forget(ctx, event.ID); ferr != nil {
				c.logger.Warn("event dedup release failed",
					Field{Key: "event_id", Value: event.ID},
					Field{Key: "error", Value: ferr.Error()})
			}
		}
		c.metrics.RecordWebhookEvent(event.Type, "error")
		c.logger.Error("webhook event failed",
			Field{Key: "event_id", Value: event.ID},
			Field{Key: "event_type", Value: event.Type},
			Field{Key: "error", Value: err.Error()})
		return err
	}

	c.metrics.RecordWebhookEvent(event.Type, "success")
	return nil
}

// handleSubscriptionCreated mirrors a remotely created subscription. The
// command path usually wins the race and writes the mirror first; in that
// case this is a no-op, which also makes it the repair path for a command
// whose local write failed after the remote create succeeded.
func (c *Cashier) handleSubscriptionCreated(ctx context.Context, event *Event) error {
	remote := event.Subscription
	if remote == nil {
		return nil
	}

	owner, err := c.store.OwnerByRemoteCustomerID(ctx, remote.CustomerID)
	if err == ErrOwnerNotFound {
		c.logger.Warn("webhook for unknown customer",
			Field{Key: "event_id", Value: event.ID},
			Field{Key: "customer_id", Value: remote.CustomerID})
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := c.store.SubscriptionByRemoteID(ctx, remote.ID); err == nil {
		return nil
	} else if err != ErrSubscriptionNotFound {
		return err
	}

	sub := &Subscription{
		OwnerID:     owner.ID,
		Type:        c.subscriptionType(remote),
		RemoteID:    remote.ID,
		Status:      remote.Status,
		TrialEndsAt: remote.TrialEnd,
	}
	if item, ok := remote.SinglePrice(); ok {
		sub.Price = item.PriceID
		sub.Quantity = item.Quantity
	}

	if err := c.store.ReconcileSubscription(ctx, sub, itemRecords(sub, remote.Items)); err != nil {
		return err
	}
	c.hooks.created(ctx, sub)

	// A real subscription supersedes any generic trial on the owner.
	if owner.TrialEndsAt != nil {
		owner.TrialEndsAt = nil
		if err := c.store.SaveOwner(ctx, owner); err != nil {
			return err
		}
	}

	c.logger.Info("mirrored subscription from webhook",
		Field{Key: "subscription", Value: remote.ID},
		Field{Key: "owner_id", Value: owner.ID})
	return nil
}

// handleSubscriptionUpdated re-derives the mirror from the event's snapshot.
// An update for a subscription never mirrored locally initializes the mirror,
// which covers a lost or out-of-order created event. An incomplete_expired
// status means the first payment was never completed and the provider gave
// up; the mirror is removed outright. A trial end already recorded locally is
// kept even when the snapshot disagrees, since the local value may carry an
// extension the snapshot predates.
func (c *Cashier) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	remote := event.Subscription
	if remote == nil {
		return nil
	}

	var fresh bool
	sub, err := c.store.SubscriptionByRemoteID(ctx, remote.ID)
	if err == ErrSubscriptionNotFound {
		owner, oerr := c.store.OwnerByRemoteCustomerID(ctx, remote.CustomerID)
		if oerr == ErrOwnerNotFound {
			c.logger.Warn("webhook for unknown customer",
				Field{Key: "event_id", Value: event.ID},
				Field{Key: "customer_id", Value: remote.CustomerID})
			return nil
		}
		if oerr != nil {
			return oerr
		}
		sub = &Subscription{
			OwnerID:  owner.ID,
			Type:     c.subscriptionType(remote),
			RemoteID: remote.ID,
			Status:   remote.Status,
		}
		fresh = true
	} else if err != nil {
		return err
	}

	if remote.Status == StatusIncompleteExpired {
		if fresh {
			return nil
		}
		if err := c.store.DeleteSubscription(ctx, sub.ID); err != nil {
			return err
		}
		c.hooks.deleted(ctx, sub.RemoteID)
		return nil
	}

	c.setStatus(sub, remote.Status)

	if sub.TrialEndsAt == nil {
		sub.TrialEndsAt = remote.TrialEnd
	}

	switch {
	case remote.CancelAtPeriodEnd:
		if sub.OnTrialAt(c.now()) {
			sub.EndsAt = sub.TrialEndsAt
		} else {
			sub.EndsAt = remote.CurrentPeriodEnd
		}
	case remote.CancelAt != nil:
		sub.EndsAt = remote.CancelAt
	case remote.CanceledAt != nil:
		sub.EndsAt = remote.CanceledAt
	default:
		sub.EndsAt = nil
	}

	if err := c.reconcile(ctx, sub, remote); err != nil {
		return err
	}

	if fresh {
		c.hooks.created(ctx, sub)
		c.logger.Info("mirrored subscription from webhook",
			Field{Key: "subscription", Value: remote.ID},
			Field{Key: "owner_id", Value: sub.OwnerID})
	} else {
		c.hooks.updated(ctx, sub)
	}
	return nil
}

// handleSubscriptionDeleted marks the mirror canceled as of now. The record
// is kept for history rather than removed.
func (c *Cashier) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	remote := event.Subscription
	if remote == nil {
		return nil
	}

	sub, err := c.store.SubscriptionByRemoteID(ctx, remote.ID)
	if err == ErrSubscriptionNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	sub.TrialEndsAt = nil
	return c.MarkAsCanceled(ctx, sub)
}

// subscriptionType reads the type stamped into the remote metadata at
// creation, falling back to the configured default for subscriptions created
// outside this module.
func (c *Cashier) subscriptionType(remote *RemoteSubscription) string {
	if t := remote.Metadata["type"]; t != "" {
		return t
	}
	return c.defaultType
}
