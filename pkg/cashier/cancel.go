package cashier

import (
	"context"
	"time"
)

// Cancel requests cancellation at the end of the current billing period.
// During a trial the grace period ends with the trial; otherwise it ends
// with the current period.
func (c *Cashier) Cancel(ctx context.Context, sub *Subscription) error {
	t := true
	remote, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, SubscriptionUpdateParams{
		CancelAtPeriodEnd: &t,
	})
	if err != nil {
		return err
	}

	c.setStatus(sub, remote.Status)
	if sub.OnTrialAt(c.now()) {
		sub.EndsAt = sub.TrialEndsAt
	} else {
		sub.EndsAt = remote.CurrentPeriodEnd
	}

	if err := c.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	c.hooks.canceled(ctx, sub)
	return nil
}

// CancelAt requests cancellation at a specific moment.
func (c *Cashier) CancelAt(ctx context.Context, sub *Subscription, at time.Time, opts *ChangeOptions) error {
	remote, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, SubscriptionUpdateParams{
		CancelAt:          &at,
		ProrationBehavior: opts.prorationBehavior(),
	})
	if err != nil {
		return err
	}

	c.setStatus(sub, remote.Status)
	sub.EndsAt = remote.CancelAt

	if err := c.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	c.hooks.canceled(ctx, sub)
	return nil
}

// CancelNow cancels the remote subscription immediately without invoicing.
func (c *Cashier) CancelNow(ctx context.Context, sub *Subscription, opts *ChangeOptions) error {
	if _, err := c.gateway.CancelSubscription(ctx, sub.RemoteID, SubscriptionCancelParams{
		Prorate: opts.prorationBehavior() == CreateProrations,
	}); err != nil {
		return err
	}
	return c.MarkAsCanceled(ctx, sub)
}

// CancelNowAndInvoice cancels immediately and invoices outstanding charges.
func (c *Cashier) CancelNowAndInvoice(ctx context.Context, sub *Subscription, opts *ChangeOptions) error {
	if _, err := c.gateway.CancelSubscription(ctx, sub.RemoteID, SubscriptionCancelParams{
		InvoiceNow: true,
		Prorate:    opts.prorationBehavior() == CreateProrations,
	}); err != nil {
		return err
	}
	return c.MarkAsCanceled(ctx, sub)
}

// MarkAsCanceled records a cancellation locally without a remote call, for
// cases where the remote side is already gone.
func (c *Cashier) MarkAsCanceled(ctx context.Context, sub *Subscription) error {
	now := c.now()
	c.setStatus(sub, StatusCanceled)
	sub.EndsAt = &now

	if err := c.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	c.hooks.canceled(ctx, sub)
	return nil
}

// Resume lifts a pending cancellation. Only a subscription still inside its
// grace period can be resumed.
func (c *Cashier) Resume(ctx context.Context, sub *Subscription) error {
	if !sub.OnGracePeriodAt(c.now()) {
		return ErrNotOnGracePeriod
	}

	f := false
	params := SubscriptionUpdateParams{CancelAtPeriodEnd: &f}
	if sub.OnTrialAt(c.now()) {
		params.TrialEnd = sub.TrialEndsAt
	} else {
		params.TrialNow = true
	}

	remote, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, params)
	if err != nil {
		return err
	}

	c.setStatus(sub, remote.Status)
	sub.EndsAt = nil

	if err := c.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	c.hooks.updated(ctx, sub)
	return nil
}

// EndTrial ends the trial immediately, both remotely and locally.
func (c *Cashier) EndTrial(ctx context.Context, sub *Subscription, opts *ChangeOptions) error {
	if sub.TrialEndsAt == nil {
		return nil
	}

	if _, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, SubscriptionUpdateParams{
		TrialNow:          true,
		ProrationBehavior: opts.prorationBehavior(),
	}); err != nil {
		return err
	}

	sub.TrialEndsAt = nil
	return c.store.UpdateSubscription(ctx, sub)
}

// ExtendTrial moves the trial end to a future date.
func (c *Cashier) ExtendTrial(ctx context.Context, sub *Subscription, at time.Time, opts *ChangeOptions) error {
	if at.Before(c.now()) {
		return ErrTrialDateInPast
	}

	if _, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, SubscriptionUpdateParams{
		TrialEnd:          &at,
		ProrationBehavior: opts.prorationBehavior(),
	}); err != nil {
		return err
	}

	sub.TrialEndsAt = &at
	return c.store.UpdateSubscription(ctx, sub)
}
