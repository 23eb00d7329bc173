package cashier

import "context"

// Hooks are optional callbacks invoked after a reconciliation step commits.
// They run synchronously on the reconciling goroutine; long work should be
// handed off. A nil hook is skipped.
type Hooks struct {
	// SubscriptionCreated fires when a local mirror record is first created,
	// from either the command path or a webhook delivery.
	SubscriptionCreated func(ctx context.Context, sub *Subscription)

	// SubscriptionUpdated fires after any reconciliation rewrites an
	// existing record.
	SubscriptionUpdated func(ctx context.Context, sub *Subscription)

	// SubscriptionCanceled fires when a cancellation is recorded locally.
	SubscriptionCanceled func(ctx context.Context, sub *Subscription)

	// SubscriptionDeleted fires when an incomplete_expired subscription is
	// destroyed together with its items.
	SubscriptionDeleted func(ctx context.Context, remoteID string)

	// PaymentActionRequired fires when the payment guard raises an
	// incomplete-payment condition that needs customer interaction.
	PaymentActionRequired func(ctx context.Context, payment *Payment)
}

func (h Hooks) created(ctx context.Context, sub *Subscription) {
	if h.SubscriptionCreated != nil {
		h.SubscriptionCreated(ctx, sub)
	}
}

func (h Hooks) updated(ctx context.Context, sub *Subscription) {
	if h.SubscriptionUpdated != nil {
		h.SubscriptionUpdated(ctx, sub)
	}
}

func (h Hooks) canceled(ctx context.Context, sub *Subscription) {
	if h.SubscriptionCanceled != nil {
		h.SubscriptionCanceled(ctx, sub)
	}
}

func (h Hooks) deleted(ctx context.Context, remoteID string) {
	if h.SubscriptionDeleted != nil {
		h.SubscriptionDeleted(ctx, remoteID)
	}
}

func (h Hooks) paymentAction(ctx context.Context, payment *Payment) {
	if h.PaymentActionRequired != nil {
		h.PaymentActionRequired(ctx, payment)
	}
}
