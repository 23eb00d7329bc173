package cashier

import (
	"context"
	"errors"
)

// handlePaymentFailure validates the subscription's latest payment after a
// mutating operation. When the payment only needs confirmation it confirms
// once, treating a card decline as new authoritative state rather than a
// transport failure. On return, either the subscription's payment is settled
// or a typed IncompletePaymentError carrying the payment has been raised;
// a payment failure is never dropped silently.
func (c *Cashier) handlePaymentFailure(ctx context.Context, sub *Subscription, opts *ChangeOptions) error {
	if opts != nil && opts.IgnoreIncompletePayments {
		return nil
	}
	if !sub.HasIncompletePayment() {
		return nil
	}

	intent, err := c.gateway.LatestPaymentIntent(ctx, sub.RemoteID)
	if err != nil {
		return err
	}
	if intent == nil {
		return nil
	}

	payment := NewPayment(c.gateway, *intent)
	verr := payment.Validate()
	if verr == nil {
		return nil
	}

	var incomplete *IncompletePaymentError
	if !errors.As(verr, &incomplete) {
		return verr
	}

	if incomplete.Reason != ReasonConfirmationRequired {
		c.raiseIncomplete(ctx, incomplete)
		return incomplete
	}

	var paymentMethod string
	if opts != nil {
		paymentMethod = opts.PaymentMethod
	}

	if err := payment.Confirm(ctx, paymentMethod); err != nil {
		if !errors.Is(err, ErrCardDeclined) {
			return err
		}
		// The decline is authoritative remote truth; refetch rather than
		// trusting the optimistic local state.
		if err := payment.Refresh(ctx); err != nil {
			return err
		}
	}

	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return err
	}
	c.setStatus(sub, remote.Status)
	if err := c.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	if sub.HasIncompletePayment() {
		if verr := payment.Validate(); verr != nil {
			if errors.As(verr, &incomplete) {
				c.raiseIncomplete(ctx, incomplete)
			}
			return verr
		}
	}

	return nil
}

func (c *Cashier) raiseIncomplete(ctx context.Context, err *IncompletePaymentError) {
	c.logger.Warn("incomplete payment",
		Field{Key: "payment_intent", Value: err.Payment.ID()},
		Field{Key: "reason", Value: string(err.Reason)})

	if err.Reason == ReasonActionRequired {
		c.hooks.paymentAction(ctx, err.Payment)
	}
}
