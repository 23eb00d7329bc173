package cashier

import "context"

// IncrementQuantity raises the quantity by count. With an empty price the
// subscription must have exactly one item.
func (c *Cashier) IncrementQuantity(ctx context.Context, sub *Subscription, count int64, price string, opts *ChangeOptions) error {
	return c.adjustQuantity(ctx, sub, count, price, opts)
}

// IncrementAndInvoice raises the quantity and invoices the difference
// immediately.
func (c *Cashier) IncrementAndInvoice(ctx context.Context, sub *Subscription, count int64, price string, opts *ChangeOptions) error {
	return c.adjustQuantity(ctx, sub, count, price, opts.withAlwaysInvoice())
}

// DecrementQuantity lowers the quantity by count.
func (c *Cashier) DecrementQuantity(ctx context.Context, sub *Subscription, count int64, price string, opts *ChangeOptions) error {
	return c.adjustQuantity(ctx, sub, -count, price, opts)
}

func (c *Cashier) adjustQuantity(ctx context.Context, sub *Subscription, delta int64, price string, opts *ChangeOptions) error {
	if err := sub.guardAgainstIncomplete(); err != nil {
		return err
	}

	if price != "" {
		item, err := c.store.ItemByPrice(ctx, sub.ID, price)
		if err != nil {
			return err
		}
		var current int64
		if item.Quantity != nil {
			current = *item.Quantity
		}
		return c.updateItemQuantity(ctx, sub, item, current+delta, opts)
	}

	if err := sub.guardAgainstMultiplePrices(); err != nil {
		return err
	}
	var current int64
	if sub.Quantity != nil {
		current = *sub.Quantity
	}
	return c.UpdateQuantity(ctx, sub, current+delta, "", opts)
}

// UpdateQuantity sets the quantity outright. With an empty price the
// subscription must have exactly one item.
func (c *Cashier) UpdateQuantity(ctx context.Context, sub *Subscription, quantity int64, price string, opts *ChangeOptions) error {
	if err := sub.guardAgainstIncomplete(); err != nil {
		return err
	}

	if price != "" {
		item, err := c.store.ItemByPrice(ctx, sub.ID, price)
		if err != nil {
			return err
		}
		return c.updateItemQuantity(ctx, sub, item, quantity, opts)
	}

	if err := sub.guardAgainstMultiplePrices(); err != nil {
		return err
	}

	// The provider keeps quantity on the item, not the subscription, so the
	// update call targets the single item's remote id.
	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return err
	}
	item, ok := remote.SinglePrice()
	if !ok {
		return ErrAmbiguousPrice
	}

	updated, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, SubscriptionUpdateParams{
		Items:             []ItemParams{{RemoteID: item.ID, Quantity: &quantity}},
		PaymentBehavior:   opts.paymentBehavior(),
		ProrationBehavior: opts.prorationBehavior(),
	})
	if err != nil {
		return err
	}

	c.setStatus(sub, updated.Status)
	if err := c.reconcile(ctx, sub, updated); err != nil {
		return err
	}

	return c.handlePaymentFailure(ctx, sub, opts)
}

// updateItemQuantity adjusts one line item and re-syncs the mirror.
func (c *Cashier) updateItemQuantity(ctx context.Context, sub *Subscription, item *SubscriptionItem, quantity int64, opts *ChangeOptions) error {
	if _, err := c.gateway.UpdateItem(ctx, item.RemoteID, ItemUpdateParams{
		Quantity:          &quantity,
		PaymentBehavior:   opts.paymentBehavior(),
		ProrationBehavior: opts.prorationBehavior(),
	}); err != nil {
		return err
	}

	return c.resync(ctx, sub, opts)
}
