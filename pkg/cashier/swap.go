package cashier

import "context"

// Swap replaces the subscription's line items with the given prices. Items
// carrying prices not in the set are deleted remotely (clearing usage on
// metered prices), and the local mirror is reconciled to the returned remote
// item set. A swap to the current price is a remote no-op but still re-syncs
// the mirror.
func (c *Cashier) Swap(ctx context.Context, sub *Subscription, prices []string, opts *ChangeOptions) error {
	items := make([]ItemParams, 0, len(prices))
	for _, price := range prices {
		items = append(items, ItemParams{Price: price})
	}
	return c.SwapItems(ctx, sub, items, opts)
}

// SwapAndInvoice swaps prices and invoices the difference immediately.
func (c *Cashier) SwapAndInvoice(ctx context.Context, sub *Subscription, prices []string, opts *ChangeOptions) error {
	return c.Swap(ctx, sub, prices, opts.withAlwaysInvoice())
}

// SwapItems is Swap with fully specified line items.
func (c *Cashier) SwapItems(ctx context.Context, sub *Subscription, items []ItemParams, opts *ChangeOptions) error {
	if len(items) == 0 {
		return ErrEmptySubscription
	}
	if err := sub.guardAgainstIncomplete(); err != nil {
		return err
	}
	if opts == nil {
		opts = &ChangeOptions{}
	}

	desired := c.parseSwapItems(sub, items)

	merged, err := c.mergeItemsToDelete(ctx, sub, desired)
	if err != nil {
		return err
	}

	remote, err := c.gateway.UpdateSubscription(ctx, sub.RemoteID, c.swapParams(sub, merged, opts))
	if err != nil {
		return err
	}

	c.setStatus(sub, remote.Status)
	sub.EndsAt = nil
	if err := c.reconcile(ctx, sub, remote); err != nil {
		return err
	}

	return c.handlePaymentFailure(ctx, sub, opts)
}

// parseSwapItems normalizes the desired price set. Quantity carries over
// only on a single-price to single-price swap where a quantity was set.
func (c *Cashier) parseSwapItems(sub *Subscription, items []ItemParams) []ItemParams {
	singlePriceSwap := sub.HasSinglePrice() && len(items) == 1

	out := make([]ItemParams, 0, len(items))
	for _, item := range items {
		if singlePriceSwap && item.Quantity == nil && sub.Quantity != nil {
			q := *sub.Quantity
			item.Quantity = &q
		}
		out = append(out, item)
	}
	return out
}

// mergeItemsToDelete fetches the current remote items and folds them into
// the desired set: items keeping their price get their remote id attached,
// items whose price is leaving are marked deleted, clearing usage when the
// price is metered.
func (c *Cashier) mergeItemsToDelete(ctx context.Context, sub *Subscription, desired []ItemParams) ([]ItemParams, error) {
	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return nil, err
	}

	byPrice := make(map[string]int, len(desired))
	for i, item := range desired {
		byPrice[item.Price] = i
	}

	for _, current := range remote.Items {
		if i, ok := byPrice[current.PriceID]; ok {
			desired[i].RemoteID = current.ID
			continue
		}
		desired = append(desired, ItemParams{
			RemoteID:   current.ID,
			Deleted:    true,
			ClearUsage: current.Metered,
		})
	}

	return desired, nil
}

// swapParams assembles the remote update payload for a swap. A remaining
// trial is preserved; otherwise the trial ends now so the provider does not
// restart one on the new price.
func (c *Cashier) swapParams(sub *Subscription, items []ItemParams, opts *ChangeOptions) SubscriptionUpdateParams {
	params := SubscriptionUpdateParams{
		Items:                       items,
		PaymentBehavior:             opts.paymentBehavior(),
		ProrationBehavior:           opts.prorationBehavior(),
		Coupon:                      opts.Coupon,
		PromotionCode:               opts.PromotionCode,
		BillingCycleAnchorUnchanged: opts.BillingCycleAnchorUnchanged,
	}

	if params.PaymentBehavior != PendingIfIncomplete {
		f := false
		params.CancelAtPeriodEnd = &f
	}

	if sub.OnTrialAt(c.now()) {
		params.TrialEnd = sub.TrialEndsAt
	} else {
		params.TrialNow = true
	}

	return params
}

// reconcile mirrors the remote snapshot into the local record and rewrites
// the item set to match exactly, in one transaction. Both the command path
// and the webhook path converge through this primitive.
func (c *Cashier) reconcile(ctx context.Context, sub *Subscription, remote *RemoteSubscription) error {
	if item, ok := remote.SinglePrice(); ok {
		sub.Price = item.PriceID
		sub.Quantity = item.Quantity
	} else {
		sub.Price = ""
		sub.Quantity = nil
	}

	return c.store.ReconcileSubscription(ctx, sub, itemRecords(sub, remote.Items))
}

// AddPrice attaches one more price to the subscription with the given
// quantity.
func (c *Cashier) AddPrice(ctx context.Context, sub *Subscription, price string, quantity int64, opts *ChangeOptions) error {
	return c.addPrice(ctx, sub, price, &quantity, opts)
}

// AddPriceAndInvoice attaches a price and invoices immediately.
func (c *Cashier) AddPriceAndInvoice(ctx context.Context, sub *Subscription, price string, quantity int64, opts *ChangeOptions) error {
	return c.AddPrice(ctx, sub, price, quantity, opts.withAlwaysInvoice())
}

// AddMeteredPrice attaches a usage-billed price, which carries no quantity.
func (c *Cashier) AddMeteredPrice(ctx context.Context, sub *Subscription, price string, opts *ChangeOptions) error {
	return c.addPrice(ctx, sub, price, nil, opts)
}

func (c *Cashier) addPrice(ctx context.Context, sub *Subscription, price string, quantity *int64, opts *ChangeOptions) error {
	if err := sub.guardAgainstIncomplete(); err != nil {
		return err
	}

	attached, err := c.HasPrice(ctx, sub, price)
	if err != nil {
		return err
	}
	if attached {
		return ErrDuplicatePrice
	}

	if _, err := c.gateway.CreateItem(ctx, ItemCreateParams{
		SubscriptionID:    sub.RemoteID,
		Price:             price,
		Quantity:          quantity,
		PaymentBehavior:   opts.paymentBehavior(),
		ProrationBehavior: opts.prorationBehavior(),
	}); err != nil {
		return err
	}

	return c.resync(ctx, sub, opts)
}

// RemovePrice detaches a price from the subscription. Removing the final
// price is forbidden; cancel the subscription instead.
func (c *Cashier) RemovePrice(ctx context.Context, sub *Subscription, price string, opts *ChangeOptions) error {
	if sub.HasSinglePrice() {
		return ErrLastPrice
	}

	item, err := c.store.ItemByPrice(ctx, sub.ID, price)
	if err != nil {
		return err
	}

	metered, err := c.itemIsMetered(ctx, sub, item.RemoteID)
	if err != nil {
		return err
	}

	if err := c.gateway.DeleteItem(ctx, item.RemoteID, ItemDeleteParams{
		ClearUsage:        metered,
		ProrationBehavior: opts.prorationBehavior(),
	}); err != nil {
		return err
	}

	return c.resync(ctx, sub, nil)
}

// itemIsMetered checks the remote price's usage type for the given item.
func (c *Cashier) itemIsMetered(ctx context.Context, sub *Subscription, remoteItemID string) (bool, error) {
	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return false, err
	}
	for _, item := range remote.Items {
		if item.ID == remoteItemID {
			return item.Metered, nil
		}
	}
	return false, nil
}

// resync refetches the remote subscription, reconciles the mirror and runs
// the payment guard. addPrice/RemovePrice land here so single-item changes
// use the same convergence path as a full swap.
func (c *Cashier) resync(ctx context.Context, sub *Subscription, opts *ChangeOptions) error {
	remote, err := c.gateway.RetrieveSubscription(ctx, sub.RemoteID)
	if err != nil {
		return err
	}

	c.setStatus(sub, remote.Status)
	if err := c.reconcile(ctx, sub, remote); err != nil {
		return err
	}

	if opts == nil {
		return nil
	}
	return c.handlePaymentFailure(ctx, sub, opts)
}
